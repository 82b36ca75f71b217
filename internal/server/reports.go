package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	aggregatedomain "github.com/smallbiznis/certify/internal/aggregate/domain"
)

type monthlyReportQuery struct {
	Month     string `form:"month"`
	FromMonth string `form:"from_month"`
	ToMonth   string `form:"to_month"`
}

// resolve collapses the single-month shorthand into a range.
func (q monthlyReportQuery) resolve() (string, string) {
	if month := strings.TrimSpace(q.Month); month != "" {
		return month, month
	}
	return strings.TrimSpace(q.FromMonth), strings.TrimSpace(q.ToMonth)
}

func (s *Server) GetMonthlyCertifications(c *gin.Context) {
	var query monthlyReportQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	from, to := query.resolve()
	resp, err := s.aggregateSvc.GetMonthlyCounts(c.Request.Context(), aggregatedomain.GetMonthlyCountsRequest{
		FromMonth: from,
		ToMonth:   to,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetMonthlyCertificationsByType(c *gin.Context) {
	var query monthlyReportQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	from, to := query.resolve()
	resp, err := s.aggregateSvc.GetMonthlyCountsByType(c.Request.Context(), aggregatedomain.GetMonthlyCountsByTypeRequest{
		FromMonth: from,
		ToMonth:   to,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}
