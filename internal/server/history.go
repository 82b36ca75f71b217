package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	historydomain "github.com/smallbiznis/certify/internal/history/domain"
	"github.com/smallbiznis/certify/pkg/db/pagination"
)

func (s *Server) ListCustomerHistory(c *gin.Context) {
	var query struct {
		pagination.Pagination
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.historySvc.List(c.Request.Context(), historydomain.ListHistoryRequest{
		CustomerID: strings.TrimSpace(c.Param("id")),
		PageToken:  query.PageToken,
		PageSize:   int32(query.PageSize),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}
