package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func (s *Server) RunReconciliation(c *gin.Context) {
	report, err := s.reconcileJob.Run(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": report})
}
