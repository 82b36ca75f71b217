package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	lifecycledomain "github.com/smallbiznis/certify/internal/lifecycle/domain"
	obscontext "github.com/smallbiznis/certify/internal/observability/context"
)

type transitionRequest struct {
	Status string `json:"status"`
	Reason string `json:"reason"`
	Actor  string `json:"actor"`
}

func (s *Server) TransitionCustomer(c *gin.Context) {
	var req transitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	ctx := c.Request.Context()
	actor := strings.TrimSpace(req.Actor)
	if actor != "" {
		ctx = obscontext.WithActor(ctx, "user", actor)
	}

	resp, err := s.lifecycleSvc.Transition(ctx, lifecycledomain.TransitionRequest{
		CustomerID:   strings.TrimSpace(c.Param("id")),
		TargetStatus: strings.TrimSpace(req.Status),
		Reason:       req.Reason,
		Actor:        actor,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetAllowedTargets(c *gin.Context) {
	resp, err := s.lifecycleSvc.AllowedTargets(c.Request.Context(), lifecycledomain.AllowedTargetsRequest{
		Status: strings.TrimSpace(c.Param("status")),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}
