package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	customerdomain "github.com/smallbiznis/certify/internal/customer/domain"
	"github.com/smallbiznis/certify/pkg/db/pagination"
)

type createCustomerRequest struct {
	Name            string `json:"name"`
	Email           string `json:"email"`
	CertificateType string `json:"certificate_type"`
}

func (s *Server) CreateCustomer(c *gin.Context) {
	var req createCustomerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.customerSvc.Create(c.Request.Context(), customerdomain.CreateCustomerRequest{
		Name:            strings.TrimSpace(req.Name),
		Email:           strings.TrimSpace(req.Email),
		CertificateType: strings.TrimSpace(req.CertificateType),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	if s.auditSvc != nil {
		targetID := resp.ID.String()
		_ = s.auditSvc.AuditLog(c.Request.Context(), "", nil, "customer.create", "customer", &targetID, map[string]any{
			"customer_id": resp.ID.String(),
			"name":        resp.Name,
			"email":       resp.Email,
		})
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ListCustomers(c *gin.Context) {
	var query struct {
		pagination.Pagination
		Name   string `form:"name"`
		Email  string `form:"email"`
		Status string `form:"status"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.customerSvc.List(c.Request.Context(), customerdomain.ListCustomerRequest{
		PageToken: query.PageToken,
		PageSize:  int32(query.PageSize),
		Name:      strings.TrimSpace(query.Name),
		Email:     strings.TrimSpace(query.Email),
		Status:    strings.TrimSpace(query.Status),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetCustomerByID(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))
	resp, err := s.customerSvc.GetByID(c.Request.Context(), customerdomain.GetCustomerRequest{
		ID: id,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) DeleteCustomer(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))
	if err := s.customerSvc.Delete(c.Request.Context(), customerdomain.DeleteCustomerRequest{ID: id}); err != nil {
		AbortWithError(c, err)
		return
	}

	if s.auditSvc != nil {
		_ = s.auditSvc.AuditLog(c.Request.Context(), "", nil, "customer.delete", "customer", &id, nil)
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{"deleted": true}})
}
