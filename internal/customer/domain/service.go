package domain

import (
	"context"
	"errors"

	"github.com/smallbiznis/certify/internal/status"
	"github.com/smallbiznis/certify/pkg/db/pagination"
)

type CreateCustomerRequest struct {
	Name            string
	Email           string
	CertificateType string
}

type GetCustomerRequest struct {
	ID string
}

type DeleteCustomerRequest struct {
	ID string
}

type ListCustomerRequest struct {
	PageToken string
	PageSize  int32
	Name      string
	Email     string
	Status    string
}

type ListCustomerFilter struct {
	Name   string
	Email  string
	Status *status.Status
	Cursor *ListCursor
}

type ListCustomerResponse struct {
	pagination.PageInfo
	Customers []Customer `json:"customers"`
}

type Service interface {
	Create(context.Context, CreateCustomerRequest) (Customer, error)
	GetByID(context.Context, GetCustomerRequest) (Customer, error)
	Delete(context.Context, DeleteCustomerRequest) error
	List(context.Context, ListCustomerRequest) (ListCustomerResponse, error)
}

var (
	ErrInvalidName            = errors.New("invalid_name")
	ErrInvalidEmail           = errors.New("invalid_email")
	ErrInvalidID              = errors.New("invalid_id")
	ErrInvalidStatusFilter    = errors.New("invalid_status_filter")
	ErrInvalidCertificateType = errors.New("invalid_certificate_type")
	ErrInvalidPageToken       = errors.New("invalid_page_token")
	ErrEmailTaken             = errors.New("email_taken")
	ErrNotFound               = errors.New("not_found")
)
