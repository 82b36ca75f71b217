package domain

import (
	"context"
	"errors"

	"github.com/smallbiznis/certify/pkg/db/pagination"
)

type ListHistoryRequest struct {
	CustomerID string
	PageToken  string
	PageSize   int32
}

type ListHistoryResponse struct {
	pagination.PageInfo
	Records []StatusHistoryRecord `json:"records"`
}

type Service interface {
	List(context.Context, ListHistoryRequest) (ListHistoryResponse, error)
}

var (
	ErrInvalidCustomer  = errors.New("invalid_customer")
	ErrInvalidPageToken = errors.New("invalid_page_token")
)
