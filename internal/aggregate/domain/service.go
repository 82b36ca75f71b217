package domain

import (
	"context"
	"errors"
)

type GetMonthlyCountsRequest struct {
	FromMonth string
	ToMonth   string
}

type GetMonthlyCountsResponse struct {
	Counts []MonthlyCount `json:"counts"`
}

type GetMonthlyCountsByTypeRequest struct {
	FromMonth string
	ToMonth   string
}

type GetMonthlyCountsByTypeResponse struct {
	Counts []MonthlyCountByType `json:"counts"`
}

type Service interface {
	GetMonthlyCounts(context.Context, GetMonthlyCountsRequest) (GetMonthlyCountsResponse, error)
	GetMonthlyCountsByType(context.Context, GetMonthlyCountsByTypeRequest) (GetMonthlyCountsByTypeResponse, error)
}

var ErrInvalidRange = errors.New("invalid_range")
