package service

import (
	"context"
	"strings"

	"github.com/smallbiznis/certify/internal/aggregate/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB   *gorm.DB
	Log  *zap.Logger
	Repo domain.Repository
}

type Service struct {
	db   *gorm.DB
	log  *zap.Logger
	repo domain.Repository
}

func New(p Params) domain.Service {
	return &Service{
		db:   p.DB,
		log:  p.Log.Named("aggregate.service"),
		repo: p.Repo,
	}
}

func (s *Service) GetMonthlyCounts(ctx context.Context, req domain.GetMonthlyCountsRequest) (domain.GetMonthlyCountsResponse, error) {
	fromMonth, toMonth, err := parseRange(req.FromMonth, req.ToMonth)
	if err != nil {
		return domain.GetMonthlyCountsResponse{}, err
	}

	rows, err := s.repo.GetRange(ctx, s.db, fromMonth, toMonth)
	if err != nil {
		return domain.GetMonthlyCountsResponse{}, err
	}

	counts := make([]domain.MonthlyCount, 0, len(rows))
	for _, row := range rows {
		if row == nil {
			continue
		}
		counts = append(counts, *row)
	}
	return domain.GetMonthlyCountsResponse{Counts: counts}, nil
}

func (s *Service) GetMonthlyCountsByType(ctx context.Context, req domain.GetMonthlyCountsByTypeRequest) (domain.GetMonthlyCountsByTypeResponse, error) {
	fromMonth, toMonth, err := parseRange(req.FromMonth, req.ToMonth)
	if err != nil {
		return domain.GetMonthlyCountsByTypeResponse{}, err
	}

	rows, err := s.repo.GetRangeByType(ctx, s.db, fromMonth, toMonth)
	if err != nil {
		return domain.GetMonthlyCountsByTypeResponse{}, err
	}

	counts := make([]domain.MonthlyCountByType, 0, len(rows))
	for _, row := range rows {
		if row == nil {
			continue
		}
		counts = append(counts, *row)
	}
	return domain.GetMonthlyCountsByTypeResponse{Counts: counts}, nil
}

func parseRange(from, to string) (string, string, error) {
	fromMonth, err := domain.ParseMonth(strings.TrimSpace(from))
	if err != nil {
		return "", "", domain.ErrInvalidMonth
	}
	toMonth, err := domain.ParseMonth(strings.TrimSpace(to))
	if err != nil {
		return "", "", domain.ErrInvalidMonth
	}
	if toMonth < fromMonth {
		return "", "", domain.ErrInvalidRange
	}
	return fromMonth, toMonth, nil
}
