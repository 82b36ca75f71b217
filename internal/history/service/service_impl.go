package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/certify/internal/history/domain"
	"github.com/smallbiznis/certify/pkg/db/pagination"
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
		log:  p.Log.Named("history.service"),
		repo: p.Repo,
	}
}

func (s *Service) List(ctx context.Context, req domain.ListHistoryRequest) (domain.ListHistoryResponse, error) {
	customerID, err := snowflake.ParseString(strings.TrimSpace(req.CustomerID))
	if err != nil || customerID == 0 {
		return domain.ListHistoryResponse{}, domain.ErrInvalidCustomer
	}

	pageSize := int(req.PageSize)
	if pageSize <= 0 {
		pageSize = 50
	}

	filter := domain.ListFilter{
		CustomerID: customerID,
		Limit:      pageSize,
	}

	if token := strings.TrimSpace(req.PageToken); token != "" {
		cursor, err := decodeListCursor(token)
		if err != nil {
			return domain.ListHistoryResponse{}, domain.ErrInvalidPageToken
		}
		filter.Cursor = cursor
	}

	records, err := s.repo.ListByCustomer(ctx, s.db, filter)
	if err != nil {
		return domain.ListHistoryResponse{}, err
	}

	pageInfo := pagination.BuildCursorPageInfo(records, pageSize, func(record *domain.StatusHistoryRecord) string {
		token, err := pagination.EncodeCursor(pagination.Cursor{
			ID:        record.ID.String(),
			Timestamp: record.ChangedAt.Format(time.RFC3339Nano),
		})
		if err != nil {
			return ""
		}
		return token
	})
	if pageInfo != nil && pageInfo.HasMore && len(records) > pageSize {
		records = records[:pageSize]
	}

	items := make([]domain.StatusHistoryRecord, 0, len(records))
	for _, record := range records {
		if record == nil {
			continue
		}
		items = append(items, *record)
	}

	resp := domain.ListHistoryResponse{Records: items}
	if pageInfo != nil {
		resp.PageInfo = *pageInfo
	}
	return resp, nil
}

func decodeListCursor(token string) (*domain.ListCursor, error) {
	decoded, err := pagination.DecodeCursor(token)
	if err != nil {
		return nil, err
	}
	changedAt, err := time.Parse(time.RFC3339Nano, decoded.Timestamp)
	if err != nil {
		return nil, err
	}
	id, err := snowflake.ParseString(strings.TrimSpace(decoded.ID))
	if err != nil || id == 0 {
		return nil, domain.ErrInvalidPageToken
	}
	return &domain.ListCursor{ID: id, ChangedAt: changedAt}, nil
}
