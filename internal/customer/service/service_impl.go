package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/certify/internal/customer/domain"
	"github.com/smallbiznis/certify/internal/status"
	"github.com/smallbiznis/certify/pkg/db"
	"github.com/smallbiznis/certify/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Repo  domain.Repository
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	repo  domain.Repository
}

func New(p Params) domain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("customer.service"),
		genID: p.GenID,
		repo:  p.Repo,
	}
}

func (s *Service) Create(ctx context.Context, req domain.CreateCustomerRequest) (domain.Customer, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return domain.Customer{}, domain.ErrInvalidName
	}

	email := strings.TrimSpace(req.Email)
	if email == "" || !strings.Contains(email, "@") {
		return domain.Customer{}, domain.ErrInvalidEmail
	}

	var certificateType *string
	if raw := strings.TrimSpace(req.CertificateType); raw != "" {
		if len(raw) > 100 {
			return domain.Customer{}, domain.ErrInvalidCertificateType
		}
		certificateType = &raw
	}

	now := time.Now().UTC()
	customer := domain.Customer{
		ID:              s.genID.Generate(),
		Name:            name,
		Email:           email,
		Status:          status.StatusNew,
		CertificateType: certificateType,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if err := s.repo.Insert(ctx, s.db, &customer); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return domain.Customer{}, domain.ErrEmailTaken
		}
		return domain.Customer{}, err
	}

	return customer, nil
}

func (s *Service) GetByID(ctx context.Context, req domain.GetCustomerRequest) (domain.Customer, error) {
	id, err := s.parseID(req.ID)
	if err != nil {
		return domain.Customer{}, err
	}

	item, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return domain.Customer{}, err
	}
	if item == nil {
		return domain.Customer{}, domain.ErrNotFound
	}

	return *item, nil
}

func (s *Service) Delete(ctx context.Context, req domain.DeleteCustomerRequest) error {
	id, err := s.parseID(req.ID)
	if err != nil {
		return err
	}

	affected, err := s.repo.SoftDelete(ctx, s.db, id, time.Now().UTC())
	if err != nil {
		return err
	}
	if affected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (s *Service) List(ctx context.Context, req domain.ListCustomerRequest) (domain.ListCustomerResponse, error) {
	filter := domain.ListCustomerFilter{
		Name:  strings.TrimSpace(req.Name),
		Email: strings.TrimSpace(req.Email),
	}

	if raw := strings.TrimSpace(req.Status); raw != "" {
		parsed, err := status.Parse(raw)
		if err != nil {
			return domain.ListCustomerResponse{}, domain.ErrInvalidStatusFilter
		}
		filter.Status = &parsed
	}

	if token := strings.TrimSpace(req.PageToken); token != "" {
		cursor, err := decodeListCursor(token)
		if err != nil {
			return domain.ListCustomerResponse{}, domain.ErrInvalidPageToken
		}
		filter.Cursor = cursor
	}

	pageSize := int(req.PageSize)
	if pageSize <= 0 {
		pageSize = 50
	}

	items, err := s.repo.List(ctx, s.db, filter, pagination.Pagination{PageSize: pageSize})
	if err != nil {
		return domain.ListCustomerResponse{}, err
	}

	pageInfo := pagination.BuildCursorPageInfo(items, pageSize, func(customer *domain.Customer) string {
		token, err := pagination.EncodeCursor(pagination.Cursor{
			ID:        customer.ID.String(),
			Timestamp: customer.CreatedAt.Format(time.RFC3339Nano),
		})
		if err != nil {
			return ""
		}
		return token
	})
	if pageInfo != nil && pageInfo.HasMore && len(items) > pageSize {
		items = items[:pageSize]
	}

	customers := make([]domain.Customer, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		customers = append(customers, *item)
	}

	resp := domain.ListCustomerResponse{Customers: customers}
	if pageInfo != nil {
		resp.PageInfo = *pageInfo
	}
	return resp, nil
}

func (s *Service) parseID(value string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(value))
	if err != nil || id == 0 {
		return 0, domain.ErrInvalidID
	}
	return id, nil
}

func decodeListCursor(token string) (*domain.ListCursor, error) {
	decoded, err := pagination.DecodeCursor(token)
	if err != nil {
		return nil, err
	}
	createdAt, err := time.Parse(time.RFC3339Nano, decoded.Timestamp)
	if err != nil {
		return nil, err
	}
	id, err := snowflake.ParseString(strings.TrimSpace(decoded.ID))
	if err != nil || id == 0 {
		return nil, domain.ErrInvalidPageToken
	}
	return &domain.ListCursor{ID: id, CreatedAt: createdAt}, nil
}
