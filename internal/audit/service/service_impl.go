package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/certify/internal/audit/domain"
	"github.com/smallbiznis/certify/internal/audit/masking"
	obscontext "github.com/smallbiznis/certify/internal/observability/context"
	"github.com/smallbiznis/certify/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	defaultPageSize = 50
	maxPageSize     = 250
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Repo  auditdomain.Repository
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	repo  auditdomain.Repository
}

func NewService(p Params) auditdomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("audit.service"),
		genID: p.GenID,
		repo:  p.Repo,
	}
}

// AuditLog records one operational event. Metadata passes through the PII
// mask before it is stored; the request id, client address and user agent are
// pulled from the request context when present.
func (s *Service) AuditLog(ctx context.Context, actorType string, actorID *string, action string, targetType string, targetID *string, metadata map[string]any) error {
	action = strings.TrimSpace(action)
	if action == "" {
		return auditdomain.ErrInvalidAction
	}

	entry := auditdomain.AuditLog{
		ID:         s.genID.Generate(),
		Action:     action,
		TargetType: "unknown",
		TargetID:   normalizePointer(targetID),
		Metadata:   datatypes.JSONMap(s.buildMetadata(ctx, metadata)),
		CreatedAt:  time.Now().UTC(),
	}
	if tt := strings.TrimSpace(targetType); tt != "" {
		entry.TargetType = tt
	}
	entry.ActorType, entry.ActorID = s.resolveActor(ctx, strings.TrimSpace(actorType), actorID)
	if ip := obscontext.IPAddressFromContext(ctx); ip != "" {
		entry.IPAddress = &ip
	}
	if ua := obscontext.UserAgentFromContext(ctx); ua != "" {
		entry.UserAgent = &ua
	}

	if err := s.repo.Insert(ctx, s.db, &entry); err != nil {
		s.log.Warn("failed to write audit log", zap.String("action", action), zap.Error(err))
		return err
	}
	return nil
}

func (s *Service) buildMetadata(ctx context.Context, metadata map[string]any) map[string]any {
	payload := masking.MaskJSON(metadata)
	if payload == nil {
		payload = map[string]any{}
	}
	if requestID := obscontext.RequestIDFromContext(ctx); requestID != "" {
		payload["request_id"] = requestID
	}
	return payload
}

func (s *Service) List(ctx context.Context, req auditdomain.ListAuditLogRequest) (auditdomain.ListAuditLogResponse, error) {
	if req.StartAt != nil && req.EndAt != nil && req.StartAt.After(*req.EndAt) {
		return auditdomain.ListAuditLogResponse{}, auditdomain.ErrInvalidTimeRange
	}

	cursor, err := decodeAuditCursor(req.PageToken)
	if err != nil {
		return auditdomain.ListAuditLogResponse{}, err
	}

	pageSize := clampPageSize(int(req.PageSize))
	items, err := s.repo.List(ctx, s.db, auditdomain.ListFilter{
		Action:     req.Action,
		TargetType: req.TargetType,
		TargetID:   req.TargetID,
		ActorType:  req.ActorType,
		StartAt:    req.StartAt,
		EndAt:      req.EndAt,
		Cursor:     cursor,
		Limit:      pageSize,
	})
	if err != nil {
		return auditdomain.ListAuditLogResponse{}, err
	}

	pageInfo := pagination.BuildCursorPageInfo(items, pageSize, func(item *auditdomain.AuditLog) string {
		token, err := pagination.EncodeCursor(pagination.Cursor{
			ID:        item.ID.String(),
			Timestamp: item.CreatedAt.Format(time.RFC3339Nano),
		})
		if err != nil {
			return ""
		}
		return token
	})
	if pageInfo != nil && pageInfo.HasMore && len(items) > pageSize {
		items = items[:pageSize]
	}

	logs := make([]auditdomain.AuditLog, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		logs = append(logs, *item)
	}

	resp := auditdomain.ListAuditLogResponse{AuditLogs: logs}
	if pageInfo != nil {
		resp.PageInfo = *pageInfo
	}
	return resp, nil
}

func decodeAuditCursor(pageToken string) (*auditdomain.AuditCursor, error) {
	if strings.TrimSpace(pageToken) == "" {
		return nil, nil
	}
	decoded, err := pagination.DecodeCursor(pageToken)
	if err != nil {
		return nil, auditdomain.ErrInvalidPageToken
	}
	createdAt, err := time.Parse(time.RFC3339Nano, decoded.Timestamp)
	if err != nil {
		return nil, auditdomain.ErrInvalidPageToken
	}
	id, err := snowflake.ParseString(strings.TrimSpace(decoded.ID))
	if err != nil || id == 0 {
		return nil, auditdomain.ErrInvalidPageToken
	}
	return &auditdomain.AuditCursor{ID: id, CreatedAt: createdAt}, nil
}

func clampPageSize(size int) int {
	if size <= 0 {
		return defaultPageSize
	}
	if size > maxPageSize {
		return maxPageSize
	}
	return size
}

// resolveActor falls back to the actor recorded on the request context, and
// finally to the system actor for background writes.
func (s *Service) resolveActor(ctx context.Context, actorType string, actorID *string) (string, *string) {
	if actorType == "" {
		ctxType, ctxID := obscontext.ActorFromContext(ctx)
		if ctxType != "" {
			actorType = ctxType
			if normalizePointer(actorID) == nil && ctxID != "" {
				actorID = &ctxID
			}
		}
	}
	if actorType == "" {
		actorType = string(auditdomain.ActorTypeSystem)
	}
	return actorType, normalizePointer(actorID)
}

func normalizePointer(value *string) *string {
	if value == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
