package repository

import (
	"context"
	"strings"

	"github.com/smallbiznis/certify/internal/audit/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, entry *domain.AuditLog) error {
	if entry == nil {
		return nil
	}
	return db.WithContext(ctx).Exec(
		`INSERT INTO audit_logs (
			id, actor_type, actor_id, action, target_type, target_id,
			metadata, ip_address, user_agent, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID,
		entry.ActorType,
		entry.ActorID,
		entry.Action,
		entry.TargetType,
		entry.TargetID,
		entry.Metadata,
		entry.IPAddress,
		entry.UserAgent,
		entry.CreatedAt,
	).Error
}

// exactFilters maps the optional equality filters to their columns so List
// applies them uniformly.
func exactFilters(filter domain.ListFilter) map[string]string {
	return map[string]string{
		"action":      filter.Action,
		"target_type": filter.TargetType,
		"target_id":   filter.TargetID,
		"actor_type":  filter.ActorType,
	}
}

func (r *repo) List(ctx context.Context, db *gorm.DB, filter domain.ListFilter) ([]*domain.AuditLog, error) {
	stmt := db.WithContext(ctx).Model(&domain.AuditLog{})

	for column, value := range exactFilters(filter) {
		if v := strings.TrimSpace(value); v != "" {
			stmt = stmt.Where(column+" = ?", v)
		}
	}
	if filter.StartAt != nil {
		stmt = stmt.Where("created_at >= ?", filter.StartAt.UTC())
	}
	if filter.EndAt != nil {
		stmt = stmt.Where("created_at <= ?", filter.EndAt.UTC())
	}
	if cur := filter.Cursor; cur != nil {
		stmt = stmt.Where("(created_at < ?) OR (created_at = ? AND id < ?)",
			cur.CreatedAt, cur.CreatedAt, cur.ID)
	}
	if filter.Limit > 0 {
		stmt = stmt.Limit(filter.Limit + 1)
	}

	var entries []*domain.AuditLog
	if err := stmt.Order("created_at desc, id desc").Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}
