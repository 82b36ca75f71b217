package repository

import (
	"context"

	"github.com/smallbiznis/certify/internal/history/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, record *domain.StatusHistoryRecord) error {
	if record == nil {
		return nil
	}
	return db.WithContext(ctx).Exec(
		`INSERT INTO status_history (id, customer_id, from_status, to_status, reason, actor, changed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		record.ID,
		record.CustomerID,
		record.FromStatus,
		record.ToStatus,
		record.Reason,
		record.Actor,
		record.ChangedAt,
	).Error
}

func (r *repo) ListByCustomer(ctx context.Context, db *gorm.DB, filter domain.ListFilter) ([]*domain.StatusHistoryRecord, error) {
	var records []*domain.StatusHistoryRecord
	stmt := db.WithContext(ctx).Model(&domain.StatusHistoryRecord{}).
		Where("customer_id = ?", filter.CustomerID)

	if filter.Cursor != nil {
		stmt = stmt.Where("(changed_at > ?) OR (changed_at = ? AND id > ?)",
			filter.Cursor.ChangedAt,
			filter.Cursor.ChangedAt,
			filter.Cursor.ID,
		)
	}

	stmt = stmt.Order("changed_at asc, id asc")
	if filter.Limit > 0 {
		stmt = stmt.Limit(filter.Limit + 1)
	}

	if err := stmt.Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}
