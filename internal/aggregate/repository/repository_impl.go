package repository

import (
	"context"
	"time"

	"github.com/smallbiznis/certify/internal/aggregate/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) IncrementMonth(ctx context.Context, db *gorm.DB, month string, delta int64, now time.Time) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO certification_monthly_counts (month, count, updated_at)
		 VALUES (?, ?, ?)
		 ON CONFLICT (month)
		 DO UPDATE SET count = certification_monthly_counts.count + EXCLUDED.count,
		               updated_at = EXCLUDED.updated_at`,
		month,
		delta,
		now,
	).Error
}

func (r *repo) IncrementMonthByType(ctx context.Context, db *gorm.DB, month, certificateType string, delta int64, now time.Time) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO certification_monthly_counts_by_type (month, certificate_type, count, updated_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT (month, certificate_type)
		 DO UPDATE SET count = certification_monthly_counts_by_type.count + EXCLUDED.count,
		               updated_at = EXCLUDED.updated_at`,
		month,
		certificateType,
		delta,
		now,
	).Error
}

func (r *repo) GetForMonth(ctx context.Context, db *gorm.DB, month string) (int64, error) {
	var count int64
	err := db.WithContext(ctx).Raw(
		`SELECT COALESCE(SUM(count), 0) FROM certification_monthly_counts WHERE month = ?`,
		month,
	).Scan(&count).Error
	if err != nil {
		return 0, err
	}
	return count, nil
}

func (r *repo) GetRange(ctx context.Context, db *gorm.DB, fromMonth, toMonth string) ([]*domain.MonthlyCount, error) {
	var rows []*domain.MonthlyCount
	err := db.WithContext(ctx).Raw(
		`SELECT month, count, updated_at
		 FROM certification_monthly_counts
		 WHERE month >= ? AND month <= ?
		 ORDER BY month ASC`,
		fromMonth,
		toMonth,
	).Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repo) GetForMonthByType(ctx context.Context, db *gorm.DB, month string) ([]*domain.MonthlyCountByType, error) {
	var rows []*domain.MonthlyCountByType
	err := db.WithContext(ctx).Raw(
		`SELECT month, certificate_type, count, updated_at
		 FROM certification_monthly_counts_by_type
		 WHERE month = ?
		 ORDER BY certificate_type ASC`,
		month,
	).Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repo) GetRangeByType(ctx context.Context, db *gorm.DB, fromMonth, toMonth string) ([]*domain.MonthlyCountByType, error) {
	var rows []*domain.MonthlyCountByType
	err := db.WithContext(ctx).Raw(
		`SELECT month, certificate_type, count, updated_at
		 FROM certification_monthly_counts_by_type
		 WHERE month >= ? AND month <= ?
		 ORDER BY month ASC, certificate_type ASC`,
		fromMonth,
		toMonth,
	).Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repo) ReplaceAll(ctx context.Context, db *gorm.DB, counts []*domain.MonthlyCount, byType []*domain.MonthlyCountByType) error {
	if err := db.WithContext(ctx).Exec(`DELETE FROM certification_monthly_counts`).Error; err != nil {
		return err
	}
	if err := db.WithContext(ctx).Exec(`DELETE FROM certification_monthly_counts_by_type`).Error; err != nil {
		return err
	}
	for _, row := range counts {
		if row == nil {
			continue
		}
		err := db.WithContext(ctx).Exec(
			`INSERT INTO certification_monthly_counts (month, count, updated_at) VALUES (?, ?, ?)`,
			row.Month,
			row.Count,
			row.UpdatedAt,
		).Error
		if err != nil {
			return err
		}
	}
	for _, row := range byType {
		if row == nil {
			continue
		}
		err := db.WithContext(ctx).Exec(
			`INSERT INTO certification_monthly_counts_by_type (month, certificate_type, count, updated_at) VALUES (?, ?, ?, ?)`,
			row.Month,
			row.CertificateType,
			row.Count,
			row.UpdatedAt,
		).Error
		if err != nil {
			return err
		}
	}
	return nil
}
