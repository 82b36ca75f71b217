package domain

import (
	"context"
	"time"

	"gorm.io/gorm"
)

type Repository interface {
	// IncrementMonth adds delta to the month's total in one statement,
	// inserting the row when it does not exist yet.
	IncrementMonth(ctx context.Context, db *gorm.DB, month string, delta int64, now time.Time) error
	// IncrementMonthByType does the same for a (month, certificate type) pair.
	IncrementMonthByType(ctx context.Context, db *gorm.DB, month, certificateType string, delta int64, now time.Time) error

	// GetForMonth returns the month's total, zero when no row exists.
	GetForMonth(ctx context.Context, db *gorm.DB, month string) (int64, error)
	// GetRange returns rows for fromMonth..toMonth inclusive, ascending by
	// month. Months without a row are absent from the result.
	GetRange(ctx context.Context, db *gorm.DB, fromMonth, toMonth string) ([]*MonthlyCount, error)

	GetForMonthByType(ctx context.Context, db *gorm.DB, month string) ([]*MonthlyCountByType, error)
	GetRangeByType(ctx context.Context, db *gorm.DB, fromMonth, toMonth string) ([]*MonthlyCountByType, error)

	// ReplaceAll rewrites both aggregate tables from recomputed rows. The
	// caller runs it inside a transaction.
	ReplaceAll(ctx context.Context, db *gorm.DB, counts []*MonthlyCount, byType []*MonthlyCountByType) error
}
