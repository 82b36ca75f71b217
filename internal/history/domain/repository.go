package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type ListFilter struct {
	CustomerID snowflake.ID
	Cursor     *ListCursor
	Limit      int
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, record *StatusHistoryRecord) error
	// ListByCustomer returns records in chain order, ascending by
	// (changed_at, id). When Limit is set the result holds up to Limit+1
	// rows so callers can detect a next page.
	ListByCustomer(ctx context.Context, db *gorm.DB, filter ListFilter) ([]*StatusHistoryRecord, error)
}
