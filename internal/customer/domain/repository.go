package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/certify/pkg/db/pagination"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, customer *Customer) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Customer, error)
	// FindByIDForUpdate loads the row under an exclusive row lock. Callers
	// must hold an open transaction.
	FindByIDForUpdate(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Customer, error)
	// UpdateStatus applies a guarded status write and reports the number of
	// rows affected. Zero rows means the version check failed.
	UpdateStatus(ctx context.Context, db *gorm.DB, update StatusUpdate) (int64, error)
	SoftDelete(ctx context.Context, db *gorm.DB, id snowflake.ID, at time.Time) (int64, error)
	List(ctx context.Context, db *gorm.DB, filter ListCustomerFilter, page pagination.Pagination) ([]*Customer, error)
}
