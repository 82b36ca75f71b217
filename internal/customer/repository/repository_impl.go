package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/certify/internal/customer/domain"
	"github.com/smallbiznis/certify/pkg/db/pagination"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, customer *domain.Customer) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO customers (id, name, email, status, certified_at, certificate_type, deleted_at, version, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		customer.ID,
		customer.Name,
		customer.Email,
		customer.Status,
		customer.CertifiedAt,
		customer.CertificateType,
		customer.DeletedAt,
		customer.Version,
		customer.CreatedAt,
		customer.UpdatedAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Customer, error) {
	var customer domain.Customer
	err := db.WithContext(ctx).Raw(
		`SELECT id, name, email, status, certified_at, certificate_type, deleted_at, version, created_at, updated_at
		 FROM customers WHERE id = ? AND deleted_at IS NULL`,
		id,
	).Scan(&customer).Error
	if err != nil {
		return nil, err
	}
	if customer.ID == 0 {
		return nil, nil
	}
	return &customer, nil
}

func (r *repo) FindByIDForUpdate(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Customer, error) {
	query := `SELECT id, name, email, status, certified_at, certificate_type, deleted_at, version, created_at, updated_at
		 FROM customers WHERE id = ? AND deleted_at IS NULL`
	if supportsRowLocks(db) {
		query += ` FOR UPDATE`
	}

	var customer domain.Customer
	err := db.WithContext(ctx).Raw(query, id).Scan(&customer).Error
	if err != nil {
		return nil, err
	}
	if customer.ID == 0 {
		return nil, nil
	}
	return &customer, nil
}

func (r *repo) UpdateStatus(ctx context.Context, db *gorm.DB, update domain.StatusUpdate) (int64, error) {
	var result *gorm.DB
	if update.SetCertifiedAt {
		result = db.WithContext(ctx).Exec(
			`UPDATE customers
			 SET status = ?, certified_at = ?, version = version + 1, updated_at = ?
			 WHERE id = ? AND version = ? AND deleted_at IS NULL`,
			update.Status,
			update.CertifiedAt,
			update.UpdatedAt,
			update.ID,
			update.Version,
		)
	} else {
		result = db.WithContext(ctx).Exec(
			`UPDATE customers
			 SET status = ?, version = version + 1, updated_at = ?
			 WHERE id = ? AND version = ? AND deleted_at IS NULL`,
			update.Status,
			update.UpdatedAt,
			update.ID,
			update.Version,
		)
	}
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

func (r *repo) SoftDelete(ctx context.Context, db *gorm.DB, id snowflake.ID, at time.Time) (int64, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE customers SET deleted_at = ?, updated_at = ? WHERE id = ? AND deleted_at IS NULL`,
		at,
		at,
		id,
	)
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, filter domain.ListCustomerFilter, page pagination.Pagination) ([]*domain.Customer, error) {
	var customers []*domain.Customer
	stmt := db.WithContext(ctx).
		Model(&domain.Customer{}).
		Where("deleted_at IS NULL")
	if filter.Name != "" {
		stmt = stmt.Where("name = ?", filter.Name)
	}
	if filter.Email != "" {
		stmt = stmt.Where("email = ?", filter.Email)
	}
	if filter.Status != nil {
		stmt = stmt.Where("status = ?", *filter.Status)
	}
	if filter.Cursor != nil {
		stmt = stmt.Where("(created_at < ?) OR (created_at = ? AND id < ?)",
			filter.Cursor.CreatedAt,
			filter.Cursor.CreatedAt,
			filter.Cursor.ID,
		)
	}
	if page.PageSize > 0 {
		stmt = stmt.Limit(page.PageSize + 1)
	}
	err := stmt.
		Order("created_at desc, id desc").
		Find(&customers).Error
	if err != nil {
		return nil, err
	}
	return customers, nil
}

// supportsRowLocks reports whether the dialect honors SELECT .. FOR UPDATE.
// SQLite serializes writers on its own, so the clause is omitted there.
func supportsRowLocks(db *gorm.DB) bool {
	if db == nil || db.Dialector == nil {
		return false
	}
	switch db.Dialector.Name() {
	case "postgres", "mysql":
		return true
	default:
		return false
	}
}
