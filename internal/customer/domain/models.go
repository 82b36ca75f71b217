package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/certify/internal/status"
)

// Customer is the persistence model for a certification customer. Status
// changes go exclusively through the lifecycle service; the version column is
// the optimistic concurrency token it checks on every write.
type Customer struct {
	ID              snowflake.ID  `gorm:"primaryKey" json:"id"`
	Name            string        `gorm:"not null" json:"name"`
	Email           string        `gorm:"not null;uniqueIndex:idx_customers_email" json:"email"`
	Status          status.Status `gorm:"type:text;not null" json:"status"`
	CertifiedAt     *time.Time    `gorm:"index" json:"certified_at,omitempty"`
	CertificateType *string       `gorm:"type:text" json:"certificate_type,omitempty"`
	DeletedAt       *time.Time    `json:"deleted_at,omitempty"`
	Version         int64         `gorm:"not null;default:0" json:"version"`
	CreatedAt       time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt       time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (Customer) TableName() string { return "customers" }

// ListCursor resumes a keyset listing after (CreatedAt, ID).
type ListCursor struct {
	ID        snowflake.ID
	CreatedAt time.Time
}

// StatusUpdate describes a guarded status write. The write applies only when
// the stored version still equals Version; CertifiedAt is written only when
// SetCertifiedAt is true so an existing first-certification date is never
// overwritten.
type StatusUpdate struct {
	ID             snowflake.ID
	Status         status.Status
	Version        int64
	SetCertifiedAt bool
	CertifiedAt    time.Time
	UpdatedAt      time.Time
}
