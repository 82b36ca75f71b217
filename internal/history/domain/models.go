// Package domain contains persistence models for the status change trail.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/certify/internal/status"
)

// StatusHistoryRecord is one link in a customer's status chain. Records are
// append-only: they are never updated or deleted, and consecutive records of
// the same customer chain together (record k's ToStatus is record k+1's
// FromStatus).
type StatusHistoryRecord struct {
	ID         snowflake.ID   `gorm:"primaryKey" json:"id"`
	CustomerID snowflake.ID   `gorm:"not null;index:idx_status_history_customer" json:"customer_id"`
	FromStatus *status.Status `gorm:"type:text" json:"from_status,omitempty"`
	ToStatus   status.Status  `gorm:"type:text;not null" json:"to_status"`
	Reason     *string        `gorm:"type:text" json:"reason,omitempty"`
	Actor      string         `gorm:"type:text;not null" json:"actor"`
	ChangedAt  time.Time      `gorm:"not null;index:idx_status_history_customer" json:"changed_at"`
}

// TableName sets the database table name.
func (StatusHistoryRecord) TableName() string { return "status_history" }

// ListCursor resumes a keyset listing after (ChangedAt, ID), ascending.
type ListCursor struct {
	ID        snowflake.ID
	ChangedAt time.Time
}
