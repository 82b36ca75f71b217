// Package domain contains persistence models for certification reporting
// aggregates.
package domain

import (
	"errors"
	"regexp"
	"time"
)

// MonthlyCount is the number of certifications granted in one calendar
// month, keyed by the month in "2006-01" form.
type MonthlyCount struct {
	Month     string    `gorm:"primaryKey;type:text" json:"month"`
	Count     int64     `gorm:"not null;default:0" json:"count"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

// TableName sets the database table name.
func (MonthlyCount) TableName() string { return "certification_monthly_counts" }

// MonthlyCountByType splits a month's certifications by certificate type.
// Customers without a certificate type are counted under TypeUnspecified.
type MonthlyCountByType struct {
	Month           string    `gorm:"primaryKey;type:text" json:"month"`
	CertificateType string    `gorm:"primaryKey;type:text" json:"certificate_type"`
	Count           int64     `gorm:"not null;default:0" json:"count"`
	UpdatedAt       time.Time `gorm:"not null" json:"updated_at"`
}

// TableName sets the database table name.
func (MonthlyCountByType) TableName() string { return "certification_monthly_counts_by_type" }

// TypeUnspecified buckets certified customers that carry no certificate type.
const TypeUnspecified = "UNSPECIFIED"

// MonthLayout is the canonical month key format.
const MonthLayout = "2006-01"

var ErrInvalidMonth = errors.New("invalid_month")

var monthPattern = regexp.MustCompile(`^\d{4}-(0[1-9]|1[0-2])$`)

// MonthKey derives the canonical month key from a timestamp, in UTC.
func MonthKey(t time.Time) string {
	return t.UTC().Format(MonthLayout)
}

// ParseMonth validates a month key and returns it unchanged.
func ParseMonth(value string) (string, error) {
	if !monthPattern.MatchString(value) {
		return "", ErrInvalidMonth
	}
	return value, nil
}
