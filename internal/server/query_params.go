package server

import (
	"errors"
	"strings"
	"time"
)

var errInvalidTime = errors.New("invalid_time")

// parseOptionalTime accepts an RFC3339 timestamp or a bare date. Bare dates
// resolve to the start of the day, or its last nanosecond when endOfDay is
// set, so date-only ranges stay inclusive.
func parseOptionalTime(value string, endOfDay bool) (*time.Time, error) {
	raw := strings.TrimSpace(value)
	if raw == "" {
		return nil, nil
	}

	if ts, err := time.Parse(time.RFC3339, raw); err == nil {
		return &ts, nil
	}

	day, err := time.ParseInLocation(time.DateOnly, raw, time.UTC)
	if err != nil {
		return nil, errInvalidTime
	}
	if endOfDay {
		day = day.AddDate(0, 0, 1).Add(-time.Nanosecond)
	}
	return &day, nil
}
