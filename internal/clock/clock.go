// Package clock abstracts time so jobs and services can be tested with a
// controllable clock.
package clock

import (
	"time"

	"go.uber.org/fx"
)

// Clock supplies the current time.
type Clock interface {
	Now() time.Time
}

// Module provides the system clock.
var Module = fx.Provide(NewSystemClock)

type systemClock struct{}

// NewSystemClock returns a Clock backed by time.Now in UTC.
func NewSystemClock() Clock {
	return systemClock{}
}

func (systemClock) Now() time.Time {
	return time.Now().UTC()
}
