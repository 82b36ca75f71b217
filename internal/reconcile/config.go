package reconcile

import "time"

// Config controls the reconciliation interval and per-run limits.
type Config struct {
	RunInterval time.Duration
	RunTimeout  time.Duration
	Enabled     bool
}

func DefaultConfig() Config {
	return Config{
		RunInterval: time.Hour,
		RunTimeout:  10 * time.Minute,
		Enabled:     true,
	}
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.RunInterval <= 0 {
		c.RunInterval = defaults.RunInterval
	}
	if c.RunTimeout <= 0 {
		c.RunTimeout = defaults.RunTimeout
	}
	return c
}
