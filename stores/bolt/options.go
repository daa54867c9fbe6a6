package bolt

import (
	"time"

	"github.com/jilio/statemap/stores"
)

// Option configures the Store.
type Option func(*config)

type config struct {
	timeout     time.Duration
	logger      stores.Logger
	metricsHook stores.MetricsHook
}

func defaultConfig() *config {
	return &config{timeout: time.Second}
}

// WithTimeout bounds how long Open waits for the file lock held by another
// process. Default is one second.
func WithTimeout(d time.Duration) Option {
	return func(c *config) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithLogger sets the logger for the store.
func WithLogger(logger stores.Logger) Option {
	return func(c *config) {
		c.logger = logger
	}
}

// WithMetricsHook sets the metrics hook for the store.
func WithMetricsHook(hook stores.MetricsHook) Option {
	return func(c *config) {
		c.metricsHook = hook
	}
}
