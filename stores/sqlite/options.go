package sqlite

import (
	"time"

	"github.com/jilio/statemap/stores"
)

// Logger is an interface for logging operations. *slog.Logger satisfies it.
type Logger = stores.Logger

// MetricsHook is called after store operations complete.
type MetricsHook = stores.MetricsHook

// Option configures the Store
type Option func(*config)

type config struct {
	path        string
	busyTimeout time.Duration
	autoMigrate bool
	logger      Logger
	metricsHook MetricsHook
	cacheSize   int
}

func defaultConfig() *config {
	return &config{
		busyTimeout: 5 * time.Second,
		autoMigrate: true,
	}
}

// WithBusyTimeout sets the SQLite busy timeout
// Default is 5 seconds
func WithBusyTimeout(timeout time.Duration) Option {
	return func(c *config) {
		c.busyTimeout = timeout
	}
}

// WithAutoMigrate enables or disables automatic schema migration
// Default is true
func WithAutoMigrate(enabled bool) Option {
	return func(c *config) {
		c.autoMigrate = enabled
	}
}

// WithLogger sets the logger for the store
func WithLogger(logger Logger) Option {
	return func(c *config) {
		c.logger = logger
	}
}

// WithMetricsHook sets the metrics hook for the store
func WithMetricsHook(hook MetricsHook) Option {
	return func(c *config) {
		c.metricsHook = hook
	}
}

// WithCache keeps up to size loaded rooms in memory. Load returns copies, so
// callers may modify what they get. Default is no cache.
func WithCache(size int) Option {
	return func(c *config) {
		c.cacheSize = size
	}
}
