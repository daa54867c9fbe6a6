package resolve

import (
	"context"
	"time"
)

// Logger is the interface for logging.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Error(msg string, args ...any)
}

// Result summarises a call to Resolve.
type Result struct {
	States       int
	Unconflicted int
	Conflicted   int
	// Resolved counts conflicted keys for which the chooser produced a value.
	Resolved int
}

// Observer receives callbacks around each call to Resolve.
type Observer interface {
	OnResolveStart(ctx context.Context, states int) context.Context
	OnResolveComplete(ctx context.Context, result Result, duration time.Duration, err error)
}

// Option configures Resolve.
type Option func(*config)

type config struct {
	logger    Logger
	observers []Observer
}

// WithLogger sets a logger for debugging output.
func WithLogger(logger Logger) Option {
	return func(c *config) {
		c.logger = logger
	}
}

// WithObserver adds an observer notified when resolution starts and ends.
// Observers are started in the order given and completed in reverse.
func WithObserver(observer Observer) Option {
	return func(c *config) {
		if observer != nil {
			c.observers = append(c.observers, observer)
		}
	}
}
