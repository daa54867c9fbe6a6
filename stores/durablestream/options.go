package durablestream

import (
	"net/http"
	"time"
)

// Logger is the logging interface used by the stream. *slog.Logger
// satisfies it.
type Logger interface {
	Debug(msg string, args ...any)
	Error(msg string, args ...any)
}

// Option configures a Stream.
type Option func(*config)

type config struct {
	httpClient    *http.Client
	timeout       time.Duration
	retryAttempts int
	retryBackoff  time.Duration
	batchSize     int
	logger        Logger
}

func defaultConfig() *config {
	return &config{
		httpClient:    http.DefaultClient,
		timeout:       30 * time.Second,
		retryAttempts: 3,
		retryBackoff:  100 * time.Millisecond,
		batchSize:     500,
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *config) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *config) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithRetry configures retries of failed requests and 5xx responses.
func WithRetry(attempts int, backoff time.Duration) Option {
	return func(c *config) {
		if attempts >= 0 {
			c.retryAttempts = attempts
		}
		if backoff > 0 {
			c.retryBackoff = backoff
		}
	}
}

// WithBatchSize limits how many messages Publish sends per request.
func WithBatchSize(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.batchSize = n
		}
	}
}

// WithLogger sets a logger. Malformed messages skipped while reading are
// reported at error level.
func WithLogger(logger Logger) Option {
	return func(c *config) {
		c.logger = logger
	}
}
