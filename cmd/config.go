package cmd

import (
	"fmt"
	"log/slog"

	"github.com/caarlos0/env/v11"
)

// Config is read from the environment; flags take precedence.
type Config struct {
	DB       string `env:"STATEMAP_DB" envDefault:"statemap.db"`
	Backend  string `env:"STATEMAP_BACKEND" envDefault:"sqlite"`
	LogLevel string `env:"STATEMAP_LOG_LEVEL" envDefault:"info"`

	// CacheSize is the number of rooms the sqlite backend keeps in memory.
	CacheSize int `env:"STATEMAP_CACHE_SIZE" envDefault:"0"`

	// MetricsFile receives Prometheus metrics in text format on exit.
	MetricsFile string `env:"STATEMAP_METRICS_FILE"`

	// OTLPEndpoint enables OTLP/HTTP export of traces and metrics.
	OTLPEndpoint string `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
}

func loadConfig() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

func (c *Config) level() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("invalid STATEMAP_LOG_LEVEL %q: %w", c.LogLevel, err)
	}
	return level, nil
}
