package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"gopkg.in/yaml.v3"

	"github.com/jilio/statemap/metrics"
	"github.com/jilio/statemap/otel"
	"github.com/jilio/statemap/resolve"
	"github.com/jilio/statemap/stores"
	"github.com/jilio/statemap/stores/bolt"
	"github.com/jilio/statemap/stores/sqlite"
)

// session holds what sub-commands share within one CLI invocation.
type session struct {
	cfg    *Config
	opts   *Options
	stdout io.Writer
	stderr io.Writer

	loggerOnce sync.Once
	logger     *slog.Logger
	loggerErr  error

	// obs and metrics are set while a store is open and the respective
	// output is enabled.
	obs     *otel.Observability
	metrics *metrics.Metrics
}

var (
	sessionMu sync.Mutex
	current   *session
)

func setSession(s *session) {
	sessionMu.Lock()
	defer sessionMu.Unlock()
	current = s
}

func currentSession() *session {
	sessionMu.Lock()
	defer sessionMu.Unlock()
	return current
}

func (s *session) dbPath() string {
	if s.opts.DB != "" {
		return s.opts.DB
	}
	return s.cfg.DB
}

func (s *session) backend() string {
	if s.opts.Backend != "" {
		return s.opts.Backend
	}
	return s.cfg.Backend
}

func (s *session) metricsFile() string {
	if s.opts.MetricsFile != "" {
		return s.opts.MetricsFile
	}
	return s.cfg.MetricsFile
}

func (s *session) log() (*slog.Logger, error) {
	s.loggerOnce.Do(func() {
		level, err := s.cfg.level()
		if err != nil {
			s.loggerErr = err
			return
		}
		if s.opts.Verbose {
			level = slog.LevelDebug
		}
		s.logger = slog.New(slog.NewTextHandler(s.stderr, &slog.HandlerOptions{Level: level}))
	})
	return s.logger, s.loggerErr
}

// hook combines the store metrics hooks that are enabled.
func (s *session) hook() stores.MetricsHook {
	var hooks []stores.MetricsHook
	if s.obs != nil {
		hooks = append(hooks, s.obs)
	}
	if s.metrics != nil {
		hooks = append(hooks, s.metrics)
	}
	return stores.MultiHook(hooks...)
}

// openStore opens the configured backend; callers must close it.
func (s *session) openStore() (stores.RoomStore, *slog.Logger, error) {
	logger, err := s.log()
	if err != nil {
		return nil, nil, err
	}

	var store stores.RoomStore
	switch backend := s.backend(); backend {
	case "sqlite":
		store, err = sqlite.New(s.dbPath(),
			sqlite.WithLogger(logger),
			sqlite.WithCache(s.cfg.CacheSize),
			sqlite.WithMetricsHook(s.hook()),
		)
	case "bolt":
		store, err = bolt.Open(s.dbPath(),
			bolt.WithLogger(logger),
			bolt.WithMetricsHook(s.hook()),
		)
	default:
		return nil, nil, fmt.Errorf("unknown backend %q", backend)
	}
	if err != nil {
		return nil, nil, err
	}
	logger.Debug("opened store", "backend", s.backend(), "path", s.dbPath())
	return store, logger, nil
}

// resolveOptions returns the options shared by every resolution.
func (s *session) resolveOptions(logger *slog.Logger) []resolve.Option {
	opts := []resolve.Option{resolve.WithLogger(logger)}
	if s.obs != nil {
		opts = append(opts, resolve.WithObserver(s.obs))
	}
	if s.metrics != nil {
		opts = append(opts, resolve.WithObserver(s.metrics))
	}
	return opts
}

// withStore runs fn with an open store and closes it afterwards. Telemetry
// and metrics, when enabled, are flushed after the store is closed.
func withStore(fn func(ctx context.Context, s *session, store stores.RoomStore, logger *slog.Logger) error) (err error) {
	ctx := context.Background()
	s := currentSession()

	tel, err := s.setupTelemetry(ctx)
	if err != nil {
		return fmt.Errorf("setup telemetry: %w", err)
	}
	if tel != nil {
		s.obs = tel.obs
		defer func() {
			s.obs = nil
			err = errors.Join(err, tel.shutdown(ctx))
		}()
	}

	if path := s.metricsFile(); path != "" {
		s.metrics = metrics.New()
		reg := prometheus.NewRegistry()
		if err := reg.Register(s.metrics); err != nil {
			return fmt.Errorf("register metrics: %w", err)
		}
		defer func() {
			s.metrics = nil
			err = errors.Join(err, prometheus.WriteToTextfile(path, reg))
		}()
	}

	store, logger, err := s.openStore()
	if err != nil {
		return err
	}
	defer store.Close()
	return fn(ctx, s, store, logger)
}

func (s *session) printYAML(v any) error {
	enc := yaml.NewEncoder(s.stdout)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return err
	}
	return enc.Close()
}
