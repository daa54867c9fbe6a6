// Package otel instruments statemap resolution and storage with
// OpenTelemetry traces and metrics.
package otel

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/jilio/statemap"
	"github.com/jilio/statemap/resolve"
	"github.com/jilio/statemap/stores"
)

const (
	instrumentationName = "github.com/jilio/statemap"
)

// Observability implements resolve.Observer and stores.MetricsHook using
// OpenTelemetry.
type Observability struct {
	tracer trace.Tracer
	meter  metric.Meter

	resolveCounter   metric.Int64Counter
	resolveDuration  metric.Float64Histogram
	resolveConflicts metric.Int64Counter
	resolveErrors    metric.Int64Counter

	storeCounter  metric.Int64Counter
	storeDuration metric.Float64Histogram
	storeEntries  metric.Int64Counter
	storeErrors   metric.Int64Counter

	bucketGauge metric.Int64ObservableGauge
}

// Option configures the Observability
type Option func(*Observability)

// WithTracerProvider sets a custom tracer provider
func WithTracerProvider(provider trace.TracerProvider) Option {
	return func(o *Observability) {
		o.tracer = provider.Tracer(instrumentationName)
	}
}

// WithMeterProvider sets a custom meter provider
func WithMeterProvider(provider metric.MeterProvider) Option {
	return func(o *Observability) {
		o.meter = provider.Meter(instrumentationName)
	}
}

// New creates a new OpenTelemetry observability implementation
func New(opts ...Option) (*Observability, error) {
	obs := &Observability{
		tracer: otel.Tracer(instrumentationName),
		meter:  otel.Meter(instrumentationName),
	}

	for _, opt := range opts {
		opt(obs)
	}

	var err error

	obs.resolveCounter, err = obs.meter.Int64Counter(
		"statemap.resolve.count",
		metric.WithDescription("Number of state resolutions"),
		metric.WithUnit("{resolution}"),
	)
	if err != nil {
		return nil, err
	}

	obs.resolveDuration, err = obs.meter.Float64Histogram(
		"statemap.resolve.duration",
		metric.WithDescription("State resolution duration"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	obs.resolveConflicts, err = obs.meter.Int64Counter(
		"statemap.resolve.conflicts",
		metric.WithDescription("Number of conflicted state keys"),
		metric.WithUnit("{key}"),
	)
	if err != nil {
		return nil, err
	}

	obs.resolveErrors, err = obs.meter.Int64Counter(
		"statemap.resolve.errors",
		metric.WithDescription("Number of failed state resolutions"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return nil, err
	}

	obs.storeCounter, err = obs.meter.Int64Counter(
		"statemap.store.count",
		metric.WithDescription("Number of room state saves and loads"),
		metric.WithUnit("{operation}"),
	)
	if err != nil {
		return nil, err
	}

	obs.storeDuration, err = obs.meter.Float64Histogram(
		"statemap.store.duration",
		metric.WithDescription("Room state save and load duration"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	obs.storeEntries, err = obs.meter.Int64Counter(
		"statemap.store.entries",
		metric.WithDescription("Number of state entries saved or loaded"),
		metric.WithUnit("{entry}"),
	)
	if err != nil {
		return nil, err
	}

	obs.storeErrors, err = obs.meter.Int64Counter(
		"statemap.store.errors",
		metric.WithDescription("Number of failed saves and loads"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return nil, err
	}

	obs.bucketGauge, err = obs.meter.Int64ObservableGauge(
		"statemap.entries",
		metric.WithDescription("State entries per bucket"),
		metric.WithUnit("{entry}"),
	)
	if err != nil {
		return nil, err
	}

	return obs, nil
}

// OnResolveStart starts a span for a resolution over states maps.
func (o *Observability) OnResolveStart(ctx context.Context, states int) context.Context {
	ctx, _ = o.tracer.Start(ctx, "statemap.resolve",
		trace.WithAttributes(
			attribute.Int("states", states),
		),
	)

	o.resolveCounter.Add(ctx, 1)

	return ctx
}

// OnResolveComplete ends the resolution span and records its outcome.
func (o *Observability) OnResolveComplete(ctx context.Context, result resolve.Result, duration time.Duration, err error) {
	span := trace.SpanFromContext(ctx)
	span.SetAttributes(
		attribute.Int("unconflicted", result.Unconflicted),
		attribute.Int("conflicted", result.Conflicted),
		attribute.Int("resolved", result.Resolved),
	)

	o.resolveDuration.Record(ctx, float64(duration.Milliseconds()))
	o.resolveConflicts.Add(ctx, int64(result.Conflicted))

	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		span.RecordError(err)
		o.resolveErrors.Add(ctx, 1)
	} else {
		span.SetStatus(codes.Ok, "")
	}

	span.End()
}

// OnSave records a room state save.
func (o *Observability) OnSave(duration time.Duration, entries int, err error) {
	o.recordStore("save", duration, entries, err)
}

// OnLoad records a room state load.
func (o *Observability) OnLoad(duration time.Duration, entries int, err error) {
	o.recordStore("load", duration, entries, err)
}

func (o *Observability) recordStore(op string, duration time.Duration, entries int, err error) {
	ctx := context.Background()
	attrs := metric.WithAttributes(attribute.String("operation", op))

	o.storeCounter.Add(ctx, 1, attrs)
	o.storeDuration.Record(ctx, float64(duration.Milliseconds()), attrs)
	o.storeEntries.Add(ctx, int64(entries), attrs)
	if err != nil {
		o.storeErrors.Add(ctx, 1, attrs)
	}
}

// ObserveStats reports the per-bucket entry counts returned by stats on every
// metric collection, labelled with name. Unregister the returned registration
// when the state goes away. stats is called from the collecting goroutine, so
// it must do its own locking.
func (o *Observability) ObserveStats(name string, stats func() statemap.Stats) (metric.Registration, error) {
	return o.meter.RegisterCallback(func(_ context.Context, obs metric.Observer) error {
		st := stats()
		for _, b := range []struct {
			bucket statemap.Bucket
			count  int
		}{
			{statemap.BucketWellKnown, st.WellKnown},
			{statemap.BucketMembership, st.Membership},
			{statemap.BucketAliases, st.Aliases},
			{statemap.BucketInvites, st.Invites},
			{statemap.BucketOthers, st.Others},
		} {
			obs.ObserveInt64(o.bucketGauge, int64(b.count), metric.WithAttributes(
				attribute.String("state", name),
				attribute.String("bucket", b.bucket.String()),
			))
		}
		return nil
	}, o.bucketGauge)
}

var (
	_ resolve.Observer   = (*Observability)(nil)
	_ stores.MetricsHook = (*Observability)(nil)
)
