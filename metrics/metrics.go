// Package metrics exposes statemap activity as Prometheus metrics.
//
// Metrics implements resolve.Observer and stores.MetricsHook, and is itself a
// prometheus.Collector reporting the bucket sizes of tracked rooms:
//
//	m := metrics.New()
//	prometheus.MustRegister(m)
//	store, _ := sqlite.New(path, sqlite.WithMetricsHook(m))
//	m.Track("!room:example.org", state.Stats)
package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/puzpuzpuz/xsync/v3"

	"github.com/jilio/statemap"
	"github.com/jilio/statemap/resolve"
	"github.com/jilio/statemap/stores"
)

const namespace = "statemap"

var (
	_ resolve.Observer     = (*Metrics)(nil)
	_ stores.MetricsHook   = (*Metrics)(nil)
	_ prometheus.Collector = (*Metrics)(nil)
)

// Metrics collects resolution, store and room size metrics.
type Metrics struct {
	resolves         *prometheus.CounterVec
	resolveDuration  prometheus.Histogram
	resolveConflicts prometheus.Counter

	storeOps      *prometheus.CounterVec
	storeDuration *prometheus.HistogramVec
	storeEntries  *prometheus.CounterVec

	roomEntries *prometheus.Desc
	rooms       *xsync.MapOf[string, func() statemap.Stats]
}

// New creates the collectors. Register the result with a registry.
func New() *Metrics {
	return &Metrics{
		resolves: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "resolve",
			Name:      "total",
			Help:      "State resolutions by result.",
		}, []string{"result"}),
		resolveDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "resolve",
			Name:      "duration_seconds",
			Help:      "Time spent resolving state.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 8),
		}),
		resolveConflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "resolve",
			Name:      "conflicts_total",
			Help:      "Conflicted keys handed to choosers.",
		}),
		storeOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "operations_total",
			Help:      "Store operations by operation and result.",
		}, []string{"operation", "result"}),
		storeDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "duration_seconds",
			Help:      "Time spent in store operations.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 8),
		}, []string{"operation"}),
		storeEntries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "entries_total",
			Help:      "State entries written or read.",
		}, []string{"operation"}),
		roomEntries: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "room", "entries"),
			"State entries of tracked rooms by bucket.",
			[]string{"room", "bucket"}, nil,
		),
		rooms: xsync.NewMapOf[string, func() statemap.Stats](),
	}
}

// Track reports the bucket sizes returned by stats for room on every scrape
// until Untrack is called. stats is called from the scraping goroutine.
func (m *Metrics) Track(room string, stats func() statemap.Stats) {
	m.rooms.Store(room, stats)
}

// Untrack stops reporting room.
func (m *Metrics) Untrack(room string) {
	m.rooms.Delete(room)
}

// Describe implements prometheus.Collector.
func (m *Metrics) Describe(ch chan<- *prometheus.Desc) {
	m.resolves.Describe(ch)
	m.resolveDuration.Describe(ch)
	m.resolveConflicts.Describe(ch)
	m.storeOps.Describe(ch)
	m.storeDuration.Describe(ch)
	m.storeEntries.Describe(ch)
	ch <- m.roomEntries
}

// Collect implements prometheus.Collector.
func (m *Metrics) Collect(ch chan<- prometheus.Metric) {
	m.resolves.Collect(ch)
	m.resolveDuration.Collect(ch)
	m.resolveConflicts.Collect(ch)
	m.storeOps.Collect(ch)
	m.storeDuration.Collect(ch)
	m.storeEntries.Collect(ch)

	m.rooms.Range(func(room string, stats func() statemap.Stats) bool {
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
			ch <- prometheus.MustNewConstMetric(m.roomEntries, prometheus.GaugeValue,
				float64(b.count), room, b.bucket.String())
		}
		return true
	})
}

// OnResolveStart implements resolve.Observer.
func (m *Metrics) OnResolveStart(ctx context.Context, _ int) context.Context {
	return ctx
}

// OnResolveComplete implements resolve.Observer.
func (m *Metrics) OnResolveComplete(_ context.Context, result resolve.Result, duration time.Duration, err error) {
	m.resolves.WithLabelValues(resultLabel(err)).Inc()
	m.resolveDuration.Observe(duration.Seconds())
	m.resolveConflicts.Add(float64(result.Conflicted))
}

// OnSave implements stores.MetricsHook.
func (m *Metrics) OnSave(duration time.Duration, entries int, err error) {
	m.recordStore("save", duration, entries, err)
}

// OnLoad implements stores.MetricsHook.
func (m *Metrics) OnLoad(duration time.Duration, entries int, err error) {
	m.recordStore("load", duration, entries, err)
}

func (m *Metrics) recordStore(op string, duration time.Duration, entries int, err error) {
	m.storeOps.WithLabelValues(op, resultLabel(err)).Inc()
	m.storeDuration.WithLabelValues(op).Observe(duration.Seconds())
	m.storeEntries.WithLabelValues(op).Add(float64(entries))
}

func resultLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
