package metrics

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jilio/statemap"
	"github.com/jilio/statemap/resolve"
)

func newRegistered(t *testing.T) (*Metrics, *prometheus.Registry) {
	t.Helper()
	m := New()
	reg := prometheus.NewPedanticRegistry()
	require.NoError(t, reg.Register(m))
	return m, reg
}

func TestStoreMetrics(t *testing.T) {
	m, reg := newRegistered(t)

	m.OnSave(time.Millisecond, 5, nil)
	m.OnSave(time.Millisecond, 0, errors.New("disk full"))
	m.OnLoad(2*time.Millisecond, 5, nil)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.storeOps.WithLabelValues("save", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.storeOps.WithLabelValues("save", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.storeOps.WithLabelValues("load", "ok")))
	assert.Equal(t, 5.0, testutil.ToFloat64(m.storeEntries.WithLabelValues("save")))
	assert.Equal(t, 5.0, testutil.ToFloat64(m.storeEntries.WithLabelValues("load")))

	n, err := testutil.GatherAndCount(reg, "statemap_store_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestResolveMetrics(t *testing.T) {
	m, _ := newRegistered(t)
	ctx := context.Background()

	a := statemap.New[string]()
	a.Insert(statemap.TypeCreate, "", "$create")
	a.Insert(statemap.TypeTopic, "", "$t1")
	b := statemap.New[string]()
	b.Insert(statemap.TypeCreate, "", "$create")
	b.Insert(statemap.TypeTopic, "", "$t2")
	b.Insert(statemap.TypeName, "", "$name")

	first := func(_ context.Context, _ statemap.Key, c []string) (string, bool, error) { return c[0], true, nil }
	_, err := resolve.Resolve(ctx, []*statemap.StateMap[string]{a, b}, first, resolve.WithObserver(m))
	require.NoError(t, err)

	_, err = resolve.Resolve(ctx, []*statemap.StateMap[string](nil), first, resolve.WithObserver(m))
	require.ErrorIs(t, err, resolve.ErrNoStates)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.resolves.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.resolves.WithLabelValues("error")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.resolveConflicts))
}

func TestTrackRooms(t *testing.T) {
	m, reg := newRegistered(t)

	s := statemap.New[string]()
	s.Insert(statemap.TypeCreate, "", "$create")
	s.Insert(statemap.TypeMembership, "@a:x", "$a")
	s.Insert(statemap.TypeMembership, "@b:x", "$b")
	s.Insert("org.example", "k", "$o")
	m.Track("!r:x", s.Stats)

	expected := `
# HELP statemap_room_entries State entries of tracked rooms by bucket.
# TYPE statemap_room_entries gauge
statemap_room_entries{bucket="aliases",room="!r:x"} 0
statemap_room_entries{bucket="invites",room="!r:x"} 0
statemap_room_entries{bucket="membership",room="!r:x"} 2
statemap_room_entries{bucket="others",room="!r:x"} 1
statemap_room_entries{bucket="well_known",room="!r:x"} 1
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "statemap_room_entries"))

	// Stats are read at scrape time.
	s.Insert(statemap.TypeAliases, "x", "$al")
	assert.Equal(t, 5, testutil.CollectAndCount(m, "statemap_room_entries"))
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(strings.Replace(expected,
		`statemap_room_entries{bucket="aliases",room="!r:x"} 0`,
		`statemap_room_entries{bucket="aliases",room="!r:x"} 1`, 1)), "statemap_room_entries"))

	m.Untrack("!r:x")
	assert.Equal(t, 0, testutil.CollectAndCount(m, "statemap_room_entries"))
}
