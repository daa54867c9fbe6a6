package cmd

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ahimsalabs/durable-streams-go/durablestream"
	"github.com/ahimsalabs/durable-streams-go/durablestream/memorystorage"
	"github.com/jessevdk/go-flags"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/jilio/statemap/stores"
)

func run(t *testing.T, db string, args ...string) (string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	err := Run(append([]string{"--db", db}, args...), &stdout, &stderr)
	return stdout.String(), err
}

func writeMessages(t *testing.T, lines ...string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "changes.ndjson")
	require.NoError(t, os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o600))
	return path
}

func newDB(t *testing.T) string {
	t.Helper()
	t.Setenv("STATEMAP_LOG_LEVEL", "error")
	return filepath.Join(t.TempDir(), "state.db")
}

const (
	msgCreate     = `{"type":"m.room.create","key":"","value":"creator","headers":{"operation":"insert"}}`
	msgJoinRules  = `{"type":"m.room.join_rules","key":"","value":"public","headers":{"operation":"insert"}}`
	msgMemberA    = `{"type":"m.room.member","key":"@a:x","value":"join","headers":{"operation":"insert"}}`
	msgMemberB    = `{"type":"m.room.member","key":"@b:x","value":"invite","headers":{"operation":"insert"}}`
	msgTopic      = `{"type":"m.room.topic","key":"","value":"hello","headers":{"operation":"insert"}}`
	msgCustom     = `{"type":"com.example.custom","key":"k","value":"v","headers":{"operation":"insert"}}`
	msgDeleteB    = `{"type":"m.room.member","key":"@b:x","headers":{"operation":"delete"}}`
	msgTopicOther = `{"type":"m.room.topic","key":"","value":"bye","headers":{"operation":"update"}}`
)

func TestLoadAndShow(t *testing.T) {
	db := newDB(t)
	file := writeMessages(t, msgCreate, msgJoinRules, msgMemberA, msgMemberB, "", msgCustom, msgDeleteB)

	out, err := run(t, db, "load", "-r", "!room:x", file)
	require.NoError(t, err)

	var loaded loadResult
	require.NoError(t, yaml.Unmarshal([]byte(out), &loaded))
	assert.Equal(t, "!room:x", loaded.Room)
	assert.Equal(t, 6, loaded.Messages)
	assert.Equal(t, 4, loaded.Entries)
	assert.Equal(t, 2, loaded.Buckets.WellKnown)
	assert.Equal(t, 1, loaded.Buckets.Membership)
	assert.Equal(t, 1, loaded.Buckets.Others)

	out, err = run(t, db, "show", "-r", "!room:x", "--members")
	require.NoError(t, err)

	var shown showResult
	require.NoError(t, yaml.Unmarshal([]byte(out), &shown))
	assert.Equal(t, 4, shown.Entries)
	assert.Equal(t, []entryView{
		{Type: "com.example.custom", StateKey: "k", Value: "v"},
		{Type: "m.room.create", StateKey: "", Value: "creator"},
		{Type: "m.room.join_rules", StateKey: "", Value: "public"},
	}, shown.State)
	assert.Equal(t, []entryView{{Type: "m.room.join_rules", StateKey: "", Value: "public"}}, shown.JoinRules)
	assert.Equal(t, []memberView{{User: "@a:x", Value: "join"}}, shown.Members)
}

func TestLoadMerge(t *testing.T) {
	db := newDB(t)

	_, err := run(t, db, "load", "-r", "!room:x", writeMessages(t, msgCreate, msgTopic))
	require.NoError(t, err)

	_, err = run(t, db, "load", "-r", "!room:x", "--merge", writeMessages(t, msgMemberA))
	require.NoError(t, err)

	out, err := run(t, db, "show", "-r", "!room:x")
	require.NoError(t, err)
	var shown showResult
	require.NoError(t, yaml.Unmarshal([]byte(out), &shown))
	assert.Equal(t, 3, shown.Entries)
	assert.Empty(t, shown.Members)

	_, err = run(t, db, "load", "-r", "!room:x", writeMessages(t, msgMemberA))
	require.NoError(t, err)
	out, err = run(t, db, "show", "-r", "!room:x")
	require.NoError(t, err)
	require.NoError(t, yaml.Unmarshal([]byte(out), &shown))
	assert.Equal(t, 1, shown.Entries)
}

func TestLoadConflictCheck(t *testing.T) {
	db := newDB(t)
	stale := `{"type":"m.room.topic","key":"","value":"new","old_value":"stale","headers":{"operation":"update"}}`

	_, err := run(t, db, "load", "-r", "!room:x", "--conflict-check", writeMessages(t, msgTopic, stale))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 2")

	_, err = run(t, db, "show", "-r", "!room:x")
	assert.ErrorIs(t, err, stores.ErrRoomNotFound)
}

func TestLoadInvalidJSON(t *testing.T) {
	db := newDB(t)
	_, err := run(t, db, "load", "-r", "!room:x", writeMessages(t, msgCreate, "{not json"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 2")
}

func TestResolve(t *testing.T) {
	db := newDB(t)

	_, err := run(t, db, "load", "-r", "!a:x", writeMessages(t, msgCreate, msgMemberA, msgTopic))
	require.NoError(t, err)
	_, err = run(t, db, "load", "-r", "!b:x", writeMessages(t, msgCreate, msgMemberA, msgTopicOther, msgCustom))
	require.NoError(t, err)

	t.Run("prefer_first", func(t *testing.T) {
		out, err := run(t, db, "resolve", "!a:x", "!b:x", "--save-as", "!merged:x")
		require.NoError(t, err)

		var res resolveResult
		require.NoError(t, yaml.Unmarshal([]byte(out), &res))
		assert.Equal(t, []string{"!a:x", "!b:x"}, res.Rooms)
		assert.Equal(t, 2, res.Unconflicted)
		assert.Equal(t, 4, res.Entries)
		assert.Equal(t, "!merged:x", res.SavedAs)
		require.Len(t, res.Conflicts, 2)

		byType := map[string]conflictView{}
		for _, c := range res.Conflicts {
			byType[c.Type] = c
		}
		assert.Equal(t, []string{"hello", "bye"}, byType["m.room.topic"].Candidates)
		assert.Equal(t, "hello", byType["m.room.topic"].Chosen)
		assert.Equal(t, []string{"v"}, byType["com.example.custom"].Candidates)

		out, err = run(t, db, "rooms")
		require.NoError(t, err)
		var rooms []string
		require.NoError(t, yaml.Unmarshal([]byte(out), &rooms))
		assert.Equal(t, []string{"!a:x", "!b:x", "!merged:x"}, rooms)
	})

	t.Run("prefer_last", func(t *testing.T) {
		out, err := run(t, db, "resolve", "--prefer", "last", "!a:x", "!b:x")
		require.NoError(t, err)

		var res resolveResult
		require.NoError(t, yaml.Unmarshal([]byte(out), &res))
		for _, c := range res.Conflicts {
			if c.Type == "m.room.topic" {
				assert.Equal(t, "bye", c.Chosen)
			}
		}
		assert.Empty(t, res.SavedAs)
	})

	t.Run("prefer_none", func(t *testing.T) {
		out, err := run(t, db, "resolve", "--prefer", "none", "!a:x", "!b:x")
		require.NoError(t, err)

		var res resolveResult
		require.NoError(t, yaml.Unmarshal([]byte(out), &res))
		assert.Equal(t, 2, res.Entries)
		assert.Equal(t, 2, res.Unconflicted)
	})

	t.Run("missing_room", func(t *testing.T) {
		_, err := run(t, db, "resolve", "!a:x", "!nope:x")
		assert.ErrorIs(t, err, stores.ErrRoomNotFound)
	})
}

func TestRoomsAndDelete(t *testing.T) {
	db := newDB(t)

	out, err := run(t, db, "rooms")
	require.NoError(t, err)
	assert.Equal(t, "[]\n", out)

	_, err = run(t, db, "load", "-r", "!room:x", writeMessages(t, msgCreate))
	require.NoError(t, err)

	_, err = run(t, db, "delete", "-r", "!room:x")
	require.NoError(t, err)

	_, err = run(t, db, "show", "-r", "!room:x")
	assert.ErrorIs(t, err, stores.ErrRoomNotFound)
}

func TestConfigFromEnv(t *testing.T) {
	t.Setenv("STATEMAP_DB", filepath.Join(t.TempDir(), "env.db"))
	t.Setenv("STATEMAP_LOG_LEVEL", "error")

	var stdout, stderr bytes.Buffer
	require.NoError(t, Run([]string{"rooms"}, &stdout, &stderr))
	assert.Equal(t, "[]\n", stdout.String())

	t.Setenv("STATEMAP_LOG_LEVEL", "loud")
	err := Run([]string{"rooms"}, &stdout, &stderr)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "STATEMAP_LOG_LEVEL")
}

func TestVerboseLogging(t *testing.T) {
	db := newDB(t)

	var stdout, stderr bytes.Buffer
	require.NoError(t, Run([]string{"--db", db, "-v", "load", "-r", "!room:x", writeMessages(t, msgCreate)}, &stdout, &stderr))
	assert.Contains(t, stderr.String(), "level=DEBUG")
	assert.Contains(t, stderr.String(), "loaded room state")
}

func TestUsageErrors(t *testing.T) {
	db := newDB(t)

	_, err := run(t, db, "resolve", "!a:x")
	require.Error(t, err)

	_, err = run(t, db, "show")
	var flagsErr *flags.Error
	require.ErrorAs(t, err, &flagsErr)
	assert.Equal(t, flags.ErrRequired, flagsErr.Type)

	_, err = run(t, db, "--help")
	require.ErrorAs(t, err, &flagsErr)
	assert.Equal(t, flags.ErrHelp, flagsErr.Type)
}

func TestTelemetryToStderr(t *testing.T) {
	db := newDB(t)
	_, err := run(t, db, "load", "-r", "!a:x", writeMessages(t, msgCreate, msgTopic))
	require.NoError(t, err)
	_, err = run(t, db, "load", "-r", "!b:x", writeMessages(t, msgCreate, msgTopicOther))
	require.NoError(t, err)

	var stdout, stderr bytes.Buffer
	require.NoError(t, Run([]string{"--db", db, "--telemetry", "resolve", "!a:x", "!b:x"}, &stdout, &stderr))
	assert.Contains(t, stderr.String(), "statemap.resolve")
	assert.Contains(t, stderr.String(), "statemap.store.count")

	stderr.Reset()
	require.NoError(t, Run([]string{"--db", db, "--telemetry", "show", "-r", "!a:x"}, &stdout, &stderr))
	assert.Contains(t, stderr.String(), "statemap.entries")
}

func TestCommandName(t *testing.T) {
	tests := []struct {
		args []string
		want string
	}{
		{nil, ""},
		{[]string{"rooms"}, "rooms"},
		{[]string{"--db", "x.db", "show", "-r", "r"}, "show"},
		{[]string{"-d", "x.db", "-v", "load"}, "load"},
		{[]string{"--telemetry", "--", "resolve"}, "resolve"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, commandName(tt.args), "%v", tt.args)
	}
}

func TestPublishAndSync(t *testing.T) {
	db := newDB(t)

	mux := http.NewServeMux()
	mux.Handle("/v1/stream/", http.StripPrefix("/v1/stream/", durablestream.NewHandler(memorystorage.New(), nil)))
	srv := httptest.NewServer(mux)
	defer srv.Close()
	streamURL := srv.URL + "/v1/stream/room"

	_, err := run(t, db, "load", "-r", "!src:x", writeMessages(t, msgCreate, msgMemberA, msgCustom))
	require.NoError(t, err)

	out, err := run(t, db, "publish", "-r", "!src:x", "-s", streamURL)
	require.NoError(t, err)
	var published publishResult
	require.NoError(t, yaml.Unmarshal([]byte(out), &published))
	assert.Equal(t, 3, published.Entries)

	out, err = run(t, db, "sync", "-r", "!dst:x", "-s", streamURL)
	require.NoError(t, err)
	var synced syncResult
	require.NoError(t, yaml.Unmarshal([]byte(out), &synced))
	assert.Equal(t, 6, synced.Messages)
	assert.Equal(t, 3, synced.Entries)

	src, err := run(t, db, "show", "-r", "!src:x", "--members")
	require.NoError(t, err)
	dst, err := run(t, db, "show", "-r", "!dst:x", "--members")
	require.NoError(t, err)
	assert.Equal(t, strings.Replace(src, "!src:x", "!dst:x", 1), dst)

	out, err = run(t, db, "sync", "-r", "!dst:x", "-s", streamURL, "--merge", "--from", synced.Offset)
	require.NoError(t, err)
	require.NoError(t, yaml.Unmarshal([]byte(out), &synced))
	assert.Equal(t, 0, synced.Messages)
	assert.Equal(t, 3, synced.Entries)

	// A full replay with --merge keeps entries only the target room has.
	_, err = run(t, db, "load", "-r", "!extra:x", writeMessages(t, msgTopic))
	require.NoError(t, err)
	out, err = run(t, db, "sync", "-r", "!extra:x", "-s", streamURL, "--merge")
	require.NoError(t, err)
	require.NoError(t, yaml.Unmarshal([]byte(out), &synced))
	assert.Equal(t, 4, synced.Entries)

	out, err = run(t, db, "sync", "-r", "!extra:x", "-s", streamURL)
	require.NoError(t, err)
	require.NoError(t, yaml.Unmarshal([]byte(out), &synced))
	assert.Equal(t, 3, synced.Entries)
}

func TestBoltBackend(t *testing.T) {
	db := newDB(t)
	file := writeMessages(t, msgCreate, msgMemberA, msgCustom)

	_, err := run(t, db, "--backend", "bolt", "load", "-r", "!room:x", file)
	require.NoError(t, err)

	out, err := run(t, db, "-b", "bolt", "show", "-r", "!room:x")
	require.NoError(t, err)
	var shown showResult
	require.NoError(t, yaml.Unmarshal([]byte(out), &shown))
	assert.Equal(t, 3, shown.Entries)
	assert.Equal(t, 1, shown.Buckets.Membership)

	out, err = run(t, db, "-b", "bolt", "rooms")
	require.NoError(t, err)
	var rooms []string
	require.NoError(t, yaml.Unmarshal([]byte(out), &rooms))
	assert.Equal(t, []string{"!room:x"}, rooms)

	t.Setenv("STATEMAP_BACKEND", "bolt")
	_, err = run(t, db, "show", "-r", "!room:x")
	require.NoError(t, err)

	_, err = run(t, db, "--backend", "leveldb", "rooms")
	require.Error(t, err)
}

func TestMetricsFile(t *testing.T) {
	db := newDB(t)
	metricsPath := filepath.Join(t.TempDir(), "statemap.prom")

	_, err := run(t, db, "--metrics-file", metricsPath, "load", "-r", "!room:x", writeMessages(t, msgCreate, msgMemberA))
	require.NoError(t, err)

	data, err := os.ReadFile(metricsPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), `statemap_store_operations_total{operation="save",result="ok"} 1`)

	t.Setenv("STATEMAP_METRICS_FILE", metricsPath)
	_, err = run(t, db, "show", "-r", "!room:x")
	require.NoError(t, err)

	data, err = os.ReadFile(metricsPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), `statemap_store_operations_total{operation="load",result="ok"} 1`)
	assert.Contains(t, string(data), `statemap_room_entries{bucket="membership",room="!room:x"} 1`)
}

func TestLoadCache(t *testing.T) {
	db := newDB(t)
	t.Setenv("STATEMAP_CACHE_SIZE", "8")

	_, err := run(t, db, "load", "-r", "!room:x", writeMessages(t, msgCreate))
	require.NoError(t, err)
	_, err = run(t, db, "load", "-r", "!room:x", "--merge", writeMessages(t, msgTopic))
	require.NoError(t, err)

	out, err := run(t, db, "show", "-r", "!room:x")
	require.NoError(t, err)
	var shown showResult
	require.NoError(t, yaml.Unmarshal([]byte(out), &shown))
	assert.Equal(t, 2, shown.Entries)
}

func TestLoadMissingFile(t *testing.T) {
	db := newDB(t)
	_, err := run(t, db, "load", "-r", "!room:x", filepath.Join(t.TempDir(), "missing.ndjson"))
	require.Error(t, err)
}
