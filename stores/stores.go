// Package stores holds what the room state stores have in common: the error
// values they return, the hooks they call and the digest they use to detect
// damaged snapshots. Implementations live in the sqlite and bolt
// subpackages.
package stores

import (
	"context"
	"encoding/binary"
	"errors"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/jilio/statemap"
)

var (
	// ErrRoomNotFound is returned by Load for rooms that were never saved.
	ErrRoomNotFound = errors.New("stores: room not found")

	// ErrCorrupt is returned by Load when the stored entries do not match the
	// digest recorded by Save.
	ErrCorrupt = errors.New("stores: room state does not match its digest")

	// ErrRoomIDRequired is returned by Save for an empty room ID.
	ErrRoomIDRequired = errors.New("stores: room id is required")
)

// RoomStore persists one state snapshot per room.
type RoomStore interface {
	// Save replaces the stored state of roomID.
	Save(ctx context.Context, roomID string, m *statemap.StateMap[string]) error
	// Load returns the stored state of roomID or ErrRoomNotFound.
	Load(ctx context.Context, roomID string) (*statemap.StateMap[string], error)
	// Rooms lists stored room IDs in lexical order.
	Rooms(ctx context.Context) ([]string, error)
	// Delete removes roomID. Deleting an unknown room is not an error.
	Delete(ctx context.Context, roomID string) error
	Close() error
}

// Logger is an interface for logging operations. *slog.Logger satisfies it.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Error(msg string, args ...any)
}

// MetricsHook is called after store operations complete.
// entries is the number of state entries written or read.
type MetricsHook interface {
	OnSave(duration time.Duration, entries int, err error)
	OnLoad(duration time.Duration, entries int, err error)
}

// Digest hashes the entries of m in key order, so equal maps have equal
// digests regardless of how they were built. Every field is length-prefixed.
func Digest(m *statemap.StateMap[string]) uint64 {
	keys := make([]statemap.Key, 0, m.Len())
	for k := range m.Keys() {
		keys = append(keys, k)
	}
	statemap.SortKeys(keys)

	d := xxhash.New()
	var buf []byte
	for _, k := range keys {
		v, _ := m.Get(k.Type, k.StateKey)
		buf = appendField(buf[:0], k.Type)
		buf = appendField(buf, k.StateKey)
		buf = appendField(buf, v)
		d.Write(buf)
	}
	return d.Sum64()
}

// appendField writes s with a uvarint length prefix, so no byte inside a
// field can be mistaken for a boundary.
func appendField(b []byte, s string) []byte {
	b = binary.AppendUvarint(b, uint64(len(s)))
	return append(b, s...)
}
