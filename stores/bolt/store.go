// Package bolt persists room state snapshots in a bbolt file.
//
// Room metadata (entry count and digest) lives in the "rooms" bucket keyed by
// room ID. Entries live in a nested bucket per room under "state", keyed by
// the length-prefixed type followed by the state key.
package bolt

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"go.etcd.io/bbolt"

	"github.com/jilio/statemap"
	"github.com/jilio/statemap/stores"
)

var (
	roomsBucket = []byte("rooms")
	stateBucket = []byte("state")
)

const metaSize = 16

var _ stores.RoomStore = (*Store)(nil)

// Store is a bbolt-backed room state store.
type Store struct {
	db  *bbolt.DB
	cfg *config
}

// Open opens or creates the store at path.
func Open(path string, opts ...Option) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("bolt: path is required")
	}

	cfg := defaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	db, err := bbolt.Open(filepath.Clean(path), 0o600, &bbolt.Options{Timeout: cfg.timeout})
	if err != nil {
		return nil, fmt.Errorf("bolt: open: %w", err)
	}

	store := &Store{db: db, cfg: cfg}
	if err := store.ensureBuckets(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func (s *Store) ensureBuckets() error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		for _, name := range [][]byte{roomsBucket, stateBucket} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return fmt.Errorf("bolt: create %s bucket: %w", name, err)
			}
		}
		return nil
	})
}

// Save replaces the stored state of roomID with the entries of m.
func (s *Store) Save(ctx context.Context, roomID string, m *statemap.StateMap[string]) (err error) {
	start := time.Now()
	entries := 0
	defer func() {
		if s.cfg.metricsHook != nil {
			s.cfg.metricsHook.OnSave(time.Since(start), entries, err)
		}
	}()

	if err := ctx.Err(); err != nil {
		return err
	}
	if roomID == "" {
		return stores.ErrRoomIDRequired
	}

	err = s.db.Update(func(tx *bbolt.Tx) error {
		state := tx.Bucket(stateBucket)
		if err := state.DeleteBucket([]byte(roomID)); err != nil && !errors.Is(err, bbolt.ErrBucketNotFound) {
			return fmt.Errorf("bolt: clear room state: %w", err)
		}
		room, err := state.CreateBucket([]byte(roomID))
		if err != nil {
			return fmt.Errorf("bolt: create room bucket: %w", err)
		}

		n := 0
		for k, v := range m.All() {
			if err := room.Put(entryKey(k), []byte(v)); err != nil {
				return fmt.Errorf("bolt: put %s: %w", k, err)
			}
			n++
		}

		if err := tx.Bucket(roomsBucket).Put([]byte(roomID), encodeMeta(n, stores.Digest(m))); err != nil {
			return fmt.Errorf("bolt: update room: %w", err)
		}
		entries = n
		return nil
	})
	if err != nil {
		entries = 0
		return err
	}

	if s.cfg.logger != nil {
		s.cfg.logger.Debug("saved room state", "room", roomID, "entries", entries)
	}
	return nil
}

// Load reads the stored state of roomID.
func (s *Store) Load(ctx context.Context, roomID string) (m *statemap.StateMap[string], err error) {
	start := time.Now()
	defer func() {
		if s.cfg.metricsHook != nil {
			n := 0
			if m != nil {
				n = m.Len()
			}
			s.cfg.metricsHook.OnLoad(time.Since(start), n, err)
		}
	}()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var (
		expected int
		digest   uint64
	)
	loaded := statemap.New[string]()
	err = s.db.View(func(tx *bbolt.Tx) error {
		meta := tx.Bucket(roomsBucket).Get([]byte(roomID))
		if meta == nil {
			return fmt.Errorf("%w: %s", stores.ErrRoomNotFound, roomID)
		}
		var err error
		if expected, digest, err = decodeMeta(meta); err != nil {
			return err
		}

		room := tx.Bucket(stateBucket).Bucket([]byte(roomID))
		if room == nil {
			return fmt.Errorf("%w: %s", stores.ErrCorrupt, roomID)
		}
		return room.ForEach(func(k, v []byte) error {
			key, ok := parseEntryKey(k)
			if !ok {
				return fmt.Errorf("%w: malformed key %q in %s", stores.ErrCorrupt, k, roomID)
			}
			loaded.Insert(key.Type, key.StateKey, string(v))
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	if loaded.Len() != expected || stores.Digest(loaded) != digest {
		if s.cfg.logger != nil {
			s.cfg.logger.Error("room state does not match its digest", "room", roomID, "expected", expected, "loaded", loaded.Len())
		}
		return nil, fmt.Errorf("%w: %s", stores.ErrCorrupt, roomID)
	}

	if s.cfg.logger != nil {
		s.cfg.logger.Debug("loaded room state", "room", roomID, "entries", loaded.Len())
	}
	return loaded, nil
}

// Rooms returns the IDs of all stored rooms in lexical order.
func (s *Store) Rooms(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var rooms []string
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(roomsBucket).ForEach(func(k, _ []byte) error {
			rooms = append(rooms, string(k))
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("bolt: list rooms: %w", err)
	}
	return rooms, nil
}

// Delete removes the stored state of roomID. Deleting an unknown room is not
// an error.
func (s *Store) Delete(ctx context.Context, roomID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	err := s.db.Update(func(tx *bbolt.Tx) error {
		if err := tx.Bucket(stateBucket).DeleteBucket([]byte(roomID)); err != nil && !errors.Is(err, bbolt.ErrBucketNotFound) {
			return err
		}
		return tx.Bucket(roomsBucket).Delete([]byte(roomID))
	})
	if err != nil {
		return fmt.Errorf("bolt: delete room: %w", err)
	}

	if s.cfg.logger != nil {
		s.cfg.logger.Info("deleted room state", "room", roomID)
	}
	return nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	if s.cfg.logger != nil {
		s.cfg.logger.Info("closing bolt store")
	}
	return s.db.Close()
}

// entryKey encodes k as a uvarint type length, the type, then the state key.
func entryKey(k statemap.Key) []byte {
	b := make([]byte, 0, binary.MaxVarintLen64+len(k.Type)+len(k.StateKey))
	b = binary.AppendUvarint(b, uint64(len(k.Type)))
	b = append(b, k.Type...)
	return append(b, k.StateKey...)
}

func parseEntryKey(b []byte) (statemap.Key, bool) {
	n, size := binary.Uvarint(b)
	if size <= 0 || n > uint64(len(b)-size) {
		return statemap.Key{}, false
	}
	rest := b[size:]
	return statemap.Key{Type: string(rest[:n]), StateKey: string(rest[n:])}, true
}

func encodeMeta(entries int, digest uint64) []byte {
	b := make([]byte, metaSize)
	binary.BigEndian.PutUint64(b[:8], uint64(entries))
	binary.BigEndian.PutUint64(b[8:], digest)
	return b
}

func decodeMeta(b []byte) (int, uint64, error) {
	if len(b) != metaSize {
		return 0, 0, fmt.Errorf("%w: room metadata is %d bytes", stores.ErrCorrupt, len(b))
	}
	return int(binary.BigEndian.Uint64(b[:8])), binary.BigEndian.Uint64(b[8:]), nil
}
