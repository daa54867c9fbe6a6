// Package sqlite persists room state snapshots in SQLite.
//
// Each room's state is stored as one row per (type, state_key) entry with a
// string value, typically an event ID.
//
//	store, err := sqlite.New("state.db", sqlite.WithLogger(slog.Default()))
//	err = store.Save(ctx, "!room:example.org", m)
//	m, err = store.Load(ctx, "!room:example.org")
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	_ "modernc.org/sqlite"

	"github.com/jilio/statemap"
	"github.com/jilio/statemap/stores"
)

// ErrRoomNotFound is returned by Load for rooms that were never saved.
var ErrRoomNotFound = stores.ErrRoomNotFound

var _ stores.RoomStore = (*Store)(nil)

// Store saves and loads room state maps.
type Store struct {
	db          *sql.DB
	cfg         *config
	logger      Logger
	metricsHook MetricsHook
	cache       *lru.Cache[string, *statemap.StateMap[string]]

	insertStmt    *sql.Stmt
	loadStmt      *sql.Stmt
	roomStmt      *sql.Stmt
	listRoomsStmt *sql.Stmt
}

// dbOpener is used to open database connections, injectable for testing
var dbOpener = sql.Open

// New opens (and by default migrates) the database at path. Use ":memory:"
// for a private in-memory database.
func New(path string, opts ...Option) (*Store, error) {
	if path == "" {
		return nil, errors.New("sqlite: path is required")
	}

	// Validate path to prevent URI parameter injection
	if path != ":memory:" && (strings.Contains(path, "?") || strings.Contains(path, "#")) {
		return nil, errors.New("sqlite: path cannot contain '?' or '#' characters")
	}

	cfg := defaultConfig()
	cfg.path = path
	for _, opt := range opts {
		opt(cfg)
	}

	var dsn string
	if cfg.path == ":memory:" {
		dsn = ":memory:"
	} else {
		dsn = fmt.Sprintf("file:%s?_busy_timeout=%d", cfg.path, cfg.busyTimeout.Milliseconds())
	}

	db, err := dbOpener("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open database: %w", err)
	}
	if cfg.path == ":memory:" {
		// Every connection would get its own empty database.
		db.SetMaxOpenConns(1)
	}

	if err := applyPragmas(db, cfg); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: apply pragmas: %w", err)
	}

	if cfg.autoMigrate {
		if err := migrate(context.Background(), db); err != nil {
			db.Close()
			return nil, fmt.Errorf("sqlite: migrate: %w", err)
		}
	}

	return newFromDB(db, cfg)
}

func newFromDB(db *sql.DB, cfg *config) (*Store, error) {
	store := &Store{
		db:          db,
		cfg:         cfg,
		logger:      cfg.logger,
		metricsHook: cfg.metricsHook,
	}

	if cfg.cacheSize > 0 {
		cache, err := lru.New[string, *statemap.StateMap[string]](cfg.cacheSize)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("sqlite: create cache: %w", err)
		}
		store.cache = cache
	}

	if err := store.prepareStatements(); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: prepare statements: %w", err)
	}

	return store, nil
}

func applyPragmas(db *sql.DB, cfg *config) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.busyTimeout.Milliseconds()),
		"PRAGMA temp_store = MEMORY",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("exec %q: %w", pragma, err)
		}
	}

	return nil
}

func (s *Store) prepareStatements() error {
	type stmtDef struct {
		dest **sql.Stmt
		sql  string
	}

	stmts := []stmtDef{
		{&s.insertStmt, "INSERT INTO room_state (room_id, type, state_key, value) VALUES (?, ?, ?, ?)"},
		{&s.loadStmt, "SELECT type, state_key, value FROM room_state WHERE room_id = ?"},
		{&s.roomStmt, "SELECT entries, digest FROM rooms WHERE room_id = ?"},
		{&s.listRoomsStmt, "SELECT room_id FROM rooms ORDER BY room_id"},
	}

	for _, def := range stmts {
		stmt, err := s.db.Prepare(def.sql)
		if err != nil {
			return fmt.Errorf("prepare statement: %w", err)
		}
		*def.dest = stmt
	}

	return nil
}

// Save replaces the stored state of roomID with the entries of m.
func (s *Store) Save(ctx context.Context, roomID string, m *statemap.StateMap[string]) (err error) {
	start := time.Now()
	entries := 0
	defer func() {
		if s.metricsHook != nil {
			s.metricsHook.OnSave(time.Since(start), entries, err)
		}
	}()

	if roomID == "" {
		return stores.ErrRoomIDRequired
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, "DELETE FROM room_state WHERE room_id = ?", roomID); err != nil {
		return fmt.Errorf("sqlite: clear room state: %w", err)
	}

	insert := tx.StmtContext(ctx, s.insertStmt)
	for k, v := range m.All() {
		if _, err = insert.ExecContext(ctx, roomID, k.Type, k.StateKey, v); err != nil {
			return fmt.Errorf("sqlite: insert %s: %w", k, err)
		}
		entries++
	}

	_, err = tx.ExecContext(ctx, `INSERT INTO rooms (room_id, entries, digest, updated_at)
		VALUES (?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(room_id) DO UPDATE SET
			entries = excluded.entries, digest = excluded.digest, updated_at = CURRENT_TIMESTAMP`,
		roomID, entries, int64(stores.Digest(m)))
	if err != nil {
		return fmt.Errorf("sqlite: update room: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: commit: %w", err)
	}
	if s.cache != nil {
		s.cache.Add(roomID, m.Clone())
	}

	if s.logger != nil {
		s.logger.Debug("saved room state", "room", roomID, "entries", entries)
	}
	return nil
}

// Load reads the stored state of roomID.
func (s *Store) Load(ctx context.Context, roomID string) (m *statemap.StateMap[string], err error) {
	start := time.Now()
	defer func() {
		if s.metricsHook != nil {
			n := 0
			if m != nil {
				n = m.Len()
			}
			s.metricsHook.OnLoad(time.Since(start), n, err)
		}
	}()

	if s.cache != nil {
		if cached, ok := s.cache.Get(roomID); ok {
			return cached.Clone(), nil
		}
	}

	var (
		expected int
		digest   int64
	)
	err = s.roomStmt.QueryRowContext(ctx, roomID).Scan(&expected, &digest)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRoomNotFound, roomID)
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: load room: %w", err)
	}

	rows, err := s.loadStmt.QueryContext(ctx, roomID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: load room state: %w", err)
	}
	defer rows.Close()

	var scanErr error
	loaded := statemap.New[string]()
	loaded.Extend(func(yield func(statemap.Key, string) bool) {
		for rows.Next() {
			var k statemap.Key
			var v string
			if scanErr = rows.Scan(&k.Type, &k.StateKey, &v); scanErr != nil {
				return
			}
			if !yield(k, v) {
				return
			}
		}
	})
	if scanErr != nil {
		return nil, fmt.Errorf("sqlite: scan room state: %w", scanErr)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterate room state: %w", err)
	}

	if loaded.Len() != expected || (digest != 0 && uint64(digest) != stores.Digest(loaded)) {
		if s.logger != nil {
			s.logger.Error("room state does not match its digest", "room", roomID, "expected", expected, "loaded", loaded.Len())
		}
		return nil, fmt.Errorf("%w: %s", stores.ErrCorrupt, roomID)
	}
	if s.cache != nil {
		s.cache.Add(roomID, loaded.Clone())
	}
	if s.logger != nil {
		s.logger.Debug("loaded room state", "room", roomID, "entries", loaded.Len())
	}
	return loaded, nil
}

// Rooms returns the IDs of all stored rooms in lexical order.
func (s *Store) Rooms(ctx context.Context) ([]string, error) {
	rows, err := s.listRoomsStmt.QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list rooms: %w", err)
	}
	defer rows.Close()

	var rooms []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("sqlite: scan room: %w", err)
		}
		rooms = append(rooms, id)
	}
	return rooms, rows.Err()
}

// Delete removes the stored state of roomID. Deleting an unknown room is not
// an error.
func (s *Store) Delete(ctx context.Context, roomID string) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, "DELETE FROM room_state WHERE room_id = ?", roomID); err != nil {
		return fmt.Errorf("sqlite: delete room state: %w", err)
	}
	if _, err = tx.ExecContext(ctx, "DELETE FROM rooms WHERE room_id = ?", roomID); err != nil {
		return fmt.Errorf("sqlite: delete room: %w", err)
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: commit: %w", err)
	}
	if s.cache != nil {
		s.cache.Remove(roomID)
	}

	if s.logger != nil {
		s.logger.Info("deleted room state", "room", roomID)
	}
	return nil
}

// Close releases the prepared statements and the database.
func (s *Store) Close() error {
	// Errors ignored as db.Close() handles cleanup
	for _, stmt := range []*sql.Stmt{s.insertStmt, s.loadStmt, s.roomStmt, s.listRoomsStmt} {
		if stmt != nil {
			stmt.Close()
		}
	}

	if s.logger != nil {
		s.logger.Info("closing sqlite store")
	}

	return s.db.Close()
}
