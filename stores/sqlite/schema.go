package sqlite

import (
	"context"
	"database/sql"
	"fmt"
)

const currentSchemaVersion = 2

const (
	createRoomsTable = `
		CREATE TABLE IF NOT EXISTS rooms (
			room_id TEXT PRIMARY KEY,
			entries INTEGER NOT NULL,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`

	createRoomStateTable = `
		CREATE TABLE IF NOT EXISTS room_state (
			room_id TEXT NOT NULL,
			type TEXT NOT NULL,
			state_key TEXT NOT NULL,
			value TEXT NOT NULL,
			PRIMARY KEY (room_id, type, state_key)
		)`

	createSchemaVersionTable = `
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`
)

// migrate applies database migrations if needed
func migrate(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, createSchemaVersionTable)
	if err != nil {
		return fmt.Errorf("create schema_version table: %w", err)
	}

	var version int
	err = db.QueryRowContext(ctx, "SELECT COALESCE(MAX(version), 0) FROM schema_version").Scan(&version)
	if err != nil {
		return fmt.Errorf("get schema version: %w", err)
	}

	migrations := []func(context.Context, *sql.DB) error{migrateV1, migrateV2}
	for v := version; v < currentSchemaVersion; v++ {
		if err := migrations[v](ctx, db); err != nil {
			return fmt.Errorf("migrate to v%d: %w", v+1, err)
		}
	}

	return nil
}

// migrateV1 applies the initial schema
func migrateV1(ctx context.Context, db *sql.DB) (err error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	statements := []string{
		createRoomsTable,
		createRoomStateTable,
		"INSERT INTO schema_version (version) VALUES (1)",
	}

	return execAll(ctx, tx, statements)
}

// migrateV2 records a digest per room. Rooms saved before it have digest 0,
// which Load does not verify.
func migrateV2(ctx context.Context, db *sql.DB) (err error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	statements := []string{
		"ALTER TABLE rooms ADD COLUMN digest INTEGER NOT NULL DEFAULT 0",
		"INSERT INTO schema_version (version) VALUES (2)",
	}

	return execAll(ctx, tx, statements)
}

func execAll(ctx context.Context, tx *sql.Tx, statements []string) error {
	for _, stmt := range statements {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("exec schema: %w", err)
		}
	}
	return tx.Commit()
}
