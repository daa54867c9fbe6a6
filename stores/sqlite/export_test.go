package sqlite

import (
	"context"
	"database/sql"
)

// RunMigrate runs migration on a database (exported for testing)
func RunMigrate(ctx context.Context, db *sql.DB) error {
	return migrate(ctx, db)
}

// NewFromDB creates a store from an existing db connection (exported for testing)
func NewFromDB(db *sql.DB) (*Store, error) {
	return newFromDB(db, defaultConfig())
}

// SetDBOpener swaps the function used to open databases and returns a restore func.
func SetDBOpener(fn func(driverName, dataSourceName string) (*sql.DB, error)) func() {
	prev := dbOpener
	dbOpener = fn
	return func() { dbOpener = prev }
}
