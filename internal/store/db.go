// Package store persists sensor readings and alert events to sqlite, rolls
// raw samples up into per-minute aggregates, and prunes rows past their
// retention. The DB satisfies the event router's consumer and alert sink
// interfaces, so wiring it in is a plain Register call.
package store

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// DB wraps the sqlite handle holding readings, alert events and rollups.
type DB struct {
	*sql.DB
}

// NewDB opens (creating if needed) the database at path and brings the
// schema up to date.
func NewDB(path string) (*DB, error) {
	db, err := OpenDB(path)
	if err != nil {
		return nil, err
	}
	if err := db.MigrateUp(); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// OpenDB opens the database at path without touching the schema. The
// migrate subcommand uses it so it can manage the schema itself.
func OpenDB(path string) (*DB, error) {
	// Pragmas are per connection, so they ride on the DSN where every
	// pooled connection picks them up. WAL keeps the poll loop and HTTP
	// readers from blocking each other; the busy timeout makes
	// overlapping writers wait instead of failing.
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=temp_store(MEMORY)", path)
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database %s: %w", path, err)
	}
	return &DB{sqlDB}, nil
}
