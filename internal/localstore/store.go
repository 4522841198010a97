// Package localstore keeps device-local state in a SQLite file: the set of
// founders this device has voted for and the journal of fees that were spent
// without a stored vote.
package localstore

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/Oshkosh1922/edens-gates/pkg/logger"
)

const schema = `
CREATE TABLE IF NOT EXISTS set_members (
	namespace TEXT NOT NULL,
	member    TEXT NOT NULL,
	added_at  INTEGER NOT NULL,
	PRIMARY KEY (namespace, member)
);

CREATE TABLE IF NOT EXISTS unrecorded_fees (
	id          TEXT PRIMARY KEY,
	founder_id  TEXT NOT NULL,
	signature   TEXT NOT NULL UNIQUE,
	wallet      TEXT NOT NULL DEFAULT '',
	fingerprint TEXT NOT NULL DEFAULT '',
	reason      TEXT NOT NULL,
	attempts    INTEGER NOT NULL DEFAULT 0,
	last_error  TEXT NOT NULL DEFAULT '',
	resolution  TEXT NOT NULL DEFAULT '',
	created_at  INTEGER NOT NULL,
	updated_at  INTEGER NOT NULL,
	resolved_at INTEGER
);

CREATE INDEX IF NOT EXISTS idx_unrecorded_pending ON unrecorded_fees (resolved_at, created_at);
`

// Store is the device-local SQLite database.
type Store struct {
	db  *sqlx.DB
	log *logger.Logger
}

// Open opens (creating if needed) the SQLite file at path. ":memory:" gives
// a private in-memory store.
func Open(ctx context.Context, path string, log *logger.Logger) (*Store, error) {
	if log == nil {
		log = logger.NewDefault("localstore")
	}
	db, err := sqlx.ConnectContext(ctx, "sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open local store %s: %w", path, err)
	}
	// One connection: SQLite has a single writer and ":memory:" is per connection.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("configure local store: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate local store: %w", err)
	}
	log.WithField("path", path).Debug("local store ready")
	return &Store{db: db, log: log}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ledger returns the vote ledger backed by this store.
func (s *Store) Ledger() *Ledger {
	return &Ledger{db: s.db, namespace: LedgerNamespace}
}
