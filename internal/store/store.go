// Package store opens and bootstraps a shard's private SQLite database.
//
// Every shard owns one database file holding the full schema; no other
// process ever touches it. The store's job is narrow: open the file, apply
// the schema, and hand out transactions. The packages above it (account,
// catalog, cart, replication) own their SQL.
//
// The three store capabilities the system depends on are all native SQLite:
//   - atomic multi-statement transactions with rollback
//   - conditional updates that report whether the condition matched
//     (the stock guard during checkout)
//   - upsert-on-conflict writes (cart item accumulation, failure-record merge)
package store

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// Store wraps a shard's private database handle.
type Store struct {
	db *sql.DB
}

// Open opens the SQLite database at dsn and bootstraps the schema.
// Use a file path for a real shard or ":memory:" in tests.
//
// The pool is pinned to a single connection: SQLite allows one writer at a
// time, and a single connection also makes ":memory:" databases behave (each
// pooled connection would otherwise see its own empty database).
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA foreign_keys = ON; PRAGMA busy_timeout = 5000;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply pragmas: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("bootstrap schema: %w", err)
	}
	return &Store{db: db}, nil
}

// DB exposes the underlying handle for single-statement queries.
func (s *Store) DB() *sql.DB { return s.db }

// Close releases the database handle.
func (s *Store) Close() error { return s.db.Close() }

// WithTx runs fn inside a transaction, committing when fn returns nil and
// rolling back everything otherwise. This is the only atomicity boundary in
// a shard; there is no cross-shard transaction.
func (s *Store) WithTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("%w (rollback failed: %v)", err, rbErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}
