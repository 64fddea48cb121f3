// Package sqlite provides the persistent store for the negotiation
// core: items, offer counters, carts, trade proposals, the credit
// ledger, and settlement records.
//
// Every negotiation action runs as one short-lived transaction: the
// app layer opens a Txn, reads and validates, writes all derived
// state, and commits. The reservation flag is claimed with a
// conditional UPDATE (compare-and-set), so exactly one of two racing
// claims succeeds.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// DB wraps the SQLite handle.
type DB struct {
	db   *sql.DB
	path string
}

// Open opens (creating if needed) the store under dir and applies all
// migrations.
func Open(dir string) (*DB, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	path := filepath.Join(dir, "barterdeck.db")

	// busy_timeout serializes racing writers instead of failing them.
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(ON)", path)
	sqldb, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	d := &DB{db: sqldb, path: path}
	if err := d.migrate(); err != nil {
		sqldb.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return d, nil
}

// Close closes the underlying handle.
func (db *DB) Close() error { return db.db.Close() }

// Path returns the database file path.
func (db *DB) Path() string { return db.path }

// migrate applies the schema. Each statement is executed on its own
// (SQLite executes one at a time).
func (db *DB) migrate() error {
	for _, stmt := range Migrations() {
		if _, err := db.db.Exec(stmt); err != nil {
			return fmt.Errorf("%w\nstatement: %s", err, stmt)
		}
	}
	return nil
}

// ─── Transactions ───────────────────────────────────────────────────────────

// querier is the subset of database/sql shared by *sql.DB and *sql.Tx.
// Row operations are written against it so they run both standalone
// and inside a transaction.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Txn is one serializable unit of work over the store.
type Txn struct {
	tx *sql.Tx
}

// Begin opens a transaction.
func (db *DB) Begin(ctx context.Context) (*Txn, error) {
	tx, err := db.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	return &Txn{tx: tx}, nil
}

// Commit commits the unit of work.
func (t *Txn) Commit() error { return t.tx.Commit() }

// Rollback aborts the unit of work. Safe to call after Commit.
func (t *Txn) Rollback() error {
	err := t.tx.Rollback()
	if err == sql.ErrTxDone {
		return nil
	}
	return err
}

// WithTx runs fn inside a transaction, committing on nil error.
func (db *DB) WithTx(ctx context.Context, fn func(t *Txn) error) error {
	t, err := db.Begin(ctx)
	if err != nil {
		return err
	}
	defer t.Rollback()
	if err := fn(t); err != nil {
		return err
	}
	return t.Commit()
}
