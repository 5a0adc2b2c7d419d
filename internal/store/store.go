// Package store persists simulator snapshots in SQLite.
//
// The kernel never decides when or where to save; the run command does, and
// treats every store failure as "no prior state".
package store

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/simehr/simehr/sim"
)

//go:embed schema.sql
var schemaSQL string

// DefaultKeep is how many snapshots Save retains.
const DefaultKeep = 5

// ErrNoSnapshot is returned by Latest when nothing has been saved.
var ErrNoSnapshot = errors.New("no saved snapshot")

// Store is a SQLite-backed snapshot history.
type Store struct {
	db   *sql.DB
	keep int
}

// Open creates or opens the database at path and applies the schema.
// Safe to call repeatedly on the same file.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// SQLite allows one writer at a time.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}
	return &Store{db: db, keep: DefaultKeep}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// SetKeep changes how many snapshots Save retains. Values below 1 are treated as 1.
func (s *Store) SetKeep(n int) {
	if n < 1 {
		n = 1
	}
	s.keep = n
}

func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}
	return nil
}

// Save appends a snapshot and prunes all but the newest ones.
func (s *Store) Save(ctx context.Context, snap sim.Snapshot) error {
	payload, err := snap.Encode()
	if err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO snapshots (version, saved_at, payload) VALUES (?, ?, ?)`,
		snap.Version, snap.SavedAt.UTC().Format(time.RFC3339Nano), payload,
	); err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		DELETE FROM snapshots
		WHERE id NOT IN (SELECT id FROM snapshots ORDER BY id DESC LIMIT ?)
	`, s.keep); err != nil {
		return fmt.Errorf("prune snapshots: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	return nil
}

// Latest returns the most recent snapshot. It returns ErrNoSnapshot when the
// store is empty and sim.ErrSchemaMismatch when the newest row was written
// under another snapshot version.
func (s *Store) Latest(ctx context.Context) (sim.Snapshot, error) {
	var payload []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT payload FROM snapshots ORDER BY id DESC LIMIT 1`,
	).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return sim.Snapshot{}, ErrNoSnapshot
	}
	if err != nil {
		return sim.Snapshot{}, fmt.Errorf("read snapshot: %w", err)
	}
	return sim.DecodeSnapshot(payload)
}

// Count returns the number of retained snapshots.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM snapshots`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count snapshots: %w", err)
	}
	return n, nil
}

// Clear removes every saved snapshot.
func (s *Store) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM snapshots`); err != nil {
		return fmt.Errorf("clear snapshots: %w", err)
	}
	return nil
}
