// Package snapshot keeps golden documents in SQLite for regression diffs.
//
// A golden snapshot is the full JSON document of an earlier run stored under
// a name, usually the source file name. The regression diff checker loads
// one and compares the new run against it.
//
// Usage:
//
//	store, err := snapshot.Open("finscan.db")
//	err = store.Save(ctx, "budget-2024", doc)
//	golden, err := store.Load(ctx, "budget-2024")
package snapshot

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"finscan/internal/logger"
	"finscan/pkg/models"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when no snapshot has the requested name
var ErrNotFound = errors.New("snapshot not found")

const schema = `
CREATE TABLE IF NOT EXISTS golden_snapshots (
	name        TEXT PRIMARY KEY,
	document_id TEXT NOT NULL,
	source      TEXT NOT NULL,
	pages       INTEGER NOT NULL,
	document    TEXT NOT NULL,
	saved_at    TEXT NOT NULL
);`

// Snapshot describes a stored golden document
type Snapshot struct {
	Name       string    `json:"name"`
	DocumentID string    `json:"document_id"`
	Source     string    `json:"source"`
	Pages      int       `json:"pages"`
	SavedAt    time.Time `json:"saved_at"`
}

// Store is a golden snapshot store
type Store struct {
	db  *sql.DB
	now func() time.Time
	log zerolog.Logger
}

// Open opens or creates the store at path. Parent directories are created.
func Open(path string) (*Store, error) {
	const op = "Open"

	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("%s: mkdir: %w", op, err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("%s: open: %w", op, err)
	}
	// pragmas are per connection
	db.SetMaxOpenConns(1)

	for _, p := range []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 10000",
		"PRAGMA synchronous = NORMAL",
		schema,
	} {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("%s: %s: %w", op, firstLine(p), err)
		}
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("%s: ping: %w", op, err)
	}

	return &Store{
		db:  db,
		now: time.Now,
		log: logger.WithComponent("snapshot"),
	}, nil
}

// OpenMemory opens an in-memory store for tests and closes it on cleanup
func OpenMemory(t testing.TB) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("snapshot.OpenMemory: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// Close closes the database
func (s *Store) Close() error {
	return s.db.Close()
}

// Save stores doc under name, replacing any snapshot with that name
func (s *Store) Save(ctx context.Context, name string, doc *models.Document) error {
	const op = "Save"

	if name == "" {
		return fmt.Errorf("%s: empty snapshot name", op)
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("%s: marshal document: %w", op, err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO golden_snapshots (name, document_id, source, pages, document, saved_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			document_id = excluded.document_id,
			source      = excluded.source,
			pages       = excluded.pages,
			document    = excluded.document,
			saved_at    = excluded.saved_at`,
		name, doc.ID, doc.SourceName, len(doc.Pages), string(data), s.now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("%s: insert %q: %w", op, name, err)
	}

	s.log.Info().Str("name", name).Str("document_id", doc.ID).Int("pages", len(doc.Pages)).Msg("Saved golden snapshot")
	return nil
}

// Load returns the document stored under name
func (s *Store) Load(ctx context.Context, name string) (*models.Document, error) {
	const op = "Load"

	var data string
	err := s.db.QueryRowContext(ctx, `SELECT document FROM golden_snapshots WHERE name = ?`, name).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: %q: %w", op, name, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: query %q: %w", op, name, err)
	}

	var doc models.Document
	if err := json.Unmarshal([]byte(data), &doc); err != nil {
		return nil, fmt.Errorf("%s: decode %q: %w", op, name, err)
	}
	return &doc, nil
}

// List returns every snapshot, most recently saved first
func (s *Store) List(ctx context.Context) ([]Snapshot, error) {
	const op = "List"

	rows, err := s.db.QueryContext(ctx, `
		SELECT name, document_id, source, pages, saved_at
		FROM golden_snapshots
		ORDER BY saved_at DESC, name`)
	if err != nil {
		return nil, fmt.Errorf("%s: query: %w", op, err)
	}
	defer rows.Close()

	var out []Snapshot
	for rows.Next() {
		var snap Snapshot
		var saved string
		if err := rows.Scan(&snap.Name, &snap.DocumentID, &snap.Source, &snap.Pages, &saved); err != nil {
			return nil, fmt.Errorf("%s: scan: %w", op, err)
		}
		if snap.SavedAt, err = time.Parse(time.RFC3339Nano, saved); err != nil {
			s.log.Warn().Err(err).Str("name", snap.Name).Msg("Unreadable snapshot timestamp")
		}
		out = append(out, snap)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: rows: %w", op, err)
	}
	return out, nil
}

// Delete removes the snapshot stored under name
func (s *Store) Delete(ctx context.Context, name string) error {
	const op = "Delete"

	res, err := s.db.ExecContext(ctx, `DELETE FROM golden_snapshots WHERE name = ?`, name)
	if err != nil {
		return fmt.Errorf("%s: %q: %w", op, name, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%s: %q: %w", op, name, ErrNotFound)
	}
	s.log.Info().Str("name", name).Msg("Deleted golden snapshot")
	return nil
}

func firstLine(s string) string {
	for i, r := range s {
		if r == '\n' && i > 0 {
			return s[:i]
		}
	}
	return s
}
