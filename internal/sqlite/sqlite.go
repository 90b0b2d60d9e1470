// Package sqlite implements the relational repository variant. Papers,
// authors, the ordered paper_authors join, citations, notes and
// annotations live in five related tables; DOI and citation-pair
// uniqueness are enforced by unique indexes at the storage layer.
package sqlite

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/papervault/papervault/internal/repository"
	_ "modernc.org/sqlite"
)

// DB wraps a SQLite database connection shared by the repositories.
type DB struct {
	db *sql.DB
}

// OpenDB opens or creates a SQLite database at the given path.
func OpenDB(path string) (*DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	db.SetMaxOpenConns(1) // SQLite doesn't support concurrent writes

	// Cascading deletes depend on foreign key enforcement
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	return &DB{db: db}, nil
}

// Close closes the database connection.
func (d *DB) Close() error {
	return d.db.Close()
}

// Ping checks connectivity.
func (d *DB) Ping() error {
	return d.db.Ping()
}

// createSchema creates the database schema if it doesn't exist.
func createSchema(db *sql.DB) error {
	schema := `
		CREATE TABLE IF NOT EXISTS papers (
			id TEXT PRIMARY KEY,
			title TEXT NOT NULL,
			abstract TEXT,
			keywords_json TEXT,
			journal TEXT,
			conference TEXT,
			doi TEXT,
			url TEXT,
			file_path TEXT,
			published_at INTEGER NOT NULL DEFAULT 0,
			metadata_json TEXT,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		);

		-- DOI is unique only when present
		CREATE UNIQUE INDEX IF NOT EXISTS idx_papers_doi
			ON papers(doi) WHERE doi IS NOT NULL AND doi != '';

		-- Authors are deduplicated by (name, email) and shared across papers
		CREATE TABLE IF NOT EXISTS authors (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			affiliation TEXT,
			email TEXT NOT NULL DEFAULT '',
			UNIQUE (name, email)
		);

		-- Join table; position preserves author order per paper. Keyed on
		-- (paper_id, position): the ordered list may repeat an author.
		CREATE TABLE IF NOT EXISTS paper_authors (
			paper_id TEXT NOT NULL REFERENCES papers(id) ON DELETE CASCADE,
			author_id TEXT NOT NULL REFERENCES authors(id) ON DELETE CASCADE,
			position INTEGER NOT NULL,
			PRIMARY KEY (paper_id, position)
		);

		CREATE TABLE IF NOT EXISTS citations (
			id TEXT PRIMARY KEY,
			source_id TEXT NOT NULL REFERENCES papers(id) ON DELETE CASCADE,
			target_id TEXT NOT NULL REFERENCES papers(id) ON DELETE CASCADE,
			context TEXT,
			citation_type TEXT NOT NULL,
			page INTEGER NOT NULL DEFAULT 0,
			created_at INTEGER NOT NULL,
			UNIQUE (source_id, target_id)
		);

		CREATE INDEX IF NOT EXISTS idx_citations_source ON citations(source_id);
		CREATE INDEX IF NOT EXISTS idx_citations_target ON citations(target_id);

		CREATE TABLE IF NOT EXISTS notes (
			id TEXT PRIMARY KEY,
			paper_id TEXT REFERENCES papers(id) ON DELETE SET NULL,
			content TEXT NOT NULL,
			tags_json TEXT,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_notes_paper ON notes(paper_id);

		-- Annotations are owned by their note and cascade with it
		CREATE TABLE IF NOT EXISTS annotations (
			id TEXT PRIMARY KEY,
			note_id TEXT NOT NULL REFERENCES notes(id) ON DELETE CASCADE,
			position INTEGER NOT NULL,
			annotation_type TEXT NOT NULL,
			page INTEGER NOT NULL DEFAULT 0,
			x REAL NOT NULL DEFAULT 0,
			y REAL NOT NULL DEFAULT 0,
			width REAL NOT NULL DEFAULT 0,
			height REAL NOT NULL DEFAULT 0,
			text TEXT,
			color TEXT
		);

		CREATE INDEX IF NOT EXISTS idx_annotations_note ON annotations(note_id);
	`

	_, err := db.Exec(schema)
	return err
}

// scanner interface for sql.Row and sql.Rows
type scanner interface {
	Scan(dest ...interface{}) error
}

// translateErr maps driver errors onto the repository taxonomy, wrapped
// with an operation-specific message. Raw driver errors never escape.
func translateErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return fmt.Errorf("%s: %w", op, repository.ErrDuplicate)
	}
	return fmt.Errorf("%s: %w", op, err)
}

// timeToNano converts a time to the stored integer form, keeping the
// zero time at 0 so range comparisons stay sane.
func timeToNano(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

// nanoToTime is the inverse of timeToNano.
func nanoToTime(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n).UTC()
}

// nullableStringValue converts a string to sql.NullString, treating empty as NULL.
func nullableStringValue(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
