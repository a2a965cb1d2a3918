// Package storage persists the personal library snapshot in SQLite so a
// restart can serve the catalogue and send the last version token.
package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	_ "modernc.org/sqlite"

	"github.com/matsen/bipcite/internal/reference"
)

// DB wraps a SQLite database connection.
type DB struct {
	db *sql.DB
}

// LibrarySnapshot is everything cached for one library.
type LibrarySnapshot struct {
	Version     string
	FetchedAt   time.Time
	Collections []reference.Collection
	Entries     []reference.Entry
}

// OpenDB opens or creates a SQLite database at the given path.
func OpenDB(path string) (*DB, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("creating cache directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	db.SetMaxOpenConns(1) // SQLite doesn't support concurrent writes

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

// createSchema creates the database schema if it doesn't exist.
func createSchema(db *sql.DB) error {
	schema := `
		CREATE TABLE IF NOT EXISTS library_meta (
			library TEXT NOT NULL,
			key TEXT NOT NULL,
			value TEXT NOT NULL,
			PRIMARY KEY (library, key)
		);

		CREATE TABLE IF NOT EXISTS library_collections (
			library TEXT NOT NULL,
			key TEXT NOT NULL,
			name TEXT NOT NULL,
			parent_key TEXT,
			position INTEGER NOT NULL,
			PRIMARY KEY (library, key)
		);

		-- Items are stored as JSON-encoded entries in catalogue order
		CREATE TABLE IF NOT EXISTS library_items (
			library TEXT NOT NULL,
			id TEXT NOT NULL,
			doi TEXT,
			entry_json TEXT NOT NULL,
			position INTEGER NOT NULL,
			PRIMARY KEY (library, id)
		);

		CREATE INDEX IF NOT EXISTS idx_library_items_doi ON library_items(library, doi) WHERE doi IS NOT NULL AND doi != '';
	`

	_, err := db.Exec(schema)
	return err
}

const (
	metaVersion   = "version"
	metaFetchedAt = "fetched_at"
)

// SaveSnapshot replaces the cached snapshot of library in one transaction.
func (d *DB) SaveSnapshot(library string, snap LibrarySnapshot) (err error) {
	tx, err := d.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	for _, table := range []string{"library_meta", "library_collections", "library_items"} {
		if _, err = tx.Exec("DELETE FROM "+table+" WHERE library = ?", library); err != nil {
			return fmt.Errorf("clearing %s: %w", table, err)
		}
	}

	if _, err = tx.Exec(`INSERT INTO library_meta (library, key, value) VALUES (?, ?, ?), (?, ?, ?)`,
		library, metaVersion, snap.Version,
		library, metaFetchedAt, strconv.FormatInt(snap.FetchedAt.Unix(), 10)); err != nil {
		return fmt.Errorf("writing metadata: %w", err)
	}

	collStmt, err := tx.Prepare(`
		INSERT INTO library_collections (library, key, name, parent_key, position)
		VALUES (?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("preparing collection insert: %w", err)
	}
	defer collStmt.Close()

	for i, c := range snap.Collections {
		if _, err = collStmt.Exec(library, c.Key, c.Name, nullableStringValue(c.ParentKey), i); err != nil {
			return fmt.Errorf("inserting collection %s: %w", c.Key, err)
		}
	}

	itemStmt, err := tx.Prepare(`
		INSERT OR REPLACE INTO library_items (library, id, doi, entry_json, position)
		VALUES (?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("preparing item insert: %w", err)
	}
	defer itemStmt.Close()

	for i, e := range snap.Entries {
		data, mErr := json.Marshal(e)
		if mErr != nil {
			err = fmt.Errorf("encoding item %s: %w", e.ID, mErr)
			return err
		}
		if _, err = itemStmt.Exec(library, e.ID, nullableStringValue(reference.NormalizeDOI(e.DOI)), string(data), i); err != nil {
			return fmt.Errorf("inserting item %s: %w", e.ID, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("committing snapshot: %w", err)
	}
	return nil
}

// LoadSnapshot returns the cached snapshot of library. ok is false when
// nothing has been saved yet.
func (d *DB) LoadSnapshot(library string) (snap LibrarySnapshot, ok bool, err error) {
	rows, err := d.db.Query(`SELECT key, value FROM library_meta WHERE library = ?`, library)
	if err != nil {
		return snap, false, fmt.Errorf("reading metadata: %w", err)
	}
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			rows.Close()
			return snap, false, err
		}
		ok = true
		switch key {
		case metaVersion:
			snap.Version = value
		case metaFetchedAt:
			if secs, err := strconv.ParseInt(value, 10, 64); err == nil {
				snap.FetchedAt = time.Unix(secs, 0)
			}
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return snap, false, err
	}
	if !ok {
		return snap, false, nil
	}

	if snap.Collections, err = d.collections(library); err != nil {
		return snap, false, err
	}
	if snap.Entries, err = d.entries(library); err != nil {
		return snap, false, err
	}
	return snap, true, nil
}

func (d *DB) collections(library string) ([]reference.Collection, error) {
	rows, err := d.db.Query(`
		SELECT key, name, parent_key FROM library_collections
		WHERE library = ? ORDER BY position
	`, library)
	if err != nil {
		return nil, fmt.Errorf("reading collections: %w", err)
	}
	defer rows.Close()

	var out []reference.Collection
	for rows.Next() {
		var c reference.Collection
		var parent sql.NullString
		if err := rows.Scan(&c.Key, &c.Name, &parent); err != nil {
			return nil, err
		}
		c.ParentKey = parent.String
		out = append(out, c)
	}
	return out, rows.Err()
}

func (d *DB) entries(library string) ([]reference.Entry, error) {
	rows, err := d.db.Query(`
		SELECT entry_json FROM library_items
		WHERE library = ? ORDER BY position
	`, library)
	if err != nil {
		return nil, fmt.Errorf("reading items: %w", err)
	}
	defer rows.Close()

	var out []reference.Entry
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		var e reference.Entry
		if err := json.Unmarshal([]byte(data), &e); err != nil {
			return nil, fmt.Errorf("decoding cached item: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// FindByDOI looks up a cached library item by DOI.
func (d *DB) FindByDOI(library, doi string) (*reference.Entry, error) {
	var data string
	err := d.db.QueryRow(`
		SELECT entry_json FROM library_items WHERE library = ? AND doi = ?
	`, library, reference.NormalizeDOI(doi)).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var e reference.Entry
	if err := json.Unmarshal([]byte(data), &e); err != nil {
		return nil, fmt.Errorf("decoding cached item: %w", err)
	}
	return &e, nil
}

// Count returns the number of cached items for library.
func (d *DB) Count(library string) (int, error) {
	var count int
	err := d.db.QueryRow("SELECT COUNT(*) FROM library_items WHERE library = ?", library).Scan(&count)
	return count, err
}

// nullableStringValue converts a string to sql.NullString, treating empty as NULL.
func nullableStringValue(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
