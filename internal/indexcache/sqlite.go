package indexcache

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/agentx-labs/capreg/internal/report"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS meta (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS sections (
	name        TEXT PRIMARY KEY,
	payload     BLOB NOT NULL,
	computed_at TEXT NOT NULL,
	signature   TEXT NOT NULL
);
`

// SQLiteStore keeps entries in a SQLite database.
type SQLiteStore struct {
	db    *sql.DB
	path  string
	reset bool // the previous file was unreadable and has been replaced
}

// OpenSQLite opens or creates the database at path. A file that is not a
// usable database is replaced, and the next Load reports
// report.ErrCacheSignatureMismatch.
func OpenSQLite(path string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("creating cache directory: %w", err)
	}
	db, err := openSchema(path)
	if err == nil {
		return &SQLiteStore{db: db, path: path}, nil
	}

	if rmErr := os.Remove(path); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
		return nil, fmt.Errorf("opening cache database %s: %w", path, err)
	}
	db, err = openSchema(path)
	if err != nil {
		return nil, fmt.Errorf("opening cache database %s: %w", path, err)
	}
	return &SQLiteStore{db: db, path: path, reset: true}, nil
}

func openSchema(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", "file:"+path)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, err
	}
	if _, err := db.Exec(`INSERT OR IGNORE INTO meta (key, value) VALUES ('format_version', ?)`, strconv.Itoa(FormatVersion)); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// Path returns the database file.
func (s *SQLiteStore) Path() string { return s.path }

// Load reads every section row.
func (s *SQLiteStore) Load() (map[string]Entry, error) {
	if s.reset {
		s.reset = false
		return nil, fmt.Errorf("cache database %s was unreadable and has been recreated: %w", s.path, report.ErrCacheSignatureMismatch)
	}

	var version string
	err := s.db.QueryRow(`SELECT value FROM meta WHERE key = 'format_version'`).Scan(&version)
	if err != nil {
		return nil, fmt.Errorf("reading cache format version: %w: %v", report.ErrCacheSignatureMismatch, err)
	}
	if version != strconv.Itoa(FormatVersion) {
		return nil, fmt.Errorf("cache %s has format version %s, want %d: %w", s.path, version, FormatVersion, report.ErrCacheSignatureMismatch)
	}

	rows, err := s.db.Query(`SELECT name, payload, computed_at, signature FROM sections ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("querying cache sections: %w", err)
	}
	defer rows.Close()

	out := make(map[string]Entry)
	for rows.Next() {
		var (
			e        Entry
			payload  []byte
			computed string
		)
		if err := rows.Scan(&e.Section, &payload, &computed, &e.Signature); err != nil {
			return nil, fmt.Errorf("scanning cache row: %w: %v", report.ErrCacheSignatureMismatch, err)
		}
		t, err := time.Parse(time.RFC3339Nano, computed)
		if err != nil {
			return nil, fmt.Errorf("cache row %s: %w: %v", e.Section, report.ErrCacheSignatureMismatch, err)
		}
		e.ComputedAt = t
		e.Payload = payload
		out[e.Section] = e
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading cache rows: %w", err)
	}
	return out, nil
}

// Put upserts e.
func (s *SQLiteStore) Put(e Entry) error {
	_, err := s.db.Exec(`
		INSERT INTO sections (name, payload, computed_at, signature)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			payload = excluded.payload,
			computed_at = excluded.computed_at,
			signature = excluded.signature`,
		e.Section, []byte(e.Payload), e.ComputedAt.UTC().Format(time.RFC3339Nano), e.Signature)
	if err != nil {
		return fmt.Errorf("storing cache section %s: %w", e.Section, err)
	}
	return nil
}

// Delete removes a section row.
func (s *SQLiteStore) Delete(section string) error {
	if _, err := s.db.Exec(`DELETE FROM sections WHERE name = ?`, section); err != nil {
		return fmt.Errorf("deleting cache section %s: %w", section, err)
	}
	return nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
