// Package store implements the durable tier of the record cache: a single
// SQLite table of serialized records with WAL journaling and an index that
// supports ordered eviction scans.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"
)

// Entry is one row of the cache table. Size is always the byte length of
// Value; Timestamp is seconds since epoch.
type Entry struct {
	Key           string
	Value         []byte
	Timestamp     float64
	SchemaVersion string
	Size          int64
}

// Store wraps a single shared SQLite connection. All methods run inside their
// own transaction; batch methods use one transaction for the whole batch.
type Store struct {
	db   *sql.DB
	path string
}

const schema = `
CREATE TABLE IF NOT EXISTS cache (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL,
	timestamp REAL NOT NULL,
	schema_version TEXT NOT NULL,
	size INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_cache_ts_key ON cache(timestamp, key);
`

// Open opens (creating if needed) the cache database at path. The parent
// directory is created for file-backed databases; ":memory:" is accepted for
// ephemeral stores.
func Open(path string) (*Store, error) {
	if path == "" {
		return nil, errors.New("store: empty database path")
	}
	if !isMemoryPath(path) {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create cache directory: %w", err)
			}
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// One shared connection: the cache serializes writers itself, and a single
	// connection keeps ":memory:" databases from vanishing between calls.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("apply %s: %w", pragma, err)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create cache schema: %w", err)
	}

	return &Store{db: db, path: path}, nil
}

func isMemoryPath(path string) bool {
	return path == ":memory:" || strings.Contains(path, "mode=memory")
}

// Path returns the database path the store was opened with.
func (s *Store) Path() string { return s.path }

// Get returns the entry for key, if present.
func (s *Store) Get(ctx context.Context, key string) (Entry, bool, error) {
	var e Entry
	row := s.db.QueryRowContext(ctx,
		`SELECT key, value, timestamp, schema_version, size FROM cache WHERE key = ?`, key)
	err := row.Scan(&e.Key, &e.Value, &e.Timestamp, &e.SchemaVersion, &e.Size)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, fmt.Errorf("select %q: %w", key, err)
	}
	return e, true, nil
}

// Exists reports whether a row for key is present, without reading its value.
func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM cache WHERE key = ?`, key).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("probe %q: %w", key, err)
	}
	return true, nil
}

// Write upserts the entry and returns the size of any row it replaced, so the
// caller can maintain count and size accounting without re-querying.
func (s *Store) Write(ctx context.Context, e Entry) (prevSize int64, replaced bool, err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, false, fmt.Errorf("begin write: %w", err)
	}
	defer tx.Rollback()

	err = tx.QueryRowContext(ctx, `SELECT size FROM cache WHERE key = ?`, e.Key).Scan(&prevSize)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		replaced = false
	case err != nil:
		return 0, false, fmt.Errorf("read prior size for %q: %w", e.Key, err)
	default:
		replaced = true
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO cache (key, value, timestamp, schema_version, size)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			timestamp = excluded.timestamp,
			schema_version = excluded.schema_version,
			size = excluded.size`,
		e.Key, string(e.Value), e.Timestamp, e.SchemaVersion, e.Size)
	if err != nil {
		return 0, false, fmt.Errorf("upsert %q: %w", e.Key, err)
	}

	if err := tx.Commit(); err != nil {
		return 0, false, fmt.Errorf("commit write: %w", err)
	}
	return prevSize, replaced, nil
}

// WriteMany upserts all entries inside one transaction. It returns the number
// of newly inserted rows and the net change in stored bytes. On error nothing
// is written.
func (s *Store) WriteMany(ctx context.Context, entries []Entry) (added, sizeDelta int64, err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, 0, fmt.Errorf("begin batch write: %w", err)
	}
	defer tx.Rollback()

	for _, e := range entries {
		var prevSize int64
		err := tx.QueryRowContext(ctx, `SELECT size FROM cache WHERE key = ?`, e.Key).Scan(&prevSize)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			added++
			sizeDelta += e.Size
		case err != nil:
			return 0, 0, fmt.Errorf("read prior size for %q: %w", e.Key, err)
		default:
			sizeDelta += e.Size - prevSize
		}

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO cache (key, value, timestamp, schema_version, size)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(key) DO UPDATE SET
				value = excluded.value,
				timestamp = excluded.timestamp,
				schema_version = excluded.schema_version,
				size = excluded.size`,
			e.Key, string(e.Value), e.Timestamp, e.SchemaVersion, e.Size); err != nil {
			return 0, 0, fmt.Errorf("upsert %q: %w", e.Key, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, 0, fmt.Errorf("commit batch write: %w", err)
	}
	return added, sizeDelta, nil
}

// Touch updates the timestamp of an existing row. Missing keys are a no-op.
func (s *Store) Touch(ctx context.Context, key string, timestamp float64) error {
	if _, err := s.db.ExecContext(ctx,
		`UPDATE cache SET timestamp = ? WHERE key = ?`, timestamp, key); err != nil {
		return fmt.Errorf("touch %q: %w", key, err)
	}
	return nil
}

// Delete removes the row for key and returns its size when it existed.
func (s *Store) Delete(ctx context.Context, key string) (size int64, existed bool, err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, false, fmt.Errorf("begin delete: %w", err)
	}
	defer tx.Rollback()

	err = tx.QueryRowContext(ctx, `SELECT size FROM cache WHERE key = ?`, key).Scan(&size)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return 0, false, tx.Commit()
	case err != nil:
		return 0, false, fmt.Errorf("read size for %q: %w", key, err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM cache WHERE key = ?`, key); err != nil {
		return 0, false, fmt.Errorf("delete %q: %w", key, err)
	}
	if err := tx.Commit(); err != nil {
		return 0, false, fmt.Errorf("commit delete: %w", err)
	}
	return size, true, nil
}

// DeleteMany removes every named key inside one transaction, silently skipping
// unknown keys. It returns the number of rows removed and the bytes freed.
func (s *Store) DeleteMany(ctx context.Context, keys []string) (removed, freed int64, err error) {
	if len(keys) == 0 {
		return 0, 0, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, 0, fmt.Errorf("begin batch delete: %w", err)
	}
	defer tx.Rollback()

	for _, key := range keys {
		var size int64
		err := tx.QueryRowContext(ctx, `SELECT size FROM cache WHERE key = ?`, key).Scan(&size)
		if errors.Is(err, sql.ErrNoRows) {
			continue
		}
		if err != nil {
			return 0, 0, fmt.Errorf("read size for %q: %w", key, err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM cache WHERE key = ?`, key); err != nil {
			return 0, 0, fmt.Errorf("delete %q: %w", key, err)
		}
		removed++
		freed += size
	}

	if err := tx.Commit(); err != nil {
		return 0, 0, fmt.Errorf("commit batch delete: %w", err)
	}
	return removed, freed, nil
}

// DeleteAll removes every row.
func (s *Store) DeleteAll(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM cache`); err != nil {
		return fmt.Errorf("delete all: %w", err)
	}
	return nil
}

// DeleteSchemaMismatch removes every row whose schema_version differs from
// expected and returns how many were removed.
func (s *Store) DeleteSchemaMismatch(ctx context.Context, expected string) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM cache WHERE schema_version != ?`, expected)
	if err != nil {
		return 0, fmt.Errorf("delete schema mismatches: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("count schema mismatches: %w", err)
	}
	return n, nil
}

// Count returns the number of rows.
func (s *Store) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM cache`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count rows: %w", err)
	}
	return n, nil
}

// SumSize returns the total stored bytes.
func (s *Store) SumSize(ctx context.Context) (int64, error) {
	var total int64
	if err := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(size), 0) FROM cache`).Scan(&total); err != nil {
		return 0, fmt.Errorf("sum sizes: %w", err)
	}
	return total, nil
}

// Oldest returns up to n entries in (timestamp, key) ascending order. The
// idx_cache_ts_key index makes this the eviction scan.
func (s *Store) Oldest(ctx context.Context, n int) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT key, value, timestamp, schema_version, size
		FROM cache ORDER BY timestamp ASC, key ASC LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("scan oldest: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.Key, &e.Value, &e.Timestamp, &e.SchemaVersion, &e.Size); err != nil {
			return nil, fmt.Errorf("scan oldest row: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("scan oldest: %w", err)
	}
	return entries, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close sqlite database: %w", err)
	}
	return nil
}
