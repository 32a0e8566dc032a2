// Package livedb persists the live analysis database in SQLite.
//
// The in-memory database is the working copy analysts mutate; this package
// stores it between CLI invocations and daemon restarts. Each entity class
// has its own table keyed by address or handle, with the entity body encoded
// as YAML. A Save rewrites every table inside one transaction, so a reader
// never observes a half-written database.
//
// Architecture:
//   - Database file: .ya/live.db
//   - WAL mode: the daemon and a CLI invocation may open it together
//   - Tables: meta, segments, items, funcs, strucs, enums
package livedb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
	"gopkg.in/yaml.v3"

	"github.com/yatools/yasync/internal/host"
	"github.com/yatools/yasync/internal/host/memhost"
)

// SchemaVersion is stored in the meta table and checked on Load.
const SchemaVersion = 1

// ErrSchemaVersion is returned when a database was written by a newer schema.
var ErrSchemaVersion = errors.New("unsupported live database schema version")

// DB wraps the SQLite connection holding a live database.
type DB struct {
	conn *sql.DB
	path string
}

// Open opens or creates the database at path and ensures its schema.
//
// The caller must call Close when done.
func Open(path string) (*DB, error) {
	return OpenContext(context.Background(), path)
}

// OpenContext is Open with context support.
func OpenContext(ctx context.Context, path string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	conn, err := sql.Open("sqlite3", dsn(path))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := conn.PingContext(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	conn.SetMaxOpenConns(4)
	conn.SetMaxIdleConns(2)
	conn.SetConnMaxLifetime(5 * time.Minute)

	db := &DB{conn: conn, path: path}
	if err := db.initSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// dsn applies the pragmas on every pooled connection, not only the first.
func dsn(path string) string {
	q := url.Values{}
	q.Add("_pragma", "busy_timeout(5000)")
	q.Add("_pragma", "journal_mode(WAL)")
	u := url.URL{Scheme: "file", OmitHost: true, Path: filepath.ToSlash(path), RawQuery: q.Encode()}
	return u.String()
}

// Path returns the database file path.
func (db *DB) Path() string {
	return db.path
}

// Close checkpoints the WAL and closes the connection.
func (db *DB) Close() error {
	if db.conn == nil {
		return nil
	}
	// Best effort; the WAL is replayed on next open anyway.
	_, _ = db.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	if err := db.conn.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	db.conn = nil
	return nil
}

func (db *DB) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	-- Keys are addresses or handles stored as their int64 bit pattern.
	CREATE TABLE IF NOT EXISTS segments (
		start INTEGER PRIMARY KEY,
		body TEXT NOT NULL
	);
	CREATE TABLE IF NOT EXISTS items (
		ea INTEGER PRIMARY KEY,
		body TEXT NOT NULL
	);
	CREATE TABLE IF NOT EXISTS funcs (
		start INTEGER PRIMARY KEY,
		body TEXT NOT NULL
	);
	CREATE TABLE IF NOT EXISTS strucs (
		id INTEGER PRIMARY KEY,
		frame_of INTEGER NOT NULL,
		body TEXT NOT NULL
	);
	CREATE TABLE IF NOT EXISTS enums (
		id INTEGER PRIMARY KEY,
		body TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_strucs_frame_of ON strucs(frame_of);
	`
	if _, err := db.conn.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}
	return nil
}

// Save replaces the stored database with the contents of d.
func (db *DB) Save(d *memhost.DB) error {
	return db.SaveContext(context.Background(), d)
}

// SaveContext is Save with context support.
func (db *DB) SaveContext(ctx context.Context, d *memhost.DB) error {
	st := d.State()

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, table := range []string{"segments", "items", "funcs", "strucs", "enums"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}

	for _, s := range st.Segments {
		if err := insert(ctx, tx, "INSERT INTO segments (start, body) VALUES (?, ?)", s, s.Start); err != nil {
			return fmt.Errorf("failed to save segment %X: %w", s.Start, err)
		}
	}
	for _, it := range st.Items {
		if err := insert(ctx, tx, "INSERT INTO items (ea, body) VALUES (?, ?)", it, it.EA); err != nil {
			return fmt.Errorf("failed to save item %X: %w", it.EA, err)
		}
	}
	for _, f := range st.Funcs {
		if err := insert(ctx, tx, "INSERT INTO funcs (start, body) VALUES (?, ?)", f, f.Func.Start); err != nil {
			return fmt.Errorf("failed to save function %X: %w", f.Func.Start, err)
		}
	}
	for _, s := range st.Strucs {
		body, err := yaml.Marshal(s.Struc)
		if err != nil {
			return fmt.Errorf("failed to encode struct %X: %w", s.Struc.ID, err)
		}
		if _, err := tx.ExecContext(ctx, "INSERT INTO strucs (id, frame_of, body) VALUES (?, ?, ?)",
			toKey(s.Struc.ID), toKey(s.FrameOf), string(body)); err != nil {
			return fmt.Errorf("failed to save struct %X: %w", s.Struc.ID, err)
		}
	}
	for _, e := range st.Enums {
		if err := insert(ctx, tx, "INSERT INTO enums (id, body) VALUES (?, ?)", e, e.ID); err != nil {
			return fmt.Errorf("failed to save enum %X: %w", e.ID, err)
		}
	}

	meta := map[string]string{
		"schema_version": strconv.Itoa(SchemaVersion),
		"next_handle":    strconv.FormatUint(st.NextHandle, 10),
		"saved_at":       time.Now().UTC().Format(time.RFC3339),
	}
	for k, v := range meta {
		if _, err := tx.ExecContext(ctx, `
		INSERT INTO meta (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
		`, k, v); err != nil {
			return fmt.Errorf("failed to save %s: %w", k, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func insert(ctx context.Context, tx *sql.Tx, query string, v any, key uint64) error {
	body, err := yaml.Marshal(v)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, query, toKey(key), string(body))
	return err
}

// Load rebuilds the stored database. An empty store yields an empty
// database.
func (db *DB) Load() (*memhost.DB, error) {
	return db.LoadContext(context.Background())
}

// LoadContext is Load with context support.
func (db *DB) LoadContext(ctx context.Context) (*memhost.DB, error) {
	var st memhost.State

	meta, err := db.meta(ctx)
	if err != nil {
		return nil, err
	}
	if v, ok := meta["schema_version"]; ok {
		n, err := strconv.Atoi(v)
		if err != nil || n > SchemaVersion {
			return nil, fmt.Errorf("%w: %q", ErrSchemaVersion, v)
		}
	}
	if v, ok := meta["next_handle"]; ok {
		if st.NextHandle, err = strconv.ParseUint(v, 10, 64); err != nil {
			return nil, fmt.Errorf("failed to parse next_handle: %w", err)
		}
	}

	if err := scanBodies(ctx, db.conn, "SELECT body FROM segments ORDER BY start", &st.Segments); err != nil {
		return nil, fmt.Errorf("failed to load segments: %w", err)
	}
	if err := scanBodies(ctx, db.conn, "SELECT body FROM items ORDER BY ea", &st.Items); err != nil {
		return nil, fmt.Errorf("failed to load items: %w", err)
	}
	if err := scanBodies(ctx, db.conn, "SELECT body FROM funcs ORDER BY start", &st.Funcs); err != nil {
		return nil, fmt.Errorf("failed to load functions: %w", err)
	}
	if err := scanBodies(ctx, db.conn, "SELECT body FROM enums ORDER BY id", &st.Enums); err != nil {
		return nil, fmt.Errorf("failed to load enums: %w", err)
	}

	rows, err := db.conn.QueryContext(ctx, "SELECT frame_of, body FROM strucs ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("failed to query structs: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var frameOf int64
		var body string
		if err := rows.Scan(&frameOf, &body); err != nil {
			return nil, fmt.Errorf("failed to scan struct: %w", err)
		}
		var s host.Struc
		if err := yaml.Unmarshal([]byte(body), &s); err != nil {
			return nil, fmt.Errorf("failed to decode struct: %w", err)
		}
		st.Strucs = append(st.Strucs, memhost.StrucState{Struc: s, FrameOf: fromKey(frameOf)})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating structs: %w", err)
	}

	return memhost.FromState(st), nil
}

// scanBodies appends the decoded body column of every row to out.
func scanBodies[T any](ctx context.Context, conn *sql.DB, query string, out *[]T) error {
	rows, err := conn.QueryContext(ctx, query)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return err
		}
		var v T
		if err := yaml.Unmarshal([]byte(body), &v); err != nil {
			return err
		}
		*out = append(*out, v)
	}
	return rows.Err()
}

func (db *DB) meta(ctx context.Context) (map[string]string, error) {
	rows, err := db.conn.QueryContext(ctx, "SELECT key, value FROM meta")
	if err != nil {
		return nil, fmt.Errorf("failed to query meta: %w", err)
	}
	defer rows.Close()
	meta := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, fmt.Errorf("failed to scan meta: %w", err)
		}
		meta[k] = v
	}
	return meta, rows.Err()
}

// Counts reports the number of stored rows per table.
func (db *DB) Counts(ctx context.Context) (map[string]int, error) {
	counts := make(map[string]int)
	for _, table := range []string{"segments", "items", "funcs", "strucs", "enums"} {
		var n int
		if err := db.conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table).Scan(&n); err != nil {
			return nil, fmt.Errorf("failed to count %s: %w", table, err)
		}
		counts[table] = n
	}
	return counts, nil
}

// SavedAt returns when the database was last saved, zero if never.
func (db *DB) SavedAt(ctx context.Context) (time.Time, error) {
	var v string
	err := db.conn.QueryRowContext(ctx, "SELECT value FROM meta WHERE key = 'saved_at'").Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to read saved_at: %w", err)
	}
	return time.Parse(time.RFC3339, v)
}

// toKey stores a uint64 in a signed INTEGER column without losing bits.
func toKey(v uint64) int64 { return int64(v) }

func fromKey(v int64) uint64 { return uint64(v) }
