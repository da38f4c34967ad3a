package store

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"

	"github.com/roach88/sandboxx/internal/statelog"
)

//go:embed schema.sql
var schemaSQL string

// Schema version tracking:
// 0 - Initial schema (pre-migration)
// 1 - Added index on logs.updated_at for listing by recency
const currentSchemaVersion = 1

// SQLiteStore keeps every key in one SQLite database.
// Uses WAL mode so readers are not blocked by the appending session.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite creates or opens the database at path, creating its parent
// directory. Applies required pragmas and migrations automatically.
//
// The database is configured with:
//   - WAL mode for concurrent reads during writes
//   - NORMAL synchronous mode (balance durability/performance)
//   - 5-second busy timeout for lock contention
//
// This function is idempotent - safe to call multiple times.
func OpenSQLite(path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// SQLite only supports one writer at a time. A single connection also
	// serializes the read-max-then-insert of AppendEntry.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}

	if err := applySchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// applyPragmas sets required SQLite configuration.
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

// applySchema creates tables if they don't exist and runs migrations.
func applySchema(db *sql.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}

	if err := runMigrations(db); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// runMigrations applies incremental schema migrations based on user_version.
func runMigrations(db *sql.DB) error {
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}

	if version < 1 {
		if err := migrateToV1(db); err != nil {
			return err
		}
	}

	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}

	return nil
}

func migrateToV1(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_logs_updated_at
		ON logs(updated_at)
	`)
	if err != nil {
		return fmt.Errorf("migrate to v1: %w", err)
	}
	return nil
}

// verifyPragma checks that a pragma is set to the expected value.
// Used for testing.
func (s *SQLiteStore) verifyPragma(name, expected string) error {
	var value string
	if err := s.db.QueryRow(fmt.Sprintf("PRAGMA %s", name)).Scan(&value); err != nil {
		return fmt.Errorf("failed to query %s: %w", name, err)
	}
	if value != expected {
		return fmt.Errorf("%s = %q, expected %q", name, value, expected)
	}
	return nil
}

func (s *SQLiteStore) SaveLog(ctx context.Context, key, data string) error {
	if err := validateKey(key); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO logs (key, data) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET
			data = excluded.data,
			updated_at = strftime('%Y-%m-%dT%H:%M:%fZ', 'now')
	`, key, data)
	if err != nil {
		return ioError("save log", key, err)
	}
	return nil
}

// AppendEntry assigns the next seq for the key inside the INSERT itself.
func (s *SQLiteStore) AppendEntry(ctx context.Context, sessionID string, entry statelog.Entry) error {
	if err := validateKey(sessionID); err != nil {
		return err
	}
	line, err := statelog.EncodeEntry(entry)
	if err != nil {
		return ioError("append entry", sessionID, err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO log_entries (key, seq, entry)
		SELECT ?, COALESCE(MAX(seq), 0) + 1, ?
		FROM log_entries WHERE key = ?
	`, sessionID, string(line), sessionID)
	if err != nil {
		return ioError("append entry", sessionID, err)
	}
	return nil
}

func (s *SQLiteStore) LoadLog(ctx context.Context, key string) (string, bool, error) {
	if err := validateKey(key); err != nil {
		return "", false, err
	}
	entries, err := s.loadEntries(ctx, key)
	if err != nil {
		return "", false, err
	}
	if len(entries) > 0 {
		data, err := entriesToJSON("load log", key, entries)
		if err != nil {
			return "", false, err
		}
		return data, true, nil
	}

	var data string
	err = s.db.QueryRowContext(ctx, `SELECT data FROM logs WHERE key = ?`, key).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, ioError("load log", key, err)
	}
	return data, true, nil
}

func (s *SQLiteStore) loadEntries(ctx context.Context, key string) ([]statelog.Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, entry FROM log_entries
		WHERE key = ?
		ORDER BY seq ASC
	`, key)
	if err != nil {
		return nil, ioError("load log", key, err)
	}
	defer rows.Close()

	var entries []statelog.Entry
	for rows.Next() {
		var (
			seq  int64
			line string
		)
		if err := rows.Scan(&seq, &line); err != nil {
			return nil, ioError("load log", key, err)
		}
		e, err := statelog.DecodeEntry([]byte(line))
		if err != nil {
			return nil, ioError("load log", key, fmt.Errorf("seq %d: %w", seq, err))
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, ioError("load log", key, err)
	}
	return entries, nil
}

func (s *SQLiteStore) DeleteLog(ctx context.Context, key string) error {
	if err := validateKey(key); err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return ioError("delete log", key, err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM log_entries WHERE key = ?`, key); err != nil {
		return ioError("delete log", key, err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM logs WHERE key = ?`, key); err != nil {
		return ioError("delete log", key, err)
	}
	if err := tx.Commit(); err != nil {
		return ioError("delete log", key, err)
	}
	return nil
}

func (s *SQLiteStore) ListLogs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT key FROM log_entries
		UNION
		SELECT key FROM logs
		ORDER BY key COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, ioError("list logs", "", err)
	}
	defer rows.Close()

	keys := []string{}
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, ioError("list logs", "", err)
		}
		keys = append(keys, key)
	}
	if err := rows.Err(); err != nil {
		return nil, ioError("list logs", "", err)
	}
	return keys, nil
}

// SaveBlob uses ON CONFLICT DO NOTHING: a ref names its content, so a
// second write of the same ref is ignored.
func (s *SQLiteStore) SaveBlob(ctx context.Context, ref string, data []byte) error {
	if err := validateRef(ref); err != nil {
		return err
	}
	if data == nil {
		data = []byte{}
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO blobs (ref, data, size) VALUES (?, ?, ?)
		ON CONFLICT(ref) DO NOTHING
	`, ref, data, len(data))
	if err != nil {
		return ioError("save blob", ref, err)
	}
	return nil
}

func (s *SQLiteStore) LoadBlob(ctx context.Context, ref string) ([]byte, bool, error) {
	if err := validateRef(ref); err != nil {
		return nil, false, err
	}
	var data []byte
	err := s.db.QueryRowContext(ctx, `SELECT data FROM blobs WHERE ref = ?`, ref).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, ioError("load blob", ref, err)
	}
	return data, true, nil
}

func (s *SQLiteStore) DeleteBlob(ctx context.Context, ref string) error {
	if err := validateRef(ref); err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM blobs WHERE ref = ?`, ref); err != nil {
		return ioError("delete blob", ref, err)
	}
	return nil
}

var _ Store = (*SQLiteStore)(nil)
