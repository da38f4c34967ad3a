package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/sandboxx/internal/statelog"
)

func createTestSQLite(t *testing.T) *SQLiteStore {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("OpenSQLite() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpenSQLite_CreatesParentDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "state.db")

	s, err := OpenSQLite(path)
	require.NoError(t, err)
	defer s.Close()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Error("database file was not created")
	}
}

func TestOpenSQLite_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	for i := 0; i < 3; i++ {
		s, err := OpenSQLite(path)
		if err != nil {
			t.Fatalf("OpenSQLite() iteration %d failed: %v", i, err)
		}
		s.Close()
	}
}

func TestOpenSQLite_Pragmas(t *testing.T) {
	s := createTestSQLite(t)

	tests := []struct {
		name     string
		expected string
	}{
		{"journal_mode", "wal"},
		{"synchronous", "1"},
		{"busy_timeout", "5000"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.NoError(t, s.verifyPragma(tt.name, tt.expected))
		})
	}
}

func TestOpenSQLite_SchemaVersion(t *testing.T) {
	s := createTestSQLite(t)

	var version int
	require.NoError(t, s.db.QueryRow("PRAGMA user_version").Scan(&version))
	assert.Equal(t, currentSchemaVersion, version)

	var name string
	err := s.db.QueryRow(`SELECT name FROM sqlite_master WHERE type = 'index' AND name = 'idx_logs_updated_at'`).Scan(&name)
	require.NoError(t, err)
}

func TestSQLiteAppendAssignsSequence(t *testing.T) {
	s := createTestSQLite(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, s.AppendEntry(ctx, "a", statelog.NewEntry(statelog.OpStorageClear, nil)))
	}
	require.NoError(t, s.AppendEntry(ctx, "b", statelog.NewEntry(statelog.OpStorageClear, nil)))

	rows, err := s.db.Query(`SELECT key, seq FROM log_entries ORDER BY key, seq`)
	require.NoError(t, err)
	defer rows.Close()

	type row struct {
		key string
		seq int64
	}
	var got []row
	for rows.Next() {
		var r row
		require.NoError(t, rows.Scan(&r.key, &r.seq))
		got = append(got, r)
	}
	require.NoError(t, rows.Err())
	assert.Equal(t, []row{{"a", 1}, {"a", 2}, {"a", 3}, {"b", 1}}, got)
}

func TestSQLiteCorruptRowIsIOError(t *testing.T) {
	s := createTestSQLite(t)
	_, err := s.db.Exec(`INSERT INTO log_entries (key, seq, entry) VALUES ('bad', 1, '{not json')`)
	require.NoError(t, err)

	_, _, err = s.LoadLog(context.Background(), "bad")
	var ioErr *IOError
	require.ErrorAs(t, err, &ioErr)
	assert.ErrorIs(t, err, statelog.ErrMalformed)
}
