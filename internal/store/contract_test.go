package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/sandboxx/internal/config"
	"github.com/roach88/sandboxx/internal/statelog"
)

// backend builds a store and can build a second instance over the same
// backing location, to check durability across instances.
type backend struct {
	name string
	open func(t *testing.T) (first Store, reopen func() Store)
}

func backends() []backend {
	return []backend{
		{"memory", func(t *testing.T) (Store, func() Store) {
			s := NewMemoryStore()
			return s, func() Store { return s }
		}},
		{"file", func(t *testing.T) (Store, func() Store) {
			dir := t.TempDir()
			return openFile(t, dir), func() Store { return openFile(t, dir) }
		}},
		{"sqlite", func(t *testing.T) (Store, func() Store) {
			path := filepath.Join(t.TempDir(), "state.db")
			return openSQLite(t, path), func() Store { return openSQLite(t, path) }
		}},
		{"redis", func(t *testing.T) (Store, func() Store) {
			mr := miniredis.RunT(t)
			return openRedis(t, mr.Addr()), func() Store { return openRedis(t, mr.Addr()) }
		}},
		{"minio", func(t *testing.T) (Store, func() Store) {
			cfg := minioConfig(t)
			return openMinIO(t, cfg), func() Store { return openMinIO(t, cfg) }
		}},
	}
}

func openFile(t *testing.T, dir string) Store {
	t.Helper()
	s, err := NewFileStore(dir)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func openSQLite(t *testing.T, path string) Store {
	t.Helper()
	s, err := OpenSQLite(path)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func openRedis(t *testing.T, addr string) Store {
	t.Helper()
	s, err := NewRedisStoreWithClient(redis.NewClient(&redis.Options{Addr: addr}), "test:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

// minioConfig points at a live server given by SANDBOXX_MINIO_ENDPOINT, or
// skips the test.
func minioConfig(t *testing.T) config.MinIO {
	t.Helper()
	endpoint := os.Getenv("SANDBOXX_MINIO_ENDPOINT")
	if endpoint == "" {
		t.Skip("SANDBOXX_MINIO_ENDPOINT not set")
	}
	return config.MinIO{
		Endpoint:  endpoint,
		AccessKey: os.Getenv("SANDBOXX_MINIO_ACCESS_KEY"),
		SecretKey: os.Getenv("SANDBOXX_MINIO_SECRET_KEY"),
		Bucket:    fmt.Sprintf("sandboxx-test-%s", sanitizeBucket(t.Name())),
	}
}

func sanitizeBucket(name string) string {
	out := make([]rune, 0, len(name))
	for _, c := range name {
		switch {
		case c >= 'a' && c <= 'z', c >= '0' && c <= '9':
			out = append(out, c)
		case c >= 'A' && c <= 'Z':
			out = append(out, c+'a'-'A')
		default:
			out = append(out, '-')
		}
	}
	if len(out) > 40 {
		out = out[len(out)-40:]
	}
	return string(out)
}

func openMinIO(t *testing.T, cfg config.MinIO) Store {
	t.Helper()
	s, err := NewMinIOStore(context.Background(), cfg)
	require.NoError(t, err)
	return s
}

func forEachBackend(t *testing.T, fn func(t *testing.T, s Store, reopen func() Store)) {
	for _, b := range backends() {
		t.Run(b.name, func(t *testing.T) {
			s, reopen := b.open(t)
			fn(t, s, reopen)
		})
	}
}

func loadEntries(t *testing.T, s Store, key string) []statelog.Entry {
	t.Helper()
	data, ok, err := s.LoadLog(context.Background(), key)
	require.NoError(t, err)
	require.True(t, ok, "log %s not found", key)
	log, err := statelog.Parse(data)
	require.NoError(t, err)
	return log.Entries()
}

func TestStoreAppendDurability(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s Store, reopen func() Store) {
		ctx := context.Background()
		var want []statelog.Entry
		for i := range 25 {
			e := statelog.NewEntry(statelog.OpFSWrite, statelog.Args{
				"path": fmt.Sprintf("/f%02d", i),
				"data": fmt.Sprintf("content <%d> & more", i),
			})
			want = append(want, e)
			require.NoError(t, s.AppendEntry(ctx, "sandbox-a", e))
		}

		assert.Equal(t, want, loadEntries(t, s, "sandbox-a"))
		assert.Equal(t, want, loadEntries(t, reopen(), "sandbox-a"))
	})
}

func TestStoreSaveAndLoadBulk(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s Store, reopen func() Store) {
		ctx := context.Background()
		log := statelog.New().Env().Set("K", "v").Storage().Clear()
		text, err := log.JSON()
		require.NoError(t, err)

		require.NoError(t, s.SaveLog(ctx, "snapshot", text))
		got, ok, err := reopen().LoadLog(ctx, "snapshot")
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, text, got)

		replaced := statelog.New().Env().Delete("K")
		text2, err := replaced.JSON()
		require.NoError(t, err)
		require.NoError(t, s.SaveLog(ctx, "snapshot", text2))
		assert.Equal(t, replaced.Entries(), loadEntries(t, s, "snapshot"))
	})
}

func TestStoreLineFormWinsOverBulk(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s Store, _ func() Store) {
		ctx := context.Background()
		bulk, err := statelog.New().Env().Set("FROM", "bulk").JSON()
		require.NoError(t, err)
		require.NoError(t, s.SaveLog(ctx, "k1", bulk))

		line := statelog.NewEntry(statelog.OpEnvSet, statelog.Args{"key": "FROM", "value": "lines"})
		require.NoError(t, s.AppendEntry(ctx, "k1", line))

		assert.Equal(t, []statelog.Entry{line}, loadEntries(t, s, "k1"))
	})
}

func TestStoreLoadMissing(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s Store, _ func() Store) {
		ctx := context.Background()
		data, ok, err := s.LoadLog(ctx, "nope")
		require.NoError(t, err)
		assert.False(t, ok)
		assert.Empty(t, data)

		blob, ok, err := s.LoadBlob(ctx, BlobRef([]byte("never stored")))
		require.NoError(t, err)
		assert.False(t, ok)
		assert.Nil(t, blob)
	})
}

func TestStoreDeleteLog(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s Store, _ func() Store) {
		ctx := context.Background()
		require.NoError(t, s.SaveLog(ctx, "k", "[]"))
		require.NoError(t, s.AppendEntry(ctx, "k", statelog.NewEntry(statelog.OpStorageClear, nil)))
		require.NoError(t, s.AppendEntry(ctx, "other", statelog.NewEntry(statelog.OpStorageClear, nil)))

		require.NoError(t, s.DeleteLog(ctx, "k"))
		_, ok, err := s.LoadLog(ctx, "k")
		require.NoError(t, err)
		assert.False(t, ok, "both forms removed")

		require.NoError(t, s.DeleteLog(ctx, "k"), "delete is idempotent")
		require.NoError(t, s.DeleteLog(ctx, "never-existed"))

		_, ok, err = s.LoadLog(ctx, "other")
		require.NoError(t, err)
		assert.True(t, ok)
	})
}

func TestStoreListLogs(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s Store, _ func() Store) {
		ctx := context.Background()
		keys, err := s.ListLogs(ctx)
		require.NoError(t, err)
		assert.Empty(t, keys)

		require.NoError(t, s.SaveLog(ctx, "b-bulk", "[]"))
		require.NoError(t, s.AppendEntry(ctx, "a-lines", statelog.NewEntry(statelog.OpStorageClear, nil)))
		require.NoError(t, s.SaveLog(ctx, "c-both", "[]"))
		require.NoError(t, s.AppendEntry(ctx, "c-both", statelog.NewEntry(statelog.OpStorageClear, nil)))

		keys, err = s.ListLogs(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"a-lines", "b-bulk", "c-both"}, keys)
	})
}

func TestStoreBlobs(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s Store, reopen func() Store) {
		ctx := context.Background()
		data := []byte("\x89PNG\r\n\x1a\n binary \x00 payload")
		ref := BlobRef(data)

		require.NoError(t, s.SaveBlob(ctx, ref, data))
		require.NoError(t, s.SaveBlob(ctx, ref, data), "saving the same ref twice is a no-op")

		got, ok, err := reopen().LoadBlob(ctx, ref)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, data, got)

		require.NoError(t, s.DeleteBlob(ctx, ref))
		require.NoError(t, s.DeleteBlob(ctx, ref))
		_, ok, err = s.LoadBlob(ctx, ref)
		require.NoError(t, err)
		assert.False(t, ok)
	})
}

func TestStoreRejectsInvalidKeys(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s Store, _ func() Store) {
		ctx := context.Background()
		for _, key := range []string{"", "..", "../escape", "a/b", ".hidden", "sp ace"} {
			err := s.SaveLog(ctx, key, "[]")
			assert.ErrorIs(t, err, ErrInvalidKey, "key %q", key)
			_, _, err = s.LoadLog(ctx, key)
			assert.ErrorIs(t, err, ErrInvalidKey, "key %q", key)
		}
		assert.ErrorIs(t, s.SaveBlob(ctx, "not-a-ref", []byte("x")), ErrInvalidKey)
		_, _, err := s.LoadBlob(ctx, "sha256-XYZ")
		assert.ErrorIs(t, err, ErrInvalidKey)
	})
}

func TestStoreConcurrentSessions(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s Store, _ func() Store) {
		ctx := context.Background()
		const sessions, perSession = 4, 20
		var wg sync.WaitGroup
		errs := make(chan error, sessions)
		for i := range sessions {
			wg.Add(1)
			go func() {
				defer wg.Done()
				key := fmt.Sprintf("session-%d", i)
				for j := range perSession {
					e := statelog.NewEntry(statelog.OpEnvSet, statelog.Args{"key": "N", "value": fmt.Sprint(j)})
					if err := s.AppendEntry(ctx, key, e); err != nil {
						errs <- err
						return
					}
				}
			}()
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			require.NoError(t, err)
		}

		for i := range sessions {
			entries := loadEntries(t, s, fmt.Sprintf("session-%d", i))
			require.Len(t, entries, perSession)
			for j, e := range entries {
				assert.Equal(t, fmt.Sprint(j), e.Args["value"])
			}
		}
	})
}

func TestIOErrorIsStateError(t *testing.T) {
	err := ioError("load log", "k", errors.New("disk on fire"))
	assert.ErrorIs(t, err, statelog.ErrState)
	assert.Contains(t, err.Error(), "store load log k: disk on fire")
}
