package store

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/roach88/sandboxx/internal/config"
)

// Open returns the backend named by cfg.Backend. An empty name selects the
// file backend.
func Open(ctx context.Context, cfg config.Store) (Store, error) {
	var (
		s   Store
		err error
	)
	switch cfg.Backend {
	case config.BackendMemory:
		s = NewMemoryStore()
	case "", config.BackendFile:
		s, err = NewFileStore(cfg.Dir)
	case config.BackendSQLite:
		s, err = OpenSQLite(cfg.SQLite.Path)
	case config.BackendRedis:
		s, err = NewRedisStore(ctx, cfg.Redis)
	case config.BackendMinIO:
		s, err = NewMinIOStore(ctx, cfg.MinIO)
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", cfg.Backend, err)
	}
	slog.Debug("state store opened", "backend", cfg.Backend)
	return s, nil
}
