package store

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/roach88/sandboxx/internal/config"
	"github.com/roach88/sandboxx/internal/statelog"
)

// RedisStore keeps each line-form log in a list, each bulk log and blob in
// a string. Keys are namespaced by a configurable prefix:
//
//	<prefix>log:<key>    list of encoded entries
//	<prefix>bulk:<key>   bulk JSON array
//	<prefix>blob:<ref>   raw blob content
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore connects to cfg.Addr and pings it.
func NewRedisStore(ctx context.Context, cfg config.Redis) (*RedisStore, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("redis addr cannot be empty")
	}
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	return NewRedisStoreWithClient(client, cfg.Prefix)
}

// NewRedisStoreWithClient wraps an existing client. The store takes
// ownership and closes it on Close.
func NewRedisStoreWithClient(client *redis.Client, prefix string) (*RedisStore, error) {
	if client == nil {
		return nil, fmt.Errorf("client cannot be nil")
	}
	return &RedisStore{client: client, prefix: prefix}, nil
}

func (s *RedisStore) lineKey(key string) string { return s.prefix + "log:" + key }
func (s *RedisStore) bulkKey(key string) string { return s.prefix + "bulk:" + key }
func (s *RedisStore) blobKey(ref string) string { return s.prefix + "blob:" + ref }

func (s *RedisStore) SaveLog(ctx context.Context, key, data string) error {
	if err := validateKey(key); err != nil {
		return err
	}
	if err := s.client.Set(ctx, s.bulkKey(key), data, 0).Err(); err != nil {
		return ioError("save log", key, err)
	}
	return nil
}

// AppendEntry pushes one encoded entry. RPUSH is atomic, so concurrent
// appenders to different keys never interleave within an entry.
func (s *RedisStore) AppendEntry(ctx context.Context, sessionID string, entry statelog.Entry) error {
	if err := validateKey(sessionID); err != nil {
		return err
	}
	line, err := statelog.EncodeEntry(entry)
	if err != nil {
		return ioError("append entry", sessionID, err)
	}
	if err := s.client.RPush(ctx, s.lineKey(sessionID), line).Err(); err != nil {
		return ioError("append entry", sessionID, err)
	}
	return nil
}

func (s *RedisStore) LoadLog(ctx context.Context, key string) (string, bool, error) {
	if err := validateKey(key); err != nil {
		return "", false, err
	}
	lines, err := s.client.LRange(ctx, s.lineKey(key), 0, -1).Result()
	if err != nil {
		return "", false, ioError("load log", key, err)
	}
	if len(lines) > 0 {
		entries := make([]statelog.Entry, 0, len(lines))
		for i, line := range lines {
			e, err := statelog.DecodeEntry([]byte(line))
			if err != nil {
				return "", false, ioError("load log", key, fmt.Errorf("line %d: %w", i+1, err))
			}
			entries = append(entries, e)
		}
		data, err := entriesToJSON("load log", key, entries)
		if err != nil {
			return "", false, err
		}
		return data, true, nil
	}

	data, err := s.client.Get(ctx, s.bulkKey(key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, ioError("load log", key, err)
	}
	return data, true, nil
}

func (s *RedisStore) DeleteLog(ctx context.Context, key string) error {
	if err := validateKey(key); err != nil {
		return err
	}
	if err := s.client.Del(ctx, s.lineKey(key), s.bulkKey(key)).Err(); err != nil {
		return ioError("delete log", key, err)
	}
	return nil
}

// ListLogs scans both key families. SCAN may return a key more than once,
// so results are deduplicated.
func (s *RedisStore) ListLogs(ctx context.Context) ([]string, error) {
	keys := []string{}
	for _, family := range []string{s.prefix + "log:", s.prefix + "bulk:"} {
		iter := s.client.Scan(ctx, 0, family+"*", 100).Iterator()
		for iter.Next(ctx) {
			key := strings.TrimPrefix(iter.Val(), family)
			if !slices.Contains(keys, key) {
				keys = append(keys, key)
			}
		}
		if err := iter.Err(); err != nil {
			return nil, ioError("list logs", family, err)
		}
	}
	slices.Sort(keys)
	return keys, nil
}

// SaveBlob uses SETNX: an existing ref already holds this content.
func (s *RedisStore) SaveBlob(ctx context.Context, ref string, data []byte) error {
	if err := validateRef(ref); err != nil {
		return err
	}
	if err := s.client.SetNX(ctx, s.blobKey(ref), data, 0).Err(); err != nil {
		return ioError("save blob", ref, err)
	}
	return nil
}

func (s *RedisStore) LoadBlob(ctx context.Context, ref string) ([]byte, bool, error) {
	if err := validateRef(ref); err != nil {
		return nil, false, err
	}
	data, err := s.client.Get(ctx, s.blobKey(ref)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, ioError("load blob", ref, err)
	}
	return data, true, nil
}

func (s *RedisStore) DeleteBlob(ctx context.Context, ref string) error {
	if err := validateRef(ref); err != nil {
		return err
	}
	if err := s.client.Del(ctx, s.blobKey(ref)).Err(); err != nil {
		return ioError("delete blob", ref, err)
	}
	return nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

var _ Store = (*RedisStore)(nil)
