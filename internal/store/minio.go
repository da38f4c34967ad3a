package store

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"slices"
	"strings"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/roach88/sandboxx/internal/config"
	"github.com/roach88/sandboxx/internal/statelog"
)

// MinIOStore keeps logs and blobs in an S3-compatible bucket:
//
//	logs/<key>/entries/<uuidv7>.json   one object per appended entry
//	logs/<key>/bulk.json               bulk form
//	blobs/<ref>                        raw blob content
//
// Object storage has no append, so each entry is its own object. UUIDv7
// names sort lexically in creation order, and ListObjects returns keys in
// lexical order, which makes listing the entries prefix a replay of the
// appends.
type MinIOStore struct {
	core   *minio.Core
	bucket string
	newID  func() string
}

// NewMinIOStore connects to cfg.Endpoint and creates the bucket if missing.
func NewMinIOStore(ctx context.Context, cfg config.MinIO) (*MinIOStore, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("minio endpoint is required")
	}
	if cfg.AccessKey == "" {
		return nil, fmt.Errorf("minio accessKey is required")
	}
	if cfg.SecretKey == "" {
		return nil, fmt.Errorf("minio secretKey is required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("minio bucket is required")
	}
	core, err := minio.NewCore(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio core failed: %w", err)
	}

	exists, err := core.Client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("minio bucket exists failed: %w", err)
	}
	if !exists {
		if err := core.Client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("minio make bucket failed: %w", err)
		}
	}

	return &MinIOStore{
		core:   core,
		bucket: cfg.Bucket,
		newID:  func() string { return uuid.Must(uuid.NewV7()).String() },
	}, nil
}

func logPrefix(key string) string   { return "logs/" + key + "/" }
func entryPrefix(key string) string { return logPrefix(key) + "entries/" }
func bulkObject(key string) string  { return logPrefix(key) + "bulk.json" }
func blobObject(ref string) string  { return "blobs/" + ref }

func (s *MinIOStore) put(ctx context.Context, name string, data []byte, contentType string) error {
	_, err := s.core.PutObject(ctx, s.bucket, name, bytes.NewReader(data), int64(len(data)), "", "",
		minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return fmt.Errorf("minio put object failed: %w", err)
	}
	return nil
}

// get returns the object content, or false when it does not exist.
func (s *MinIOStore) get(ctx context.Context, name string) ([]byte, bool, error) {
	obj, _, _, err := s.core.GetObject(ctx, s.bucket, name, minio.GetObjectOptions{})
	if err != nil {
		if isNotFound(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("minio get object failed: %w", err)
	}
	defer obj.Close()
	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, false, fmt.Errorf("minio read object failed: %w", err)
	}
	return data, true, nil
}

func (s *MinIOStore) list(ctx context.Context, prefix string, recursive bool) ([]string, error) {
	var names []string
	for obj := range s.core.Client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: recursive,
	}) {
		if obj.Err != nil {
			return nil, fmt.Errorf("minio list objects failed: %w", obj.Err)
		}
		names = append(names, obj.Key)
	}
	return names, nil
}

func (s *MinIOStore) remove(ctx context.Context, name string) error {
	if err := s.core.Client.RemoveObject(ctx, s.bucket, name, minio.RemoveObjectOptions{}); err != nil {
		if isNotFound(err) {
			return nil
		}
		return fmt.Errorf("minio remove object failed: %w", err)
	}
	return nil
}

func isNotFound(err error) bool {
	resp := minio.ToErrorResponse(err)
	return resp.Code == "NoSuchKey" || resp.StatusCode == http.StatusNotFound
}

func (s *MinIOStore) SaveLog(ctx context.Context, key, data string) error {
	if err := validateKey(key); err != nil {
		return err
	}
	if err := s.put(ctx, bulkObject(key), []byte(data), "application/json"); err != nil {
		return ioError("save log", key, err)
	}
	return nil
}

func (s *MinIOStore) AppendEntry(ctx context.Context, sessionID string, entry statelog.Entry) error {
	if err := validateKey(sessionID); err != nil {
		return err
	}
	line, err := statelog.EncodeEntry(entry)
	if err != nil {
		return ioError("append entry", sessionID, err)
	}
	name := entryPrefix(sessionID) + s.newID() + ".json"
	if err := s.put(ctx, name, line, "application/json"); err != nil {
		return ioError("append entry", sessionID, err)
	}
	return nil
}

func (s *MinIOStore) LoadLog(ctx context.Context, key string) (string, bool, error) {
	if err := validateKey(key); err != nil {
		return "", false, err
	}
	names, err := s.list(ctx, entryPrefix(key), true)
	if err != nil {
		return "", false, ioError("load log", key, err)
	}
	if len(names) > 0 {
		slices.Sort(names)
		entries := make([]statelog.Entry, 0, len(names))
		for _, name := range names {
			line, ok, err := s.get(ctx, name)
			if err != nil {
				return "", false, ioError("load log", key, err)
			}
			if !ok {
				continue
			}
			e, err := statelog.DecodeEntry(line)
			if err != nil {
				return "", false, ioError("load log", key, fmt.Errorf("%s: %w", name, err))
			}
			entries = append(entries, e)
		}
		data, err := entriesToJSON("load log", key, entries)
		if err != nil {
			return "", false, err
		}
		return data, true, nil
	}

	data, ok, err := s.get(ctx, bulkObject(key))
	if err != nil {
		return "", false, ioError("load log", key, err)
	}
	return string(data), ok, nil
}

func (s *MinIOStore) DeleteLog(ctx context.Context, key string) error {
	if err := validateKey(key); err != nil {
		return err
	}
	names, err := s.list(ctx, logPrefix(key), true)
	if err != nil {
		return ioError("delete log", key, err)
	}
	for _, name := range names {
		if err := s.remove(ctx, name); err != nil {
			return ioError("delete log", key, err)
		}
	}
	return nil
}

// ListLogs lists the top-level prefixes under logs/.
func (s *MinIOStore) ListLogs(ctx context.Context) ([]string, error) {
	names, err := s.list(ctx, "logs/", false)
	if err != nil {
		return nil, ioError("list logs", s.bucket, err)
	}
	keys := []string{}
	for _, name := range names {
		key := strings.TrimSuffix(strings.TrimPrefix(name, "logs/"), "/")
		if key != "" && !slices.Contains(keys, key) {
			keys = append(keys, key)
		}
	}
	slices.Sort(keys)
	return keys, nil
}

func (s *MinIOStore) SaveBlob(ctx context.Context, ref string, data []byte) error {
	if err := validateRef(ref); err != nil {
		return err
	}
	if _, err := s.core.StatObject(ctx, s.bucket, blobObject(ref), minio.StatObjectOptions{}); err == nil {
		return nil
	}
	if err := s.put(ctx, blobObject(ref), data, "application/octet-stream"); err != nil {
		return ioError("save blob", ref, err)
	}
	return nil
}

func (s *MinIOStore) LoadBlob(ctx context.Context, ref string) ([]byte, bool, error) {
	if err := validateRef(ref); err != nil {
		return nil, false, err
	}
	data, ok, err := s.get(ctx, blobObject(ref))
	if err != nil {
		return nil, false, ioError("load blob", ref, err)
	}
	return data, ok, nil
}

func (s *MinIOStore) DeleteBlob(ctx context.Context, ref string) error {
	if err := validateRef(ref); err != nil {
		return err
	}
	if err := s.remove(ctx, blobObject(ref)); err != nil {
		return ioError("delete blob", ref, err)
	}
	return nil
}

// Close is a no-op; the minio client holds no persistent connection.
func (s *MinIOStore) Close() error { return nil }

var _ Store = (*MinIOStore)(nil)
