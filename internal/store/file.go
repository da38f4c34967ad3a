package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/klauspost/compress/zstd"

	"github.com/roach88/sandboxx/internal/statelog"
)

const (
	logsDir  = "state-logs"
	blobsDir = "blobs"

	lineExt = ".jsonl"
	bulkExt = ".json"
)

// FileStore keeps logs and blobs under a base directory:
//
//	<base>/state-logs/<key>.jsonl   append-only line form
//	<base>/state-logs/<key>.json    bulk form
//	<base>/blobs/<ref>              zstd-compressed blob content
type FileStore struct {
	base string
	enc  *zstd.Encoder
	dec  *zstd.Decoder
}

// NewFileStore creates the directory layout under base if needed.
func NewFileStore(base string) (*FileStore, error) {
	if base == "" {
		return nil, fmt.Errorf("file store: base directory is required")
	}
	for _, dir := range []string{filepath.Join(base, logsDir), filepath.Join(base, blobsDir)} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, ioError("init", dir, err)
		}
	}
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, fmt.Errorf("create zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		enc.Close()
		return nil, fmt.Errorf("create zstd decoder: %w", err)
	}
	return &FileStore{base: base, enc: enc, dec: dec}, nil
}

// Base returns the root directory.
func (s *FileStore) Base() string {
	return s.base
}

func (s *FileStore) linePath(key string) string {
	return filepath.Join(s.base, logsDir, key+lineExt)
}

func (s *FileStore) bulkPath(key string) string {
	return filepath.Join(s.base, logsDir, key+bulkExt)
}

func (s *FileStore) blobPath(ref string) string {
	return filepath.Join(s.base, blobsDir, ref)
}

func (s *FileStore) SaveLog(_ context.Context, key, data string) error {
	if err := validateKey(key); err != nil {
		return err
	}
	if err := writeFileAtomic(s.bulkPath(key), []byte(data)); err != nil {
		return ioError("save log", key, err)
	}
	return nil
}

// AppendEntry writes the entry and its newline in a single write to a file
// opened with O_APPEND, then syncs. Earlier lines are never touched.
func (s *FileStore) AppendEntry(_ context.Context, sessionID string, entry statelog.Entry) error {
	if err := validateKey(sessionID); err != nil {
		return err
	}
	line, err := statelog.EncodeEntry(entry)
	if err != nil {
		return ioError("append entry", sessionID, err)
	}
	line = append(line, '\n')

	f, err := os.OpenFile(s.linePath(sessionID), os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0o644)
	if err != nil {
		return ioError("append entry", sessionID, err)
	}
	if _, err := f.Write(line); err != nil {
		f.Close()
		return ioError("append entry", sessionID, err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return ioError("append entry", sessionID, err)
	}
	if err := f.Close(); err != nil {
		return ioError("append entry", sessionID, err)
	}
	return nil
}

func (s *FileStore) LoadLog(_ context.Context, key string) (string, bool, error) {
	if err := validateKey(key); err != nil {
		return "", false, err
	}
	f, err := os.Open(s.linePath(key))
	switch {
	case err == nil:
		defer f.Close()
		data, err := statelog.LinesToJSON(f)
		if err != nil {
			return "", false, ioError("load log", key, err)
		}
		return data, true, nil
	case !errors.Is(err, fs.ErrNotExist):
		return "", false, ioError("load log", key, err)
	}

	data, err := os.ReadFile(s.bulkPath(key))
	if errors.Is(err, fs.ErrNotExist) {
		return "", false, nil
	}
	if err != nil {
		return "", false, ioError("load log", key, err)
	}
	return string(data), true, nil
}

func (s *FileStore) DeleteLog(_ context.Context, key string) error {
	if err := validateKey(key); err != nil {
		return err
	}
	for _, p := range []string{s.linePath(key), s.bulkPath(key)} {
		if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return ioError("delete log", key, err)
		}
	}
	return nil
}

func (s *FileStore) ListLogs(context.Context) ([]string, error) {
	dirEntries, err := os.ReadDir(filepath.Join(s.base, logsDir))
	if errors.Is(err, fs.ErrNotExist) {
		return []string{}, nil
	}
	if err != nil {
		return nil, ioError("list logs", s.base, err)
	}
	keys := []string{}
	for _, de := range dirEntries {
		name := de.Name()
		if de.IsDir() || strings.HasPrefix(name, ".") {
			continue
		}
		key, ok := strings.CutSuffix(name, lineExt)
		if !ok {
			key, ok = strings.CutSuffix(name, bulkExt)
		}
		if ok && !slices.Contains(keys, key) {
			keys = append(keys, key)
		}
	}
	slices.Sort(keys)
	return keys, nil
}

func (s *FileStore) SaveBlob(_ context.Context, ref string, data []byte) error {
	if err := validateRef(ref); err != nil {
		return err
	}
	p := s.blobPath(ref)
	if _, err := os.Stat(p); err == nil {
		return nil
	}
	compressed := s.enc.EncodeAll(data, nil)
	if err := writeFileAtomic(p, compressed); err != nil {
		return ioError("save blob", ref, err)
	}
	return nil
}

func (s *FileStore) LoadBlob(_ context.Context, ref string) ([]byte, bool, error) {
	if err := validateRef(ref); err != nil {
		return nil, false, err
	}
	compressed, err := os.ReadFile(s.blobPath(ref))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, ioError("load blob", ref, err)
	}
	data, err := s.dec.DecodeAll(compressed, nil)
	if err != nil {
		return nil, false, ioError("load blob", ref, fmt.Errorf("decompress: %w", err))
	}
	return data, true, nil
}

func (s *FileStore) DeleteBlob(_ context.Context, ref string) error {
	if err := validateRef(ref); err != nil {
		return err
	}
	if err := os.Remove(s.blobPath(ref)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return ioError("delete blob", ref, err)
	}
	return nil
}

func (s *FileStore) Close() error {
	s.dec.Close()
	return s.enc.Close()
}

// writeFileAtomic writes data to a temp file in the target directory and
// renames it into place, so readers see the old or the new content, never
// a torn write.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	cleanup := func() {
		tmp.Close()
		os.Remove(tmpName)
	}
	if _, err := tmp.Write(data); err != nil {
		cleanup()
		return err
	}
	if err := tmp.Sync(); err != nil {
		cleanup()
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}

var _ Store = (*FileStore)(nil)
