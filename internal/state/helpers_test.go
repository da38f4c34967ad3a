package state

import (
	"context"
	"errors"
	"sync"

	"github.com/roach88/sandboxx/internal/statelog"
)

var errBoom = errors.New("boom")

// failingFS fails every mutation and answers reads from an embedded MemoryFS.
type failingFS struct {
	*MemoryFS
}

func (f failingFS) Write(context.Context, string, string) error { return errBoom }
func (f failingFS) Delete(context.Context, string) error        { return errBoom }

// memBlobs is a minimal BlobStore for tests.
type memBlobs struct {
	mu    sync.Mutex
	blobs map[string][]byte
	fail  bool
}

func newMemBlobs() *memBlobs {
	return &memBlobs{blobs: make(map[string][]byte)}
}

func (b *memBlobs) SaveBlob(_ context.Context, ref string, data []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.fail {
		return errBoom
	}
	b.blobs[ref] = append([]byte(nil), data...)
	return nil
}

func (b *memBlobs) LoadBlob(_ context.Context, ref string) ([]byte, bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	data, ok := b.blobs[ref]
	return data, ok, nil
}

// captureSink collects appended entries.
type captureSink struct {
	mu      sync.Mutex
	entries []statelog.Entry
	err     error
}

func (s *captureSink) Append(_ context.Context, e statelog.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.entries = append(s.entries, e)
	return nil
}

func newTarget() (Target, *MemoryFS) {
	m := NewMemoryFS()
	return Target{
		FS:       m,
		Env:      NewMemoryEnv(nil),
		Storage:  NewMemoryStorage(),
		Transfer: m,
		Blobs:    newMemBlobs(),
	}, m
}
