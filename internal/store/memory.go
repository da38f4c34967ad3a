package store

import (
	"context"
	"maps"
	"slices"
	"sync"

	"github.com/roach88/sandboxx/internal/statelog"
)

// MemoryStore keeps everything in maps. Nothing touches disk.
type MemoryStore struct {
	mu    sync.RWMutex
	bulk  map[string]string
	lines map[string][]statelog.Entry
	blobs map[string][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		bulk:  make(map[string]string),
		lines: make(map[string][]statelog.Entry),
		blobs: make(map[string][]byte),
	}
}

func (s *MemoryStore) SaveLog(_ context.Context, key, data string) error {
	if err := validateKey(key); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bulk[key] = data
	return nil
}

func (s *MemoryStore) AppendEntry(_ context.Context, sessionID string, entry statelog.Entry) error {
	if err := validateKey(sessionID); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lines[sessionID] = append(s.lines[sessionID], entry.Clone())
	return nil
}

func (s *MemoryStore) LoadLog(_ context.Context, key string) (string, bool, error) {
	if err := validateKey(key); err != nil {
		return "", false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if entries, ok := s.lines[key]; ok {
		data, err := entriesToJSON("load log", key, entries)
		if err != nil {
			return "", false, err
		}
		return data, true, nil
	}
	data, ok := s.bulk[key]
	return data, ok, nil
}

func (s *MemoryStore) DeleteLog(_ context.Context, key string) error {
	if err := validateKey(key); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.lines, key)
	delete(s.bulk, key)
	return nil
}

func (s *MemoryStore) ListLogs(context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := slices.Collect(maps.Keys(s.bulk))
	for k := range s.lines {
		if _, ok := s.bulk[k]; !ok {
			keys = append(keys, k)
		}
	}
	slices.Sort(keys)
	return keys, nil
}

func (s *MemoryStore) SaveBlob(_ context.Context, ref string, data []byte) error {
	if err := validateRef(ref); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.blobs[ref]; !ok {
		s.blobs[ref] = slices.Clone(data)
	}
	return nil
}

func (s *MemoryStore) LoadBlob(_ context.Context, ref string) ([]byte, bool, error) {
	if err := validateRef(ref); err != nil {
		return nil, false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.blobs[ref]
	if !ok {
		return nil, false, nil
	}
	return slices.Clone(data), true, nil
}

func (s *MemoryStore) DeleteBlob(_ context.Context, ref string) error {
	if err := validateRef(ref); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.blobs, ref)
	return nil
}

func (s *MemoryStore) Close() error { return nil }

var _ Store = (*MemoryStore)(nil)
