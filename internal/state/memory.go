package state

import (
	"context"
	"fmt"
	"io/fs"
	"maps"
	"path"
	"slices"
	"strings"
	"sync"
)

// MemoryEnv is an in-memory Environment.
type MemoryEnv struct {
	mu   sync.RWMutex
	vars map[string]string
}

// NewMemoryEnv returns an environment seeded with a copy of initial.
func NewMemoryEnv(initial map[string]string) *MemoryEnv {
	vars := maps.Clone(initial)
	if vars == nil {
		vars = make(map[string]string)
	}
	return &MemoryEnv{vars: vars}
}

func (e *MemoryEnv) Get(key string) (string, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	v, ok := e.vars[key]
	return v, ok
}

func (e *MemoryEnv) Set(key, value string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.vars[key] = value
	return nil
}

func (e *MemoryEnv) Has(key string) bool {
	_, ok := e.Get(key)
	return ok
}

func (e *MemoryEnv) Delete(key string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.vars, key)
	return nil
}

// Keys returns the variable names in sorted order.
func (e *MemoryEnv) Keys() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return slices.Sorted(maps.Keys(e.vars))
}

func (e *MemoryEnv) All() map[string]string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return maps.Clone(e.vars)
}

// MemoryStorage is an in-memory Storage.
type MemoryStorage struct {
	mu   sync.RWMutex
	data map[string]string
}

// NewMemoryStorage returns an empty storage.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{data: make(map[string]string)}
}

func (s *MemoryStorage) GetItem(key string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.data[key]
	return v, ok
}

func (s *MemoryStorage) SetItem(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = value
	return nil
}

func (s *MemoryStorage) RemoveItem(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, key)
	return nil
}

func (s *MemoryStorage) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	clear(s.data)
	return nil
}

// Keys returns the item keys in sorted order.
func (s *MemoryStorage) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Sorted(maps.Keys(s.data))
}

// MemoryFS is an in-memory FileSystem and Transfer. Paths are cleaned, so
// "a/b" and "/a/b" name the same file. Directories exist implicitly while
// they contain a file.
type MemoryFS struct {
	mu    sync.RWMutex
	files map[string][]byte
}

// NewMemoryFS returns an empty filesystem.
func NewMemoryFS() *MemoryFS {
	return &MemoryFS{files: make(map[string][]byte)}
}

func cleanPath(p string) string {
	return path.Clean("/" + p)
}

func (m *MemoryFS) Read(_ context.Context, p string) (string, error) {
	data, err := m.read(p)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func (m *MemoryFS) read(p string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.files[cleanPath(p)]
	if !ok {
		return nil, &FileSystemError{Op: "read", Path: p, Err: fs.ErrNotExist}
	}
	return slices.Clone(data), nil
}

func (m *MemoryFS) Write(_ context.Context, p, data string) error {
	return m.put(p, []byte(data))
}

func (m *MemoryFS) put(p string, data []byte) error {
	cp := cleanPath(p)
	if cp == "/" {
		return &FileSystemError{Op: "write", Path: p, Err: fs.ErrInvalid}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.isDirLocked(cp) {
		return &FileSystemError{Op: "write", Path: p, Err: fmt.Errorf("is a directory")}
	}
	m.files[cp] = slices.Clone(data)
	return nil
}

// List returns the names of the direct children of dir, sorted. A missing
// directory yields an empty list.
func (m *MemoryFS) List(_ context.Context, dir string) ([]string, error) {
	prefix := cleanPath(dir)
	if prefix != "/" {
		prefix += "/"
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	seen := make(map[string]struct{})
	for p := range m.files {
		rest, ok := strings.CutPrefix(p, prefix)
		if !ok || rest == "" {
			continue
		}
		name, _, _ := strings.Cut(rest, "/")
		seen[name] = struct{}{}
	}
	return slices.Sorted(maps.Keys(seen)), nil
}

func (m *MemoryFS) Exists(_ context.Context, p string) (bool, error) {
	cp := cleanPath(p)
	m.mu.RLock()
	defer m.mu.RUnlock()
	if _, ok := m.files[cp]; ok {
		return true, nil
	}
	return m.isDirLocked(cp), nil
}

// Delete removes a file or a directory tree. Deleting a missing path is
// not an error.
func (m *MemoryFS) Delete(_ context.Context, p string) error {
	cp := cleanPath(p)
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.files, cp)
	prefix := cp + "/"
	if cp == "/" {
		prefix = "/"
	}
	for f := range m.files {
		if strings.HasPrefix(f, prefix) {
			delete(m.files, f)
		}
	}
	return nil
}

func (m *MemoryFS) Upload(_ context.Context, data []byte, remotePath string) error {
	return m.put(remotePath, data)
}

func (m *MemoryFS) Download(_ context.Context, remotePath string) ([]byte, error) {
	return m.read(remotePath)
}

// Snapshot returns every file keyed by cleaned path.
func (m *MemoryFS) Snapshot() map[string]string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]string, len(m.files))
	for p, data := range m.files {
		out[p] = string(data)
	}
	return out
}

func (m *MemoryFS) isDirLocked(cp string) bool {
	prefix := cp + "/"
	if cp == "/" {
		return true
	}
	for f := range m.files {
		if strings.HasPrefix(f, prefix) {
			return true
		}
	}
	return false
}
