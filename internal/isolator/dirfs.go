package isolator

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path"
	"path/filepath"

	"github.com/roach88/sandboxx/internal/state"
)

// DirFS is a state.FileSystem rooted at a host directory. Sandbox paths
// are resolved against the root; "/a/../../b" resolves to root/b, never
// outside it.
type DirFS struct {
	root string
}

func NewDirFS(root string) *DirFS {
	return &DirFS{root: root}
}

func (d *DirFS) resolve(p string) string {
	return filepath.Join(d.root, filepath.FromSlash(path.Clean("/"+p)))
}

func (d *DirFS) Read(_ context.Context, p string) (string, error) {
	data, err := os.ReadFile(d.resolve(p))
	if err != nil {
		return "", &state.FileSystemError{Op: "read", Path: p, Err: err}
	}
	return string(data), nil
}

func (d *DirFS) Write(_ context.Context, p, data string) error {
	return d.put("write", p, []byte(data))
}

func (d *DirFS) put(op, p string, data []byte) error {
	full := d.resolve(p)
	if full == d.root {
		return &state.FileSystemError{Op: op, Path: p, Err: fs.ErrInvalid}
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return &state.FileSystemError{Op: op, Path: p, Err: err}
	}
	if err := os.WriteFile(full, data, 0o644); err != nil {
		return &state.FileSystemError{Op: op, Path: p, Err: err}
	}
	return nil
}

// List returns directory entry names in lexical order. A missing directory
// yields an empty list.
func (d *DirFS) List(_ context.Context, dir string) ([]string, error) {
	entries, err := os.ReadDir(d.resolve(dir))
	if errors.Is(err, fs.ErrNotExist) {
		return []string{}, nil
	}
	if err != nil {
		return nil, &state.FileSystemError{Op: "list", Path: dir, Err: err}
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names, nil
}

func (d *DirFS) Exists(_ context.Context, p string) (bool, error) {
	_, err := os.Stat(d.resolve(p))
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, &state.FileSystemError{Op: "exists", Path: p, Err: err}
	}
	return true, nil
}

// Delete removes a file or directory tree. Missing paths are not an error.
func (d *DirFS) Delete(_ context.Context, p string) error {
	full := d.resolve(p)
	if full == d.root {
		return &state.FileSystemError{Op: "delete", Path: p, Err: fs.ErrInvalid}
	}
	if err := os.RemoveAll(full); err != nil {
		return &state.FileSystemError{Op: "delete", Path: p, Err: err}
	}
	return nil
}

func (d *DirFS) Upload(_ context.Context, data []byte, remotePath string) error {
	return d.put("upload", remotePath, data)
}

func (d *DirFS) Download(_ context.Context, remotePath string) ([]byte, error) {
	data, err := os.ReadFile(d.resolve(remotePath))
	if err != nil {
		return nil, &state.FileSystemError{Op: "download", Path: remotePath, Err: err}
	}
	return data, nil
}

var (
	_ state.FileSystem = (*DirFS)(nil)
	_ state.Transfer   = (*DirFS)(nil)
)
