package testutil

import (
	"context"
	"errors"
	"sync"

	"github.com/roach88/sandboxx/internal/state"
)

// ErrInjected is returned by FailingFS for every failing call.
var ErrInjected = errors.New("injected failure")

// FailingFS wraps a filesystem and fails the mutations whose path is in
// FailPaths, or every mutation when FailAll is set. Reads pass through.
type FailingFS struct {
	state.FileSystem

	mu        sync.Mutex
	FailAll   bool
	FailPaths map[string]bool
}

func NewFailingFS(inner state.FileSystem, paths ...string) *FailingFS {
	f := &FailingFS{FileSystem: inner, FailPaths: make(map[string]bool)}
	for _, p := range paths {
		f.FailPaths[p] = true
	}
	return f
}

func (f *FailingFS) shouldFail(p string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.FailAll || f.FailPaths[p]
}

// SetFailAll switches failure of every mutation on or off.
func (f *FailingFS) SetFailAll(v bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.FailAll = v
}

func (f *FailingFS) Write(ctx context.Context, p, data string) error {
	if f.shouldFail(p) {
		return ErrInjected
	}
	return f.FileSystem.Write(ctx, p, data)
}

func (f *FailingFS) Delete(ctx context.Context, p string) error {
	if f.shouldFail(p) {
		return ErrInjected
	}
	return f.FileSystem.Delete(ctx, p)
}
