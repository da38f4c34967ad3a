package testutil

import (
	"context"
	"maps"
	"sync"

	"github.com/roach88/sandboxx/internal/isolator"
	"github.com/roach88/sandboxx/internal/state"
)

// FakeIsolator is an in-memory isolator. Its filesystem is a MemoryFS and
// its shell records commands and answers from Results.
type FakeIsolator struct {
	FS *state.MemoryFS

	// Results maps a script to its result. Unknown scripts succeed with
	// empty output.
	Results map[string]state.ShellResult

	// FileSystemOverride replaces FS as the filesystem handed to sessions,
	// e.g. with a FailingFS.
	FileSystemOverride state.FileSystem

	mu        sync.Mutex
	commands  []isolator.Command
	destroyed bool
}

func NewFakeIsolator() *FakeIsolator {
	return &FakeIsolator{FS: state.NewMemoryFS(), Results: make(map[string]state.ShellResult)}
}

func (f *FakeIsolator) Exec(_ context.Context, cmd isolator.Command) (state.ShellResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.commands = append(f.commands, isolator.Command{Script: cmd.Script, Env: maps.Clone(cmd.Env)})
	if res, ok := f.Results[cmd.Script]; ok {
		return res, nil
	}
	return state.ShellResult{Success: true}, nil
}

func (f *FakeIsolator) FileSystem() state.FileSystem {
	if f.FileSystemOverride != nil {
		return f.FileSystemOverride
	}
	return f.FS
}

func (f *FakeIsolator) Upload(ctx context.Context, data []byte, remotePath string) error {
	return f.FS.Upload(ctx, data, remotePath)
}

func (f *FakeIsolator) Download(ctx context.Context, remotePath string) ([]byte, error) {
	return f.FS.Download(ctx, remotePath)
}

func (f *FakeIsolator) Destroy(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.destroyed = true
	return nil
}

// Commands returns the executed commands in order.
func (f *FakeIsolator) Commands() []isolator.Command {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]isolator.Command(nil), f.commands...)
}

func (f *FakeIsolator) Destroyed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.destroyed
}

var _ isolator.Isolator = (*FakeIsolator)(nil)
