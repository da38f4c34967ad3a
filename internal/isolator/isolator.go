// Package isolator runs commands and moves files for a sandbox session.
//
// The state layer only needs the capabilities in internal/state; an
// Isolator is the concrete backend a session composes them from.
package isolator

import (
	"context"
	"errors"

	"github.com/roach88/sandboxx/internal/state"
)

// ErrTimeout reports a command killed by its timeout.
var ErrTimeout = errors.New("execution timed out")

// Command is one shell invocation.
type Command struct {
	// Script is passed to sh -c.
	Script string

	// Env is added to the isolator's base environment.
	Env map[string]string
}

// Isolator is an execution backend.
type Isolator interface {
	Exec(ctx context.Context, cmd Command) (state.ShellResult, error)
	FileSystem() state.FileSystem
	Upload(ctx context.Context, data []byte, remotePath string) error
	Download(ctx context.Context, remotePath string) ([]byte, error)
	Destroy(ctx context.Context) error
}
