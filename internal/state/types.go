package state

import (
	"context"
	"time"
)

// FileSystem is the filesystem capability of a sandbox.
type FileSystem interface {
	Read(ctx context.Context, path string) (string, error)
	Write(ctx context.Context, path, data string) error
	List(ctx context.Context, path string) ([]string, error)
	Exists(ctx context.Context, path string) (bool, error)
	Delete(ctx context.Context, path string) error
}

// Environment holds a session's environment variables.
// Mutators return an error so a recording wrapper can report a failed
// durable append.
type Environment interface {
	Get(key string) (string, bool)
	Set(key, value string) error
	Has(key string) bool
	Delete(key string) error
	Keys() []string
	All() map[string]string
}

// Storage is a session-scoped key-value store.
type Storage interface {
	GetItem(key string) (string, bool)
	SetItem(key, value string) error
	RemoveItem(key string) error
	Clear() error
	Keys() []string
}

// Transfer moves raw bytes in and out of a sandbox.
type Transfer interface {
	Upload(ctx context.Context, data []byte, remotePath string) error
	Download(ctx context.Context, remotePath string) ([]byte, error)
}

// BlobStore is the content-addressed side of a state store.
type BlobStore interface {
	SaveBlob(ctx context.Context, ref string, data []byte) error
	LoadBlob(ctx context.Context, ref string) ([]byte, bool, error)
}

// Shell runs a command inside a sandbox.
type Shell interface {
	Shell(ctx context.Context, command string) (ShellResult, error)
}

// ShellResult is the outcome of a shell command.
type ShellResult struct {
	Success       bool          `json:"success"`
	Stdout        string        `json:"stdout"`
	Stderr        string        `json:"stderr"`
	ExitCode      int           `json:"exit_code"`
	ExecutionTime time.Duration `json:"execution_time"`
}

// Target is the set of capabilities a log is replayed against.
// Transfer and Blobs are only needed to replay fs.upload entries.
type Target struct {
	FS       FileSystem
	Env      Environment
	Storage  Storage
	Transfer Transfer
	Blobs    BlobStore
}
