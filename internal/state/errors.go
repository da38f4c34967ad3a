package state

import (
	"errors"
	"fmt"

	"github.com/roach88/sandboxx/internal/statelog"
)

var (
	// ErrInvalidArgs reports an entry whose arguments do not match the
	// registered argument names.
	ErrInvalidArgs = errors.New("invalid op arguments")

	// ErrNoCapability reports a replay target missing the capability an op
	// needs.
	ErrNoCapability = errors.New("capability not available")

	// ErrBlobMissing reports an fs.upload entry whose blob is not in the store.
	ErrBlobMissing = errors.New("blob not found")
)

// FileSystemError is a failed filesystem operation against a live target.
type FileSystemError struct {
	Op   string
	Path string
	Err  error
}

func (e *FileSystemError) Error() string {
	return fmt.Sprintf("fs %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *FileSystemError) Unwrap() error {
	return e.Err
}

// Is makes every FileSystemError match statelog.ErrState.
func (e *FileSystemError) Is(target error) bool {
	return target == statelog.ErrState
}

// ReplayError reports the entry at which replay stopped. Entries after
// Index were not applied.
type ReplayError struct {
	Index int
	Op    string
	Err   error
}

func (e *ReplayError) Error() string {
	return fmt.Sprintf("replay entry %d (%s): %v", e.Index, e.Op, e.Err)
}

func (e *ReplayError) Unwrap() error {
	return e.Err
}

func (e *ReplayError) Is(target error) bool {
	return target == statelog.ErrState
}

func fsError(op, path string, err error) error {
	var fe *FileSystemError
	if errors.As(err, &fe) {
		return err
	}
	return &FileSystemError{Op: op, Path: path, Err: err}
}
