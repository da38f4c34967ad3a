package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/roach88/sandboxx/internal/statelog"
)

// Store is the persistence contract shared by every backend.
type Store interface {
	// SaveLog writes or replaces the bulk form of the log under key.
	SaveLog(ctx context.Context, key, data string) error

	// AppendEntry appends entry as one line to the line form of sessionID.
	AppendEntry(ctx context.Context, sessionID string, entry statelog.Entry) error

	// LoadLog returns the log under key as a JSON array. The line form wins
	// over the bulk form.
	LoadLog(ctx context.Context, key string) (string, bool, error)

	// DeleteLog removes both forms of key.
	DeleteLog(ctx context.Context, key string) error

	// ListLogs returns the known keys in sorted order.
	ListLogs(ctx context.Context) ([]string, error)

	SaveBlob(ctx context.Context, ref string, data []byte) error
	LoadBlob(ctx context.Context, ref string) ([]byte, bool, error)
	DeleteBlob(ctx context.Context, ref string) error

	Close() error
}

// ErrInvalidKey reports a log key or blob ref that cannot name a stored
// object.
var ErrInvalidKey = errors.New("invalid store key")

// IOError is a backend failure other than not found.
type IOError struct {
	Op  string
	Key string
	Err error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("store %s %s: %v", e.Op, e.Key, e.Err)
}

func (e *IOError) Unwrap() error {
	return e.Err
}

// Is makes every IOError match statelog.ErrState.
func (e *IOError) Is(target error) bool {
	return target == statelog.ErrState
}

func ioError(op, key string, err error) error {
	return &IOError{Op: op, Key: key, Err: err}
}

// BlobRef returns the content address under which data is stored.
func BlobRef(data []byte) string {
	return statelog.BlobRef(data)
}

// validateKey accepts keys made of letters, digits, '.', '_' and '-', the
// alphabet of session IDs. Keys map to file and object names, so anything
// that could traverse a path is rejected.
func validateKey(key string) error {
	if key == "" || key == "." || key == ".." || len(key) > 255 {
		return fmt.Errorf("%q: %w", key, ErrInvalidKey)
	}
	if strings.HasPrefix(key, ".") {
		return fmt.Errorf("%q: %w", key, ErrInvalidKey)
	}
	for _, c := range key {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		case c == '.', c == '_', c == '-':
		default:
			return fmt.Errorf("%q: %w", key, ErrInvalidKey)
		}
	}
	return nil
}

func validateRef(ref string) error {
	if !statelog.IsBlobRef(ref) {
		return fmt.Errorf("blob ref %q: %w", ref, ErrInvalidKey)
	}
	return nil
}

// entriesToJSON renders decoded line-form entries as the bulk array.
func entriesToJSON(op, key string, entries []statelog.Entry) (string, error) {
	data, err := statelog.EncodeEntries(entries)
	if err != nil {
		return "", ioError(op, key, err)
	}
	return string(data), nil
}
