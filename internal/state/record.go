package state

import (
	"context"
	"fmt"
	"sync"

	"github.com/roach88/sandboxx/internal/statelog"
)

// Ops recorded by the wrappers below, resolved through the registry at
// package initialisation.
var (
	opFSWrite       = mustFindOp(statelog.NamespaceFS, "Write")
	opFSDelete      = mustFindOp(statelog.NamespaceFS, "Delete")
	opFSUpload      = mustFindOp(statelog.NamespaceFS, "Upload")
	opEnvSet        = mustFindOp(statelog.NamespaceEnv, "Set")
	opEnvDelete     = mustFindOp(statelog.NamespaceEnv, "Delete")
	opStorageSet    = mustFindOp(statelog.NamespaceStorage, "SetItem")
	opStorageRemove = mustFindOp(statelog.NamespaceStorage, "RemoveItem")
	opStorageClear  = mustFindOp(statelog.NamespaceStorage, "Clear")
)

// Sink receives every entry after it is appended to the log, typically to
// persist it durably.
type Sink interface {
	Append(ctx context.Context, entry statelog.Entry) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, entry statelog.Entry) error

func (f SinkFunc) Append(ctx context.Context, entry statelog.Entry) error {
	return f(ctx, entry)
}

// Recorder appends successful mutations to a log and an optional Sink.
//
// The append step is serialized: entries reach the log and the sink in the
// order their calls completed, and the sink sees them in log order.
type Recorder struct {
	mu   sync.Mutex
	log  *statelog.Log
	sink Sink
}

// NewRecorder returns a recorder appending to log. sink may be nil.
func NewRecorder(log *statelog.Log, sink Sink) *Recorder {
	if log == nil {
		log = statelog.New()
	}
	return &Recorder{log: log, sink: sink}
}

// Log returns the log being recorded into.
func (r *Recorder) Log() *statelog.Log {
	return r.log
}

// record appends the entry for op. A sink failure is returned so a lost
// durable write is never silent; the in-memory log keeps the entry because
// the live operation did happen.
func (r *Recorder) record(ctx context.Context, op string, positional ...any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry := r.log.Record(op, ArgsToEntry(op, positional...))
	if r.sink == nil {
		return nil
	}
	if err := r.sink.Append(ctx, entry); err != nil {
		return fmt.Errorf("persist %s: %w", op, err)
	}
	return nil
}

// Wrap returns t with its fs, transfer, env and storage capabilities
// recorded. Nil capabilities stay nil.
func (r *Recorder) Wrap(t Target) Target {
	out := t
	if t.FS != nil {
		out.FS = r.FS(t.FS)
	}
	if t.Transfer != nil {
		out.Transfer = r.Transfer(t.Transfer, t.Blobs)
	}
	if t.Env != nil {
		out.Env = r.Env(t.Env)
	}
	if t.Storage != nil {
		out.Storage = r.Storage(t.Storage)
	}
	return out
}

// FS wraps a live filesystem.
func (r *Recorder) FS(live FileSystem) *RecordingFS {
	return &RecordingFS{live: live, rec: r}
}

// Transfer wraps a live transfer. Uploads are recorded as fs.upload with
// the content's blob ref; blobs, when non-nil, receives the content first.
func (r *Recorder) Transfer(live Transfer, blobs BlobStore) *RecordingTransfer {
	return &RecordingTransfer{live: live, blobs: blobs, rec: r}
}

// Env wraps a live environment.
func (r *Recorder) Env(live Environment) *RecordingEnv {
	return &RecordingEnv{live: live, rec: r}
}

// Storage wraps a live storage.
func (r *Recorder) Storage(live Storage) *RecordingStorage {
	return &RecordingStorage{live: live, rec: r}
}

// RecordingFS records Write and Delete; reads pass through.
type RecordingFS struct {
	live FileSystem
	rec  *Recorder
}

func (f *RecordingFS) Read(ctx context.Context, p string) (string, error) {
	return f.live.Read(ctx, p)
}

func (f *RecordingFS) Write(ctx context.Context, p, data string) error {
	if err := f.live.Write(ctx, p, data); err != nil {
		return fsError("write", p, err)
	}
	return f.rec.record(ctx, opFSWrite, p, data)
}

func (f *RecordingFS) List(ctx context.Context, p string) ([]string, error) {
	return f.live.List(ctx, p)
}

func (f *RecordingFS) Exists(ctx context.Context, p string) (bool, error) {
	return f.live.Exists(ctx, p)
}

func (f *RecordingFS) Delete(ctx context.Context, p string) error {
	if err := f.live.Delete(ctx, p); err != nil {
		return fsError("delete", p, err)
	}
	return f.rec.record(ctx, opFSDelete, p)
}

// RecordingTransfer records Upload; downloads pass through.
type RecordingTransfer struct {
	live  Transfer
	blobs BlobStore
	rec   *Recorder
}

func (tr *RecordingTransfer) Upload(ctx context.Context, data []byte, remotePath string) error {
	if err := tr.live.Upload(ctx, data, remotePath); err != nil {
		return fsError("upload", remotePath, err)
	}
	ref := statelog.BlobRef(data)
	if tr.blobs != nil {
		if err := tr.blobs.SaveBlob(ctx, ref, data); err != nil {
			return fmt.Errorf("save blob for %s: %w", remotePath, err)
		}
	}
	return tr.rec.record(ctx, opFSUpload, remotePath, ref)
}

func (tr *RecordingTransfer) Download(ctx context.Context, remotePath string) ([]byte, error) {
	return tr.live.Download(ctx, remotePath)
}

// RecordingEnv records Set and Delete; reads pass through.
type RecordingEnv struct {
	live Environment
	rec  *Recorder
}

func (e *RecordingEnv) Get(key string) (string, bool) { return e.live.Get(key) }
func (e *RecordingEnv) Has(key string) bool           { return e.live.Has(key) }
func (e *RecordingEnv) Keys() []string                { return e.live.Keys() }
func (e *RecordingEnv) All() map[string]string        { return e.live.All() }

func (e *RecordingEnv) Set(key, value string) error {
	if err := e.live.Set(key, value); err != nil {
		return err
	}
	return e.rec.record(context.Background(), opEnvSet, key, value)
}

func (e *RecordingEnv) Delete(key string) error {
	if err := e.live.Delete(key); err != nil {
		return err
	}
	return e.rec.record(context.Background(), opEnvDelete, key)
}

// RecordingStorage records SetItem, RemoveItem and Clear; reads pass
// through.
type RecordingStorage struct {
	live Storage
	rec  *Recorder
}

func (s *RecordingStorage) GetItem(key string) (string, bool) { return s.live.GetItem(key) }
func (s *RecordingStorage) Keys() []string                    { return s.live.Keys() }

func (s *RecordingStorage) SetItem(key, value string) error {
	if err := s.live.SetItem(key, value); err != nil {
		return err
	}
	return s.rec.record(context.Background(), opStorageSet, key, value)
}

func (s *RecordingStorage) RemoveItem(key string) error {
	if err := s.live.RemoveItem(key); err != nil {
		return err
	}
	return s.rec.record(context.Background(), opStorageRemove, key)
}

func (s *RecordingStorage) Clear() error {
	if err := s.live.Clear(); err != nil {
		return err
	}
	return s.rec.record(context.Background(), opStorageClear)
}

var (
	_ FileSystem  = (*RecordingFS)(nil)
	_ Transfer    = (*RecordingTransfer)(nil)
	_ Environment = (*RecordingEnv)(nil)
	_ Storage     = (*RecordingStorage)(nil)
)
