// Package sandbox composes a session from an isolator, the state
// capabilities and, optionally, a recorder and a store.
//
// A session has a two-step lifecycle:
//
//	s, err := sandbox.New(cfg)          // env and storage restored
//	err = s.CompleteAsyncInit(ctx)      // filesystem restored
//
// New replays the env and storage entries of Config.InitializeLog before
// returning. Filesystem entries need I/O against the isolator and are
// replayed only by CompleteAsyncInit, which callers must run before relying
// on filesystem state. Ready reports whether it has completed.
package sandbox

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"sync"

	"github.com/roach88/sandboxx/internal/isolator"
	"github.com/roach88/sandboxx/internal/state"
	"github.com/roach88/sandboxx/internal/statelog"
	"github.com/roach88/sandboxx/internal/store"
)

// ErrInitFailed is returned by CompleteAsyncInit once a previous attempt
// has failed. A partially restored session cannot be retried in place.
var ErrInitFailed = errors.New("session initialization failed")

// Config selects how a session is wired.
type Config struct {
	// ID names the session. Generated by IDs when empty.
	ID string

	// Isolator runs commands and backs the filesystem. Required.
	Isolator isolator.Isolator

	// Env seeds the environment. Seeding is not recorded.
	Env map[string]string

	// EnableRecord wraps fs, env and storage so every successful mutation
	// is appended to the session's state log.
	EnableRecord bool

	// InitializeLog is replayed into the new session.
	InitializeLog *statelog.Log

	// Store holds blobs and, when recording, receives every entry through
	// AppendEntry under the session ID. A memory store is used when nil.
	Store store.Store

	IDs    IDGenerator
	Logger *slog.Logger
}

// Session is one sandbox with its state capabilities.
type Session struct {
	id      string
	iso     isolator.Isolator
	store   store.Store
	rec     *state.Recorder
	target  state.Target
	assets  *state.Assets
	initLog *statelog.Log
	logger  *slog.Logger

	initMu  sync.Mutex
	ready   bool
	initErr error
}

// New builds a session and synchronously replays the non-filesystem
// entries of cfg.InitializeLog. Replay goes through the recording wrappers
// when recording is on, uploads included, so the new session's log is
// self-contained.
func New(cfg Config) (*Session, error) {
	if cfg.Isolator == nil {
		return nil, fmt.Errorf("sandbox: isolator is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	id := cfg.ID
	if id == "" {
		ids := cfg.IDs
		if ids == nil {
			ids = UUIDv7Generator{}
		}
		id = ids.Generate()
	}
	st := cfg.Store
	if st == nil {
		st = store.NewMemoryStore()
	}

	target := state.Target{
		FS:       cfg.Isolator.FileSystem(),
		Env:      state.NewMemoryEnv(maps.Clone(cfg.Env)),
		Storage:  state.NewMemoryStorage(),
		Transfer: cfg.Isolator,
		Blobs:    st,
	}

	s := &Session{
		id:      id,
		iso:     cfg.Isolator,
		store:   st,
		initLog: cfg.InitializeLog,
		logger:  logger.With("session", id),
		ready:   cfg.InitializeLog == nil,
	}

	if cfg.EnableRecord {
		var sink state.Sink
		if cfg.Store != nil {
			sink = state.SinkFunc(func(ctx context.Context, e statelog.Entry) error {
				return st.AppendEntry(ctx, id, e)
			})
		}
		s.rec = state.NewRecorder(statelog.New(), sink)
		target = s.rec.Wrap(target)
	}
	s.target = target
	s.assets = state.NewAssets(cfg.Isolator, st, s.rec)

	if cfg.InitializeLog != nil {
		if err := state.ReplaySync(cfg.InitializeLog, target); err != nil {
			return nil, fmt.Errorf("sandbox %s: restore env and storage: %w", id, err)
		}
		s.logger.Debug("synchronous replay complete", "entries", cfg.InitializeLog.Len())
	}

	s.logger.Info("session created", "record", cfg.EnableRecord, "restoring", cfg.InitializeLog != nil)
	return s, nil
}

// CompleteAsyncInit replays the filesystem entries of the initialize log.
// Calling it again after success is a no-op. After a failure it returns
// ErrInitFailed; the session should be destroyed and recreated.
func (s *Session) CompleteAsyncInit(ctx context.Context) error {
	s.initMu.Lock()
	defer s.initMu.Unlock()
	if s.ready {
		return nil
	}
	if s.initErr != nil {
		return fmt.Errorf("%w: %w", ErrInitFailed, s.initErr)
	}
	if err := state.ReplayAsync(ctx, s.initLog, s.target); err != nil {
		s.initErr = err
		s.logger.Error("filesystem replay failed", "error", err)
		return fmt.Errorf("sandbox %s: restore filesystem: %w", s.id, err)
	}
	s.ready = true
	s.logger.Debug("asynchronous replay complete")
	return nil
}

// Ready reports whether the session is fully restored.
func (s *Session) Ready() bool {
	s.initMu.Lock()
	defer s.initMu.Unlock()
	return s.ready
}

func (s *Session) ID() string { return s.id }

func (s *Session) FS() state.FileSystem { return s.target.FS }

func (s *Session) Env() state.Environment { return s.target.Env }

func (s *Session) Storage() state.Storage { return s.target.Storage }

func (s *Session) Assets() *state.Assets { return s.assets }

// StateLog returns the recorded log, or nil when recording is off.
func (s *Session) StateLog() *statelog.Log {
	if s.rec == nil {
		return nil
	}
	return s.rec.Log()
}

// Shell runs command in the isolator with the session environment.
func (s *Session) Shell(ctx context.Context, command string) (state.ShellResult, error) {
	return s.iso.Exec(ctx, isolator.Command{Script: command, Env: s.target.Env.All()})
}

// SaveSnapshot writes the compacted state log to the store under key.
func (s *Session) SaveSnapshot(ctx context.Context, key string) error {
	log := s.StateLog()
	if log == nil {
		return fmt.Errorf("sandbox %s: recording is disabled", s.id)
	}
	text, err := log.Compact().JSON()
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	return s.store.SaveLog(ctx, key, text)
}

// Destroy tears down the isolator. Persisted logs and blobs are kept so the
// session can be restored later.
func (s *Session) Destroy(ctx context.Context) error {
	if err := s.iso.Destroy(ctx); err != nil {
		return fmt.Errorf("sandbox %s: destroy: %w", s.id, err)
	}
	s.logger.Info("session destroyed")
	return nil
}

// LoadLog reads and parses the log stored under key.
func LoadLog(ctx context.Context, st store.Store, key string) (*statelog.Log, bool, error) {
	text, ok, err := st.LoadLog(ctx, key)
	if err != nil || !ok {
		return nil, ok, err
	}
	log, err := statelog.Parse(text)
	if err != nil {
		return nil, false, fmt.Errorf("parse log %s: %w", key, err)
	}
	return log, true, nil
}
