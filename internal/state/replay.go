package state

import (
	"context"
	"log/slog"

	"github.com/roach88/sandboxx/internal/statelog"
)

// Replay applies every entry of log to t in recorded order.
//
// Entries whose op is not registered are skipped so that a log written by a
// newer version still replays. The first registered op that fails stops
// replay with a *ReplayError; t is then partially restored and should be
// discarded rather than retried.
func Replay(ctx context.Context, log *statelog.Log, t Target) error {
	return replayEntries(ctx, log.Entries(), t, func(string) bool { return true })
}

// ReplaySync applies the env and storage entries of log. These never block,
// so ReplaySync is safe to call while constructing a session, before the
// filesystem is ready.
func ReplaySync(log *statelog.Log, t Target) error {
	return replayEntries(context.Background(), log.Entries(), t, func(ns string) bool {
		return ns != statelog.NamespaceFS
	})
}

// ReplayAsync applies the fs entries of log. It completes what ReplaySync
// leaves out.
func ReplayAsync(ctx context.Context, log *statelog.Log, t Target) error {
	return replayEntries(ctx, log.Entries(), t, func(ns string) bool {
		return ns == statelog.NamespaceFS
	})
}

func replayEntries(ctx context.Context, entries []statelog.Entry, t Target, include func(namespace string) bool) error {
	applied := 0
	for i, e := range entries {
		op, ok := Lookup(e.Op)
		if !ok {
			slog.Debug("skipping unknown state op", "op", e.Op, "index", i)
			continue
		}
		if !include(op.Namespace) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return &ReplayError{Index: i, Op: e.Op, Err: err}
		}
		if err := op.Apply(ctx, t, e.Args); err != nil {
			return &ReplayError{Index: i, Op: e.Op, Err: err}
		}
		applied++
	}
	slog.Debug("state log replayed", "entries", len(entries), "applied", applied)
	return nil
}
