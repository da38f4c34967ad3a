// Package statelog provides the ordered operation log recorded against a
// sandbox session's state.
//
// A Log is an append-only sequence of Entry values. Each entry names a
// dotted operation ("fs.write", "env.set", "storage.clear", ...) and the
// named arguments registered for it. The log itself knows nothing about how
// operations are applied; internal/state owns the operation registry, the
// recording wrappers and replay.
//
// # Ordering
//
// Entries keep the exact order in which they were appended. Nothing in this
// package reorders or merges entries except Compact, which returns a new Log
// and leaves the receiver untouched.
//
// # Serialization
//
// JSON and Parse are string in, string out. Parse also accepts the
// double-encoded bulk form, where the array was stringified once more for
// transport. ParseLines reads the append-only form written by the durable
// stores: one JSON object per line.
package statelog
