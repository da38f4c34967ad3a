// Package store persists state logs and content-addressed blobs.
//
// Every backend implements Store and honours the same contract:
//
//   - A log key may hold two physical forms: the append-only line form
//     written by AppendEntry, and the bulk JSON array written by SaveLog.
//     LoadLog prefers the line form and always returns a JSON array.
//   - AppendEntry never rewrites earlier entries. A crash mid-append can
//     lose at most the unterminated final line.
//   - Not found is absence, not failure: LoadLog and LoadBlob return
//     (zero, false, nil). Every other failure is an *IOError.
//   - DeleteLog and DeleteBlob are idempotent.
//   - Blobs are keyed by the ref produced by BlobRef. Saving a ref that
//     already exists is a no-op.
//
// # Backends
//
//   - memory: maps, no durability. For tests and throwaway sessions.
//   - file: <base>/state-logs/<key>.jsonl, <base>/state-logs/<key>.json and
//     zstd-compressed <base>/blobs/<ref>.
//   - sqlite: one database file in WAL mode.
//   - redis: a list per line-form log, strings for bulk logs and blobs.
//   - minio: one object per appended entry, named so that lexical order is
//     append order.
//
// A Store may be shared by concurrent sessions. Each key is independent;
// concurrent writers to the same key must be serialized by the caller.
package store
