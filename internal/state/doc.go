// Package state provides the state capabilities of a sandbox session
// (filesystem, environment, key-value storage, assets) together with the
// machinery that records and replays mutations against them.
//
// The operation registry in registry.go is the single table mapping an op
// name to its capability method, argument names and replay action. The
// recording wrappers and the replay functions both read it, so the two
// paths cannot drift apart.
//
// Recording: a Recorder wraps live capabilities. A mutating call runs on the
// live target first and is appended to the statelog.Log only when it
// succeeds. Reads are forwarded untouched.
//
// Replay: Replay applies a log in order to a Target. ReplaySync covers the
// env and storage namespaces, which never block; ReplayAsync covers the fs
// namespace. Ops missing from the registry are skipped.
package state
