// Package harness runs state log conformance scenarios.
//
// A scenario drives a recording session through a list of state
// operations, then checks that the recorded log is a faithful description
// of the session's state:
//
//  1. Steps run against a recording session backed by a memory store.
//  2. Assertions check the live state and the recorded log.
//  3. The log is reloaded from the store and must equal the in-memory log.
//  4. The reloaded log is replayed into a fresh session; its state must
//     equal the original session's state.
//  5. The compacted log is replayed into another fresh session; its state
//     must also be equal.
//  6. Both logs must pass schema validation.
//
// # Scenario Format
//
//	name: scenario_name
//	description: "What this scenario validates"
//	session_id: sandbox-example    # optional
//	env: { BASE: "1" }             # optional, seeded and not recorded
//	fail_paths: [/readonly/file]   # optional, fs mutations that fail
//	steps:
//	  - op: fs.write
//	    args: { path: /app/a.txt, data: "hello" }
//	  - op: fs.upload
//	    args: { path: /img/logo.png, content: "bytes" }
//	  - op: fs.write
//	    args: { path: /readonly/file, data: "x" }
//	    expect_error: true
//	assertions:
//	  - type: file
//	    path: /app/a.txt
//	    equals: "hello"
//	  - type: env
//	    key: BASE
//	    absent: true
//	  - type: log_count
//	    count: 2
//	  - type: log_ops
//	    ops: [fs.write, fs.upload]
//
// # Deterministic Testing
//
// Sessions use a fixed ID and an in-memory isolator, so the compacted log
// and final state of a scenario are byte-identical across runs and can be
// compared against golden files with RunWithGolden.
package harness
