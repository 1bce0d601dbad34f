// Package daemon coordinates the long-running browserfetchd process.
//
// It wires configuration, the browser catalog, the retry coordinator, the
// download orchestrator and the event fan-out into a single lifecycle, with
// flock-based locking so only one daemon owns a data directory. Transports
// (the JSON-RPC socket in internal/ipc and the HTTP API in internal/api)
// call into the Daemon; they never touch the orchestrator directly.
//
// Keep orchestration here: download semantics live in internal/download and
// retry policy in internal/retry.
package daemon
