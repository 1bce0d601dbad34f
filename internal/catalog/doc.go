// Package catalog persists installed browsers and download task history in
// SQLite.
//
// The schema is embedded and versioned; a database written by a different
// schema version is rejected rather than migrated. Writes retry on
// SQLITE_BUSY with a short backoff so the daemon and CLI can share the file.
//
// CompletionSink plugs the store into the orchestrator as its completion
// hook. TaskRecorder mirrors task status events into download_tasks from a
// background goroutine so publishing never blocks the orchestrator.
package catalog
