// Package services defines shared plumbing consumed by the download
// orchestrator, the daemon, and its transports.
//
// Key responsibilities:
//   - Context helpers that stamp task IDs, attempt numbers, and correlation
//     identifiers for logging.
//   - Structured error markers plus the Wrap helper so command failures can be
//     mapped to consistent transport responses (not found, conflict, invalid).
//
// Use these helpers when wiring new entry points so error handling and
// observability stay uniform between the HTTP API, IPC, and CLI.
package services
