// Package logs tails the daemon log file with bounded memory.
//
// A negative offset reads the last N lines; a non-negative offset reads
// everything appended since, optionally polling until new lines arrive. The
// daemon uses it when no in-memory log stream is configured, and the CLI
// uses it to show logs while the daemon is down.
package logs
