// Package textutil provides display formatting and filename sanitization.
//
// Byte counts and durations are rendered through go-humanize so the CLI,
// the API and log lines agree on units.
package textutil
