// Package preflight provides readiness checks for the directories and the
// download helper that browserfetch depends on.
//
// The daemon runs RunAll at startup and on every status request so the CLI
// can show why downloads would fail before one is attempted. Checks never
// return errors; each Result carries a human-readable detail instead.
package preflight
