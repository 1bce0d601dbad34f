// Package config loads, normalizes, and validates browserfetch configuration.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// BROWSERFETCH_API_TOKEN. The Config type centralizes every knob the daemon
// and CLI need: install and data directories, executor selection, retry and
// circuit breaker thresholds, event fan-out, and log output.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths and clear validation errors.
package config
