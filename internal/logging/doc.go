// Package logging assembles structured slog loggers and formatting helpers used
// across browserfetch services.
//
// It owns the console and JSON handlers, centralizes level and output
// plumbing, and exposes context-aware helpers so download code can tag log
// lines with task IDs, attempt numbers, and correlation IDs. StreamHub keeps a
// bounded ring of recent log events for the API and IPC log tail, and
// ProgressSampler keeps per-task progress logging readable.
package logging
