// Package retry decides whether a failed download attempt is retried and
// how long to wait first.
//
// DelayFor interprets a faults.Strategy. Breaker is the global three-state
// circuit breaker that vetoes every retry while upstream looks unhealthy.
// Coordinator ties them together: it classifies failure text, keeps
// per-task attempt history with a lighter per-task breaker, and serializes
// each decision under one lock so concurrent failures see a consistent view.
package retry
