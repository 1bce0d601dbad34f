// Package download owns the task registry and drives each browser download
// through its lifecycle.
//
// The Orchestrator runs one goroutine per active task. Each goroutine calls
// the injected Executor, streams progress to the Publisher, and on failure
// asks the retry Coordinator whether to try again. Successful downloads are
// handed to the CompletionSink exactly once. Remove aborts a running task and
// a generation check guarantees the aborted goroutine never touches the
// registry again.
package download
