package download

import "errors"

var (
	ErrInvalidTask  = errors.New("invalid task")
	ErrTaskNotFound = errors.New("task not found")
	ErrTaskExists   = errors.New("task already exists")
	ErrTaskActive   = errors.New("task is already running")
	ErrNotFailed    = errors.New("task has not failed")
	ErrRetryLimit   = errors.New("retry limit reached")
	ErrShuttingDown = errors.New("orchestrator is shutting down")
)
