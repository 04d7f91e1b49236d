package balancer

import "errors"

// Errors returned by Scheduler transitions. Callers compare with errors.Is;
// returned errors wrap these with the offending identifier.
var (
	// ErrNoWorkerAvailable means no ready worker exists. Recoverable by
	// backing off and retrying once a worker becomes ready.
	ErrNoWorkerAvailable = errors.New("no worker available")

	// The remaining errors are caller bookkeeping violations
	ErrWorkerNotFound    = errors.New("worker not found")
	ErrTaskNotFound      = errors.New("task not found")
	ErrDuplicateWorkerID = errors.New("duplicate worker id")
	ErrDuplicateTaskID   = errors.New("duplicate task id")
	ErrInvalidTask       = errors.New("invalid task")
	ErrInvalidConfig     = errors.New("invalid scheduler config")
)
