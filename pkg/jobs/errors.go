package jobs

import "errors"

var (
	// ErrClosed is returned by Enqueue after Shutdown.
	ErrClosed = errors.New("jobs: manager is shut down")

	// ErrNotFound is returned for an unknown job id.
	ErrNotFound = errors.New("jobs: job not found")

	// ErrCancelled is recorded for tools skipped after a cancel request.
	ErrCancelled = errors.New("cancelled")

	// ErrAborted is recorded for tools left without an outcome when the
	// pipeline itself fails.
	ErrAborted = errors.New("orchestration aborted")
)
