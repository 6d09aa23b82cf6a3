package analyses

import "errors"

var (
	ErrNotFound       = errors.New("not found")
	ErrMissingVideos  = errors.New("both an ideal and a user video are required")
	ErrAlreadyRunning = errors.New("analysis already running")
	ErrNotRunnable    = errors.New("analysis is not queued")
	ErrNotCancelable  = errors.New("analysis already finished")
	ErrCanceled       = errors.New("analysis canceled")
	ErrShuttingDown   = errors.New("analysis service is shutting down")
)
