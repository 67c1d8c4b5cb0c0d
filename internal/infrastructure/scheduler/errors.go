package scheduler

import "errors"

var (
	// ErrWorkerNotRunning is returned when stopping a worker that never started
	ErrWorkerNotRunning = errors.New("import worker is not running")

	// ErrInvalidConfig is returned when configuration is invalid
	ErrInvalidConfig = errors.New("invalid worker configuration")
)
