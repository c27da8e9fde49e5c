package queue

import "errors"

var (
	// ErrStorageNil is returned when a nil storage is passed to a constructor.
	ErrStorageNil = errors.New("storage cannot be nil")

	// ErrHandlerNil is returned when a worker is created without a job handler.
	ErrHandlerNil = errors.New("handler cannot be nil")

	// ErrNoJobToClaim signals an empty queue; workers treat it as a normal
	// idle tick.
	ErrNoJobToClaim = errors.New("no job available to claim")

	// ErrJobNotFound is returned when a job id does not exist in storage.
	ErrJobNotFound = errors.New("job not found")

	// ErrJobNotCancellable is returned when the referenced job has already
	// been claimed or finished.
	ErrJobNotCancellable = errors.New("job is not cancellable")
)
