package repository

import "errors"

var (
	// ErrNotFound is returned when a keyed lookup has no value.
	ErrNotFound = errors.New("not found")
	// ErrQueueEmpty is returned by Dequeue when no task became ready within the wait.
	ErrQueueEmpty = errors.New("task queue is empty")

	// ErrSolverTimeout means the challenge-solving proxy did not answer in time.
	ErrSolverTimeout = errors.New("challenge solver timed out")
	// ErrSolverRejected means the proxy answered but no usable auth cookie came back.
	ErrSolverRejected = errors.New("challenge solver rejected")
)
