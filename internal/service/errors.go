package service

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidRequest is returned for a blank message, before any state changes
	ErrInvalidRequest = errors.New("invalid request: message is required")

	// ErrSourceUnavailable means the inventory could not be loaded and no
	// earlier snapshot exists
	ErrSourceUnavailable = errors.New("property source unavailable")

	// ErrPersistenceFailure matches every PersistenceError via errors.Is
	ErrPersistenceFailure = errors.New("persistence failure")

	// ErrSessionNotFound is returned by History for an unknown token
	ErrSessionNotFound = errors.New("session not found")
)

// PersistenceError wraps a session store failure with the operation that failed
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s: %v: %v", ErrPersistenceFailure, e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// Is reports ErrPersistenceFailure as matching
func (e *PersistenceError) Is(target error) bool {
	return target == ErrPersistenceFailure
}

func persistenceErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return &PersistenceError{Op: op, Err: err}
}
