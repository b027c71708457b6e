package domain

import (
	"errors"
	"fmt"
)

// ErrTimeout is returned when a request exceeds its orchestration deadline.
var ErrTimeout = errors.New("deadline exceeded")

// ErrCircuitOpen is returned while the circuit breaker rejects backend calls.
var ErrCircuitOpen = errors.New("circuit breaker open")

// NetworkError is a transport-level failure talking to the backend.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s: network error: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// BackendError is a non-success response from the backend.
type BackendError struct {
	Op     string
	Status int
	Body   string
}

func (e *BackendError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s: backend status %d", e.Op, e.Status)
	}
	return fmt.Sprintf("%s: backend status %d: %s", e.Op, e.Status, e.Body)
}

// Retryable reports whether the status suggests a transient failure.
func (e *BackendError) Retryable() bool {
	return e.Status == 429 || e.Status >= 500
}

// IsTransient reports whether err is a backend failure that may succeed if
// the request is repeated later.
func IsTransient(err error) bool {
	if errors.Is(err, ErrCircuitOpen) || errors.Is(err, ErrTimeout) {
		return true
	}
	var netErr *NetworkError
	if errors.As(err, &netErr) {
		return true
	}
	var be *BackendError
	return errors.As(err, &be) && be.Retryable()
}
