package client

import (
	"errors"
	"fmt"
)

var (
	// ErrUnauthenticated indicates the operation requires a session that does
	// not exist. It is raised locally, before any network call.
	ErrUnauthenticated = errors.New("not authenticated")
	// ErrUnauthorized indicates the server rejected the bearer token (401/403).
	ErrUnauthorized = errors.New("unauthorized")
)

// NetworkError wraps a transport-level failure: the request never produced an
// HTTP response (offline, timeout, connection refused). Session and cart state
// must not be cleared on a NetworkError.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// ValidationError is a 400/422 rejection of the request payload, carrying the
// server-provided message for display.
type ValidationError struct {
	Status  int
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// APIError is any other non-2xx response.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.Status, e.Message)
}
