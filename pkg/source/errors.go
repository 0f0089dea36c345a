package source

import (
	"errors"
	"fmt"
)

// Common errors returned by the resolver.
var (
	// ErrNotFound is returned when the source does not exist.
	ErrNotFound = errors.New("source not found")

	// ErrNoSuchKey is returned by an ObjectStore for a missing key.
	ErrNoSuchKey = errors.New("no such key")

	// ErrStoreUnavailable is returned for store keys when no object store is configured.
	ErrStoreUnavailable = errors.New("object store not configured")

	// ErrTooLarge is returned when a source body exceeds the configured limit.
	ErrTooLarge = errors.New("source exceeds size limit")
)

// ErrorClass represents a classification of fetch errors.
type ErrorClass string

const (
	// ErrorClassClient represents 4xx responses from a remote origin.
	ErrorClassClient ErrorClass = "client"

	// ErrorClassServer represents 5xx responses from a remote origin.
	ErrorClassServer ErrorClass = "server"

	// ErrorClassNetwork represents transport errors and timeouts.
	ErrorClassNetwork ErrorClass = "network"

	// ErrorClassStore represents object store failures.
	ErrorClassStore ErrorClass = "store"
)

// FetchError represents a failed fetch with additional context.
type FetchError struct {
	Source     string
	StatusCode int
	ErrorClass ErrorClass
	Err        error
}

// Error implements the error interface.
func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: %s error (status %d): %v",
			e.Source, e.ErrorClass, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("fetch %s: %s error: %v", e.Source, e.ErrorClass, e.Err)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *FetchError) Unwrap() error {
	return e.Err
}

// classifyStatus maps a non-2xx HTTP status to an ErrorClass.
func classifyStatus(status int) ErrorClass {
	if status >= 500 {
		return ErrorClassServer
	}
	return ErrorClassClient
}
