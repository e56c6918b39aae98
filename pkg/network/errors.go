package network

import (
	"errors"
	"fmt"
	"net/http"
)

// Common errors returned by the client.
var (
	// ErrRetryExhausted is returned when all retry attempts are exhausted.
	ErrRetryExhausted = errors.New("retry attempts exhausted")

	// ErrContextCancelled is returned when the context is cancelled during retry.
	ErrContextCancelled = errors.New("context cancelled")
)

// ErrorClass represents a classification of upstream failures.
type ErrorClass string

const (
	// ErrorClassClient represents 4xx responses.
	ErrorClassClient ErrorClass = "client"

	// ErrorClassServer represents 5xx responses.
	ErrorClassServer ErrorClass = "server"

	// ErrorClassNetwork represents transport failures: no response at all.
	ErrorClassNetwork ErrorClass = "network"
)

// ClassifyStatus returns the error class of an HTTP status, or "" for
// statuses below 400.
func ClassifyStatus(status int) ErrorClass {
	switch {
	case status >= 400 && status < 500:
		return ErrorClassClient
	case status >= 500:
		return ErrorClassServer
	default:
		return ""
	}
}

// FetchError is a fetch that produced no response.
type FetchError struct {
	Method string
	URL    string
	Class  ErrorClass
	Err    error
}

// Error implements the error interface.
func (e *FetchError) Error() string {
	return fmt.Sprintf("%s %s: %s error: %v", e.Method, e.URL, e.Class, e.Err)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *FetchError) Unwrap() error {
	return e.Err
}

// IsNetworkFailure reports whether err is a fetch that never reached the upstream.
func IsNetworkFailure(err error) bool {
	var ferr *FetchError
	return errors.As(err, &ferr) && ferr.Class == ErrorClassNetwork
}

// shouldRetry reports whether a failed attempt may be repeated.
// Only idempotent requests that failed without any response are retried;
// HTTP error statuses are returned to the caller as responses.
func shouldRetry(method string, err error) bool {
	if method != http.MethodGet && method != http.MethodHead {
		return false
	}
	return IsNetworkFailure(err)
}
