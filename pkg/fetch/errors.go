package fetch

import (
	"errors"
	"fmt"
	"net/http"
)

// Common errors returned by the client.
var (
	// ErrRetryExhausted is returned when all retry attempts are exhausted.
	ErrRetryExhausted = errors.New("retry attempts exhausted")

	// ErrBodyTooLarge is returned when a page exceeds Config.MaxBodyBytes.
	ErrBodyTooLarge = errors.New("response body too large")
)

// ErrorClass represents a classification of fetch errors.
type ErrorClass string

const (
	// ErrorClassClient represents 4xx answers and unusable requests.
	ErrorClassClient ErrorClass = "client"

	// ErrorClassServer represents 5xx answers.
	ErrorClassServer ErrorClass = "server"

	// ErrorClassNetwork represents transport errors and timeouts.
	ErrorClassNetwork ErrorClass = "network"
)

// FetchError is a failed page request with its classification.
type FetchError struct {
	URL        string
	StatusCode int
	Class      ErrorClass
	Err        error
}

// Error implements the error interface.
func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: %s error (status %d): %v", e.URL, e.Class, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("fetch %s: %s error: %v", e.URL, e.Class, e.Err)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *FetchError) Unwrap() error {
	return e.Err
}

// ClassOf returns the class of a fetch error, or ErrorClassNetwork for
// errors that did not come from this package.
func ClassOf(err error) ErrorClass {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.Class
	}
	return ErrorClassNetwork
}

// classifyStatus maps a non-2xx status to its error class.
func classifyStatus(status int) ErrorClass {
	if status >= http.StatusInternalServerError {
		return ErrorClassServer
	}
	return ErrorClassClient
}

// shouldRetry determines if an error class is worth another attempt.
func shouldRetry(class ErrorClass) bool {
	switch class {
	case ErrorClassServer, ErrorClassNetwork:
		return true
	default:
		// 4xx answers will not change on retry
		return false
	}
}
