package client

import (
	"errors"
	"fmt"
)

// ErrorClass represents a classification of client failures.
type ErrorClass string

const (
	// ErrorClassConfig means no valid request could be built (bad key,
	// bad criteria, bad paging). Not retryable.
	ErrorClassConfig ErrorClass = "config"

	// ErrorClassNetwork represents transport failures and non-200 responses.
	// The user may retry by searching again.
	ErrorClassNetwork ErrorClass = "network"

	// ErrorClassDecode means the response did not match the expected schema.
	// Not retryable: it implies the API contract changed.
	ErrorClassDecode ErrorClass = "decode"
)

// Sentinels for errors.Is matching on the class of an *APIError.
var (
	ErrConfig  = errors.New("invalid search request")
	ErrNetwork = errors.New("search API unreachable")
	ErrDecode  = errors.New("unexpected search API response")
)

// APIError represents a failed page fetch with additional context.
type APIError struct {
	Class      ErrorClass
	StatusCode int // 0 when no response was received
	Message    string
	Err        error
}

// Error implements the error interface.
func (e *APIError) Error() string {
	msg := fmt.Sprintf("search %s error", e.Class)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (status %d)", e.StatusCode)
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += fmt.Sprintf(": %v", e.Err)
	}
	return msg
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *APIError) Unwrap() error {
	return e.Err
}

// Is matches the class sentinels.
func (e *APIError) Is(target error) bool {
	switch target {
	case ErrConfig:
		return e.Class == ErrorClassConfig
	case ErrNetwork:
		return e.Class == ErrorClassNetwork
	case ErrDecode:
		return e.Class == ErrorClassDecode
	}
	return false
}

// ClassOf returns the class of err, or "" if err is not an *APIError.
func ClassOf(err error) ErrorClass {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Class
	}
	return ""
}

// Retryable reports whether repeating the same search may succeed.
func Retryable(err error) bool {
	return ClassOf(err) == ErrorClassNetwork
}

func configError(format string, args ...any) *APIError {
	return &APIError{Class: ErrorClassConfig, Message: fmt.Sprintf(format, args...)}
}

func networkError(status int, message string, err error) *APIError {
	return &APIError{Class: ErrorClassNetwork, StatusCode: status, Message: message, Err: err}
}

func decodeError(message string, err error) *APIError {
	return &APIError{Class: ErrorClassDecode, StatusCode: 200, Message: message, Err: err}
}
