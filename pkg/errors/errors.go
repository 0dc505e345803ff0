package errors

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorType represents different types of errors that can occur
type ErrorType string

const (
	ErrorTypeNetwork        ErrorType = "network"
	ErrorTypeRateLimit      ErrorType = "rate_limit"
	ErrorTypeNotFound       ErrorType = "not_found"
	ErrorTypeResponseFormat ErrorType = "response_format"
	ErrorTypeCache          ErrorType = "cache"
	ErrorTypeServerError    ErrorType = "server_error"
	ErrorTypeUnknown        ErrorType = "unknown"
)

// Error represents an API or storage error with type information
type Error struct {
	Type    ErrorType
	Message string
	Code    int
	Err     error
}

func (e *Error) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("%s error (code %d): %s", e.Type, e.Code, e.Message)
	}
	return fmt.Sprintf("%s error: %s", e.Type, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates a typed error without an HTTP status code
func New(t ErrorType, msg string) *Error {
	return &Error{Type: t, Message: msg}
}

// Newf creates a typed error with a formatted message
func Newf(t ErrorType, format string, args ...interface{}) *Error {
	return &Error{Type: t, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates a typed error wrapping an underlying cause
func Wrap(t ErrorType, msg string, err error) *Error {
	return &Error{Type: t, Message: msg, Err: err}
}

// NotFound creates a not_found error
func NotFound(format string, args ...interface{}) *Error {
	return Newf(ErrorTypeNotFound, format, args...)
}

// CacheErr wraps a filesystem error as a cache error
func CacheErr(msg string, err error) *Error {
	return Wrap(ErrorTypeCache, msg, err)
}

// TypeOf returns the ErrorType of err, or ErrorTypeUnknown if err carries
// no type information
func TypeOf(err error) ErrorType {
	var e *Error
	if errors.As(err, &e) {
		return e.Type
	}
	return ErrorTypeUnknown
}

// Is reports whether err is a typed error of the given type
func Is(err error, t ErrorType) bool {
	var e *Error
	return errors.As(err, &e) && e.Type == t
}

// IsRetryable checks if an error type should be retried
func IsRetryable(errorType ErrorType) bool {
	switch errorType {
	case ErrorTypeNetwork, ErrorTypeRateLimit, ErrorTypeServerError:
		return true
	case ErrorTypeNotFound, ErrorTypeResponseFormat, ErrorTypeCache:
		return false
	default:
		return false
	}
}

// IsRetryableStatusCode checks if an HTTP status code indicates a retryable error
func IsRetryableStatusCode(statusCode int) bool {
	switch statusCode {
	case 0: // Network error
		return true
	case 429: // Too Many Requests
		return true
	case 500, 502, 503, 504: // Server errors
		return true
	case 401, 403, 404: // Client errors that won't change
		return false
	default:
		return statusCode >= 500 // Retry all 5xx errors
	}
}

// rateLimitTerms are text fragments that identify throttling responses
// coming from layers that don't attach a status code
var rateLimitTerms = []string{"rate limit", "429", "too many", "throttl"}

// IsRateLimitSignal reports whether err looks like a throttling response.
// The structured error type is authoritative; the text match is a fallback
// classifier for errors that carry no status code.
func IsRateLimitSignal(err error) bool {
	if err == nil {
		return false
	}

	var e *Error
	if errors.As(err, &e) {
		if e.Type == ErrorTypeRateLimit {
			return true
		}
		if e.Code != 0 {
			return e.Code == 429
		}
	}

	msg := strings.ToLower(err.Error())
	for _, term := range rateLimitTerms {
		if strings.Contains(msg, term) {
			return true
		}
	}
	return false
}
