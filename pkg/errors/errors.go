package errors

import "fmt"

// ErrorType represents different types of errors that can occur
type ErrorType string

const (
	ErrorTypeNetwork     ErrorType = "network"
	ErrorTypeRateLimit   ErrorType = "rate_limit"
	ErrorTypeBrowser     ErrorType = "browser"
	ErrorTypeParsing     ErrorType = "parsing"
	ErrorTypeNotFound    ErrorType = "not_found"
	ErrorTypeServerError ErrorType = "server_error"
	ErrorTypeClient      ErrorType = "client"
	ErrorTypeUnknown     ErrorType = "unknown"
)

// Error represents a transfer or automation error with type information
type Error struct {
	Type    ErrorType
	Message string
	Code    int
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s error (code %d): %s", e.Type, e.Code, e.Message)
}

// New creates a typed error
func New(t ErrorType, code int, message string) *Error {
	return &Error{Type: t, Message: message, Code: code}
}

// FromStatusCode classifies an HTTP status code into a typed error
func FromStatusCode(statusCode int, message string) *Error {
	var t ErrorType
	switch {
	case statusCode == 429:
		t = ErrorTypeRateLimit
	case statusCode == 408:
		// Request timeout, transient like any network stall
		t = ErrorTypeNetwork
	case statusCode == 404:
		t = ErrorTypeNotFound
	case statusCode >= 500:
		t = ErrorTypeServerError
	case statusCode >= 400:
		t = ErrorTypeClient
	default:
		t = ErrorTypeUnknown
	}
	return &Error{Type: t, Message: message, Code: statusCode}
}

// IsRetryable checks if an error type should be retried
func IsRetryable(errorType ErrorType) bool {
	switch errorType {
	case ErrorTypeNetwork, ErrorTypeRateLimit, ErrorTypeServerError, ErrorTypeBrowser:
		return true
	case ErrorTypeClient, ErrorTypeNotFound, ErrorTypeParsing:
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
	case 408, 429: // Timeout, Too Many Requests
		return true
	case 500, 502, 503, 504: // Server errors
		return true
	case 401, 403, 404: // Client errors that won't change
		return false
	default:
		return statusCode >= 500 // Retry all 5xx errors
	}
}
