package client

import (
	"errors"
	"fmt"
	"time"
)

// Common errors returned by the client.
var (
	// ErrRetryExhausted is returned when all retry attempts are exhausted.
	ErrRetryExhausted = errors.New("retry attempts exhausted")

	// ErrContextCancelled is returned when the context is cancelled during retry.
	ErrContextCancelled = errors.New("context cancelled")

	// ErrRequestBlocked is returned when the upstream budget is critical.
	ErrRequestBlocked = errors.New("request blocked: upstream budget critical")
)

// ErrorClass represents a classification of upstream failures.
type ErrorClass string

const (
	// ErrorClassClient represents 4xx client errors other than 429.
	ErrorClassClient ErrorClass = "client"

	// ErrorClassServer represents 5xx server errors.
	ErrorClassServer ErrorClass = "server"

	// ErrorClassRateLimit represents 429 Too Many Requests.
	ErrorClassRateLimit ErrorClass = "rate_limit"

	// ErrorClassNetwork represents transport failures and timeouts.
	ErrorClassNetwork ErrorClass = "network"

	// ErrorClassMalformed represents a successful response whose payload
	// could not be decoded.
	ErrorClassMalformed ErrorClass = "malformed"
)

// APIError is an upstream failure with its classification.
type APIError struct {
	StatusCode int
	Class      ErrorClass
	Endpoint   string
	Message    string

	// RetryAfter is the server-requested delay, if any.
	RetryAfter time.Duration

	Err error
}

// Error implements the error interface.
func (e *APIError) Error() string {
	msg := fmt.Sprintf("katapi %s error", e.Class)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (status %d)", e.StatusCode)
	}
	if e.Endpoint != "" {
		msg += " on " + e.Endpoint
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *APIError) Unwrap() error {
	return e.Err
}

// ClassOf returns the class of the first APIError in err's chain, or "".
func ClassOf(err error) ErrorClass {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Class
	}
	return ""
}

// IsTransport reports whether err is a network-level failure.
func IsTransport(err error) bool {
	return ClassOf(err) == ErrorClassNetwork
}

// IsUpstreamStatus reports whether err is a non-success upstream status.
func IsUpstreamStatus(err error) bool {
	switch ClassOf(err) {
	case ErrorClassClient, ErrorClassServer, ErrorClassRateLimit:
		return true
	}
	return false
}

// IsMalformed reports whether err is an undecodable upstream payload.
func IsMalformed(err error) bool {
	return ClassOf(err) == ErrorClassMalformed
}

// classifyStatus maps an HTTP status >= 400 to an error class.
func classifyStatus(code int) ErrorClass {
	switch {
	case code == 429:
		return ErrorClassRateLimit
	case code >= 400 && code < 500:
		return ErrorClassClient
	case code >= 500:
		return ErrorClassServer
	default:
		return ""
	}
}

// shouldRetry determines if an error class is worth another attempt.
func shouldRetry(errorClass ErrorClass) bool {
	switch errorClass {
	case ErrorClassServer, ErrorClassRateLimit, ErrorClassNetwork:
		return true
	default:
		// Client errors and malformed payloads repeat identically.
		return false
	}
}
