package client

import (
	"errors"
	"fmt"
	"testing"
)

func TestShouldRetry(t *testing.T) {
	tests := []struct {
		errorClass ErrorClass
		expected   bool
	}{
		{errorClass: ErrorClassClient, expected: false},
		{errorClass: ErrorClassServer, expected: true},
		{errorClass: ErrorClassRateLimit, expected: true},
		{errorClass: ErrorClassNetwork, expected: true},
		{errorClass: ErrorClassMalformed, expected: false},
		{errorClass: "", expected: false},
	}

	for _, tt := range tests {
		t.Run(string(tt.errorClass), func(t *testing.T) {
			if result := shouldRetry(tt.errorClass); result != tt.expected {
				t.Errorf("shouldRetry(%q) = %v, want %v", tt.errorClass, result, tt.expected)
			}
		})
	}
}

func TestClassifyStatus(t *testing.T) {
	tests := []struct {
		status int
		want   ErrorClass
	}{
		{status: 400, want: ErrorClassClient},
		{status: 403, want: ErrorClassClient},
		{status: 404, want: ErrorClassClient},
		{status: 429, want: ErrorClassRateLimit},
		{status: 500, want: ErrorClassServer},
		{status: 503, want: ErrorClassServer},
		{status: 200, want: ""},
	}

	for _, tt := range tests {
		if got := classifyStatus(tt.status); got != tt.want {
			t.Errorf("classifyStatus(%d) = %q, want %q", tt.status, got, tt.want)
		}
	}
}

func TestAPIError_Error(t *testing.T) {
	tests := []struct {
		name     string
		apiError *APIError
		expected string
	}{
		{
			name: "server error with wrapped error",
			apiError: &APIError{
				StatusCode: 500,
				Class:      ErrorClassServer,
				Endpoint:   "/nfts/entries",
				Message:    "internal server error",
				Err:        errors.New("connection reset"),
			},
			expected: "katapi server error (status 500) on /nfts/entries: internal server error: connection reset",
		},
		{
			name:     "client error",
			apiError: &APIError{StatusCode: 404, Class: ErrorClassClient, Message: "tick not found"},
			expected: "katapi client error (status 404): tick not found",
		},
		{
			name:     "network error without status",
			apiError: &APIError{Class: ErrorClassNetwork, Endpoint: "/nfts/tick", Err: errors.New("dial tcp: refused")},
			expected: "katapi network error on /nfts/tick: dial tcp: refused",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if result := tt.apiError.Error(); result != tt.expected {
				t.Errorf("Error() = %q, want %q", result, tt.expected)
			}
		})
	}
}

func TestAPIError_Unwrap(t *testing.T) {
	wrappedErr := errors.New("wrapped error")
	apiError := &APIError{StatusCode: 500, Class: ErrorClassServer, Err: wrappedErr}

	if !errors.Is(apiError, wrappedErr) {
		t.Error("errors.Is should find the wrapped error")
	}
	if (&APIError{Class: ErrorClassClient}).Unwrap() != nil {
		t.Error("Unwrap() of an error without cause should be nil")
	}
}

func TestClassHelpers(t *testing.T) {
	wrap := func(class ErrorClass) error {
		return fmt.Errorf("%w after 3 attempts: %w", ErrRetryExhausted, &APIError{Class: class})
	}

	tests := []struct {
		name             string
		err              error
		transport        bool
		upstreamStatus   bool
		malformed        bool
		expectedClassOf  ErrorClass
	}{
		{name: "network", err: wrap(ErrorClassNetwork), transport: true, expectedClassOf: ErrorClassNetwork},
		{name: "server", err: wrap(ErrorClassServer), upstreamStatus: true, expectedClassOf: ErrorClassServer},
		{name: "rate limit", err: wrap(ErrorClassRateLimit), upstreamStatus: true, expectedClassOf: ErrorClassRateLimit},
		{name: "client", err: &APIError{Class: ErrorClassClient}, upstreamStatus: true, expectedClassOf: ErrorClassClient},
		{name: "malformed", err: &APIError{Class: ErrorClassMalformed}, malformed: true, expectedClassOf: ErrorClassMalformed},
		{name: "plain error", err: errors.New("boom")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsTransport(tt.err); got != tt.transport {
				t.Errorf("IsTransport() = %v, want %v", got, tt.transport)
			}
			if got := IsUpstreamStatus(tt.err); got != tt.upstreamStatus {
				t.Errorf("IsUpstreamStatus() = %v, want %v", got, tt.upstreamStatus)
			}
			if got := IsMalformed(tt.err); got != tt.malformed {
				t.Errorf("IsMalformed() = %v, want %v", got, tt.malformed)
			}
			if got := ClassOf(tt.err); got != tt.expectedClassOf {
				t.Errorf("ClassOf() = %q, want %q", got, tt.expectedClassOf)
			}
		})
	}
}
