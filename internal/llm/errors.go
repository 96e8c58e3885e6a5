package llm

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrUnrecognizedChoice is returned when a choice carries neither a text
	// field nor a message content field.
	ErrUnrecognizedChoice = errors.New("choice has neither text nor message content")

	// ErrNoChoices is returned when a response contains an empty choices array.
	ErrNoChoices = errors.New("response contains no choices")
)

// ValidationError reports caller input that violates a stated bound.
type ValidationError struct {
	// Fields names the offending fields, in check order.
	Fields []string
	// Errors holds one human-readable message per violation.
	Errors []string
}

func (e *ValidationError) Error() string {
	return "validation failed: " + strings.Join(e.Errors, "; ")
}

func (e *ValidationError) add(field, msg string) {
	e.Fields = append(e.Fields, field)
	e.Errors = append(e.Errors, msg)
}

// errOrNil returns e when at least one violation was recorded.
func (e *ValidationError) errOrNil() error {
	if len(e.Errors) == 0 {
		return nil
	}
	return e
}

// ConfigurationError is returned when the endpoint URL or token needed for
// an outbound call is not configured. No network call is attempted.
type ConfigurationError struct {
	Missing []string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("LLM API not configured: missing %s; set the API URL and token first",
		strings.Join(e.Missing, " and "))
}

// UpstreamError is returned when the LLM endpoint answered with an error status.
type UpstreamError struct {
	StatusCode int
	Message    string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("LLM API error (%d): %s", e.StatusCode, e.Message)
}

// Rejected reports whether the upstream rejected the request itself (4xx)
// rather than failing to process it (5xx).
func (e *UpstreamError) Rejected() bool {
	return e.StatusCode < statusResponseReceivedBelow
}

// NetworkError is returned when no response was received: timeouts, DNS
// failures, refused connections.
type NetworkError struct {
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error: unable to reach the LLM API, check the API URL and your network connection (%v)", e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// NoResponseError is returned when a response was received and parsed but
// carried no usable choice.
type NoResponseError struct {
	Err error
}

func (e *NoResponseError) Error() string {
	return fmt.Sprintf("no response from LLM API: %v", e.Err)
}

func (e *NoResponseError) Unwrap() error { return e.Err }

// RequestError wraps any other failure while performing a completion.
type RequestError struct {
	Err error
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("request failed: %v", e.Err)
}

func (e *RequestError) Unwrap() error { return e.Err }
