package snowapi

import (
	"errors"
	"fmt"
	"net/http"
)

// ConfigurationError reports a required identity or session field that is
// not set. It is returned before any request is sent.
type ConfigurationError struct {
	Field string
	Err   error
}

func (e *ConfigurationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("configuration: %s: %v", e.Field, e.Err)
	}
	return fmt.Sprintf("configuration: %s not set", e.Field)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// ResultError reports a response that is missing required fields or carries
// a code outside the set expected for the operation. Status is 406 for a
// structurally unacceptable body, 422 for a recognized but unsuccessful
// result, or the HTTP status of a failed request.
type ResultError struct {
	Status  int
	Code    string
	Message string
}

func (e *ResultError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s (%s)", e.Message, e.Code)
	}
	return e.Message
}

func unacceptable(format string, args ...any) *ResultError {
	return &ResultError{Status: http.StatusNotAcceptable, Message: fmt.Sprintf(format, args...)}
}

// DecodeError reports a response body that is empty, not JSON, or not a
// JSON object.
type DecodeError struct {
	URL string
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode response for %q: %v", e.URL, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// TranslateError reports a schema missing required keys or a column type
// the decoder does not know.
type TranslateError struct {
	Type    string
	Message string
}

func (e *TranslateError) Error() string {
	if e.Type != "" {
		return fmt.Sprintf("type %q not found", e.Type)
	}
	return e.Message
}

// ErrMaxPollsExceeded is returned by WaitForResult when the statement is
// still running after the allowed number of polls.
var ErrMaxPollsExceeded = errors.New("max polls exceeded while waiting for completion")
