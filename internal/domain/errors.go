package domain

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorKind classifies workflow failures.
type ErrorKind string

const (
	ErrUnauthorized    ErrorKind = "unauthorized"
	ErrBadRequest      ErrorKind = "bad_request"
	ErrNotFound        ErrorKind = "not_found"
	ErrUpstreamFailure ErrorKind = "upstream_failure"
	ErrWorkflowFailed  ErrorKind = "workflow_failed"
)

// WorkflowError is the single error shape returned by stage handlers.
// All kinds are terminal for the current invocation.
type WorkflowError struct {
	Kind    ErrorKind
	Stage   Collaborator // set for UpstreamFailure
	Message string       // client-facing
	Details string       // client-facing, optional
	Err     error        // internal cause, logged only
}

func (e *WorkflowError) Error() string {
	msg := e.Message
	if e.Details != "" {
		msg += ": " + e.Details
	}
	if e.Err != nil {
		msg += " (" + e.Err.Error() + ")"
	}
	return msg
}

func (e *WorkflowError) Unwrap() error {
	return e.Err
}

// HTTPStatus maps the error kind to a response status.
func (e *WorkflowError) HTTPStatus() int {
	switch e.Kind {
	case ErrUnauthorized:
		return http.StatusUnauthorized
	case ErrBadRequest:
		return http.StatusBadRequest
	case ErrNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// Body returns the JSON error body sent to the caller.
func (e *WorkflowError) Body() map[string]string {
	body := map[string]string{"error": e.Message}
	if e.Details != "" {
		body["details"] = e.Details
	}
	return body
}

// BadRequest builds a validation error.
func BadRequest(format string, args ...interface{}) *WorkflowError {
	return &WorkflowError{Kind: ErrBadRequest, Message: fmt.Sprintf(format, args...)}
}

// NotFound builds a missing-record error.
func NotFound(message string) *WorkflowError {
	return &WorkflowError{Kind: ErrNotFound, Message: message}
}

// Unauthorized builds a caller identity error.
func Unauthorized() *WorkflowError {
	return &WorkflowError{Kind: ErrUnauthorized, Message: "Unauthorized"}
}

// UpstreamFailure builds an error naming the collaborator whose call failed.
func UpstreamFailure(stage Collaborator, details string, cause error) *WorkflowError {
	return &WorkflowError{
		Kind:    ErrUpstreamFailure,
		Stage:   stage,
		Message: stage.Title() + " agent failed",
		Details: details,
		Err:     cause,
	}
}

// WorkflowFailed wraps an unexpected internal error. The cause is never sent to the caller.
func WorkflowFailed(cause error) *WorkflowError {
	return &WorkflowError{Kind: ErrWorkflowFailed, Message: "Workflow failed", Err: cause}
}

// AsWorkflowError converts any error into a WorkflowError, treating unknown errors as internal.
func AsWorkflowError(err error) *WorkflowError {
	if err == nil {
		return nil
	}
	var wfErr *WorkflowError
	if errors.As(err, &wfErr) {
		return wfErr
	}
	return WorkflowFailed(err)
}
