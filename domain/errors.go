package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors shared across the client runtime
var (
	ErrEmptyMessage     = &ValidationError{Field: "message", Reason: "message cannot be empty"}
	ErrRequestPending   = errors.New("another request is already in flight")
	ErrRecordingActive  = errors.New("a recording is already active")
	ErrNoRecording      = errors.New("no active recording")
	ErrPermissionDenied = &PermissionError{Resource: "microphone", Reason: "Unable to access microphone. Please check permissions."}
	ErrNotAuthenticated = &AuthError{Reason: "authentication required"}
	ErrMessageNotFound  = errors.New("message not found")
	ErrNoAudio          = errors.New("no audio attached")
	ErrSessionReset     = errors.New("conversation was reset while the request was in flight")
)

// ValidationError reports bad local input. It never reaches the network.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// PermissionError reports a refused capability (microphone)
type PermissionError struct {
	Resource string
	Reason   string
}

func (e *PermissionError) Error() string {
	return fmt.Sprintf("%s permission denied: %s", e.Resource, e.Reason)
}

// NetworkError means no response reached the client, timeouts included
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s: network error: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// ServiceError means the remote service answered with a failure status
type ServiceError struct {
	Op      string
	Status  int
	Message string
}

func (e *ServiceError) Error() string {
	return fmt.Sprintf("%s: %s", e.Op, e.Message)
}

// DecodeError means the response shape or content was not what we expect
type DecodeError struct {
	Op  string
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("%s: unexpected response: %v", e.Op, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// AuthError reports a missing or rejected credential on a protected call
type AuthError struct {
	Reason string
}

func (e *AuthError) Error() string {
	return "authentication error: " + e.Reason
}

// Kind maps an error to a stable identifier used on the bridge wire
func Kind(err error) string {
	var (
		validationErr *ValidationError
		permissionErr *PermissionError
		networkErr    *NetworkError
		serviceErr    *ServiceError
		decodeErr     *DecodeError
		authErr       *AuthError
	)

	switch {
	case err == nil:
		return ""
	case errors.As(err, &validationErr):
		return "validation"
	case errors.As(err, &permissionErr):
		return "permission"
	case errors.As(err, &authErr):
		return "auth"
	case errors.As(err, &networkErr):
		return "network"
	case errors.As(err, &serviceErr):
		return "service"
	case errors.As(err, &decodeErr):
		return "decode"
	case errors.Is(err, ErrRequestPending), errors.Is(err, ErrRecordingActive), errors.Is(err, ErrSessionReset):
		return "conflict"
	case errors.Is(err, ErrMessageNotFound), errors.Is(err, ErrNoRecording), errors.Is(err, ErrNoAudio):
		return "not_found"
	default:
		return "internal"
	}
}

// UserMessage returns the human readable text surfaced in notices
func UserMessage(err error) string {
	var (
		validationErr *ValidationError
		permissionErr *PermissionError
		serviceErr    *ServiceError
		networkErr    *NetworkError
		decodeErr     *DecodeError
		authErr       *AuthError
	)

	switch {
	case errors.As(err, &validationErr):
		return validationErr.Reason
	case errors.As(err, &permissionErr):
		return permissionErr.Reason
	case errors.As(err, &authErr):
		if authErr == ErrNotAuthenticated {
			return "Please sign in to continue."
		}
		return authErr.Reason
	case errors.As(err, &serviceErr):
		return serviceErr.Message
	case errors.As(err, &networkErr):
		return "Unable to reach the advisory service. Please try again."
	case errors.As(err, &decodeErr):
		return "The advisory service returned an unexpected response."
	default:
		return err.Error()
	}
}
