package tools

import (
	"errors"
	"fmt"
)

var (
	ErrUnknownTool = errors.New("unknown tool")

	// ErrCanceled terminates an operation the user aborted.
	ErrCanceled = errors.New("operation canceled")

	// ErrInvalidInput is returned before any work starts.
	ErrInvalidInput = errors.New("invalid input")
)

// ServiceError wraps a failure reported by an external processing service.
// The wrapped error is opaque; users only ever see UserMessage.
type ServiceError struct {
	Service string
	Err     error
}

func (e *ServiceError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Service, e.Err)
}

func (e *ServiceError) Unwrap() error { return e.Err }

// UserMessage is the generic human-readable text shown for the failure.
func (e *ServiceError) UserMessage() string {
	return "Processing failed. Check the input and try again."
}

// NewServiceError wraps err unless it is nil or already a ServiceError.
func NewServiceError(service string, err error) error {
	if err == nil {
		return nil
	}
	var se *ServiceError
	if errors.As(err, &se) {
		return err
	}
	return &ServiceError{Service: service, Err: err}
}

// UserMessage maps any operation error to the text shown to the user.
func UserMessage(err error) string {
	var se *ServiceError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &se):
		return se.UserMessage()
	case errors.Is(err, ErrCanceled):
		return "Canceled."
	case errors.Is(err, ErrInvalidInput):
		return err.Error()
	}
	return "Something went wrong. Please try again."
}
