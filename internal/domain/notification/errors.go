package notification

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidTemplate = errors.New("invalid email template")
	ErrInvalidEvent    = errors.New("invalid notification event")
)

// ValidationError is a field-level problem with a template or event.
type ValidationError struct {
	Field   string
	Message string
	err     error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error {
	return e.err
}

func invalid(field, format string, args ...interface{}) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...), err: ErrInvalidTemplate}
}

func invalidEvent(field, format string, args ...interface{}) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...), err: ErrInvalidEvent}
}
