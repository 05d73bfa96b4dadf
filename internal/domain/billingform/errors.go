package billingform

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var (
	ErrUnknownQuestionType    = errors.New("unknown question type")
	ErrFixedOptions           = errors.New("options of this question type cannot be added or removed")
	ErrLastOption             = errors.New("a question needs at least one option")
	ErrIndexOutOfRange        = errors.New("index out of range")
	ErrInvalidForm            = errors.New("invalid billing form")
	ErrInconsistentDependency = errors.New("inconsistent question dependency")
	ErrForwardDependency      = errors.New("question may only depend on an earlier question")
)

// ValidationError is a field-level problem the admin console shows inline.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalidForm
}

func invalid(field, format string, args ...interface{}) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// DependencyError identifies the question whose dependency pair could not be
// stored. Err is ErrInconsistentDependency or ErrForwardDependency.
type DependencyError struct {
	Index      int
	QuestionID uuid.UUID
	Reason     string
	Err        error
}

func (e *DependencyError) Error() string {
	return fmt.Sprintf("question %d (%s): %s: %v", e.Index, e.QuestionID, e.Reason, e.Err)
}

func (e *DependencyError) Unwrap() error {
	return e.Err
}
