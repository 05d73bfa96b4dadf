package billingform

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Edit is one builder operation sent by the admin console. Which fields are
// read depends on Op.
type Edit struct {
	Op                  string       `json:"op"`
	Type                QuestionType `json:"type,omitempty"`
	Text                string       `json:"text,omitempty"`
	Required            bool         `json:"required,omitempty"`
	Question            int          `json:"question"`
	Option              int          `json:"option"`
	To                  int          `json:"to"`
	BillingCodeID       *uuid.UUID   `json:"billing_code_id,omitempty"`
	DependsOnQuestionID *uuid.UUID   `json:"depends_on_question_id,omitempty"`
	DependsOnOptionID   *uuid.UUID   `json:"depends_on_option_id,omitempty"`
}

const (
	OpAddQuestion    = "add_question"
	OpEditQuestion   = "edit_question"
	OpMoveQuestion   = "move_question"
	OpRemoveQuestion = "remove_question"
	OpAddOption      = "add_option"
	OpEditOption     = "edit_option"
	OpRemoveOption   = "remove_option"
	OpSetDependency  = "set_dependency"
)

func (f *Form) apply(e Edit) error {
	switch e.Op {
	case OpAddQuestion:
		q, err := f.AddQuestion(e.Type)
		if err != nil {
			return err
		}
		q.Text = e.Text
		q.Required = e.Required
		return nil
	case OpEditQuestion:
		return f.EditQuestion(e.Question, e.Text, e.Required)
	case OpMoveQuestion:
		return f.MoveQuestion(e.Question, e.To)
	case OpRemoveQuestion:
		return f.RemoveQuestion(e.Question)
	case OpAddOption:
		o, err := f.AddOption(e.Question, e.Text)
		if errors.Is(err, ErrFixedOptions) {
			return nil
		}
		if err != nil {
			return err
		}
		o.BillingCodeID = cloneID(e.BillingCodeID)
		return nil
	case OpEditOption:
		return f.EditOption(e.Question, e.Option, e.Text, cloneID(e.BillingCodeID))
	case OpRemoveOption:
		if err := f.RemoveOption(e.Question, e.Option); !errors.Is(err, ErrFixedOptions) {
			return err
		}
		return nil
	case OpSetDependency:
		return f.SetDependency(e.Question, cloneID(e.DependsOnQuestionID), cloneID(e.DependsOnOptionID))
	default:
		return invalid("op", "unknown edit operation %q", e.Op)
	}
}

// ApplyEdits runs edits against a copy of f and returns the copy. f itself
// is never modified, so a failing edit leaves nothing half applied. Adding or
// removing options of yes/no, text and number questions is skipped.
func ApplyEdits(f *Form, edits []Edit) (*Form, error) {
	out, err := f.Clone()
	if err != nil {
		return nil, err
	}
	for i, e := range edits {
		if err := out.apply(e); err != nil {
			return nil, fmt.Errorf("edit %d (%s): %w", i, e.Op, err)
		}
	}
	return out, nil
}
