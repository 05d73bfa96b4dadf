package billingform

import (
	"github.com/google/uuid"
)

// Answer is the response to one question: selected options for choice
// questions, Value for text and number questions.
type Answer struct {
	QuestionID uuid.UUID   `json:"question_id"`
	OptionIDs  []uuid.UUID `json:"option_ids,omitempty"`
	Value      string      `json:"value,omitempty"`
}

// Answers is keyed by question id.
type Answers map[uuid.UUID]Answer

func (a Answers) selected(questionID, optionID uuid.UUID) bool {
	ans, ok := a[questionID]
	if !ok {
		return false
	}
	for _, id := range ans.OptionIDs {
		if id == optionID {
			return true
		}
	}
	return false
}

// OptionCode returns the billing code of an option. found is false when the
// option is not part of the form; a nil code with found true is an option
// that carries no billing implication.
func (f *Form) OptionCode(optionID uuid.UUID) (code *uuid.UUID, found bool) {
	for _, q := range f.Questions {
		if o := q.option(optionID); o != nil {
			return o.BillingCodeID, true
		}
	}
	return nil, false
}

// VisibleQuestions returns the questions shown for the given answers in
// display order. A dependent question is visible when the question it
// depends on is visible and the referenced option is selected.
func (f *Form) VisibleQuestions(answers Answers) []*Question {
	visible := make(map[uuid.UUID]bool, len(f.Questions))
	var out []*Question
	for _, q := range f.Questions {
		if q.DependsOnQuestionID != nil && q.DependsOnOptionID != nil {
			parent := *q.DependsOnQuestionID
			if !visible[parent] || !answers.selected(parent, *q.DependsOnOptionID) {
				continue
			}
		}
		visible[q.ID] = true
		out = append(out, q)
	}
	return out
}
