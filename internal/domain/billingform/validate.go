package billingform

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Validate checks the form structure and then every dependency pair. It
// renumbers positions, so callers may validate after any builder edit.
func (f *Form) Validate() error {
	if strings.TrimSpace(f.Name) == "" {
		return invalid("name", "is required")
	}

	ids := make(map[uuid.UUID]bool)
	for i, q := range f.Questions {
		field := fmt.Sprintf("questions[%d]", i)
		if q.ID == uuid.Nil || ids[q.ID] {
			return invalid(field+".id", "must be unique")
		}
		ids[q.ID] = true
		if strings.TrimSpace(q.Text) == "" {
			return invalid(field+".text", "is required")
		}
		if !q.Type.Valid() {
			return invalid(field+".type", "unknown question type %q", q.Type)
		}
		if err := checkOptionCount(q, field); err != nil {
			return err
		}
		for j, o := range q.Options {
			if o.ID == uuid.Nil || ids[o.ID] {
				return invalid(fmt.Sprintf("%s.options[%d].id", field, j), "must be unique")
			}
			ids[o.ID] = true
		}
	}

	f.renumber()
	return f.checkDependencies()
}

func checkOptionCount(q *Question, field string) error {
	n := len(q.Options)
	switch {
	case q.Type == TypeYesNo && n != 2:
		return invalid(field+".options", "yes/no questions have exactly two options, got %d", n)
	case q.Type.FreeInput() && n != 1:
		return invalid(field+".options", "%s questions have exactly one option, got %d", q.Type, n)
	case n == 0:
		return invalid(field+".options", "at least one option is required")
	}
	return nil
}

func (f *Form) checkDependencies() error {
	index := make(map[uuid.UUID]int, len(f.Questions))
	for i, q := range f.Questions {
		index[q.ID] = i
	}

	for i, q := range f.Questions {
		if !q.HasDependency() {
			continue
		}
		fail := func(err error, reason string, args ...interface{}) error {
			return &DependencyError{Index: i, QuestionID: q.ID, Reason: fmt.Sprintf(reason, args...), Err: err}
		}
		if q.DependsOnQuestionID == nil || q.DependsOnOptionID == nil {
			return fail(ErrInconsistentDependency, "only one side of the dependency pair is set")
		}
		j, ok := index[*q.DependsOnQuestionID]
		if !ok {
			return fail(ErrInconsistentDependency, "question %s is not part of the form", *q.DependsOnQuestionID)
		}
		if j >= i {
			return fail(ErrForwardDependency, "depends on question at position %d", j)
		}
		target := f.Questions[j]
		if target.Type.FreeInput() {
			return fail(ErrInconsistentDependency, "question %d has no selectable options", j)
		}
		if target.option(*q.DependsOnOptionID) == nil {
			return fail(ErrInconsistentDependency, "option %s does not belong to question %d", *q.DependsOnOptionID, j)
		}
	}
	return nil
}
