package billingform

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/jinzhu/copier"
)

// NewForm returns an empty form with a client-generated id.
func NewForm(name string) *Form {
	return &Form{ID: uuid.New(), Name: name}
}

func defaultOptionTexts(t QuestionType) []string {
	switch t {
	case TypeYesNo:
		return []string{"Ja", "Nein"}
	case TypeSingleChoice:
		return []string{"Option 1"}
	case TypeMultipleChoice:
		return []string{"Option 1", "Option 2"}
	case TypeBulletPoints:
		return []string{"Punkt 1", "Punkt 2", "Punkt 3"}
	case TypeText, TypeNumber:
		return []string{""}
	}
	return nil
}

func newOption(text string) *Option {
	return &Option{ID: uuid.New(), Text: text}
}

// AddQuestion appends a question of type t seeded with its default options.
func (f *Form) AddQuestion(t QuestionType) (*Question, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownQuestionType, t)
	}
	q := &Question{ID: uuid.New(), FormID: f.ID, Type: t}
	for _, text := range defaultOptionTexts(t) {
		o := newOption(text)
		if t.FreeInput() {
			o.OptionType = string(t)
		}
		q.Options = append(q.Options, o)
	}
	f.Questions = append(f.Questions, q)
	f.renumber()
	return q, nil
}

func (f *Form) question(i int) (*Question, error) {
	if i < 0 || i >= len(f.Questions) {
		return nil, fmt.Errorf("%w: question %d", ErrIndexOutOfRange, i)
	}
	return f.Questions[i], nil
}

// EditQuestion changes the text and required flag of question i.
func (f *Form) EditQuestion(i int, text string, required bool) error {
	q, err := f.question(i)
	if err != nil {
		return err
	}
	q.Text = text
	q.Required = required
	return nil
}

// MoveQuestion moves the question at index from to index to. Dependencies
// that become forward references are rejected on save, not here.
func (f *Form) MoveQuestion(from, to int) error {
	q, err := f.question(from)
	if err != nil {
		return err
	}
	if to < 0 || to >= len(f.Questions) {
		return fmt.Errorf("%w: question %d", ErrIndexOutOfRange, to)
	}
	if from == to {
		return nil
	}
	rest := append(f.Questions[:from:from], f.Questions[from+1:]...)
	moved := make([]*Question, 0, len(f.Questions))
	moved = append(moved, rest[:to]...)
	moved = append(moved, q)
	moved = append(moved, rest[to:]...)
	f.Questions = moved
	f.renumber()
	return nil
}

// RemoveQuestion deletes question i and clears every dependency pair that
// pointed at it.
func (f *Form) RemoveQuestion(i int) error {
	q, err := f.question(i)
	if err != nil {
		return err
	}
	f.Questions = append(f.Questions[:i:i], f.Questions[i+1:]...)
	for _, other := range f.Questions {
		if other.DependsOnQuestionID != nil && *other.DependsOnQuestionID == q.ID {
			other.DependsOnQuestionID = nil
			other.DependsOnOptionID = nil
		}
	}
	f.renumber()
	return nil
}

// AddOption appends an option to question qi. Yes/no, text and number
// questions keep their options unchanged.
func (f *Form) AddOption(qi int, text string) (*Option, error) {
	q, err := f.question(qi)
	if err != nil {
		return nil, err
	}
	if q.Type.FixedOptions() {
		return nil, fmt.Errorf("%w: %s", ErrFixedOptions, q.Type)
	}
	o := newOption(text)
	q.Options = append(q.Options, o)
	f.renumber()
	return o, nil
}

func (f *Form) optionAt(qi, oi int) (*Question, *Option, error) {
	q, err := f.question(qi)
	if err != nil {
		return nil, nil, err
	}
	if oi < 0 || oi >= len(q.Options) {
		return nil, nil, fmt.Errorf("%w: option %d of question %d", ErrIndexOutOfRange, oi, qi)
	}
	return q, q.Options[oi], nil
}

// RemoveOption deletes option oi of question qi. The final option of a
// question is never removed. Dependency pairs targeting the option are
// cleared.
func (f *Form) RemoveOption(qi, oi int) error {
	q, o, err := f.optionAt(qi, oi)
	if err != nil {
		return err
	}
	if q.Type.FixedOptions() {
		return fmt.Errorf("%w: %s", ErrFixedOptions, q.Type)
	}
	if len(q.Options) <= 1 {
		return ErrLastOption
	}
	q.Options = append(q.Options[:oi:oi], q.Options[oi+1:]...)
	for _, other := range f.Questions {
		if other.DependsOnOptionID != nil && *other.DependsOnOptionID == o.ID {
			other.DependsOnQuestionID = nil
			other.DependsOnOptionID = nil
		}
	}
	f.renumber()
	return nil
}

// EditOption sets the text and billing code of an option. The synthetic
// option of text and number questions may carry a code but keeps no text.
func (f *Form) EditOption(qi, oi int, text string, billingCodeID *uuid.UUID) error {
	q, o, err := f.optionAt(qi, oi)
	if err != nil {
		return err
	}
	if !q.Type.FreeInput() {
		o.Text = text
	}
	o.BillingCodeID = billingCodeID
	return nil
}

// SetDependency stores the pair as given. A half pair is accepted here and
// rejected when the form is saved.
func (f *Form) SetDependency(qi int, questionID, optionID *uuid.UUID) error {
	q, err := f.question(qi)
	if err != nil {
		return err
	}
	q.DependsOnQuestionID = questionID
	q.DependsOnOptionID = optionID
	return nil
}

// Clone returns a deep copy so an edit batch can be applied all or nothing.
func (f *Form) Clone() (*Form, error) {
	out := &Form{}
	if err := copier.Copy(out, f); err != nil {
		return nil, fmt.Errorf("clone billing form: %w", err)
	}
	out.CategoryID = cloneID(f.CategoryID)
	out.Questions = make([]*Question, 0, len(f.Questions))
	for _, q := range f.Questions {
		cq := &Question{}
		if err := copier.Copy(cq, q); err != nil {
			return nil, fmt.Errorf("clone question %s: %w", q.ID, err)
		}
		cq.DependsOnQuestionID = cloneID(q.DependsOnQuestionID)
		cq.DependsOnOptionID = cloneID(q.DependsOnOptionID)
		cq.Options = make([]*Option, 0, len(q.Options))
		for _, o := range q.Options {
			co := *o
			co.BillingCodeID = cloneID(o.BillingCodeID)
			cq.Options = append(cq.Options, &co)
		}
		out.Questions = append(out.Questions, cq)
	}
	return out, nil
}

func cloneID(id *uuid.UUID) *uuid.UUID {
	if id == nil {
		return nil
	}
	v := *id
	return &v
}

func (f *Form) renumber() {
	for i, q := range f.Questions {
		q.Position = i
		q.FormID = f.ID
		for j, o := range q.Options {
			o.Position = j
			o.QuestionID = q.ID
		}
	}
}
