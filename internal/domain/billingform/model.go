package billingform

import (
	"time"

	"github.com/google/uuid"
)

type QuestionType string

const (
	TypeYesNo          QuestionType = "yes_no"
	TypeSingleChoice   QuestionType = "single_choice"
	TypeMultipleChoice QuestionType = "multiple_choice"
	TypeText           QuestionType = "text"
	TypeNumber         QuestionType = "number"
	TypeBulletPoints   QuestionType = "bullet_points"
)

var validQuestionTypes = map[QuestionType]bool{
	TypeYesNo: true, TypeSingleChoice: true, TypeMultipleChoice: true,
	TypeText: true, TypeNumber: true, TypeBulletPoints: true,
}

func (t QuestionType) Valid() bool {
	return validQuestionTypes[t]
}

// FixedOptions reports whether the option list of t can never change size.
func (t QuestionType) FixedOptions() bool {
	return t == TypeYesNo || t == TypeText || t == TypeNumber
}

// FreeInput reports whether answers carry a value instead of a choice.
func (t QuestionType) FreeInput() bool {
	return t == TypeText || t == TypeNumber
}

// Form maps to the billing_form table. Questions are ordered by Position.
type Form struct {
	ID          uuid.UUID   `db:"id" json:"id"`
	Name        string      `db:"name" json:"name"`
	Description string      `db:"description" json:"description"`
	CategoryID  *uuid.UUID  `db:"category_id" json:"category_id,omitempty"`
	Questions   []*Question `json:"questions"`
	CreatedAt   time.Time   `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time   `db:"updated_at" json:"updated_at"`
}

// Question maps to the billing_form_question table. The dependency pair is
// either fully set or fully empty once stored.
type Question struct {
	ID                  uuid.UUID    `db:"id" json:"id"`
	FormID              uuid.UUID    `db:"form_id" json:"form_id"`
	Position            int          `db:"position" json:"position"`
	Text                string       `db:"text" json:"text"`
	Type                QuestionType `db:"type" json:"type"`
	Required            bool         `db:"required" json:"required"`
	Options             []*Option    `json:"options"`
	DependsOnQuestionID *uuid.UUID   `db:"depends_on_question_id" json:"depends_on_question_id,omitempty"`
	DependsOnOptionID   *uuid.UUID   `db:"depends_on_option_id" json:"depends_on_option_id,omitempty"`
}

// HasDependency reports whether either side of the dependency pair is set.
func (q *Question) HasDependency() bool {
	return q.DependsOnQuestionID != nil || q.DependsOnOptionID != nil
}

func (q *Question) option(id uuid.UUID) *Option {
	for _, o := range q.Options {
		if o.ID == id {
			return o
		}
	}
	return nil
}

// Option maps to the billing_form_option table. OptionType is set only on
// the synthetic option of text and number questions.
type Option struct {
	ID            uuid.UUID  `db:"id" json:"id"`
	QuestionID    uuid.UUID  `db:"question_id" json:"question_id"`
	Position      int        `db:"position" json:"position"`
	Text          string     `db:"text" json:"text"`
	BillingCodeID *uuid.UUID `db:"billing_code_id" json:"billing_code_id,omitempty"`
	OptionType    string     `db:"option_type" json:"option_type,omitempty"`
}

// Completion is one filled-in form with the billing codes it implies. Items
// copy option and code ids by value so later form edits cannot orphan them.
type Completion struct {
	ID            uuid.UUID         `db:"id" json:"id"`
	FormID        uuid.UUID         `db:"form_id" json:"form_id"`
	AppointmentID *uuid.UUID        `db:"appointment_id" json:"appointment_id,omitempty"`
	Items         []*CompletionItem `json:"items"`
	Total         float64           `db:"total" json:"total"`
	CreatedAt     time.Time         `db:"created_at" json:"created_at"`
}

// CompletionItem maps to the billing_form_answer table.
type CompletionItem struct {
	ID            uuid.UUID  `db:"id" json:"id"`
	QuestionID    uuid.UUID  `db:"question_id" json:"question_id"`
	OptionID      *uuid.UUID `db:"option_id" json:"option_id,omitempty"`
	Value         string     `db:"value" json:"value,omitempty"`
	BillingCodeID *uuid.UUID `db:"billing_code_id" json:"billing_code_id,omitempty"`
	BillingCode   string     `db:"billing_code" json:"billing_code,omitempty"`
	Price         float64    `db:"price" json:"price"`
}
