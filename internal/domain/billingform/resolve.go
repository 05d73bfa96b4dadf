package billingform

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// FormDraft is the form as the admin console submits it. Question and
// option ids may be empty for entities created during editing; dependency
// references are either an id or a placeholder:
//
//	new-<i>              the i-th question of the draft
//	new-option-<i>-<j>   the j-th option of the draft's i-th question
type FormDraft struct {
	ID          *uuid.UUID      `json:"id,omitempty"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	CategoryID  *uuid.UUID      `json:"category_id,omitempty"`
	Questions   []QuestionDraft `json:"questions"`
}

type QuestionDraft struct {
	ID                string        `json:"id,omitempty"`
	Text              string        `json:"text"`
	Type              QuestionType  `json:"type"`
	Required          bool          `json:"required"`
	Options           []OptionDraft `json:"options"`
	DependsOnQuestion string        `json:"depends_on_question,omitempty"`
	DependsOnOption   string        `json:"depends_on_option,omitempty"`
}

type OptionDraft struct {
	ID            string     `json:"id,omitempty"`
	Text          string     `json:"text"`
	BillingCodeID *uuid.UUID `json:"billing_code_id,omitempty"`
	OptionType    string     `json:"option_type,omitempty"`
}

func questionPlaceholder(i int) string {
	return "new-" + strconv.Itoa(i)
}

func optionPlaceholder(i, j int) string {
	return "new-option-" + strconv.Itoa(i) + "-" + strconv.Itoa(j)
}

func assignID(raw, field string) (uuid.UUID, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || strings.HasPrefix(raw, "new-") {
		return uuid.New(), nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, invalid(field, "invalid id %q", raw)
	}
	return id, nil
}

// resolveRef maps a reference to an id. A placeholder that names no draft
// entity resolves to nil, which the pair check reports.
func resolveRef(ref string, placeholders map[string]uuid.UUID) *uuid.UUID {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil
	}
	if id, ok := placeholders[ref]; ok {
		return &id
	}
	if id, err := uuid.Parse(ref); err == nil {
		return &id
	}
	return nil
}

// Resolve turns a draft into a form ready to save. Pass one gives every
// question and option its final id and records the placeholders; pass two
// resolves each dependency pair. Nothing is written, so a rejected draft
// leaves storage untouched.
func Resolve(draft *FormDraft) (*Form, error) {
	f := &Form{
		Name:        strings.TrimSpace(draft.Name),
		Description: draft.Description,
		CategoryID:  draft.CategoryID,
	}
	if draft.ID != nil {
		f.ID = *draft.ID
	} else {
		f.ID = uuid.New()
	}

	placeholders := make(map[string]uuid.UUID)
	for i, qd := range draft.Questions {
		field := fmt.Sprintf("questions[%d]", i)
		qid, err := assignID(qd.ID, field+".id")
		if err != nil {
			return nil, err
		}
		placeholders[questionPlaceholder(i)] = qid

		q := &Question{
			ID:       qid,
			Text:     strings.TrimSpace(qd.Text),
			Type:     qd.Type,
			Required: qd.Required,
		}
		for j, od := range qd.Options {
			oid, err := assignID(od.ID, fmt.Sprintf("%s.options[%d].id", field, j))
			if err != nil {
				return nil, err
			}
			placeholders[optionPlaceholder(i, j)] = oid
			o := &Option{ID: oid, Text: od.Text, BillingCodeID: od.BillingCodeID, OptionType: od.OptionType}
			if qd.Type.FreeInput() {
				o.OptionType = string(qd.Type)
			}
			q.Options = append(q.Options, o)
		}
		f.Questions = append(f.Questions, q)
	}

	for i, qd := range draft.Questions {
		q := f.Questions[i]
		q.DependsOnQuestionID = resolveRef(qd.DependsOnQuestion, placeholders)
		q.DependsOnOptionID = resolveRef(qd.DependsOnOption, placeholders)
		// a reference that was given but did not resolve must not look unset
		if q.DependsOnQuestionID == nil && q.DependsOnOptionID == nil &&
			(strings.TrimSpace(qd.DependsOnQuestion) != "" || strings.TrimSpace(qd.DependsOnOption) != "") {
			return nil, &DependencyError{
				Index:      i,
				QuestionID: q.ID,
				Reason:     fmt.Sprintf("references %q / %q resolve to nothing", qd.DependsOnQuestion, qd.DependsOnOption),
				Err:        ErrInconsistentDependency,
			}
		}
	}

	if err := f.Validate(); err != nil {
		return nil, err
	}
	return f, nil
}
