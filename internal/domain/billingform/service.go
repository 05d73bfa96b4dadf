package billingform

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinicdesk/intake/internal/domain/billing"
)

// CodeLookup resolves billing codes by id.
type CodeLookup interface {
	Lookup(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*billing.Code, error)
}

// SubmissionPublisher is told about every completed form so that
// form_submission notifications can fire.
type SubmissionPublisher interface {
	FormSubmitted(ctx context.Context, formID uuid.UUID, appointmentID *uuid.UUID) error
}

type Service struct {
	forms       FormRepository
	completions CompletionRepository
	codes       CodeLookup
	submissions SubmissionPublisher
	logger      zerolog.Logger
}

func NewService(forms FormRepository, completions CompletionRepository, codes CodeLookup, logger zerolog.Logger) *Service {
	return &Service{
		forms:       forms,
		completions: completions,
		codes:       codes,
		logger:      logger.With().Str("component", "billingform").Logger(),
	}
}

func (s *Service) SetSubmissionPublisher(p SubmissionPublisher) {
	s.submissions = p
}

// -- Forms --

func (s *Service) CreateForm(ctx context.Context, draft *FormDraft) (*Form, error) {
	draft.ID = nil
	f, err := Resolve(draft)
	if err != nil {
		s.logRejected(uuid.Nil, err)
		return nil, err
	}
	if err := s.save(ctx, f); err != nil {
		return nil, err
	}
	return f, nil
}

func (s *Service) UpdateForm(ctx context.Context, id uuid.UUID, draft *FormDraft) (*Form, error) {
	if _, err := s.forms.GetByID(ctx, id); err != nil {
		return nil, err
	}
	draft.ID = &id
	f, err := Resolve(draft)
	if err != nil {
		s.logRejected(id, err)
		return nil, err
	}
	if err := s.save(ctx, f); err != nil {
		return nil, err
	}
	return f, nil
}

func (s *Service) GetForm(ctx context.Context, id uuid.UUID) (*Form, error) {
	return s.forms.GetByID(ctx, id)
}

func (s *Service) ListForms(ctx context.Context, limit, offset int) ([]*Form, int, error) {
	return s.forms.List(ctx, limit, offset)
}

func (s *Service) DeleteForm(ctx context.Context, id uuid.UUID) error {
	return s.forms.Delete(ctx, id)
}

// AddQuestion appends a question of type t with its default options.
func (s *Service) AddQuestion(ctx context.Context, id uuid.UUID, t QuestionType, text string, required bool) (*Form, error) {
	return s.ApplyEdits(ctx, id, []Edit{{Op: OpAddQuestion, Type: t, Text: text, Required: required}})
}

// ApplyEdits loads a form, applies the edits to a copy and saves the copy.
func (s *Service) ApplyEdits(ctx context.Context, id uuid.UUID, edits []Edit) (*Form, error) {
	stored, err := s.forms.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	f, err := ApplyEdits(stored, edits)
	if err != nil {
		return nil, err
	}
	if err := f.Validate(); err != nil {
		s.logRejected(id, err)
		return nil, err
	}
	if err := s.save(ctx, f); err != nil {
		return nil, err
	}
	return f, nil
}

func (s *Service) save(ctx context.Context, f *Form) error {
	if err := s.checkCodes(ctx, f); err != nil {
		return err
	}
	if err := s.forms.Save(ctx, f); err != nil {
		s.logRejected(f.ID, err)
		return err
	}
	return nil
}

// logRejected records the full detail of a consistency failure; clients only
// get a generic message.
func (s *Service) logRejected(formID uuid.UUID, err error) {
	var depErr *DependencyError
	if !errors.As(err, &depErr) {
		return
	}
	s.logger.Error().Err(err).
		Str("form_id", formID.String()).
		Int("question_index", depErr.Index).
		Str("question_id", depErr.QuestionID.String()).
		Str("reason", depErr.Reason).
		Msg("billing form dependency rejected")
}

func (s *Service) checkCodes(ctx context.Context, f *Form) error {
	var ids []uuid.UUID
	for _, q := range f.Questions {
		for _, o := range q.Options {
			if o.BillingCodeID != nil {
				ids = append(ids, *o.BillingCodeID)
			}
		}
	}
	if len(ids) == 0 {
		return nil
	}
	codes, err := s.codes.Lookup(ctx, ids)
	if err != nil {
		return err
	}
	for i, q := range f.Questions {
		for j, o := range q.Options {
			if o.BillingCodeID != nil && codes[*o.BillingCodeID] == nil {
				return invalid(fmt.Sprintf("questions[%d].options[%d].billing_code_id", i, j),
					"unknown billing code %s", *o.BillingCodeID)
			}
		}
	}
	return nil
}

// -- Completion --

type CompletionRequest struct {
	AppointmentID *uuid.UUID `json:"appointment_id,omitempty"`
	Answers       []Answer   `json:"answers"`
}

// Complete validates answers against the visible questions of the form,
// maps selected options to billing codes and stores the result. Answers to
// hidden questions are ignored.
func (s *Service) Complete(ctx context.Context, formID uuid.UUID, req *CompletionRequest) (*Completion, error) {
	f, err := s.forms.GetByID(ctx, formID)
	if err != nil {
		return nil, err
	}

	answers := make(Answers, len(req.Answers))
	known := make(map[uuid.UUID]bool, len(f.Questions))
	for _, q := range f.Questions {
		known[q.ID] = true
	}
	for i, a := range req.Answers {
		if !known[a.QuestionID] {
			return nil, invalid(fmt.Sprintf("answers[%d].question_id", i), "question %s is not part of the form", a.QuestionID)
		}
		answers[a.QuestionID] = a
	}

	c := &Completion{FormID: f.ID, AppointmentID: req.AppointmentID}
	for _, q := range f.VisibleQuestions(answers) {
		items, err := answerItems(q, answers[q.ID])
		if err != nil {
			return nil, err
		}
		c.Items = append(c.Items, items...)
	}

	if err := s.price(ctx, c); err != nil {
		return nil, err
	}
	if err := s.completions.Create(ctx, c); err != nil {
		return nil, fmt.Errorf("store completion: %w", err)
	}

	if s.submissions != nil {
		if err := s.submissions.FormSubmitted(ctx, f.ID, req.AppointmentID); err != nil {
			s.logger.Error().Err(err).Str("form_id", f.ID.String()).Msg("form submission event failed")
		}
	}
	return c, nil
}

func answerItems(q *Question, a Answer) ([]*CompletionItem, error) {
	field := fmt.Sprintf("question %q", q.Text)

	if q.Type.FreeInput() {
		value := strings.TrimSpace(a.Value)
		if value == "" {
			if q.Required {
				return nil, invalid(field, "is required")
			}
			return nil, nil
		}
		if q.Type == TypeNumber {
			if _, err := strconv.ParseFloat(strings.Replace(value, ",", ".", 1), 64); err != nil {
				return nil, invalid(field, "expects a number, got %q", value)
			}
		}
		o := q.Options[0]
		optionID := o.ID
		return []*CompletionItem{{QuestionID: q.ID, OptionID: &optionID, Value: value, BillingCodeID: o.BillingCodeID}}, nil
	}

	if len(a.OptionIDs) == 0 {
		if q.Required {
			return nil, invalid(field, "is required")
		}
		return nil, nil
	}
	if (q.Type == TypeYesNo || q.Type == TypeSingleChoice) && len(a.OptionIDs) > 1 {
		return nil, invalid(field, "accepts a single answer")
	}

	items := make([]*CompletionItem, 0, len(a.OptionIDs))
	for _, id := range a.OptionIDs {
		o := q.option(id)
		if o == nil {
			return nil, invalid(field, "option %s does not belong to the question", id)
		}
		optionID := o.ID
		items = append(items, &CompletionItem{QuestionID: q.ID, OptionID: &optionID, Value: o.Text, BillingCodeID: o.BillingCodeID})
	}
	return items, nil
}

func (s *Service) price(ctx context.Context, c *Completion) error {
	var ids []uuid.UUID
	for _, it := range c.Items {
		if it.BillingCodeID != nil {
			ids = append(ids, *it.BillingCodeID)
		}
	}
	if len(ids) == 0 {
		return nil
	}
	codes, err := s.codes.Lookup(ctx, ids)
	if err != nil {
		return err
	}
	total := 0.0
	for _, it := range c.Items {
		if it.BillingCodeID == nil {
			continue
		}
		code, ok := codes[*it.BillingCodeID]
		if !ok {
			s.logger.Warn().Str("billing_code_id", it.BillingCodeID.String()).Msg("billing code vanished, answer not priced")
			it.BillingCodeID = nil
			continue
		}
		it.BillingCode = code.Code
		it.Price = code.Price
		total += code.Price
	}
	c.Total = math.Round(total*100) / 100
	return nil
}

func (s *Service) ListCompletions(ctx context.Context, formID uuid.UUID, limit, offset int) ([]*Completion, int, error) {
	return s.completions.ListByForm(ctx, formID, limit, offset)
}
