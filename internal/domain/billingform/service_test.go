package billingform

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinicdesk/intake/internal/domain/billing"
)

type mockFormRepo struct {
	data  map[uuid.UUID]*Form
	saves int
}

func newMockFormRepo() *mockFormRepo {
	return &mockFormRepo{data: make(map[uuid.UUID]*Form)}
}

func (m *mockFormRepo) Save(_ context.Context, f *Form) error {
	m.saves++
	m.data[f.ID] = f
	return nil
}

func (m *mockFormRepo) GetByID(_ context.Context, id uuid.UUID) (*Form, error) {
	if f, ok := m.data[id]; ok {
		return f, nil
	}
	return nil, pgx.ErrNoRows
}

func (m *mockFormRepo) Delete(_ context.Context, id uuid.UUID) error {
	if _, ok := m.data[id]; !ok {
		return pgx.ErrNoRows
	}
	delete(m.data, id)
	return nil
}

func (m *mockFormRepo) List(_ context.Context, limit, offset int) ([]*Form, int, error) {
	var out []*Form
	for _, f := range m.data {
		out = append(out, f)
	}
	return out, len(out), nil
}

type mockCompletionRepo struct {
	data []*Completion
}

func (m *mockCompletionRepo) Create(_ context.Context, c *Completion) error {
	c.ID = uuid.New()
	for _, it := range c.Items {
		it.ID = uuid.New()
	}
	m.data = append(m.data, c)
	return nil
}

func (m *mockCompletionRepo) ListByForm(_ context.Context, formID uuid.UUID, limit, offset int) ([]*Completion, int, error) {
	var out []*Completion
	for _, c := range m.data {
		if c.FormID == formID {
			out = append(out, c)
		}
	}
	return out, len(out), nil
}

type stubCodes map[uuid.UUID]*billing.Code

func (s stubCodes) Lookup(_ context.Context, ids []uuid.UUID) (map[uuid.UUID]*billing.Code, error) {
	out := make(map[uuid.UUID]*billing.Code)
	for _, id := range ids {
		if c, ok := s[id]; ok {
			out[id] = c
		}
	}
	return out, nil
}

func (s stubCodes) add(code string, price float64) uuid.UUID {
	id := uuid.New()
	s[id] = &billing.Code{ID: id, Code: code, Price: price, Active: true}
	return id
}

type recordingPublisher struct {
	formIDs        []uuid.UUID
	appointmentIDs []*uuid.UUID
	err            error
}

func (p *recordingPublisher) FormSubmitted(_ context.Context, formID uuid.UUID, appointmentID *uuid.UUID) error {
	p.formIDs = append(p.formIDs, formID)
	p.appointmentIDs = append(p.appointmentIDs, appointmentID)
	return p.err
}

type serviceFixture struct {
	svc         *Service
	forms       *mockFormRepo
	completions *mockCompletionRepo
	codes       stubCodes
	logs        *bytes.Buffer
}

func newFixture() *serviceFixture {
	fx := &serviceFixture{
		forms:       newMockFormRepo(),
		completions: &mockCompletionRepo{},
		codes:       make(stubCodes),
		logs:        &bytes.Buffer{},
	}
	fx.svc = NewService(fx.forms, fx.completions, fx.codes, zerolog.New(fx.logs))
	return fx
}

func TestService_CreateForm(t *testing.T) {
	fx := newFixture()
	child := textDraft("Seit wann?")
	child.DependsOnQuestion = "new-0"
	child.DependsOnOption = "new-option-0-0"
	stale := uuid.New()

	f, err := fx.svc.CreateForm(context.Background(), &FormDraft{
		ID:        &stale,
		Name:      "Knie",
		Questions: []QuestionDraft{yesNoDraft("Schmerzen?"), child},
	})
	require.NoError(t, err)
	assert.NotEqual(t, stale, f.ID, "create always assigns a new id")
	assert.Equal(t, f, fx.forms.data[f.ID])
}

func TestService_CreateForm_DependencyRejected(t *testing.T) {
	fx := newFixture()
	child := textDraft("Seit wann?")
	child.DependsOnQuestion = "new-0"

	_, err := fx.svc.CreateForm(context.Background(), &FormDraft{
		Name:      "Knie",
		Questions: []QuestionDraft{yesNoDraft("Schmerzen?"), child},
	})
	assert.ErrorIs(t, err, ErrInconsistentDependency)
	assert.Zero(t, fx.forms.saves, "nothing is written")
	assert.Contains(t, fx.logs.String(), "billing form dependency rejected")
	assert.Contains(t, fx.logs.String(), `"question_index":1`)
}

func TestService_CreateForm_UnknownBillingCode(t *testing.T) {
	fx := newFixture()
	q := yesNoDraft("Schmerzen?")
	missing := uuid.New()
	q.Options[0].BillingCodeID = &missing

	_, err := fx.svc.CreateForm(context.Background(), &FormDraft{Name: "Knie", Questions: []QuestionDraft{q}})
	var valErr *ValidationError
	require.True(t, errors.As(err, &valErr))
	assert.Equal(t, "questions[0].options[0].billing_code_id", valErr.Field)
	assert.Zero(t, fx.forms.saves)
}

func TestService_UpdateForm(t *testing.T) {
	fx := newFixture()
	f, err := fx.svc.CreateForm(context.Background(), &FormDraft{Name: "Knie", Questions: []QuestionDraft{yesNoDraft("A")}})
	require.NoError(t, err)

	keep := f.Questions[0]
	q := yesNoDraft("A geändert")
	q.ID = keep.ID.String()
	q.Options[0].ID = keep.Options[0].ID.String()
	q.Options[1].ID = keep.Options[1].ID.String()

	updated, err := fx.svc.UpdateForm(context.Background(), f.ID, &FormDraft{Name: "Knie", Questions: []QuestionDraft{q, textDraft("B")}})
	require.NoError(t, err)
	assert.Equal(t, f.ID, updated.ID)
	assert.Equal(t, keep.ID, updated.Questions[0].ID)
	assert.Len(t, fx.forms.data[f.ID].Questions, 2)
}

func TestService_UpdateForm_NotFound(t *testing.T) {
	fx := newFixture()
	_, err := fx.svc.UpdateForm(context.Background(), uuid.New(), &FormDraft{Name: "Knie"})
	assert.ErrorIs(t, err, pgx.ErrNoRows)
}

func TestService_AddQuestionAndEdits(t *testing.T) {
	fx := newFixture()
	f, err := fx.svc.CreateForm(context.Background(), &FormDraft{Name: "Knie"})
	require.NoError(t, err)

	f, err = fx.svc.AddQuestion(context.Background(), f.ID, TypeYesNo, "Schmerzen?", true)
	require.NoError(t, err)
	require.Len(t, f.Questions, 1)
	assert.Equal(t, []string{"Ja", "Nein"}, optionTexts(f.Questions[0]))

	f, err = fx.svc.ApplyEdits(context.Background(), f.ID, []Edit{{Op: OpRemoveOption, Question: 0, Option: 0}})
	require.NoError(t, err)
	assert.Len(t, f.Questions[0].Options, 2)
	assert.Len(t, fx.forms.data[f.ID].Questions[0].Options, 2)

	_, err = fx.svc.AddQuestion(context.Background(), f.ID, TypeText, "", false)
	assert.ErrorIs(t, err, ErrInvalidForm, "question text is required on save")
	assert.Len(t, fx.forms.data[f.ID].Questions, 1)
}

// kneeForm: q0 yes/no (yes billed), q1 multiple choice shown on yes with two
// billed options, q2 optional number with a billed synthetic option.
func kneeForm(t *testing.T, fx *serviceFixture) *Form {
	t.Helper()
	exam := fx.codes.add("GOÄ 5", 10.72)
	left := fx.codes.add("GOÄ 2000", 5.00)
	right := fx.codes.add("GOÄ 2001", 2.50)
	dose := fx.codes.add("GOÄ 252", 1.10)

	q0 := yesNoDraft("Schmerzen?")
	q0.Required = true
	q0.Options[0].BillingCodeID = &exam
	q1 := QuestionDraft{
		Text:              "Wo?",
		Type:              TypeMultipleChoice,
		Required:          true,
		Options:           []OptionDraft{{Text: "Links", BillingCodeID: &left}, {Text: "Rechts", BillingCodeID: &right}},
		DependsOnQuestion: "new-0",
		DependsOnOption:   "new-option-0-0",
	}
	q2 := QuestionDraft{Text: "Dosis", Type: TypeNumber, Options: []OptionDraft{{BillingCodeID: &dose}}}

	f, err := fx.svc.CreateForm(context.Background(), &FormDraft{Name: "Knie", Questions: []QuestionDraft{q0, q1, q2}})
	require.NoError(t, err)
	return f
}

func choose(q *Question, idx ...int) Answer {
	a := Answer{QuestionID: q.ID}
	for _, i := range idx {
		a.OptionIDs = append(a.OptionIDs, q.Options[i].ID)
	}
	return a
}

func TestService_Complete(t *testing.T) {
	fx := newFixture()
	f := kneeForm(t, fx)
	pub := &recordingPublisher{}
	fx.svc.SetSubmissionPublisher(pub)
	appt := uuid.New()

	c, err := fx.svc.Complete(context.Background(), f.ID, &CompletionRequest{
		AppointmentID: &appt,
		Answers: []Answer{
			choose(f.Questions[0], 0),
			choose(f.Questions[1], 0, 1),
			{QuestionID: f.Questions[2].ID, Value: "3,5"},
		},
	})
	require.NoError(t, err)
	require.Len(t, c.Items, 4)
	assert.InDelta(t, 19.32, c.Total, 0.001)
	assert.Equal(t, "GOÄ 5", c.Items[0].BillingCode)
	assert.Equal(t, "3,5", c.Items[3].Value)
	assert.Len(t, fx.completions.data, 1)

	require.Len(t, pub.formIDs, 1)
	assert.Equal(t, f.ID, pub.formIDs[0])
	assert.Equal(t, &appt, pub.appointmentIDs[0])
}

func TestService_Complete_HiddenQuestionsIgnored(t *testing.T) {
	fx := newFixture()
	f := kneeForm(t, fx)

	c, err := fx.svc.Complete(context.Background(), f.ID, &CompletionRequest{
		Answers: []Answer{
			choose(f.Questions[0], 1),
			choose(f.Questions[1], 0),
		},
	})
	require.NoError(t, err)
	require.Len(t, c.Items, 1)
	assert.Nil(t, c.Items[0].BillingCodeID)
	assert.Zero(t, c.Total)
}

func TestService_Complete_Rejected(t *testing.T) {
	fx := newFixture()
	f := kneeForm(t, fx)
	other := NewForm("Fremd")
	foreign, _ := other.AddQuestion(TypeYesNo)

	tests := []struct {
		name    string
		answers []Answer
	}{
		{"required unanswered", nil},
		{"visible required child unanswered", []Answer{choose(f.Questions[0], 0)}},
		{"two answers to yes/no", []Answer{choose(f.Questions[0], 0, 1)}},
		{"option of another question", []Answer{{QuestionID: f.Questions[0].ID, OptionIDs: []uuid.UUID{f.Questions[1].Options[0].ID}}}},
		{"unknown question", []Answer{choose(f.Questions[0], 1), choose(foreign, 0)}},
		{"not a number", []Answer{choose(f.Questions[0], 1), {QuestionID: f.Questions[2].ID, Value: "viel"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := fx.svc.Complete(context.Background(), f.ID, &CompletionRequest{Answers: tt.answers})
			assert.ErrorIs(t, err, ErrInvalidForm)
		})
	}
	assert.Empty(t, fx.completions.data)
}

func TestService_Complete_PublisherErrorIsLogged(t *testing.T) {
	fx := newFixture()
	f := kneeForm(t, fx)
	fx.svc.SetSubmissionPublisher(&recordingPublisher{err: errors.New("queue down")})

	_, err := fx.svc.Complete(context.Background(), f.ID, &CompletionRequest{Answers: []Answer{choose(f.Questions[0], 1)}})
	require.NoError(t, err)
	assert.Contains(t, fx.logs.String(), "form submission event failed")
}

func TestService_Complete_VanishedCode(t *testing.T) {
	fx := newFixture()
	f := kneeForm(t, fx)
	delete(fx.codes, *f.Questions[0].Options[0].BillingCodeID)

	c, err := fx.svc.Complete(context.Background(), f.ID, &CompletionRequest{Answers: []Answer{
		choose(f.Questions[0], 0),
		choose(f.Questions[1], 1),
	}})
	require.NoError(t, err)
	require.Len(t, c.Items, 2)
	assert.Nil(t, c.Items[0].BillingCodeID)
	assert.InDelta(t, 2.50, c.Total, 0.001)
	assert.Contains(t, fx.logs.String(), "billing code vanished")
}

func TestService_Complete_FormNotFound(t *testing.T) {
	fx := newFixture()
	_, err := fx.svc.Complete(context.Background(), uuid.New(), &CompletionRequest{})
	assert.ErrorIs(t, err, pgx.ErrNoRows)
}
