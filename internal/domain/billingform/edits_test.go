package billingform

import (
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyEdits(t *testing.T) {
	f := NewForm("Knie")
	code := uuid.New()

	out, err := ApplyEdits(f, []Edit{
		{Op: OpAddQuestion, Type: TypeYesNo, Text: "Schmerzen?", Required: true},
		{Op: OpAddQuestion, Type: TypeMultipleChoice, Text: "Wo?"},
		{Op: OpAddOption, Question: 1, Text: "Innen", BillingCodeID: &code},
		{Op: OpEditOption, Question: 1, Option: 0, Text: "Außen"},
		{Op: OpRemoveOption, Question: 1, Option: 1},
		{Op: OpEditQuestion, Question: 1, Text: "Wo genau?", Required: true},
	})
	require.NoError(t, err)
	assert.Empty(t, f.Questions, "original form is untouched")

	require.Len(t, out.Questions, 2)
	assert.True(t, out.Questions[0].Required)
	assert.Equal(t, "Wo genau?", out.Questions[1].Text)
	assert.Equal(t, []string{"Außen", "Innen"}, optionTexts(out.Questions[1]))
	assert.Equal(t, &code, out.Questions[1].Options[1].BillingCodeID)
	assert.NoError(t, out.Validate())
}

func TestApplyEdits_SetDependencyAndMove(t *testing.T) {
	f := NewForm("Knie")
	parent, _ := f.AddQuestion(TypeYesNo)
	parent.Text = "Schmerzen?"
	child, _ := f.AddQuestion(TypeText)
	child.Text = "Seit wann?"
	yes := parent.Options[0].ID

	out, err := ApplyEdits(f, []Edit{
		{Op: OpSetDependency, Question: 1, DependsOnQuestionID: &parent.ID, DependsOnOptionID: &yes},
	})
	require.NoError(t, err)
	require.NoError(t, out.Validate())

	moved, err := ApplyEdits(out, []Edit{{Op: OpMoveQuestion, Question: 1, To: 0}})
	require.NoError(t, err)
	assert.ErrorIs(t, moved.Validate(), ErrForwardDependency)
}

func TestApplyEdits_FailureLeavesFormUnchanged(t *testing.T) {
	f := NewForm("Knie")
	q, _ := f.AddQuestion(TypeYesNo)
	q.Text = "Schmerzen?"

	out, err := ApplyEdits(f, []Edit{
		{Op: OpEditQuestion, Question: 0, Text: "Geändert"},
		{Op: OpEditOption, Question: 0, Option: 5, Text: "Vielleicht"},
	})
	assert.Nil(t, out)
	assert.ErrorIs(t, err, ErrIndexOutOfRange)
	assert.Contains(t, err.Error(), "edit 1 (edit_option)")
	assert.Equal(t, "Schmerzen?", q.Text)
}

func TestApplyEdits_FixedOptionEditsAreSkipped(t *testing.T) {
	f := NewForm("Knie")
	f.AddQuestion(TypeYesNo)
	f.AddQuestion(TypeNumber)

	out, err := ApplyEdits(f, []Edit{
		{Op: OpAddOption, Question: 0, Text: "Vielleicht"},
		{Op: OpRemoveOption, Question: 0, Option: 1},
		{Op: OpAddOption, Question: 1, Text: "Zweite"},
		{Op: OpRemoveOption, Question: 1, Option: 0},
		{Op: OpEditQuestion, Question: 0, Text: "Schmerzen?"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"Ja", "Nein"}, optionTexts(out.Questions[0]))
	assert.Len(t, out.Questions[1].Options, 1)
	assert.Equal(t, "Schmerzen?", out.Questions[0].Text)
}

func TestApplyEdits_UnknownOp(t *testing.T) {
	_, err := ApplyEdits(NewForm("Knie"), []Edit{{Op: "rename"}})
	var valErr *ValidationError
	assert.True(t, errors.As(err, &valErr))
}
