package model

import (
	"encoding/json"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func threeStepPlan() TaskPlan {
	return TaskPlan{
		OriginalInstruction: "open notepad and type hello",
		Goal:                "Type hello in Notepad",
		Prerequisites:       []string{"Windows"},
		Steps: []Step{
			{ID: 1, Action: ActionOpenApplication, Target: "Notepad", Description: "Open Notepad", ExpectedResult: "Notepad is open"},
			{ID: 2, Action: ActionWait, Target: "screen", Value: StringPtr("2"), Description: "Wait", ExpectedResult: "Editor visible"},
			{ID: 3, Action: ActionTypeText, Target: "editor", Value: StringPtr("hello"), Description: "Type hello", ExpectedResult: "hello is typed"},
		},
		SuccessCriteria: "hello is visible",
	}
}

func ids(p TaskPlan) []int {
	out := make([]int, len(p.Steps))
	for i, s := range p.Steps {
		out[i] = s.ID
	}
	return out
}

func TestDeleteStep_RenumbersFollowingSteps(t *testing.T) {
	plan := threeStepPlan()

	got := DeleteStep(plan, 0)

	assert.Equal(t, []int{1, 2}, ids(got))
	assert.Equal(t, "Wait", got.Steps[0].Description)
	assert.Equal(t, ActionTypeText, got.Steps[1].Action)
	// input untouched
	assert.Equal(t, []int{1, 2, 3}, ids(plan))
}

func TestDeleteStep_Middle(t *testing.T) {
	got := DeleteStep(threeStepPlan(), 1)

	assert.Equal(t, []int{1, 2}, ids(got))
	assert.Equal(t, "Type hello", got.Steps[1].Description)
}

func TestAppendStep_Defaults(t *testing.T) {
	got := AppendStep(threeStepPlan())

	require.Len(t, got.Steps, 4)
	s := got.Steps[3]
	assert.Equal(t, 4, s.ID)
	assert.Equal(t, ActionClick, s.Action)
	assert.Equal(t, "", s.Target)
	assert.Nil(t, s.Value)
	assert.Equal(t, DefaultStepDescription, s.Description)
	assert.Equal(t, DefaultStepExpectedResult, s.ExpectedResult)
}

func TestAppendStep_EmptyPlan(t *testing.T) {
	got := AppendStep(TaskPlan{})
	assert.Equal(t, []int{1}, ids(got))
}

func TestRandomEditSequencesKeepIDsContiguous(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for run := 0; run < 200; run++ {
		plan := threeStepPlan()
		for op := 0; op < 30; op++ {
			if len(plan.Steps) > 0 && rng.Intn(2) == 0 {
				plan = DeleteStep(plan, rng.Intn(len(plan.Steps)))
			} else {
				plan = AppendStep(plan)
			}
			require.NoError(t, plan.CheckStepIDs())
		}
	}
}

func TestUpdateStepField(t *testing.T) {
	plan := threeStepPlan()

	tests := []struct {
		name  string
		field StepField
		value string
		check func(t *testing.T, s Step)
	}{
		{"action", FieldAction, "double_click", func(t *testing.T, s Step) { assert.Equal(t, ActionDoubleClick, s.Action) }},
		{"target", FieldTarget, "File", func(t *testing.T, s Step) { assert.Equal(t, "File", s.Target) }},
		{"value", FieldValue, "5", func(t *testing.T, s Step) { require.NotNil(t, s.Value); assert.Equal(t, "5", *s.Value) }},
		{"empty value clears", FieldValue, "", func(t *testing.T, s Step) { assert.Nil(t, s.Value) }},
		{"description", FieldDescription, "Wait longer", func(t *testing.T, s Step) { assert.Equal(t, "Wait longer", s.Description) }},
		{"expected result", FieldExpectedResult, "Ready", func(t *testing.T, s Step) { assert.Equal(t, "Ready", s.ExpectedResult) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := UpdateStepField(plan, 1, tt.field, tt.value)
			tt.check(t, got.Steps[1])
			assert.Equal(t, []int{1, 2, 3}, ids(got))
		})
	}

	// the original value pointer is not shared
	assert.Equal(t, "2", *plan.Steps[1].Value)
}

func TestOutOfRangeIndexPanics(t *testing.T) {
	plan := threeStepPlan()
	assert.Panics(t, func() { DeleteStep(plan, 3) })
	assert.Panics(t, func() { DeleteStep(plan, -1) })
	assert.Panics(t, func() { UpdateStepField(plan, 5, FieldTarget, "x") })
}

func TestCheckStepIDs(t *testing.T) {
	plan := threeStepPlan()
	require.NoError(t, plan.CheckStepIDs())

	plan.Steps[2].ID = 7
	assert.Error(t, plan.CheckStepIDs())
}

func TestParseActionType(t *testing.T) {
	a, ok := ParseActionType("key_combination")
	assert.True(t, ok)
	assert.Equal(t, ActionKeyCombination, a)

	_, ok = ParseActionType("move_mouse")
	assert.False(t, ok)
}

func TestParseStepField(t *testing.T) {
	f, err := ParseStepField("expected_result")
	require.NoError(t, err)
	assert.Equal(t, FieldExpectedResult, f)

	_, err = ParseStepField("id")
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	plan := threeStepPlan()
	require.NoError(t, plan.Validate())

	bad := UpdateStepField(plan, 0, FieldAction, "teleport")
	assert.Error(t, bad.Validate())

	gap := plan.Clone()
	gap.Steps[1].ID = 9
	assert.Error(t, gap.Validate())
}

func TestCloneKeepsEmptyPrerequisites(t *testing.T) {
	plan := TaskPlan{Goal: "g", Prerequisites: []string{}, Steps: []Step{}}

	clone := plan.Clone()
	require.NotNil(t, clone.Prerequisites)
	data, err := json.Marshal(clone)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"prerequisites":[]`)

	full := threeStepPlan()
	c := full.Clone()
	c.Prerequisites[0] = "Linux"
	assert.Equal(t, "Windows", full.Prerequisites[0])

	assert.Nil(t, TaskPlan{}.Clone().Prerequisites)
}

func TestValidateGenerated(t *testing.T) {
	assert.ErrorIs(t, TaskPlan{Goal: "g"}.ValidateGenerated(), ErrNoSteps)
	assert.NoError(t, TaskPlan{Goal: "g"}.Validate())
	assert.NoError(t, threeStepPlan().ValidateGenerated())

	bad := threeStepPlan()
	bad.Steps[1].ID = 7
	assert.Error(t, bad.ValidateGenerated())
}
