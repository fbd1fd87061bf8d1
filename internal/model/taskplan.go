package model

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/go-playground/validator/v10"
)

var planValidator = validator.New()

// ErrNoSteps is returned for a generated plan without steps
var ErrNoSteps = errors.New("plan has no steps")

// ActionType is the kind of automation a step performs
type ActionType string

const (
	ActionClick            ActionType = "click"
	ActionDoubleClick      ActionType = "double_click"
	ActionRightClick       ActionType = "right_click"
	ActionTypeText         ActionType = "type_text"
	ActionKeyPress         ActionType = "key_press"
	ActionKeyCombination   ActionType = "key_combination"
	ActionScroll           ActionType = "scroll"
	ActionWait             ActionType = "wait"
	ActionOpenApplication  ActionType = "open_application"
	ActionCloseApplication ActionType = "close_application"
)

var ValidActions = []ActionType{
	ActionClick, ActionDoubleClick, ActionRightClick, ActionTypeText,
	ActionKeyPress, ActionKeyCombination, ActionScroll, ActionWait,
	ActionOpenApplication, ActionCloseApplication,
}

// ParseActionType returns the action for s and whether it is one of ValidActions
func ParseActionType(s string) (ActionType, bool) {
	for _, a := range ValidActions {
		if string(a) == s {
			return a, true
		}
	}
	return ActionType(s), false
}

// Step is one automation action. ID always equals the step's 1-based position.
type Step struct {
	ID             int        `json:"id" yaml:"id" validate:"min=1"`
	Action         ActionType `json:"action" yaml:"action" validate:"required,oneof=click double_click right_click type_text key_press key_combination scroll wait open_application close_application"`
	Target         string     `json:"target" yaml:"target"`
	Value          *string    `json:"value" yaml:"value"`
	Description    string     `json:"description" yaml:"description"`
	ExpectedResult string     `json:"expected_result" yaml:"expected_result"`
}

// TaskPlan is the goal and its ordered step sequence
type TaskPlan struct {
	OriginalInstruction string   `json:"original_instruction" yaml:"original_instruction"`
	Goal                string   `json:"goal" yaml:"goal"`
	Prerequisites       []string `json:"prerequisites" yaml:"prerequisites"`
	Steps               []Step   `json:"steps" yaml:"steps" validate:"dive"`
	SuccessCriteria     string   `json:"success_criteria" yaml:"success_criteria"`
}

// StepField names an editable field of a Step
type StepField string

const (
	FieldAction         StepField = "action"
	FieldTarget         StepField = "target"
	FieldValue          StepField = "value"
	FieldDescription    StepField = "description"
	FieldExpectedResult StepField = "expected_result"
)

var EditableFields = []StepField{
	FieldAction, FieldTarget, FieldValue, FieldDescription, FieldExpectedResult,
}

// ParseStepField returns the field named s
func ParseStepField(s string) (StepField, error) {
	for _, f := range EditableFields {
		if string(f) == s {
			return f, nil
		}
	}
	return "", fmt.Errorf("unknown step field %q", s)
}

// Defaults for steps created by AppendStep
const (
	DefaultStepDescription    = "New step description"
	DefaultStepExpectedResult = "Action executed"
)

// Clone returns a deep copy of the plan
func (p TaskPlan) Clone() TaskPlan {
	out := p
	if p.Prerequisites != nil {
		out.Prerequisites = make([]string, len(p.Prerequisites))
		copy(out.Prerequisites, p.Prerequisites)
	}
	if p.Steps != nil {
		out.Steps = make([]Step, len(p.Steps))
		for i, s := range p.Steps {
			out.Steps[i] = s.clone()
		}
	}
	return out
}

func (s Step) clone() Step {
	if s.Value != nil {
		v := *s.Value
		s.Value = &v
	}
	return s
}

// CheckStepIDs reports whether step ids are exactly 1..len(steps) in order
func (p TaskPlan) CheckStepIDs() error {
	for i, s := range p.Steps {
		if s.ID != i+1 {
			return fmt.Errorf("step at position %d has id %d", i+1, s.ID)
		}
	}
	return nil
}

// Validate checks struct constraints on every step and the id invariant
func (p TaskPlan) Validate() error {
	if err := planValidator.Struct(p); err != nil {
		return err
	}
	return p.CheckStepIDs()
}

// ValidateGenerated is Validate plus the requirement that a planner produced
// at least one step. Users may still save a plan they emptied themselves.
func (p TaskPlan) ValidateGenerated() error {
	if len(p.Steps) == 0 {
		return ErrNoSteps
	}
	return p.Validate()
}

// UpdateStepField returns a copy of plan with one field of steps[index] replaced.
// An empty value clears the step's value to null. Panics if index is out of range.
func UpdateStepField(plan TaskPlan, index int, field StepField, value string) TaskPlan {
	mustIndex(plan, index)
	out := plan.Clone()
	step := &out.Steps[index]
	switch field {
	case FieldAction:
		step.Action = ActionType(value)
	case FieldTarget:
		step.Target = value
	case FieldValue:
		if value == "" {
			step.Value = nil
		} else {
			v := value
			step.Value = &v
		}
	case FieldDescription:
		step.Description = value
	case FieldExpectedResult:
		step.ExpectedResult = value
	default:
		panic(fmt.Sprintf("model: unknown step field %q", field))
	}
	return out
}

// DeleteStep returns a copy of plan without steps[index], renumbered.
// Panics if index is out of range.
func DeleteStep(plan TaskPlan, index int) TaskPlan {
	mustIndex(plan, index)
	out := plan.Clone()
	out.Steps = append(out.Steps[:index], out.Steps[index+1:]...)
	Renumber(out.Steps)
	return out
}

// AppendStep returns a copy of plan with a default click step at the end
func AppendStep(plan TaskPlan) TaskPlan {
	out := plan.Clone()
	out.Steps = append(out.Steps, Step{
		ID:             len(out.Steps) + 1,
		Action:         ActionClick,
		Target:         "",
		Value:          nil,
		Description:    DefaultStepDescription,
		ExpectedResult: DefaultStepExpectedResult,
	})
	return out
}

// Renumber rewrites step ids in place to match their positions
func Renumber(steps []Step) {
	for i := range steps {
		steps[i].ID = i + 1
	}
}

func mustIndex(plan TaskPlan, index int) {
	if index < 0 || index >= len(plan.Steps) {
		panic("model: step index " + strconv.Itoa(index) + " out of range [0," + strconv.Itoa(len(plan.Steps)) + ")")
	}
}

// StringPtr returns a pointer to s
func StringPtr(s string) *string {
	return &s
}
