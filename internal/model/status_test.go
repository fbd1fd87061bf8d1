package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatusTableCoversEnumeration(t *testing.T) {
	assert.Len(t, statusTable, len(AllStatuses))
	for _, s := range AllStatuses {
		assert.True(t, s.Known(), "status %q missing from table", s)
		assert.NotEqual(t, ClassUnknown, s.Class(), "status %q has no class", s)
	}
}

func TestStatusClassification(t *testing.T) {
	tests := []struct {
		status       JobStatus
		pollable     bool
		terminalPoll bool
		hardTerminal bool
	}{
		{StatusPending, true, false, false},
		{StatusGeneratingPlan, true, false, false},
		{StatusPlanReady, false, true, false},
		{StatusExecuting, true, false, false},
		{StatusRecording, true, false, false},
		{StatusConverting, true, false, false},
		{StatusCompleted, false, true, true},
		{StatusFailed, false, true, true},
		{JobStatus("uploading"), false, false, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			assert.Equal(t, tt.pollable, IsPollable(tt.status))
			assert.Equal(t, tt.terminalPoll, IsTerminalForPolling(tt.status))
			assert.Equal(t, tt.hardTerminal, IsHardTerminal(tt.status))
		})
	}
}

func TestUnknownStatusRendersGenerically(t *testing.T) {
	s := JobStatus("uploading")
	assert.False(t, s.Known())
	assert.Equal(t, "uploading", s.Label())
	assert.Equal(t, "Plan ready", StatusPlanReady.Label())
}

func TestValidateLocalTransition(t *testing.T) {
	assert.NoError(t, ValidateLocalTransition(StatusPending))
	assert.NoError(t, ValidateLocalTransition(StatusRecording))
	for _, s := range []JobStatus{StatusPlanReady, StatusCompleted, StatusFailed, StatusExecuting, "whatever"} {
		assert.Error(t, ValidateLocalTransition(s), "status %q", s)
	}
}

func TestValidateTransition(t *testing.T) {
	valid := [][2]JobStatus{
		{StatusPending, StatusGeneratingPlan},
		{StatusGeneratingPlan, StatusPlanReady},
		{StatusGeneratingPlan, StatusFailed},
		{StatusPlanReady, StatusRecording},
		{StatusPlanReady, StatusPlanReady},
		{StatusRecording, StatusExecuting},
		{StatusExecuting, StatusConverting},
		{StatusConverting, StatusCompleted},
		{StatusCompleted, StatusRecording},
		{StatusCompleted, StatusPlanReady},
	}
	for _, tr := range valid {
		assert.NoError(t, ValidateTransition(tr[0], tr[1]), "%s → %s", tr[0], tr[1])
	}

	invalid := [][2]JobStatus{
		{StatusPending, StatusCompleted},
		{StatusPlanReady, StatusCompleted},
		{StatusFailed, StatusRecording},
		{StatusFailed, StatusPlanReady},
		{StatusRecording, StatusPlanReady},
		{JobStatus("mystery"), StatusFailed},
	}
	for _, tr := range invalid {
		assert.Error(t, ValidateTransition(tr[0], tr[1]), "%s → %s", tr[0], tr[1])
	}
}

func TestAcceptsActions(t *testing.T) {
	assert.True(t, AcceptsExecute(StatusPlanReady))
	assert.True(t, AcceptsExecute(StatusCompleted))
	assert.False(t, AcceptsExecute(StatusRecording))
	assert.False(t, AcceptsExecute(StatusFailed))

	assert.True(t, AcceptsRegenerate(StatusCompleted))
	assert.True(t, AcceptsRegenerate(StatusPlanReady))
	assert.False(t, AcceptsRegenerate(StatusExecuting))
	assert.False(t, AcceptsRegenerate(StatusFailed))

	assert.True(t, AcceptsPlanEdits(StatusPlanReady))
	assert.False(t, AcceptsPlanEdits(StatusGeneratingPlan))
	assert.False(t, AcceptsPlanEdits(StatusFailed))
}
