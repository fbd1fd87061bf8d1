package model

import "fmt"

// JobStatus is the lifecycle state of a job. Values outside the enumeration are
// kept verbatim so newer backends can introduce statuses without breaking clients.
type JobStatus string

const (
	StatusPending        JobStatus = "pending"
	StatusGeneratingPlan JobStatus = "generating_plan"
	StatusPlanReady      JobStatus = "plan_ready"
	StatusExecuting      JobStatus = "executing"
	StatusRecording      JobStatus = "recording"
	StatusConverting     JobStatus = "converting"
	StatusCompleted      JobStatus = "completed"
	StatusFailed         JobStatus = "failed"
)

// StatusClass groups statuses by what the client does while observing them
type StatusClass int

const (
	ClassUnknown StatusClass = iota
	// ClassPollable: the backend is still expected to make progress
	ClassPollable
	// ClassAwaitingUser: polling stops, further progress needs a user action
	ClassAwaitingUser
	// ClassFinished: polling stops and no further backend progress is expected
	ClassFinished
)

type statusInfo struct {
	class StatusClass
	label string
}

// statusTable is the single source of truth for the enumeration. Adding a
// status means adding a row here; TestStatusTableCoversEnumeration enforces it.
var statusTable = map[JobStatus]statusInfo{
	StatusPending:        {ClassPollable, "Waiting..."},
	StatusGeneratingPlan: {ClassPollable, "Generating plan..."},
	StatusPlanReady:      {ClassAwaitingUser, "Plan ready"},
	StatusExecuting:      {ClassPollable, "Executing steps..."},
	StatusRecording:      {ClassPollable, "Recording..."},
	StatusConverting:     {ClassPollable, "Converting video..."},
	StatusCompleted:      {ClassFinished, "Completed!"},
	StatusFailed:         {ClassFinished, "Error"},
}

var AllStatuses = []JobStatus{
	StatusPending, StatusGeneratingPlan, StatusPlanReady, StatusExecuting,
	StatusRecording, StatusConverting, StatusCompleted, StatusFailed,
}

// Known reports whether s is part of the enumeration
func (s JobStatus) Known() bool {
	_, ok := statusTable[s]
	return ok
}

// Class returns the classification of s; unknown statuses get ClassUnknown
func (s JobStatus) Class() StatusClass {
	return statusTable[s].class
}

// Label is the human-readable text for s. Unknown statuses render as-is.
func (s JobStatus) Label() string {
	if info, ok := statusTable[s]; ok {
		return info.label
	}
	return string(s)
}

func (s JobStatus) String() string {
	return string(s)
}

// IsPollable reports whether polling must continue while s is observed
func IsPollable(s JobStatus) bool {
	return s.Class() == ClassPollable
}

// IsTerminalForPolling reports whether observing s stops polling
func IsTerminalForPolling(s JobStatus) bool {
	c := s.Class()
	return c == ClassAwaitingUser || c == ClassFinished
}

// IsHardTerminal reports whether no progress is expected without a new user action
func IsHardTerminal(s JobStatus) bool {
	return s.Class() == ClassFinished
}

// Statuses the client may set optimistically before the backend confirms them
var localTransitions = map[JobStatus]bool{
	StatusPending:   true,
	StatusRecording: true,
}

// ValidateLocalTransition checks a client-side optimistic transition. plan_ready,
// completed and failed are only ever observed from the backend.
func ValidateLocalTransition(to JobStatus) error {
	if !localTransitions[to] {
		return fmt.Errorf("status %q cannot be set locally", to)
	}
	return nil
}

// Backend transitions: pending → generating_plan → plan_ready → recording →
// executing → converting → completed, with failed reachable from every working state
var validTransitions = map[JobStatus]map[JobStatus]bool{
	StatusPending: {
		StatusGeneratingPlan: true,
		StatusFailed:         true,
	},
	StatusGeneratingPlan: {
		StatusPlanReady: true,
		StatusFailed:    true,
	},
	StatusPlanReady: {
		StatusPlanReady: true, // plan saved again
		StatusRecording: true,
	},
	StatusRecording: {
		StatusExecuting: true,
		StatusFailed:    true,
	},
	StatusExecuting: {
		StatusExecuting:  true, // per-step progress
		StatusConverting: true,
		StatusFailed:     true,
	},
	StatusConverting: {
		StatusCompleted: true,
		StatusFailed:    true,
	},
	StatusCompleted: {
		StatusPlanReady: true,
		StatusRecording: true,
	},
}

// ValidateTransition checks a backend-side status change
func ValidateTransition(from, to JobStatus) error {
	if !from.Known() {
		return fmt.Errorf("unknown status %q", from)
	}
	if from == StatusFailed {
		return fmt.Errorf("cannot transition from failed status")
	}
	if !validTransitions[from][to] {
		return fmt.Errorf("invalid job transition: %q → %q", from, to)
	}
	return nil
}

// AcceptsPlanEdits reports whether a saved plan may replace the current one
func AcceptsPlanEdits(s JobStatus) bool {
	return s == StatusPlanReady || s == StatusCompleted
}

// AcceptsExecute reports whether execution may be started from s
func AcceptsExecute(s JobStatus) bool {
	return s == StatusPlanReady || s == StatusCompleted
}

// AcceptsRegenerate reports whether a recording may be redone from s. The job
// must also have been recorded before; see Job.HasRecording.
func AcceptsRegenerate(s JobStatus) bool {
	return s == StatusCompleted || s == StatusPlanReady
}
