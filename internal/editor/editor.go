package editor

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/StefaNNN772/Computer-Use-Video-Instructions/internal/model"
)

var (
	// ErrStepIndex is returned when an edit addresses a step that does not exist
	ErrStepIndex = errors.New("step index out of range")
	// ErrNoDraft is returned when an edit or save is attempted before a plan was seeded
	ErrNoDraft = errors.New("no plan to edit")
)

// Saver persists a plan for a job. baseRevision is the revision the draft was
// derived from; the returned value is the revision assigned by the backend.
type Saver interface {
	SavePlan(ctx context.Context, jobID string, plan model.TaskPlan, baseRevision int) (int, error)
}

// Editor holds the working copy of a job's task plan.
//
// The draft is the only copy the user edits. Authoritative plans delivered by
// polling are adopted through Seed, which never discards unsaved edits.
type Editor struct {
	mu sync.Mutex

	jobID string
	draft *model.TaskPlan
	dirty bool
	stale bool

	// base is the authoritative plan the draft derives from
	base    *model.TaskPlan
	baseRev int

	// latest is the newest authoritative plan seen, adopted by Revert
	latest    *model.TaskPlan
	latestRev int

	// generation counts local edits so a save can tell whether the user
	// kept typing while the request was in flight
	generation uint64
}

func New() *Editor {
	return &Editor{}
}

// Seed offers an authoritative plan for jobID. It returns true when the draft
// was replaced.
func (e *Editor) Seed(jobID string, plan *model.TaskPlan, revision int) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if plan == nil {
		return false
	}

	jobChanged := e.jobID != jobID
	switch {
	case e.draft == nil || jobChanged:
	case e.dirty:
		if revision > e.baseRev {
			latest := plan.Clone()
			e.latest = &latest
			e.latestRev = revision
			e.stale = true
		}
		return false
	case revision < e.baseRev:
		return false
	case revision == e.baseRev && revision != 0:
		return false
	}

	e.adopt(jobID, plan, revision)
	return true
}

func (e *Editor) adopt(jobID string, plan *model.TaskPlan, revision int) {
	draft := plan.Clone()
	base := plan.Clone()
	e.jobID = jobID
	e.draft = &draft
	e.base = &base
	e.baseRev = revision
	e.latest = nil
	e.latestRev = 0
	e.dirty = false
	e.stale = false
	e.generation++
}

// UpdateStepField changes one field of the step at index
func (e *Editor) UpdateStepField(index int, field model.StepField, value string) error {
	return e.editStep(index, func(p model.TaskPlan) model.TaskPlan {
		return model.UpdateStepField(p, index, field, value)
	})
}

// DeleteStep removes the step at index and renumbers the rest
func (e *Editor) DeleteStep(index int) error {
	return e.editStep(index, func(p model.TaskPlan) model.TaskPlan {
		return model.DeleteStep(p, index)
	})
}

// AddStep appends a default step
func (e *Editor) AddStep() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.draft == nil {
		return ErrNoDraft
	}
	e.apply(model.AppendStep)
	return nil
}

// editStep applies fn after checking that index addresses an existing step
func (e *Editor) editStep(index int, fn func(model.TaskPlan) model.TaskPlan) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.draft == nil {
		return ErrNoDraft
	}
	if index < 0 || index >= len(e.draft.Steps) {
		return fmt.Errorf("%w: %d not in [0,%d)", ErrStepIndex, index, len(e.draft.Steps))
	}
	e.apply(fn)
	return nil
}

func (e *Editor) apply(fn func(model.TaskPlan) model.TaskPlan) {
	next := fn(*e.draft)
	e.draft = &next
	e.dirty = true
	e.generation++
}

// Save pushes the current draft through saver. On success the editor is clean
// unless the draft was edited while the request was in flight.
func (e *Editor) Save(ctx context.Context, saver Saver) (int, error) {
	e.mu.Lock()
	if e.draft == nil {
		e.mu.Unlock()
		return 0, ErrNoDraft
	}
	jobID := e.jobID
	sent := e.draft.Clone()
	baseRev := e.baseRev
	gen := e.generation
	e.mu.Unlock()

	revision, err := saver.SavePlan(ctx, jobID, sent, baseRev)
	if err != nil {
		return 0, err
	}

	e.MarkSaved(jobID, sent, revision, gen)
	return revision, nil
}

// MarkSaved records a successful save of plan. gen is the edit generation the
// plan was snapshotted at.
func (e *Editor) MarkSaved(jobID string, plan model.TaskPlan, revision int, gen uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.jobID != jobID {
		return
	}
	base := plan.Clone()
	e.base = &base
	if revision > e.baseRev {
		e.baseRev = revision
	}
	if e.latestRev <= e.baseRev {
		e.latest = nil
		e.latestRev = 0
		e.stale = false
	}
	if e.generation == gen {
		e.dirty = false
	}
}

// Revert discards local edits and adopts the newest authoritative plan
func (e *Editor) Revert() {
	e.mu.Lock()
	defer e.mu.Unlock()

	switch {
	case e.latest != nil:
		e.adopt(e.jobID, e.latest, e.latestRev)
	case e.base != nil:
		e.adopt(e.jobID, e.base, e.baseRev)
	}
}

// Reset forgets the job and its draft
func (e *Editor) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.jobID = ""
	e.draft = nil
	e.base = nil
	e.baseRev = 0
	e.latest = nil
	e.latestRev = 0
	e.dirty = false
	e.stale = false
	e.generation++
}

// Draft returns a copy of the working plan, or nil
func (e *Editor) Draft() *model.TaskPlan {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.draft == nil {
		return nil
	}
	d := e.draft.Clone()
	return &d
}

func (e *Editor) Dirty() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.dirty
}

// Stale reports that the backend holds a newer plan than the one the dirty
// draft was derived from
func (e *Editor) Stale() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stale
}

// CanExecute is false while there are unsaved edits
func (e *Editor) CanExecute() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.draft != nil && !e.dirty
}

func (e *Editor) BaseRevision() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.baseRev
}

// Generation returns the current edit generation
func (e *Editor) Generation() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.generation
}
