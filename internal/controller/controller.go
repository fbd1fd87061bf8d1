package controller

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"

	"github.com/StefaNNN772/Computer-Use-Video-Instructions/internal/editor"
	"github.com/StefaNNN772/Computer-Use-Video-Instructions/internal/model"
	"github.com/StefaNNN772/Computer-Use-Video-Instructions/internal/poller"
)

var (
	ErrUnsavedChanges   = errors.New("save the plan before running it")
	ErrBusy             = errors.New("another request is still in progress")
	ErrNoJob            = errors.New("no active job")
	ErrNotAllowed       = errors.New("action not available in the current job status")
	ErrEmptyInstruction = errors.New("instruction is empty")
	ErrControllerClosed = errors.New("controller closed")
)

const (
	msgGeneratingPlan = "Generating plan"
	msgPlanSaved      = "Plan saved"
	msgRecording      = "Starting recording"
	msgRegenerating   = "Regenerating video"
)

// Backend is the job API as seen by the client
type Backend interface {
	CreateJob(ctx context.Context, instruction string) (*model.JobAcceptedResponse, error)
	GetJob(ctx context.Context, jobID string) (*model.Job, error)
	SavePlan(ctx context.Context, jobID string, plan model.TaskPlan, baseRevision int) (int, error)
	Execute(ctx context.Context, jobID string) (*model.JobAcceptedResponse, error)
	Regenerate(ctx context.Context, jobID string) (*model.JobAcceptedResponse, error)
	DownloadURL(filename string) string
}

// Controller owns the client-side state of one job at a time. All state
// changes happen under mu; backend calls are made without holding it.
type Controller struct {
	backend   Backend
	editor    *editor.Editor
	scheduler *poller.Scheduler
	logger    *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	changes chan struct{}

	mu            sync.Mutex
	closed        bool
	epoch         uint64 // bumped by reset; responses from an older epoch are dropped
	busy          bool
	loading       bool
	banner        string
	jobID         string
	instruction   string
	status        model.JobStatus
	message       string
	jobErr        *string
	planRevision  int
	videoURL      *string
	videoFilename *string
	results       *model.StepResults
	handle        *poller.Handle
	lastSeq       uint64
}

type Option func(*config)

type config struct {
	pollOpts []poller.Option
}

// WithPollerOptions passes options to the status poller
func WithPollerOptions(opts ...poller.Option) Option {
	return func(c *config) { c.pollOpts = append(c.pollOpts, opts...) }
}

func New(backend Backend, logger *slog.Logger, opts ...Option) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	var cfg config
	for _, opt := range opts {
		opt(&cfg)
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Controller{
		backend: backend,
		editor:  editor.New(),
		logger:  logger,
		ctx:     ctx,
		cancel:  cancel,
		changes: make(chan struct{}, 1),
	}
	c.scheduler = poller.New(backend.GetJob, logger, cfg.pollOpts...)
	return c
}

// Changes receives a value whenever the view may have changed. Notifications
// are coalesced; read View after each one.
func (c *Controller) Changes() <-chan struct{} {
	return c.changes
}

func (c *Controller) notify() {
	select {
	case c.changes <- struct{}{}:
	default:
	}
}

// SubmitInstruction starts a new job, discarding any previous one
func (c *Controller) SubmitInstruction(ctx context.Context, instruction string) error {
	instruction = strings.TrimSpace(instruction)
	if instruction == "" {
		return ErrEmptyInstruction
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrControllerClosed
	}
	if c.busy {
		c.mu.Unlock()
		return ErrBusy
	}
	c.clearLocked()
	c.instruction = instruction
	c.loading = true
	c.busy = true
	epoch := c.epoch
	c.mu.Unlock()
	c.notify()

	resp, err := c.backend.CreateJob(ctx, instruction)

	c.mu.Lock()
	defer c.notify()
	defer c.mu.Unlock()

	if c.epoch != epoch {
		return err
	}
	c.busy = false
	if err != nil {
		c.loading = false
		c.banner = err.Error()
		c.logger.Warn("job submission failed", "error", err)
		return err
	}

	c.jobID = resp.JobID
	c.setLocalStatusLocked(model.StatusPending, msgGeneratingPlan)
	c.logger.Info("job submitted", "job_id", c.jobID)
	return nil
}

// SavePlan sends the draft plan to the backend
func (c *Controller) SavePlan(ctx context.Context) error {
	c.mu.Lock()
	if err := c.checkJobLocked(); err != nil {
		c.mu.Unlock()
		return err
	}
	if c.editor.Draft() == nil {
		c.mu.Unlock()
		return editor.ErrNoDraft
	}
	if !model.AcceptsPlanEdits(c.status) {
		c.mu.Unlock()
		return ErrNotAllowed
	}
	c.busy = true
	c.banner = ""
	jobID := c.jobID
	epoch := c.epoch
	c.mu.Unlock()
	c.notify()

	rev, err := c.editor.Save(ctx, c.backend)

	// observe the status the save moved the job to
	var job *model.Job
	if err == nil {
		var ferr error
		if job, ferr = c.backend.GetJob(ctx, jobID); ferr != nil {
			c.logger.Warn("refresh after save failed", "job_id", jobID, "error", ferr)
		}
	}

	c.mu.Lock()
	defer c.notify()
	defer c.mu.Unlock()

	if c.epoch != epoch {
		return err
	}
	c.busy = false
	if err != nil {
		c.banner = err.Error()
		c.logger.Warn("plan save failed", "job_id", jobID, "error", err)
		return err
	}
	if rev > c.planRevision {
		c.planRevision = rev
	}
	c.message = msgPlanSaved
	if job != nil && (c.handle == nil || !c.handle.Active()) {
		c.applyJobLocked(job)
		c.ensurePollingLocked()
	}
	return nil
}

// Execute records the saved plan
func (c *Controller) Execute(ctx context.Context) error {
	return c.run(ctx, c.canExecuteLocked, c.backend.Execute, msgRecording, false)
}

// Regenerate records the saved plan again, replacing the previous video
func (c *Controller) Regenerate(ctx context.Context) error {
	return c.run(ctx, c.canRegenerateLocked, c.backend.Regenerate, msgRegenerating, true)
}

func (c *Controller) canExecuteLocked() bool {
	return model.AcceptsExecute(c.status)
}

func (c *Controller) canRegenerateLocked() bool {
	return model.AcceptsRegenerate(c.status) && (c.videoFilename != nil || c.results != nil)
}

func (c *Controller) run(
	ctx context.Context,
	accepts func() bool,
	call func(context.Context, string) (*model.JobAcceptedResponse, error),
	message string,
	clearVideo bool,
) error {
	c.mu.Lock()
	if err := c.checkJobLocked(); err != nil {
		c.mu.Unlock()
		return err
	}
	if c.editor.Dirty() {
		c.mu.Unlock()
		return ErrUnsavedChanges
	}
	if !accepts() {
		c.mu.Unlock()
		return ErrNotAllowed
	}
	c.busy = true
	c.loading = true
	c.banner = ""
	jobID := c.jobID
	epoch := c.epoch
	c.mu.Unlock()
	c.notify()

	_, err := call(ctx, jobID)

	c.mu.Lock()
	defer c.notify()
	defer c.mu.Unlock()

	if c.epoch != epoch {
		return err
	}
	c.busy = false
	if err != nil {
		c.loading = false
		c.banner = err.Error()
		c.logger.Warn("run request failed", "job_id", jobID, "error", err)
		return err
	}

	c.jobErr = nil
	c.results = nil
	if clearVideo {
		c.videoURL = nil
		c.videoFilename = nil
	}
	c.setLocalStatusLocked(model.StatusRecording, message)
	return nil
}

// Reset abandons the current job without telling the backend
func (c *Controller) Reset() {
	c.mu.Lock()
	c.clearLocked()
	c.mu.Unlock()
	c.notify()
}

// Close stops polling for good
func (c *Controller) Close() {
	c.mu.Lock()
	c.clearLocked()
	c.closed = true
	c.mu.Unlock()
	c.cancel()
}

func (c *Controller) UpdateStepField(index int, field model.StepField, value string) error {
	return c.edit(func() error { return c.editor.UpdateStepField(index, field, value) })
}

func (c *Controller) AddStep() error {
	return c.edit(c.editor.AddStep)
}

func (c *Controller) DeleteStep(index int) error {
	return c.edit(func() error { return c.editor.DeleteStep(index) })
}

// RevertPlan drops local edits in favour of the newest plan from the backend
func (c *Controller) RevertPlan() {
	c.mu.Lock()
	c.editor.Revert()
	c.mu.Unlock()
	c.notify()
}

func (c *Controller) edit(fn func() error) error {
	c.mu.Lock()
	err := fn()
	c.mu.Unlock()
	if err == nil {
		c.notify()
	}
	return err
}

// applyPoll is the poller callback. Updates from a handle that is no longer
// the active one, or older than the last applied update, are dropped.
func (c *Controller) applyPoll(h *poller.Handle, seq uint64, job *model.Job) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if h != c.handle || !h.Active() {
		return
	}
	if seq <= c.lastSeq {
		return
	}
	if job.ID != "" && job.ID != c.jobID {
		return
	}
	c.lastSeq = seq

	c.applyJobLocked(job)
	if model.IsTerminalForPolling(job.Status) {
		c.loading = false
		c.handle = nil
	}
	c.notify()
}

// applyJobLocked copies the backend-owned fields of an authoritative record
func (c *Controller) applyJobLocked(job *model.Job) {
	c.status = job.Status
	c.message = job.Message
	c.planRevision = job.PlanRevision
	c.videoURL = job.VideoURL
	c.videoFilename = job.VideoFilename
	c.results = job.Results
	c.jobErr = job.Error
	if job.Status == model.StatusFailed && job.Error != nil {
		c.banner = *job.Error
	}
	c.editor.Seed(c.jobID, job.TaskPlan, job.PlanRevision)
}

func (c *Controller) setLocalStatusLocked(status model.JobStatus, message string) {
	if err := model.ValidateLocalTransition(status); err != nil {
		c.logger.Error("refusing local status change", "status", status, "error", err)
		return
	}
	c.status = status
	c.message = message
	c.ensurePollingLocked()
}

// ensurePollingLocked starts a poll session when the job is in a pollable
// status and none is running
func (c *Controller) ensurePollingLocked() {
	if c.jobID == "" || c.closed || !model.IsPollable(c.status) {
		return
	}
	if c.handle != nil && c.handle.Active() && c.handle.JobID() == c.jobID {
		return
	}
	c.scheduler.Stop(c.handle)
	c.handle = c.scheduler.Start(c.ctx, c.jobID, c.applyPoll)
}

func (c *Controller) checkJobLocked() error {
	if c.closed {
		return ErrControllerClosed
	}
	if c.jobID == "" {
		return ErrNoJob
	}
	if c.busy {
		return ErrBusy
	}
	return nil
}

func (c *Controller) clearLocked() {
	c.scheduler.Stop(c.handle)
	c.handle = nil
	c.editor.Reset()
	c.epoch++
	c.busy = false
	c.loading = false
	c.banner = ""
	c.jobID = ""
	c.instruction = ""
	c.status = ""
	c.message = ""
	c.jobErr = nil
	c.planRevision = 0
	c.videoURL = nil
	c.videoFilename = nil
	c.results = nil
}
