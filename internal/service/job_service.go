package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/StefaNNN772/Computer-Use-Video-Instructions/internal/metrics"
	"github.com/StefaNNN772/Computer-Use-Video-Instructions/internal/model"
	"github.com/StefaNNN772/Computer-Use-Video-Instructions/internal/store"
)

var (
	ErrJobNotFound        = errors.New("Job not found")
	ErrPlanNotReady       = errors.New("Task plan is not ready yet")
	ErrInvalidState       = errors.New("invalid job state")
	ErrPlanConflict       = errors.New("Plan was changed since it was loaded; reload it and try again")
	ErrInvalidInstruction = errors.New("Instruction is too short")
)

// StateError reports an operation the job's current status does not allow.
// It matches ErrInvalidState.
type StateError struct {
	Msg string
}

func (e *StateError) Error() string { return e.Msg }

func (e *StateError) Is(target error) bool { return target == ErrInvalidState }

func invalidState(format string, args ...any) error {
	return &StateError{Msg: fmt.Sprintf(format, args...)}
}

// Job messages shown to clients
const (
	MsgJobCreated          = "Job created"
	MsgPlanGeneration      = "Plan generation started"
	MsgGeneratingPlan      = "Generating task plan..."
	MsgPlanReady           = "Plan generated successfully"
	MsgPlanUpdated         = "Plan updated"
	MsgPlanUpdatedResponse = "Plan successfully updated"
	MsgExecutionStarted    = "Execution started"
	MsgRegenerationStarted = "Regeneration started"
	MsgStartingRecording   = "Starting recording and execution"
	MsgConverting          = "Converting video..."
	MsgCompleted           = "Video generated successfully"
)

// ArtifactRemover deletes a published video
type ArtifactRemover interface {
	Remove(ctx context.Context, filename string) error
}

// JobService owns job records: the API creates and edits them, workers
// advance them through the pipeline
type JobService struct {
	store      store.JobStore
	dispatcher Dispatcher
	artifacts  ArtifactRemover
	metrics    *metrics.Metrics
	logger     *slog.Logger
	now        func() time.Time
}

func NewJobService(s store.JobStore, dispatcher Dispatcher, artifacts ArtifactRemover, m *metrics.Metrics, logger *slog.Logger) *JobService {
	if logger == nil {
		logger = slog.Default()
	}
	return &JobService{
		store:      s,
		dispatcher: dispatcher,
		artifacts:  artifacts,
		metrics:    m,
		logger:     logger,
		now:        time.Now,
	}
}

// SetDispatcher replaces the dispatcher. Inline dispatch needs workers that
// are built from the service itself.
func (s *JobService) SetDispatcher(d Dispatcher) {
	s.dispatcher = d
}

// CreateJob stores a pending job and queues plan generation
func (s *JobService) CreateJob(ctx context.Context, instruction string) (*model.JobAcceptedResponse, error) {
	instruction = strings.TrimSpace(instruction)
	if len(instruction) < model.MinInstructionLength {
		return nil, ErrInvalidInstruction
	}

	now := s.now()
	job := &model.Job{
		ID:          uuid.New().String(),
		Status:      model.StatusPending,
		Message:     MsgJobCreated,
		Instruction: instruction,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.store.Create(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to save job: %w", err)
	}
	s.metrics.JobCreated()
	s.metrics.StatusChanged(model.StatusPending)

	if err := s.dispatch(ctx, TaskTypeGeneratePlan, job.ID); err != nil {
		return nil, err
	}

	s.logger.Info("job created", "job_id", job.ID)
	return &model.JobAcceptedResponse{
		JobID:   job.ID,
		Status:  model.StatusPending,
		Message: MsgPlanGeneration,
	}, nil
}

func (s *JobService) GetJob(ctx context.Context, jobID string) (*model.Job, error) {
	job, err := s.store.Get(ctx, jobID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrJobNotFound
	}
	return job, err
}

// GetPlan returns the job's plan and its revision
func (s *JobService) GetPlan(ctx context.Context, jobID string) (*model.TaskPlan, int, error) {
	job, err := s.GetJob(ctx, jobID)
	if err != nil {
		return nil, 0, err
	}
	if job.TaskPlan == nil {
		return nil, 0, ErrPlanNotReady
	}
	return job.TaskPlan, job.PlanRevision, nil
}

// UpdatePlan replaces the plan of a job that accepts edits. ifMatch is the
// revision the edit was based on; 0 skips the check. Step ids are
// renumbered and empty values stored as null.
func (s *JobService) UpdatePlan(ctx context.Context, jobID string, plan model.TaskPlan, ifMatch int) (*model.PlanUpdateResponse, error) {
	plan = plan.Clone()
	model.Renumber(plan.Steps)
	for i := range plan.Steps {
		if v := plan.Steps[i].Value; v != nil && *v == "" {
			plan.Steps[i].Value = nil
		}
	}
	if plan.Prerequisites == nil {
		plan.Prerequisites = []string{}
	}

	job, err := s.update(ctx, jobID, func(job *model.Job) error {
		if !model.AcceptsPlanEdits(job.Status) {
			return invalidState("Plan cannot be edited (status: %s)", job.Status)
		}
		if ifMatch > 0 && ifMatch != job.PlanRevision {
			return ErrPlanConflict
		}
		if err := model.ValidateTransition(job.Status, model.StatusPlanReady); err != nil {
			return invalidState("%v", err)
		}
		job.TaskPlan = &plan
		job.PlanRevision++
		job.Status = model.StatusPlanReady
		job.Message = MsgPlanUpdated
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.metrics.StatusChanged(model.StatusPlanReady)

	s.logger.Info("plan updated", "job_id", jobID, "revision", job.PlanRevision, "steps", len(plan.Steps))
	return &model.PlanUpdateResponse{
		Success:      true,
		Message:      MsgPlanUpdatedResponse,
		PlanRevision: job.PlanRevision,
	}, nil
}

// Execute records the job's current plan
func (s *JobService) Execute(ctx context.Context, jobID string) (*model.JobAcceptedResponse, error) {
	_, err := s.update(ctx, jobID, func(job *model.Job) error {
		if job.TaskPlan == nil || !model.AcceptsExecute(job.Status) {
			return invalidState("Plan not ready (status: %s)", job.Status)
		}
		return s.toRecording(job, MsgExecutionStarted, false)
	})
	if err != nil {
		return nil, err
	}
	return s.startExecution(ctx, jobID, MsgExecutionStarted)
}

// Regenerate records the plan again, discarding the previous video
func (s *JobService) Regenerate(ctx context.Context, jobID string) (*model.JobAcceptedResponse, error) {
	var oldVideo string
	_, err := s.update(ctx, jobID, func(job *model.Job) error {
		if job.TaskPlan == nil || !model.AcceptsRegenerate(job.Status) || !job.HasRecording() {
			return invalidState("Nothing to regenerate (status: %s)", job.Status)
		}
		oldVideo = ""
		if job.VideoFilename != nil {
			oldVideo = *job.VideoFilename
		}
		return s.toRecording(job, MsgRegenerationStarted, true)
	})
	if err != nil {
		return nil, err
	}

	if oldVideo != "" && s.artifacts != nil {
		if err := s.artifacts.Remove(ctx, oldVideo); err != nil {
			s.logger.Warn("failed to remove previous video", "job_id", jobID, "filename", oldVideo, "error", err)
		}
	}
	return s.startExecution(ctx, jobID, MsgRegenerationStarted)
}

func (s *JobService) toRecording(job *model.Job, message string, clearVideo bool) error {
	if err := model.ValidateTransition(job.Status, model.StatusRecording); err != nil {
		return invalidState("%v", err)
	}
	job.Status = model.StatusRecording
	job.Message = message
	job.Results = nil
	job.Error = nil
	if clearVideo {
		job.VideoURL = nil
		job.VideoFilename = nil
	}
	return nil
}

func (s *JobService) startExecution(ctx context.Context, jobID, message string) (*model.JobAcceptedResponse, error) {
	s.metrics.StatusChanged(model.StatusRecording)
	if err := s.dispatch(ctx, TaskTypeExecutePlan, jobID); err != nil {
		return nil, err
	}
	s.logger.Info("execution queued", "job_id", jobID)
	return &model.JobAcceptedResponse{
		JobID:   jobID,
		Status:  model.StatusRecording,
		Message: message,
	}, nil
}

// ListJobs returns all live jobs, newest first
func (s *JobService) ListJobs(ctx context.Context) ([]*model.Job, error) {
	jobs, err := s.store.List(ctx)
	if err != nil {
		return nil, err
	}
	if jobs == nil {
		jobs = []*model.Job{}
	}
	return jobs, nil
}

// SetStatus moves a job along the pipeline (called by workers)
func (s *JobService) SetStatus(ctx context.Context, jobID string, status model.JobStatus, message string) error {
	_, err := s.update(ctx, jobID, func(job *model.Job) error {
		if err := model.ValidateTransition(job.Status, status); err != nil {
			return invalidState("%v", err)
		}
		job.Status = status
		job.Message = message
		return nil
	})
	if err == nil {
		s.metrics.StatusChanged(status)
	}
	return err
}

// SetPlan stores a generated plan and marks the job plan_ready (called by workers)
func (s *JobService) SetPlan(ctx context.Context, jobID string, plan *model.TaskPlan) error {
	_, err := s.update(ctx, jobID, func(job *model.Job) error {
		if err := model.ValidateTransition(job.Status, model.StatusPlanReady); err != nil {
			return invalidState("%v", err)
		}
		p := plan.Clone()
		job.TaskPlan = &p
		job.PlanRevision++
		job.Status = model.StatusPlanReady
		job.Message = MsgPlanReady
		return nil
	})
	if err == nil {
		s.metrics.StatusChanged(model.StatusPlanReady)
	}
	return err
}

// CompleteJob records the finished video (called by workers)
func (s *JobService) CompleteJob(ctx context.Context, jobID, filename, url string, results model.StepResults) error {
	_, err := s.update(ctx, jobID, func(job *model.Job) error {
		if err := model.ValidateTransition(job.Status, model.StatusCompleted); err != nil {
			return invalidState("%v", err)
		}
		job.Status = model.StatusCompleted
		job.Message = MsgCompleted
		job.VideoFilename = &filename
		job.VideoURL = &url
		job.Results = &results
		job.Error = nil
		return nil
	})
	if err == nil {
		s.metrics.StatusChanged(model.StatusCompleted)
	}
	return err
}

// FailJob marks a job failed with a user-facing error (called by workers).
// A job that already reached a hard-terminal status is left alone.
func (s *JobService) FailJob(ctx context.Context, jobID, errMsg string) error {
	_, err := s.update(ctx, jobID, func(job *model.Job) error {
		if err := model.ValidateTransition(job.Status, model.StatusFailed); err != nil {
			return invalidState("%v", err)
		}
		job.Status = model.StatusFailed
		job.Message = "Error: " + errMsg
		job.Error = &errMsg
		return nil
	})
	if err == nil {
		s.metrics.StatusChanged(model.StatusFailed)
	}
	return err
}

func (s *JobService) update(ctx context.Context, jobID string, fn store.UpdateFunc) (*model.Job, error) {
	job, err := s.store.Update(ctx, jobID, func(job *model.Job) error {
		if err := fn(job); err != nil {
			return err
		}
		job.UpdatedAt = s.now()
		return nil
	})
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrJobNotFound
	}
	return job, err
}

// dispatch queues a task. A job whose task cannot be queued is failed so
// clients polling it do not wait forever.
func (s *JobService) dispatch(ctx context.Context, taskType, jobID string) error {
	if s.dispatcher == nil {
		return fmt.Errorf("no dispatcher configured")
	}
	if err := s.dispatcher.Dispatch(ctx, taskType, jobID); err != nil {
		s.metrics.DispatchFailed(taskType)
		s.logger.Error("failed to queue task", "task", taskType, "job_id", jobID, "error", err)
		if ferr := s.FailJob(context.WithoutCancel(ctx), jobID, "Failed to queue background task"); ferr != nil {
			s.logger.Error("failed to mark job failed", "job_id", jobID, "error", ferr)
		}
		return fmt.Errorf("failed to enqueue task: %w", err)
	}
	return nil
}
