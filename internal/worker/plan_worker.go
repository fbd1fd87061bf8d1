package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/StefaNNN772/Computer-Use-Video-Instructions/internal/metrics"
	"github.com/StefaNNN772/Computer-Use-Video-Instructions/internal/model"
	"github.com/StefaNNN772/Computer-Use-Video-Instructions/internal/planner"
	"github.com/StefaNNN772/Computer-Use-Video-Instructions/internal/service"
)

// PlanWorker turns a pending job's instruction into a task plan
type PlanWorker struct {
	jobs    *service.JobService
	planner planner.Planner
	metrics *metrics.Metrics
	logger  *slog.Logger
}

func NewPlanWorker(jobs *service.JobService, p planner.Planner, m *metrics.Metrics, logger *slog.Logger) *PlanWorker {
	if logger == nil {
		logger = slog.Default()
	}
	return &PlanWorker{jobs: jobs, planner: p, metrics: m, logger: logger}
}

// ProcessTask handles plan:generate tasks
func (w *PlanWorker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	jobID, err := service.ParseTask(t)
	if err != nil {
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}

	start := time.Now()
	err = w.process(ctx, jobID)
	w.metrics.ObserveTask(service.TaskTypeGeneratePlan, start, err)
	return err
}

func (w *PlanWorker) process(ctx context.Context, jobID string) error {
	log := w.logger.With("job_id", jobID, "task", service.TaskTypeGeneratePlan)
	log.Info("starting plan generation")

	job, err := w.jobs.GetJob(ctx, jobID)
	if err != nil {
		return skip(err)
	}

	if err := w.jobs.SetStatus(ctx, jobID, model.StatusGeneratingPlan, service.MsgGeneratingPlan); err != nil {
		// another task already took this job
		log.Warn("job not pending, dropping task", "status", job.Status, "error", err)
		return skip(err)
	}

	plan, err := w.planner.Plan(ctx, job.Instruction)
	if err != nil {
		msg := fmt.Sprintf("Plan generation failed: %v", err)
		if errors.Is(err, planner.ErrNotProgramming) || errors.Is(err, planner.ErrTooShort) {
			msg = err.Error()
		}
		return w.failJob(ctx, log, jobID, msg)
	}

	if err := plan.ValidateGenerated(); err != nil {
		return w.failJob(ctx, log, jobID, fmt.Sprintf("Generated plan is invalid: %v", err))
	}

	if err := w.jobs.SetPlan(ctx, jobID, plan); err != nil {
		return w.failJob(ctx, log, jobID, "Failed to save plan")
	}

	log.Info("plan ready", "steps", len(plan.Steps))
	return nil
}

func (w *PlanWorker) failJob(ctx context.Context, log *slog.Logger, jobID, errMsg string) error {
	return failJob(ctx, w.jobs, log, jobID, errMsg)
}

// failJob marks the job failed and returns an error asynq will not retry
func failJob(ctx context.Context, jobs *service.JobService, log *slog.Logger, jobID, errMsg string) error {
	log.Error("job failed", "error", errMsg)
	if err := jobs.FailJob(context.WithoutCancel(ctx), jobID, errMsg); err != nil {
		log.Error("failed to mark job as failed", "error", err)
	}
	return skip(errors.New(errMsg))
}

func skip(err error) error {
	return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
}
