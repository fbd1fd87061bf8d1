package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/StefaNNN772/Computer-Use-Video-Instructions/internal/automation"
	"github.com/StefaNNN772/Computer-Use-Video-Instructions/internal/metrics"
	"github.com/StefaNNN772/Computer-Use-Video-Instructions/internal/model"
	"github.com/StefaNNN772/Computer-Use-Video-Instructions/internal/service"
	"github.com/StefaNNN772/Computer-Use-Video-Instructions/internal/video"
)

// ExecuteWorker performs a job's plan while recording it and publishes the video
type ExecuteWorker struct {
	jobs     *service.JobService
	executor *automation.Executor
	recorder *video.Recorder
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

func NewExecuteWorker(jobs *service.JobService, executor *automation.Executor, recorder *video.Recorder, m *metrics.Metrics, logger *slog.Logger) *ExecuteWorker {
	if logger == nil {
		logger = slog.Default()
	}
	return &ExecuteWorker{
		jobs:     jobs,
		executor: executor,
		recorder: recorder,
		metrics:  m,
		logger:   logger,
	}
}

// ProcessTask handles plan:execute tasks
func (w *ExecuteWorker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	jobID, err := service.ParseTask(t)
	if err != nil {
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}

	start := time.Now()
	err = w.process(ctx, jobID)
	w.metrics.ObserveTask(service.TaskTypeExecutePlan, start, err)
	return err
}

func (w *ExecuteWorker) process(ctx context.Context, jobID string) error {
	log := w.logger.With("job_id", jobID, "task", service.TaskTypeExecutePlan)

	job, err := w.jobs.GetJob(ctx, jobID)
	if err != nil {
		return skip(err)
	}
	if job.Status != model.StatusRecording || job.TaskPlan == nil {
		log.Warn("job not waiting for execution, dropping task", "status", job.Status)
		return skip(fmt.Errorf("job %s is %s", jobID, job.Status))
	}
	plan := *job.TaskPlan
	log.Info("starting execution", "steps", len(plan.Steps))

	capture, err := w.recorder.NewCapture(jobID)
	if err != nil {
		return w.failJob(ctx, log, jobID, fmt.Sprintf("Recording failed: %v", err))
	}
	defer func() {
		if err := capture.Cleanup(); err != nil {
			log.Warn("failed to remove frames", "error", err)
		}
	}()

	if err := w.jobs.SetStatus(ctx, jobID, model.StatusExecuting, service.MsgStartingRecording); err != nil {
		return skip(err)
	}

	results, err := w.executor.Run(ctx, plan, capture, func(i, total int, step model.Step) {
		msg := fmt.Sprintf("Executing step %d/%d: %s", i+1, total, step.Description)
		if err := w.jobs.SetStatus(ctx, jobID, model.StatusExecuting, msg); err != nil {
			log.Warn("failed to update progress", "error", err)
		}
	})
	w.metrics.StepsExecuted(results)
	if err != nil {
		return w.failJob(ctx, log, jobID, fmt.Sprintf("Execution failed: %v", err))
	}

	if err := w.jobs.SetStatus(ctx, jobID, model.StatusConverting, service.MsgConverting); err != nil {
		return w.failJob(ctx, log, jobID, "Failed to update job")
	}

	filename, url, err := w.recorder.Publish(ctx, jobID, capture)
	if err != nil {
		return w.failJob(ctx, log, jobID, fmt.Sprintf("Video conversion failed: %v", err))
	}

	if err := w.jobs.CompleteJob(ctx, jobID, filename, url, results); err != nil {
		return w.failJob(ctx, log, jobID, "Failed to save result")
	}

	log.Info("execution completed",
		"successful_steps", results.SuccessfulSteps,
		"failed_steps", results.FailedSteps,
		"video", filename,
	)
	return nil
}

func (w *ExecuteWorker) failJob(ctx context.Context, log *slog.Logger, jobID, errMsg string) error {
	return failJob(ctx, w.jobs, log, jobID, errMsg)
}
