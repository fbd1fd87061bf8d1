package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hibiken/asynq"
)

const (
	TaskTypeGeneratePlan = "plan:generate"
	TaskTypeExecutePlan  = "plan:execute"

	QueueAutomation = "automation"
)

// Dispatcher hands a job's next pipeline stage to the workers
type Dispatcher interface {
	Dispatch(ctx context.Context, taskType, jobID string) error
}

// TaskPayload is the body of every pipeline task
type TaskPayload struct {
	JobID string `json:"jobId"`
}

func NewTask(taskType, jobID string) (*asynq.Task, error) {
	data, err := json.Marshal(TaskPayload{JobID: jobID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(taskType, data), nil
}

// ParseTask extracts the job id from a pipeline task
func ParseTask(t *asynq.Task) (string, error) {
	var p TaskPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return "", fmt.Errorf("failed to unmarshal task payload: %w", err)
	}
	if p.JobID == "" {
		return "", fmt.Errorf("task payload has no job id")
	}
	return p.JobID, nil
}

// AsynqDispatcher queues tasks on Redis for the asynq worker server
type AsynqDispatcher struct {
	client *asynq.Client
}

func NewAsynqDispatcher(client *asynq.Client) *AsynqDispatcher {
	return &AsynqDispatcher{client: client}
}

func (d *AsynqDispatcher) Dispatch(ctx context.Context, taskType, jobID string) error {
	task, err := NewTask(taskType, jobID)
	if err != nil {
		return fmt.Errorf("failed to create task: %w", err)
	}

	// Workers mark jobs failed themselves, so asynq never retries
	_, err = d.client.EnqueueContext(ctx, task,
		asynq.Queue(QueueAutomation),
		asynq.MaxRetry(0),
		asynq.Timeout(30*time.Minute),
		asynq.Retention(24*time.Hour),
	)
	return err
}

// InlineDispatcher runs tasks in goroutines of this process. It serves the
// Redis-less setup and tests; tasks do not survive a restart.
type InlineDispatcher struct {
	mux    *asynq.ServeMux
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewInlineDispatcher(mux *asynq.ServeMux, logger *slog.Logger) *InlineDispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &InlineDispatcher{mux: mux, logger: logger, ctx: ctx, cancel: cancel}
}

func (d *InlineDispatcher) Dispatch(ctx context.Context, taskType, jobID string) error {
	if d.ctx.Err() != nil {
		return fmt.Errorf("dispatcher stopped")
	}
	task, err := NewTask(taskType, jobID)
	if err != nil {
		return fmt.Errorf("failed to create task: %w", err)
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		if err := d.mux.ProcessTask(d.ctx, task); err != nil {
			d.logger.Warn("inline task failed", "task", taskType, "job_id", jobID, "error", err)
		}
	}()
	return nil
}

// Wait blocks until every dispatched task has returned
func (d *InlineDispatcher) Wait() {
	d.wg.Wait()
}

// Shutdown cancels running tasks and waits for them
func (d *InlineDispatcher) Shutdown() {
	d.cancel()
	d.wg.Wait()
}
