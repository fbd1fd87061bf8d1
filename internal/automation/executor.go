package automation

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/StefaNNN772/Computer-Use-Video-Instructions/internal/model"
)

const (
	DefaultRetries     = 3
	DefaultRetryDelay  = 2 * time.Second
	DefaultStepTimeout = 30 * time.Second
)

// FrameSink receives captured PNG frames in order
type FrameSink interface {
	AddFrame(png []byte) error
}

// StepFunc is called before each step starts
type StepFunc func(index, total int, step model.Step)

// Executor runs a plan step by step. A failed step is retried, then counted
// as failed, and execution moves on to the next one.
type Executor struct {
	engine      Engine
	retries     int
	retryDelay  time.Duration
	stepTimeout time.Duration
	sleep       func(ctx context.Context, d time.Duration) error
	logger      *slog.Logger
}

type Option func(*Executor)

func WithRetries(n int) Option {
	return func(e *Executor) {
		if n > 0 {
			e.retries = n
		}
	}
}

func WithRetryDelay(d time.Duration) Option {
	return func(e *Executor) { e.retryDelay = d }
}

func WithStepTimeout(d time.Duration) Option {
	return func(e *Executor) {
		if d > 0 {
			e.stepTimeout = d
		}
	}
}

// WithSleep replaces the context-aware sleep used for waits and retry delays
func WithSleep(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(e *Executor) { e.sleep = fn }
}

func NewExecutor(engine Engine, logger *slog.Logger, opts ...Option) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	e := &Executor{
		engine:      engine,
		retries:     DefaultRetries,
		retryDelay:  DefaultRetryDelay,
		stepTimeout: DefaultStepTimeout,
		sleep:       sleepContext,
		logger:      logger,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run executes every step of plan and streams frames into sink. The returned
// error is non-nil only when no session could be opened, a frame could not
// be stored, or ctx ended; step failures are reported in the results.
func (e *Executor) Run(ctx context.Context, plan model.TaskPlan, sink FrameSink, onStep StepFunc) (model.StepResults, error) {
	results := model.StepResults{TotalSteps: len(plan.Steps)}

	session, err := e.engine.NewSession(ctx)
	if err != nil {
		return results, fmt.Errorf("failed to start %s session: %w", e.engine.Name(), err)
	}
	defer session.Close()

	if err := e.capture(ctx, session, sink); err != nil {
		return results, err
	}

	for i, step := range plan.Steps {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		if onStep != nil {
			onStep(i, len(plan.Steps), step)
		}

		if err := e.runStep(ctx, session, step); err != nil {
			if ctx.Err() != nil {
				return results, ctx.Err()
			}
			results.FailedSteps++
			e.logger.Warn("step failed", "step", step.ID, "action", step.Action, "target", step.Target, "error", err)
		} else {
			results.SuccessfulSteps++
			e.logger.Debug("step ok", "step", step.ID, "action", step.Action)
		}

		if err := e.capture(ctx, session, sink); err != nil {
			return results, err
		}
	}

	return results, nil
}

func (e *Executor) runStep(ctx context.Context, session Session, step model.Step) error {
	var err error
	for attempt := 1; attempt <= e.retries; attempt++ {
		if cerr := ctx.Err(); cerr != nil {
			return cerr
		}
		if attempt > 1 {
			e.logger.Info("retrying step", "step", step.ID, "attempt", attempt, "of", e.retries)
			if serr := e.sleep(ctx, e.retryDelay); serr != nil {
				return serr
			}
		}

		if step.Action == model.ActionWait {
			secs := ParseWaitSeconds(step.Value)
			return e.sleep(ctx, time.Duration(secs)*time.Second)
		}

		stepCtx, cancel := context.WithTimeout(ctx, e.stepTimeout)
		err = session.Perform(stepCtx, step)
		cancel()
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	return err
}

// capture grabs a frame. A session that cannot capture does not stop the run.
func (e *Executor) capture(ctx context.Context, session Session, sink FrameSink) error {
	if sink == nil {
		return nil
	}
	frame, err := session.Capture(ctx)
	if err != nil {
		e.logger.Warn("frame capture failed", "error", err)
		return nil
	}
	if err := sink.AddFrame(frame); err != nil {
		return fmt.Errorf("failed to store frame: %w", err)
	}
	return nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
