package poller

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/StefaNNN772/Computer-Use-Video-Instructions/internal/model"
)

const (
	// PollInterval is the delay between the end of one fetch and the start of the next
	PollInterval = 2 * time.Second
	// FetchTimeout bounds a single status request
	FetchTimeout = 10 * time.Second
)

var errNoJob = errors.New("status fetch returned no job")

// FetchFunc retrieves the current job record
type FetchFunc func(ctx context.Context, jobID string) (*model.Job, error)

// ApplyFunc receives a fetched job. seq increases monotonically across every
// fetch made by the same Scheduler.
type ApplyFunc func(h *Handle, seq uint64, job *model.Job)

// Scheduler polls a job's status at a fixed interval until a status that ends
// polling is observed or the handle is stopped.
type Scheduler struct {
	fetch        FetchFunc
	logger       *slog.Logger
	interval     time.Duration
	fetchTimeout time.Duration
	seq          atomic.Uint64
}

type Option func(*Scheduler)

// WithInterval overrides PollInterval
func WithInterval(d time.Duration) Option {
	return func(s *Scheduler) { s.interval = d }
}

// WithFetchTimeout overrides FetchTimeout
func WithFetchTimeout(d time.Duration) Option {
	return func(s *Scheduler) { s.fetchTimeout = d }
}

func New(fetch FetchFunc, logger *slog.Logger, opts ...Option) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Scheduler{
		fetch:        fetch,
		logger:       logger,
		interval:     PollInterval,
		fetchTimeout: FetchTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handle identifies one polling session. It is the only way to stop it.
type Handle struct {
	jobID  string
	cancel context.CancelFunc
	done   chan struct{}

	mu      sync.Mutex
	stopped bool
}

func (h *Handle) JobID() string {
	return h.jobID
}

// Done is closed once the polling goroutine has exited
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Active reports whether the handle has not been stopped
func (h *Handle) Active() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return !h.stopped
}

func (h *Handle) stop() {
	h.mu.Lock()
	h.stopped = true
	h.mu.Unlock()
	h.cancel()
}

// Start begins polling jobID. The first fetch happens after one interval.
func (s *Scheduler) Start(ctx context.Context, jobID string, apply ApplyFunc) *Handle {
	ctx, cancel := context.WithCancel(ctx)
	h := &Handle{
		jobID:  jobID,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go s.loop(ctx, h, apply)
	return h
}

// Stop cancels polling for h. It is safe to call more than once and with nil.
func (s *Scheduler) Stop(h *Handle) {
	if h == nil {
		return
	}
	h.stop()
}

func (s *Scheduler) loop(ctx context.Context, h *Handle, apply ApplyFunc) {
	defer close(h.done)
	defer h.stop()

	timer := time.NewTimer(s.interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		seq := s.seq.Add(1)
		job, err := s.fetchOnce(ctx, h.jobID)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			s.logger.Warn("status poll failed", "job_id", h.jobID, "seq", seq, "error", err)
			timer.Reset(s.interval)
			continue
		}
		if !h.Active() {
			return
		}

		apply(h, seq, job)

		if model.IsTerminalForPolling(job.Status) {
			s.logger.Debug("polling finished", "job_id", h.jobID, "status", job.Status)
			return
		}
		timer.Reset(s.interval)
	}
}

func (s *Scheduler) fetchOnce(ctx context.Context, jobID string) (*model.Job, error) {
	ctx, cancel := context.WithTimeout(ctx, s.fetchTimeout)
	defer cancel()
	job, err := s.fetch(ctx, jobID)
	if err == nil && job == nil {
		err = errNoJob
	}
	return job, err
}
