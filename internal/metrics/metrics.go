package metrics

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/StefaNNN772/Computer-Use-Video-Instructions/internal/model"
)

const namespace = "videoinstr"

// Metrics holds the service's Prometheus collectors. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	registry prometheus.Gatherer

	jobsCreated    prometheus.Counter
	transitions    *prometheus.CounterVec
	dispatchErrors *prometheus.CounterVec
	steps          *prometheus.CounterVec
	taskDuration   *prometheus.HistogramVec
	httpRequests   *prometheus.HistogramVec
}

// New registers the collectors with reg
func New(reg *prometheus.Registry) *Metrics {
	m := &Metrics{
		registry: reg,
		jobsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_created_total",
			Help:      "Jobs created from an instruction.",
		}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "job_status_transitions_total",
			Help:      "Job status changes by target status.",
		}, []string{"status"}),
		dispatchErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dispatch_errors_total",
			Help:      "Background tasks that could not be queued.",
		}, []string{"task"}),
		steps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "plan_steps_total",
			Help:      "Executed plan steps by outcome.",
		}, []string{"outcome"}),
		taskDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "task_duration_seconds",
			Help:      "Background task duration.",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600},
		}, []string{"task", "result"}),
		httpRequests: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
	}
	reg.MustRegister(m.jobsCreated, m.transitions, m.dispatchErrors, m.steps, m.taskDuration, m.httpRequests)
	return m
}

func (m *Metrics) JobCreated() {
	if m == nil {
		return
	}
	m.jobsCreated.Inc()
}

func (m *Metrics) StatusChanged(to model.JobStatus) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(string(to)).Inc()
}

func (m *Metrics) DispatchFailed(task string) {
	if m == nil {
		return
	}
	m.dispatchErrors.WithLabelValues(task).Inc()
}

func (m *Metrics) StepsExecuted(r model.StepResults) {
	if m == nil {
		return
	}
	m.steps.WithLabelValues("success").Add(float64(r.SuccessfulSteps))
	m.steps.WithLabelValues("failure").Add(float64(r.FailedSteps))
}

// ObserveTask records how long a background task ran
func (m *Metrics) ObserveTask(task string, start time.Time, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.taskDuration.WithLabelValues(task, result).Observe(time.Since(start).Seconds())
}

// Middleware records request latency per matched route
func (m *Metrics) Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if m == nil {
			return c.Next()
		}
		start := time.Now()
		err := c.Next()

		status := c.Response().StatusCode()
		if err != nil {
			if fe, ok := err.(*fiber.Error); ok {
				status = fe.Code
			} else {
				status = fiber.StatusInternalServerError
			}
		}
		m.httpRequests.WithLabelValues(c.Method(), c.Route().Path, strconv.Itoa(status)).
			Observe(time.Since(start).Seconds())
		return err
	}
}

// Handler serves the registry in the Prometheus text format
func (m *Metrics) Handler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
}
