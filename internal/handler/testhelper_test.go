package handler

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/StefaNNN772/Computer-Use-Video-Instructions/internal/automation"
	"github.com/StefaNNN772/Computer-Use-Video-Instructions/internal/client"
	"github.com/StefaNNN772/Computer-Use-Video-Instructions/internal/metrics"
	"github.com/StefaNNN772/Computer-Use-Video-Instructions/internal/middleware"
	"github.com/StefaNNN772/Computer-Use-Video-Instructions/internal/planner"
	"github.com/StefaNNN772/Computer-Use-Video-Instructions/internal/service"
	"github.com/StefaNNN772/Computer-Use-Video-Instructions/internal/store"
	"github.com/StefaNNN772/Computer-Use-Video-Instructions/internal/video"
	"github.com/StefaNNN772/Computer-Use-Video-Instructions/internal/worker"
)

const testJWTSecret = "test-secret-for-handlers"

type testApp struct {
	app        *fiber.App
	jobs       *service.JobService
	dispatcher *service.InlineDispatcher
	auth       *middleware.AuthMiddleware
	videoDir   string
}

type appOptions struct {
	auth          bool
	generateLimit int
}

// setupApp builds the API the way cmd/server does in memory mode, with the
// offline planner and engine so the whole pipeline runs in-process
func setupApp(t *testing.T, opts appOptions) *testApp {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	m := metrics.New(prometheus.NewRegistry())
	validate := validator.New()

	videoDir := t.TempDir()
	storage, err := client.NewLocalStorage(videoDir, "/api/videos")
	require.NoError(t, err)
	recorder := video.NewRecorder(video.NewGIFEncoder(), storage, t.TempDir(), 2, logger)
	executor := automation.NewExecutor(automation.NewOfflineEngine(), logger,
		automation.WithSleep(func(ctx context.Context, d time.Duration) error { return ctx.Err() }))

	jobs := service.NewJobService(store.NewMemoryStore(), nil, recorder, m, logger)
	mux := worker.NewServeMux(
		worker.NewPlanWorker(jobs, planner.NewOfflinePlanner(), m, logger),
		worker.NewExecuteWorker(jobs, executor, recorder, m, logger),
	)
	dispatcher := service.NewInlineDispatcher(mux, logger)
	jobs.SetDispatcher(dispatcher)
	t.Cleanup(dispatcher.Shutdown)

	jobHandler := NewJobHandler(jobs, validate)
	videoHandler := NewVideoHandler(storage, logger)
	authMiddleware := middleware.NewAuthMiddleware(testJWTSecret, opts.auth)
	rateLimiter := middleware.NewRateLimiter(nil, logger)

	app := fiber.New(fiber.Config{Immutable: true})
	app.Get("/health", Health(HealthInfo{Store: "memory", Queue: "inline", Engine: "offline", Encoder: "gif"}))

	api := app.Group("/api", authMiddleware.Authenticate())
	api.Post("/generate-plan", rateLimiter.GenerateLimit(opts.generateLimit), jobHandler.GeneratePlan)
	api.Get("/status/:jobId", jobHandler.Status)
	api.Get("/task-plan/:jobId", jobHandler.GetPlan)
	api.Put("/task-plan/:jobId", jobHandler.UpdatePlan)
	api.Post("/execute/:jobId", jobHandler.Execute)
	api.Post("/regenerate/:jobId", jobHandler.Regenerate)
	api.Get("/jobs", jobHandler.ListJobs)
	api.Get("/videos/:filename", videoHandler.Stream)
	api.Get("/download/:filename", videoHandler.Download)

	return &testApp{
		app:        app,
		jobs:       jobs,
		dispatcher: dispatcher,
		auth:       authMiddleware,
		videoDir:   videoDir,
	}
}

// doRequest performs an HTTP request against the test app
func (ta *testApp) doRequest(t *testing.T, method, path string, body interface{}, headers map[string]string) *http.Response {
	t.Helper()

	var reader io.Reader
	if body != nil {
		switch b := body.(type) {
		case string:
			reader = strings.NewReader(b)
		default:
			data, err := json.Marshal(b)
			require.NoError(t, err)
			reader = strings.NewReader(string(data))
		}
	}

	req, err := http.NewRequest(method, path, reader)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := ta.app.Test(req, -1)
	require.NoError(t, err)
	return resp
}

// readBody reads the full response body
func readBody(t *testing.T, resp *http.Response) []byte {
	t.Helper()
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return data
}

// parseJSON reads and decodes a JSON response body
func parseJSON(t *testing.T, resp *http.Response) map[string]interface{} {
	t.Helper()
	var result map[string]interface{}
	require.NoError(t, json.Unmarshal(readBody(t, resp), &result), "response is not JSON")
	return result
}

// assertStatus checks the status code and shows the body on mismatch
func assertStatus(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	if resp.StatusCode != expected {
		body := readBody(t, resp)
		t.Fatalf("expected status %d, got %d: %s", expected, resp.StatusCode, string(body))
	}
}

// createReadyJob submits an instruction and waits for its plan
func (ta *testApp) createReadyJob(t *testing.T) string {
	t.Helper()
	resp := ta.doRequest(t, http.MethodPost, "/api/generate-plan",
		map[string]string{"instruction": "Create a new Python project in VS Code"}, nil)
	assertStatus(t, resp, http.StatusAccepted)
	jobID, ok := parseJSON(t, resp)["job_id"].(string)
	require.True(t, ok)
	ta.dispatcher.Wait()
	return jobID
}
