package cli

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/StefaNNN772/Computer-Use-Video-Instructions/internal/automation"
	"github.com/StefaNNN772/Computer-Use-Video-Instructions/internal/client"
	"github.com/StefaNNN772/Computer-Use-Video-Instructions/internal/handler"
	"github.com/StefaNNN772/Computer-Use-Video-Instructions/internal/model"
	"github.com/StefaNNN772/Computer-Use-Video-Instructions/internal/planner"
	"github.com/StefaNNN772/Computer-Use-Video-Instructions/internal/service"
	"github.com/StefaNNN772/Computer-Use-Video-Instructions/internal/store"
	"github.com/StefaNNN772/Computer-Use-Video-Instructions/internal/video"
	"github.com/StefaNNN772/Computer-Use-Video-Instructions/internal/worker"
)

type testAPI struct {
	url        string
	jobs       *service.JobService
	dispatcher *service.InlineDispatcher
}

// newTestAPI serves the job API over real HTTP with the offline pipeline
func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	prev := pollInterval
	pollInterval = 10 * time.Millisecond
	t.Cleanup(func() { pollInterval = prev })
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	storage, err := client.NewLocalStorage(t.TempDir(), "/api/videos")
	require.NoError(t, err)
	recorder := video.NewRecorder(video.NewGIFEncoder(), storage, t.TempDir(), 2, logger)
	executor := automation.NewExecutor(automation.NewOfflineEngine(), logger,
		automation.WithSleep(func(ctx context.Context, d time.Duration) error { return ctx.Err() }))

	jobs := service.NewJobService(store.NewMemoryStore(), nil, recorder, nil, logger)
	mux := worker.NewServeMux(
		worker.NewPlanWorker(jobs, planner.NewOfflinePlanner(), nil, logger),
		worker.NewExecuteWorker(jobs, executor, recorder, nil, logger),
	)
	d := service.NewInlineDispatcher(mux, logger)
	jobs.SetDispatcher(d)

	h := handler.NewJobHandler(jobs, validator.New())
	vh := handler.NewVideoHandler(storage, logger)

	app := fiber.New(fiber.Config{Immutable: true})
	api := app.Group("/api")
	api.Post("/generate-plan", h.GeneratePlan)
	api.Get("/status/:jobId", h.Status)
	api.Get("/task-plan/:jobId", h.GetPlan)
	api.Put("/task-plan/:jobId", h.UpdatePlan)
	api.Post("/execute/:jobId", h.Execute)
	api.Post("/regenerate/:jobId", h.Regenerate)
	api.Get("/jobs", h.ListJobs)
	api.Get("/videos/:filename", vh.Stream)
	api.Get("/download/:filename", vh.Download)

	srv := httptest.NewServer(adaptor.FiberApp(app))
	t.Cleanup(func() {
		srv.Close()
		d.Shutdown()
	})

	return &testAPI{url: srv.URL + "/api", jobs: jobs, dispatcher: d}
}

// execute runs videoctl with args and returns what it printed
func (api *testAPI) execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	cmd := NewRootCmd(&out, &errOut)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(append([]string{"--api-url", api.url}, args...))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func (api *testAPI) readyJob(t *testing.T) string {
	t.Helper()
	resp, err := api.jobs.CreateJob(context.Background(), "Create a new Python project in VS Code")
	require.NoError(t, err)
	api.dispatcher.Wait()
	return resp.JobID
}

func TestRunCommand(t *testing.T) {
	api := newTestAPI(t)
	output := filepath.Join(t.TempDir(), "out", "video.gif")

	out, err := api.execute(t, "",
		"run", "Create a new Python project in VS Code",
		"--set", "3.target=File menu",
		"--set", "6.value=print('hello')",
		"--delete", "9",
		"-o", output,
	)
	require.NoError(t, err, out)

	assert.Contains(t, out, "Plan ready")
	assert.Contains(t, out, "Plan saved (revision 2)")
	assert.Contains(t, out, "Completed!")
	assert.Contains(t, out, "8/8 steps succeeded, 0 failed")
	assert.FileExists(t, output)

	jobs, err := api.jobs.ListJobs(context.Background())
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	plan := jobs[0].TaskPlan
	require.Len(t, plan.Steps, 8)
	assert.Equal(t, "File menu", plan.Steps[2].Target)
	assert.Equal(t, "print('hello')", *plan.Steps[5].Value)
	assert.NoError(t, plan.CheckStepIDs())
}

func TestRunPlanOnly(t *testing.T) {
	api := newTestAPI(t)

	out, err := api.execute(t, "", "run", "Create a Java class in Eclipse", "--plan-only")
	require.NoError(t, err, out)
	assert.Contains(t, out, "Open Eclipse")

	jobs, err := api.jobs.ListJobs(context.Background())
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, model.StatusPlanReady, jobs[0].Status)
}

func TestRunReportsFailure(t *testing.T) {
	api := newTestAPI(t)

	_, err := api.execute(t, "", "run", "Bake a chocolate cake for dinner")
	require.Error(t, err)
	assert.Contains(t, err.Error(), planner.ErrNotProgramming.Error())
}

func TestRunRejectsBadEdit(t *testing.T) {
	api := newTestAPI(t)

	_, err := api.execute(t, "", "run", "Create a new Python project in VS Code", "--set", "x.target=a")
	assert.ErrorContains(t, err, "invalid step number")

	_, err = api.execute(t, "", "run", "Create a new Python project in VS Code", "--delete", "0")
	assert.ErrorContains(t, err, "invalid step number")

	// neither edit reached the backend
	jobs, err := api.jobs.ListJobs(context.Background())
	require.NoError(t, err)
	assert.Empty(t, jobs)
}

func TestApplyEditsOutOfRange(t *testing.T) {
	api := newTestAPI(t)

	_, err := api.execute(t, "", "run", "Create a new Python project in VS Code", "--delete", "42")
	assert.ErrorContains(t, err, "step 42")
	assert.ErrorContains(t, err, "step index out of range")
}

func TestStatusAndJobs(t *testing.T) {
	api := newTestAPI(t)
	jobID := api.readyJob(t)

	out, err := api.execute(t, "", "status", jobID)
	require.NoError(t, err)
	assert.Contains(t, out, jobID)
	assert.Contains(t, out, "Plan ready")
	assert.Contains(t, out, "9 steps (revision 1)")

	out, err = api.execute(t, "", "--json", "jobs")
	require.NoError(t, err)
	assert.Contains(t, out, `"id": "`+jobID+`"`)

	_, err = api.execute(t, "", "status", "missing")
	assert.EqualError(t, err, "Job not found")
}

func TestPlanShowAndSave(t *testing.T) {
	api := newTestAPI(t)
	jobID := api.readyJob(t)

	out, err := api.execute(t, "", "plan", "show", "--yaml", jobID)
	require.NoError(t, err)
	plan, err := decodePlan([]byte(out))
	require.NoError(t, err)
	require.Len(t, plan.Steps, 9)

	edited := strings.Replace(out, "target: File\n", "target: File menu\n", 1)
	require.NotEqual(t, out, edited)

	out, err = api.execute(t, edited, "plan", "save", jobID)
	require.NoError(t, err)
	assert.Contains(t, out, "Plan saved (revision 2)")

	saved, rev, err := api.jobs.GetPlan(context.Background(), jobID)
	require.NoError(t, err)
	assert.Equal(t, 2, rev)
	assert.Equal(t, "File menu", saved.Steps[2].Target)

	// an edit based on revision 1 is rejected
	_, err = api.execute(t, edited, "plan", "save", "--revision", "1", jobID)
	assert.ErrorContains(t, err, "reload it and try again")

	out, err = api.execute(t, "", "plan", "show", jobID)
	require.NoError(t, err)
	assert.Contains(t, out, "(revision 2)")
}

func TestExecuteAndDownload(t *testing.T) {
	api := newTestAPI(t)
	jobID := api.readyJob(t)

	_, err := api.execute(t, "", "regenerate", jobID)
	assert.ErrorContains(t, err, "Nothing to regenerate")

	out, err := api.execute(t, "", "execute", jobID)
	require.NoError(t, err)
	assert.Contains(t, out, "Execution started")
	api.dispatcher.Wait()

	path := filepath.Join(t.TempDir(), "tutorial.gif")
	out, err = api.execute(t, "", "download", jobID, "-o", path)
	require.NoError(t, err)
	assert.Contains(t, out, "Saved "+path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(data, []byte("GIF8")))
}

func TestParseStepEdit(t *testing.T) {
	e, err := parseStepEdit("2.value=a=b")
	require.NoError(t, err)
	assert.Equal(t, stepEdit{index: 1, field: model.FieldValue, value: "a=b"}, e)

	_, err = parseStepEdit("2.colour=red")
	assert.Error(t, err)
	_, err = parseStepEdit("0.target=x")
	assert.Error(t, err)
	_, err = parseStepEdit("target")
	assert.Error(t, err)
}

func TestDecodePlanRejectsUnknownFields(t *testing.T) {
	_, err := decodePlan([]byte("goal: x\nsteps: []\nbogus: 1\n"))
	assert.Error(t, err)

	plan, err := decodePlan([]byte("goal: x\nsteps:\n  - id: 1\n    action: wait\n    target: screen\n    value: \"2\"\n"))
	require.NoError(t, err)
	assert.Equal(t, model.ActionWait, plan.Steps[0].Action)
	assert.Equal(t, "2", *plan.Steps[0].Value)
	assert.NotNil(t, plan.Prerequisites)
}

func TestBadgeUnknownStatus(t *testing.T) {
	assert.Contains(t, badge(model.JobStatus("paused")), "paused")
	assert.Contains(t, badge(model.StatusCompleted), "Completed!")
}
