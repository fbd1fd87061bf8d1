package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/StefaNNN772/Computer-Use-Video-Instructions/internal/metrics"
	"github.com/StefaNNN772/Computer-Use-Video-Instructions/internal/model"
	"github.com/StefaNNN772/Computer-Use-Video-Instructions/internal/store"
)

type dispatched struct {
	taskType string
	jobID    string
}

type fakeDispatcher struct {
	mu    sync.Mutex
	tasks []dispatched
	err   error
}

func (d *fakeDispatcher) Dispatch(ctx context.Context, taskType, jobID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return d.err
	}
	d.tasks = append(d.tasks, dispatched{taskType, jobID})
	return nil
}

type fakeArtifacts struct {
	removed []string
}

func (a *fakeArtifacts) Remove(ctx context.Context, filename string) error {
	a.removed = append(a.removed, filename)
	return nil
}

func newTestService(t *testing.T) (*JobService, *fakeDispatcher, *fakeArtifacts) {
	t.Helper()
	d := &fakeDispatcher{}
	a := &fakeArtifacts{}
	svc := NewJobService(store.NewMemoryStore(), d, a, metrics.New(prometheus.NewRegistry()), nil)
	return svc, d, a
}

func samplePlan() model.TaskPlan {
	return model.TaskPlan{
		OriginalInstruction: "Create a Java project",
		Goal:                "Java project",
		Prerequisites:       []string{"Eclipse"},
		Steps: []model.Step{
			{ID: 1, Action: model.ActionOpenApplication, Target: "Eclipse", Description: "Open", ExpectedResult: "Open"},
			{ID: 2, Action: model.ActionWait, Target: "screen", Value: model.StringPtr("4"), Description: "Wait", ExpectedResult: "Loaded"},
		},
		SuccessCriteria: "Project exists",
	}
}

// readyJob creates a job and walks it to plan_ready the way the plan worker does
func readyJob(t *testing.T, svc *JobService) string {
	t.Helper()
	ctx := context.Background()
	resp, err := svc.CreateJob(ctx, "Create a Java project in Eclipse")
	require.NoError(t, err)
	require.NoError(t, svc.SetStatus(ctx, resp.JobID, model.StatusGeneratingPlan, MsgGeneratingPlan))
	plan := samplePlan()
	require.NoError(t, svc.SetPlan(ctx, resp.JobID, &plan))
	return resp.JobID
}

// completeJob runs the execution stages on a recording job
func completeJob(t *testing.T, svc *JobService, jobID string) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, svc.SetStatus(ctx, jobID, model.StatusExecuting, MsgStartingRecording))
	require.NoError(t, svc.SetStatus(ctx, jobID, model.StatusConverting, MsgConverting))
	require.NoError(t, svc.CompleteJob(ctx, jobID, "tutorial_"+jobID+".mp4", "/api/videos/tutorial_"+jobID+".mp4",
		model.StepResults{SuccessfulSteps: 2, TotalSteps: 2}))
}

func TestCreateJob(t *testing.T) {
	svc, d, _ := newTestService(t)

	resp, err := svc.CreateJob(context.Background(), "  Create a Java project in Eclipse  ")
	require.NoError(t, err)
	assert.Equal(t, model.StatusPending, resp.Status)
	assert.Equal(t, MsgPlanGeneration, resp.Message)

	job, err := svc.GetJob(context.Background(), resp.JobID)
	require.NoError(t, err)
	assert.Equal(t, "Create a Java project in Eclipse", job.Instruction)
	assert.Equal(t, MsgJobCreated, job.Message)
	assert.Nil(t, job.TaskPlan)

	assert.Equal(t, []dispatched{{TaskTypeGeneratePlan, resp.JobID}}, d.tasks)
}

func TestCreateJobRejectsShortInstruction(t *testing.T) {
	svc, d, _ := newTestService(t)

	_, err := svc.CreateJob(context.Background(), "   too short   ")
	assert.ErrorIs(t, err, ErrInvalidInstruction)
	assert.Empty(t, d.tasks)
}

func TestCreateJobDispatchFailureFailsJob(t *testing.T) {
	svc, d, _ := newTestService(t)
	d.err = errors.New("redis down")

	_, err := svc.CreateJob(context.Background(), "Create a Java project in Eclipse")
	require.ErrorContains(t, err, "redis down")

	jobs, err := svc.ListJobs(context.Background())
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, model.StatusFailed, jobs[0].Status)
	require.NotNil(t, jobs[0].Error)
}

func TestGetJobNotFound(t *testing.T) {
	svc, _, _ := newTestService(t)
	_, err := svc.GetJob(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrJobNotFound)

	_, _, err = svc.GetPlan(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrJobNotFound)
}

func TestGetPlanBeforeGeneration(t *testing.T) {
	svc, _, _ := newTestService(t)
	resp, err := svc.CreateJob(context.Background(), "Create a Java project in Eclipse")
	require.NoError(t, err)

	_, _, err = svc.GetPlan(context.Background(), resp.JobID)
	assert.ErrorIs(t, err, ErrPlanNotReady)
}

func TestSetPlanAssignsRevision(t *testing.T) {
	svc, _, _ := newTestService(t)
	jobID := readyJob(t, svc)

	plan, rev, err := svc.GetPlan(context.Background(), jobID)
	require.NoError(t, err)
	assert.Equal(t, 1, rev)
	assert.Equal(t, "Java project", plan.Goal)

	job, err := svc.GetJob(context.Background(), jobID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusPlanReady, job.Status)
	assert.Equal(t, MsgPlanReady, job.Message)
}

func TestUpdatePlan(t *testing.T) {
	svc, _, _ := newTestService(t)
	jobID := readyJob(t, svc)

	plan := samplePlan()
	plan.Steps[0].ID = 7
	plan.Steps[1].Value = model.StringPtr("")
	plan.Prerequisites = nil

	resp, err := svc.UpdatePlan(context.Background(), jobID, plan, 1)
	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.Equal(t, MsgPlanUpdatedResponse, resp.Message)
	assert.Equal(t, 2, resp.PlanRevision)

	job, err := svc.GetJob(context.Background(), jobID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusPlanReady, job.Status)
	assert.Equal(t, MsgPlanUpdated, job.Message)
	require.NoError(t, job.TaskPlan.CheckStepIDs())
	assert.Nil(t, job.TaskPlan.Steps[1].Value)
	assert.NotNil(t, job.TaskPlan.Prerequisites)

	// the caller's plan is untouched
	assert.Equal(t, 7, plan.Steps[0].ID)
}

func TestUpdatePlanStaleRevision(t *testing.T) {
	svc, _, _ := newTestService(t)
	jobID := readyJob(t, svc)

	_, err := svc.UpdatePlan(context.Background(), jobID, samplePlan(), 1)
	require.NoError(t, err)

	_, err = svc.UpdatePlan(context.Background(), jobID, samplePlan(), 1)
	assert.ErrorIs(t, err, ErrPlanConflict)

	// no precondition
	resp, err := svc.UpdatePlan(context.Background(), jobID, samplePlan(), 0)
	require.NoError(t, err)
	assert.Equal(t, 3, resp.PlanRevision)
}

func TestUpdatePlanWrongState(t *testing.T) {
	svc, _, _ := newTestService(t)
	resp, err := svc.CreateJob(context.Background(), "Create a Java project in Eclipse")
	require.NoError(t, err)

	_, err = svc.UpdatePlan(context.Background(), resp.JobID, samplePlan(), 0)
	assert.ErrorIs(t, err, ErrInvalidState)
	assert.EqualError(t, err, "Plan cannot be edited (status: pending)")
}

func TestExecute(t *testing.T) {
	svc, d, _ := newTestService(t)
	jobID := readyJob(t, svc)

	resp, err := svc.Execute(context.Background(), jobID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusRecording, resp.Status)
	assert.Equal(t, MsgExecutionStarted, resp.Message)
	assert.Equal(t, dispatched{TaskTypeExecutePlan, jobID}, d.tasks[len(d.tasks)-1])

	// a recording job cannot be executed again
	_, err = svc.Execute(context.Background(), jobID)
	assert.ErrorIs(t, err, ErrInvalidState)
	assert.EqualError(t, err, "Plan not ready (status: recording)")
}

func TestExecuteAfterCompletion(t *testing.T) {
	svc, _, _ := newTestService(t)
	jobID := readyJob(t, svc)
	_, err := svc.Execute(context.Background(), jobID)
	require.NoError(t, err)
	completeJob(t, svc, jobID)

	_, err = svc.Execute(context.Background(), jobID)
	require.NoError(t, err)

	job, err := svc.GetJob(context.Background(), jobID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusRecording, job.Status)
	assert.Nil(t, job.Results)
}

func TestRegenerate(t *testing.T) {
	svc, d, a := newTestService(t)
	jobID := readyJob(t, svc)

	_, err := svc.Regenerate(context.Background(), jobID)
	assert.ErrorIs(t, err, ErrInvalidState, "never recorded")

	_, err = svc.Execute(context.Background(), jobID)
	require.NoError(t, err)
	completeJob(t, svc, jobID)

	resp, err := svc.Regenerate(context.Background(), jobID)
	require.NoError(t, err)
	assert.Equal(t, MsgRegenerationStarted, resp.Message)
	assert.Equal(t, []string{"tutorial_" + jobID + ".mp4"}, a.removed)
	assert.Equal(t, TaskTypeExecutePlan, d.tasks[len(d.tasks)-1].taskType)

	job, err := svc.GetJob(context.Background(), jobID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusRecording, job.Status)
	assert.Nil(t, job.VideoURL)
	assert.Nil(t, job.VideoFilename)
	assert.Nil(t, job.Results)
	assert.Nil(t, job.Error)
}

func TestRegenerateAfterSavingCompletedPlan(t *testing.T) {
	svc, _, _ := newTestService(t)
	jobID := readyJob(t, svc)
	_, err := svc.Execute(context.Background(), jobID)
	require.NoError(t, err)
	completeJob(t, svc, jobID)

	// editing a finished job moves it back to plan_ready but keeps the video
	_, err = svc.UpdatePlan(context.Background(), jobID, samplePlan(), 0)
	require.NoError(t, err)
	job, err := svc.GetJob(context.Background(), jobID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusPlanReady, job.Status)
	require.NotNil(t, job.VideoFilename)

	_, err = svc.Regenerate(context.Background(), jobID)
	assert.NoError(t, err)
}

func TestWorkerTransitions(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	resp, err := svc.CreateJob(ctx, "Create a Java project in Eclipse")
	require.NoError(t, err)

	// plan cannot be stored before generation started
	plan := samplePlan()
	assert.ErrorIs(t, svc.SetPlan(ctx, resp.JobID, &plan), ErrInvalidState)

	require.NoError(t, svc.FailJob(ctx, resp.JobID, "boom"))
	job, err := svc.GetJob(ctx, resp.JobID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusFailed, job.Status)
	assert.Equal(t, "Error: boom", job.Message)
	assert.Equal(t, "boom", *job.Error)

	// failed is final
	assert.ErrorIs(t, svc.SetStatus(ctx, resp.JobID, model.StatusGeneratingPlan, ""), ErrInvalidState)
	assert.ErrorIs(t, svc.FailJob(ctx, resp.JobID, "again"), ErrInvalidState)
}

func TestListJobsNewestFirst(t *testing.T) {
	svc, _, _ := newTestService(t)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	i := 0
	svc.now = func() time.Time {
		i++
		return base.Add(time.Duration(i) * time.Minute)
	}

	first, err := svc.CreateJob(context.Background(), "Create a Java project in Eclipse")
	require.NoError(t, err)
	second, err := svc.CreateJob(context.Background(), "Create a Python project in VS Code")
	require.NoError(t, err)

	jobs, err := svc.ListJobs(context.Background())
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	assert.Equal(t, second.JobID, jobs[0].ID)
	assert.Equal(t, first.JobID, jobs[1].ID)
}

func TestListJobsEmpty(t *testing.T) {
	svc, _, _ := newTestService(t)
	jobs, err := svc.ListJobs(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, jobs)
	assert.Empty(t, jobs)
}

func TestTaskPayloadRoundTrip(t *testing.T) {
	task, err := NewTask(TaskTypeExecutePlan, "job-1")
	require.NoError(t, err)
	assert.Equal(t, TaskTypeExecutePlan, task.Type())

	jobID, err := ParseTask(task)
	require.NoError(t, err)
	assert.Equal(t, "job-1", jobID)

	_, err = ParseTask(asynq.NewTask(TaskTypeExecutePlan, []byte(`{}`)))
	assert.Error(t, err)
}

func TestInlineDispatcher(t *testing.T) {
	var mu sync.Mutex
	var got []string

	mux := asynq.NewServeMux()
	mux.HandleFunc(TaskTypeGeneratePlan, func(ctx context.Context, task *asynq.Task) error {
		jobID, err := ParseTask(task)
		mu.Lock()
		got = append(got, jobID)
		mu.Unlock()
		return err
	})

	d := NewInlineDispatcher(mux, nil)
	require.NoError(t, d.Dispatch(context.Background(), TaskTypeGeneratePlan, "a"))
	require.NoError(t, d.Dispatch(context.Background(), TaskTypeGeneratePlan, "b"))
	d.Wait()

	mu.Lock()
	assert.ElementsMatch(t, []string{"a", "b"}, got)
	mu.Unlock()

	d.Shutdown()
	assert.Error(t, d.Dispatch(context.Background(), TaskTypeGeneratePlan, "c"))
}
