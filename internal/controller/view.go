package controller

import "github.com/StefaNNN772/Computer-Use-Video-Instructions/internal/model"

// View is a consistent snapshot of everything a front end renders
type View struct {
	JobID        string
	Instruction  string
	Status       model.JobStatus
	StatusLabel  string
	Message      string
	JobError     string
	Banner       string
	Loading      bool
	Polling      bool
	Plan         *model.TaskPlan
	PlanRevision int
	Dirty        bool
	Stale        bool

	CanSave       bool
	CanExecute    bool
	CanRegenerate bool
	ShowEditor    bool
	ShowPlayer    bool

	VideoURL      string
	VideoFilename string
	DownloadURL   string
	Results       *model.StepResults
}

func (c *Controller) View() View {
	c.mu.Lock()
	defer c.mu.Unlock()

	plan := c.editor.Draft()
	dirty := c.editor.Dirty()
	idle := !c.busy && !c.loading

	v := View{
		JobID:        c.jobID,
		Instruction:  c.instruction,
		Status:       c.status,
		Message:      c.message,
		Banner:       c.banner,
		Loading:      c.loading,
		Polling:      c.handle != nil && c.handle.Active(),
		Plan:         plan,
		PlanRevision: c.planRevision,
		Dirty:        dirty,
		Stale:        c.editor.Stale(),
	}
	if c.status != "" {
		v.StatusLabel = c.status.Label()
	}
	if c.jobErr != nil {
		v.JobError = *c.jobErr
	}
	if c.results != nil {
		r := *c.results
		v.Results = &r
	}

	v.ShowEditor = plan != nil && model.AcceptsPlanEdits(c.status)
	v.CanSave = v.ShowEditor && dirty && !c.busy
	v.CanExecute = plan != nil && idle && c.editor.CanExecute() && model.AcceptsExecute(c.status)
	v.CanRegenerate = plan != nil && idle && c.editor.CanExecute() && c.canRegenerateLocked()

	if c.videoURL != nil {
		v.VideoURL = *c.videoURL
	}
	if c.videoFilename != nil {
		v.VideoFilename = *c.videoFilename
		v.DownloadURL = c.backend.DownloadURL(*c.videoFilename)
	}
	v.ShowPlayer = c.status == model.StatusCompleted && v.VideoURL != ""
	return v
}
