package model

import "time"

// Job is the unit of work tracked from instruction to video
type Job struct {
	ID            string       `json:"id"`
	Status        JobStatus    `json:"status"`
	Message       string       `json:"message"`
	Instruction   string       `json:"instruction"`
	TaskPlan      *TaskPlan    `json:"task_plan"`
	PlanRevision  int          `json:"plan_revision"`
	VideoURL      *string      `json:"video_url"`
	VideoFilename *string      `json:"video_filename"`
	Results       *StepResults `json:"results"`
	Error         *string      `json:"error"`
	CreatedAt     time.Time    `json:"created_at"`
	UpdatedAt     time.Time    `json:"updated_at"`
}

// StepResults aggregates one execution attempt
type StepResults struct {
	SuccessfulSteps int `json:"successful_steps"`
	FailedSteps     int `json:"failed_steps"`
	TotalSteps      int `json:"total_steps"`
}

// Clone returns a deep copy of the job
func (j *Job) Clone() *Job {
	if j == nil {
		return nil
	}
	out := *j
	if j.TaskPlan != nil {
		p := j.TaskPlan.Clone()
		out.TaskPlan = &p
	}
	out.VideoURL = clonePtr(j.VideoURL)
	out.VideoFilename = clonePtr(j.VideoFilename)
	out.Error = clonePtr(j.Error)
	if j.Results != nil {
		r := *j.Results
		out.Results = &r
	}
	return &out
}

// HasRecording reports whether the job was executed at least once
func (j *Job) HasRecording() bool {
	return j.VideoFilename != nil || j.Results != nil
}

func clonePtr(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

// GeneratePlanRequest is the body of POST /api/generate-plan
type GeneratePlanRequest struct {
	Instruction string `json:"instruction" validate:"required"`
}

// JobAcceptedResponse is returned when a job is created or restarted
type JobAcceptedResponse struct {
	JobID   string    `json:"job_id"`
	Status  JobStatus `json:"status"`
	Message string    `json:"message"`
}

// PlanUpdateResponse is returned by PUT /api/task-plan/:jobId
type PlanUpdateResponse struct {
	Success      bool   `json:"success"`
	Message      string `json:"message"`
	PlanRevision int    `json:"plan_revision"`
}

// JobListResponse is returned by GET /api/jobs
type JobListResponse struct {
	Jobs []*Job `json:"jobs"`
}

// MinInstructionLength is the shortest instruction accepted at job creation
const MinInstructionLength = 10
