package handler

import (
	"errors"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/StefaNNN772/Computer-Use-Video-Instructions/internal/model"
	"github.com/StefaNNN772/Computer-Use-Video-Instructions/internal/service"
	"github.com/StefaNNN772/Computer-Use-Video-Instructions/pkg/response"
)

type JobHandler struct {
	service   *service.JobService
	validator *validator.Validate
}

func NewJobHandler(svc *service.JobService, v *validator.Validate) *JobHandler {
	return &JobHandler{
		service:   svc,
		validator: v,
	}
}

// GeneratePlan handles POST /api/generate-plan
func (h *JobHandler) GeneratePlan(c *fiber.Ctx) error {
	var req model.GeneratePlanRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}

	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "Missing 'instruction' field", formatValidationErrors(err))
	}

	result, err := h.service.CreateJob(c.Context(), req.Instruction)
	if err != nil {
		if errors.Is(err, service.ErrInvalidInstruction) {
			return response.ValidationError(c, "Instruction is too short. Please provide more details.", nil)
		}
		return response.ServiceError(c, err.Error())
	}

	return response.Accepted(c, result)
}

// Status handles GET /api/status/:jobId
func (h *JobHandler) Status(c *fiber.Ctx) error {
	jobID := c.Params("jobId")
	if jobID == "" {
		return response.ValidationError(c, "Job ID is required", nil)
	}

	job, err := h.service.GetJob(c.Context(), jobID)
	if err != nil {
		return jobError(c, err)
	}

	return response.OK(c, job)
}

// GetPlan handles GET /api/task-plan/:jobId. The plan revision is sent as ETag.
func (h *JobHandler) GetPlan(c *fiber.Ctx) error {
	jobID := c.Params("jobId")
	if jobID == "" {
		return response.ValidationError(c, "Job ID is required", nil)
	}

	plan, rev, err := h.service.GetPlan(c.Context(), jobID)
	if err != nil {
		return jobError(c, err)
	}

	c.Set(fiber.HeaderETag, revisionTag(rev))
	return response.OK(c, plan)
}

// UpdatePlan handles PUT /api/task-plan/:jobId
func (h *JobHandler) UpdatePlan(c *fiber.Ctx) error {
	jobID := c.Params("jobId")
	if jobID == "" {
		return response.ValidationError(c, "Job ID is required", nil)
	}

	ifMatch, err := parseRevision(c.Get(fiber.HeaderIfMatch))
	if err != nil {
		return response.ValidationError(c, "Invalid If-Match header", nil)
	}

	var plan model.TaskPlan
	if err := c.BodyParser(&plan); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}

	// ids are assigned by position on write
	model.Renumber(plan.Steps)
	if err := h.validator.Struct(&plan); err != nil {
		return response.ValidationError(c, "Invalid task plan", formatValidationErrors(err))
	}

	result, err := h.service.UpdatePlan(c.Context(), jobID, plan, ifMatch)
	if err != nil {
		return jobError(c, err)
	}

	c.Set(fiber.HeaderETag, revisionTag(result.PlanRevision))
	return response.OK(c, result)
}

// Execute handles POST /api/execute/:jobId
func (h *JobHandler) Execute(c *fiber.Ctx) error {
	jobID := c.Params("jobId")
	if jobID == "" {
		return response.ValidationError(c, "Job ID is required", nil)
	}

	result, err := h.service.Execute(c.Context(), jobID)
	if err != nil {
		return jobError(c, err)
	}

	return response.Accepted(c, result)
}

// Regenerate handles POST /api/regenerate/:jobId
func (h *JobHandler) Regenerate(c *fiber.Ctx) error {
	jobID := c.Params("jobId")
	if jobID == "" {
		return response.ValidationError(c, "Job ID is required", nil)
	}

	result, err := h.service.Regenerate(c.Context(), jobID)
	if err != nil {
		return jobError(c, err)
	}

	return response.Accepted(c, result)
}

// ListJobs handles GET /api/jobs
func (h *JobHandler) ListJobs(c *fiber.Ctx) error {
	jobs, err := h.service.ListJobs(c.Context())
	if err != nil {
		return response.ServiceError(c, err.Error())
	}

	return response.OK(c, model.JobListResponse{Jobs: jobs})
}

// jobError maps service errors to the response envelope
func jobError(c *fiber.Ctx, err error) error {
	var stateErr *service.StateError
	switch {
	case errors.Is(err, service.ErrJobNotFound):
		return response.NotFound(c, service.ErrJobNotFound.Error())
	case errors.Is(err, service.ErrPlanNotReady):
		return response.NotFound(c, service.ErrPlanNotReady.Error())
	case errors.Is(err, service.ErrPlanConflict):
		return response.PlanConflict(c, service.ErrPlanConflict.Error())
	case errors.As(err, &stateErr):
		return response.InvalidState(c, stateErr.Msg)
	case errors.Is(err, service.ErrInvalidState):
		return response.InvalidState(c, err.Error())
	default:
		return response.ServiceError(c, err.Error())
	}
}

func revisionTag(rev int) string {
	return strconv.Quote(strconv.Itoa(rev))
}

// parseRevision reads an If-Match value. Empty and "*" mean no precondition.
func parseRevision(header string) (int, error) {
	header = strings.TrimSpace(header)
	if header == "" || header == "*" {
		return 0, nil
	}
	header = strings.TrimPrefix(header, "W/")
	rev, err := strconv.Atoi(strings.Trim(header, `"`))
	if err != nil || rev < 0 {
		return 0, errors.New("invalid revision")
	}
	return rev, nil
}
