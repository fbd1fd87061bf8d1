package worker

import (
	"github.com/hibiken/asynq"

	"github.com/StefaNNN772/Computer-Use-Video-Instructions/internal/service"
)

// NewServeMux routes pipeline tasks to their workers
func NewServeMux(plan *PlanWorker, execute *ExecuteWorker) *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.Handle(service.TaskTypeGeneratePlan, plan)
	mux.Handle(service.TaskTypeExecutePlan, execute)
	return mux
}
