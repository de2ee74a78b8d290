package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/neerajk1208/ivfb/internal/service"
	"github.com/neerajk1208/ivfb/pkg/api"
	"go.uber.org/zap"
)

// TickRunnerInterface delivers due tasks
type TickRunnerInterface interface {
	RunTick(ctx context.Context) (*service.TickResult, error)
}

// PlanRefresherInterface slides plan windows forward
type PlanRefresherInterface interface {
	RefreshAll(ctx context.Context) (*service.RefreshResult, error)
	RefreshCycle(ctx context.Context, cycleID string) (*service.RefreshResult, error)
}

// JobsHandler implements the externally triggered job endpoints
type JobsHandler struct {
	scheduler TickRunnerInterface
	refresher PlanRefresherInterface
	logger    *zap.Logger
}

// NewJobsHandler creates a new JobsHandler
func NewJobsHandler(scheduler TickRunnerInterface, refresher PlanRefresherInterface, logger *zap.Logger) *JobsHandler {
	return &JobsHandler{
		scheduler: scheduler,
		refresher: refresher,
		logger:    logger,
	}
}

// RunTick runs one delivery tick
func (h *JobsHandler) RunTick(c *gin.Context) {
	result, err := h.scheduler.RunTick(c.Request.Context())
	if err != nil {
		respondError(c, h.logger, err, "Tick failed")
		return
	}

	c.JSON(http.StatusOK, api.TickResponse{
		Processed:   result.Processed,
		SmsSent:     result.SMSSent,
		PushSent:    result.PushSent,
		ChatCreated: result.ChatCreated,
		Failed:      result.Failed,
		Errors:      sliceOrEmpty(result.Errors),
	})
}

// RegeneratePlans refreshes every active plan, or one cycle's when named
func (h *JobsHandler) RegeneratePlans(c *gin.Context) {
	var req api.RegenerateRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err)
			return
		}
	}

	var (
		result *service.RefreshResult
		err    error
	)
	if req.CycleId != nil {
		result, err = h.refresher.RefreshCycle(c.Request.Context(), uuidToString(*req.CycleId))
	} else {
		result, err = h.refresher.RefreshAll(c.Request.Context())
	}
	if err != nil {
		respondError(c, h.logger, err, "Plan regeneration failed")
		return
	}

	c.JSON(http.StatusOK, api.RegenerateResponse{
		Plans:           result.Plans,
		PlanDaysCreated: result.PlanDaysCreated,
		TasksCreated:    result.TasksCreated,
		Failed:          result.Failed,
		Errors:          sliceOrEmpty(result.Errors),
	})
}
