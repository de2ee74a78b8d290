package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/neerajk1208/ivfb/internal/service"
	"github.com/neerajk1208/ivfb/pkg/api"
	"github.com/neerajk1208/ivfb/pkg/model"
	"github.com/oapi-codegen/runtime/types"
	"go.uber.org/zap"
)

// TodayServiceInterface builds the Today view
type TodayServiceInterface interface {
	Get(ctx context.Context, user *model.User) (*service.TodayView, error)
}

// TaskServiceInterface completes tasks
type TaskServiceInterface interface {
	MarkDone(ctx context.Context, userID, taskID string) (*model.Task, error)
}

// CheckInServiceInterface records check-ins
type CheckInServiceInterface interface {
	Create(ctx context.Context, userID string, in service.CheckInInput) (*model.CheckIn, error)
}

// TodayHandler implements the Today view, task completion and check-ins
type TodayHandler struct {
	today    TodayServiceInterface
	tasks    TaskServiceInterface
	checkIns CheckInServiceInterface
	logger   *zap.Logger
}

// NewTodayHandler creates a new TodayHandler
func NewTodayHandler(today TodayServiceInterface, tasks TaskServiceInterface, checkIns CheckInServiceInterface, logger *zap.Logger) *TodayHandler {
	return &TodayHandler{
		today:    today,
		tasks:    tasks,
		checkIns: checkIns,
		logger:   logger,
	}
}

// GetToday returns the user's tasks for the current local day
func (h *TodayHandler) GetToday(c *gin.Context) {
	user, ok := requireUser(c)
	if !ok {
		return
	}

	view, err := h.today.Get(c.Request.Context(), user)
	if err != nil {
		respondError(c, h.logger, err, "Failed to load today")
		return
	}

	resp := api.TodayResponse{
		Date:          civilToDate(view.Date),
		CycleDayIndex: view.CycleDayIndex,
		Tasks:         toTaskResponses(view.Tasks),
		Upcoming:      toTaskResponses(view.Upcoming),
	}
	if view.CheckIn != nil {
		ci := toCheckInResponse(view.CheckIn)
		resp.CheckIn = &ci
	}
	if view.Protocol != nil {
		resp.Protocol = &api.ProtocolSummary{
			Id:     toUUID(view.Protocol.ID),
			Status: string(view.Protocol.Status),
		}
	}

	c.JSON(http.StatusOK, resp)
}

// MarkTaskDone completes one of the user's tasks
func (h *TodayHandler) MarkTaskDone(c *gin.Context, id types.UUID) {
	user, ok := requireUser(c)
	if !ok {
		return
	}

	task, err := h.tasks.MarkDone(c.Request.Context(), user.ID, uuidToString(id))
	if err != nil {
		respondError(c, h.logger, err, "Failed to complete task")
		return
	}

	c.JSON(http.StatusOK, toTaskResponse(*task))
}

// CreateCheckIn records a mood and symptom check-in from the app
func (h *TodayHandler) CreateCheckIn(c *gin.Context) {
	user, ok := requireUser(c)
	if !ok {
		return
	}

	var req api.CheckInRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	in := service.CheckInInput{
		Mood:   req.Mood,
		Note:   derefString(req.Note),
		Source: model.CheckInSourceApp,
	}
	if req.Symptoms != nil {
		in.Symptoms = *req.Symptoms
	}

	checkIn, err := h.checkIns.Create(c.Request.Context(), user.ID, in)
	if err != nil {
		respondError(c, h.logger, err, "Failed to record check-in")
		return
	}

	c.JSON(http.StatusCreated, toCheckInResponse(checkIn))
}
