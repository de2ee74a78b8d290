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

// ProtocolServiceInterface captures and activates treatment protocols
type ProtocolServiceInterface interface {
	SaveDraft(ctx context.Context, userID string, ext *service.ProtocolExtraction, source model.ProtocolSource) (*model.Protocol, error)
	ExtractFromText(ctx context.Context, userID, filename, text string) (*model.Protocol, error)
	Confirm(ctx context.Context, user *model.User, planID string) (*service.ConfirmResult, error)
	Current(ctx context.Context, userID string) (*model.Protocol, error)
}

// ProtocolHandler implements protocol intake endpoints
type ProtocolHandler struct {
	service ProtocolServiceInterface
	logger  *zap.Logger
}

// NewProtocolHandler creates a new ProtocolHandler
func NewProtocolHandler(service ProtocolServiceInterface, logger *zap.Logger) *ProtocolHandler {
	return &ProtocolHandler{
		service: service,
		logger:  logger,
	}
}

// SaveProtocolDraft stores a manually entered protocol as the cycle's draft
func (h *ProtocolHandler) SaveProtocolDraft(c *gin.Context) {
	user, ok := requireUser(c)
	if !ok {
		return
	}

	var req api.ProtocolDraftRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	protocol, err := h.service.SaveDraft(c.Request.Context(), user.ID, toExtraction(req), model.ProtocolSourceManual)
	if err != nil {
		respondError(c, h.logger, err, "Failed to save protocol draft")
		return
	}

	h.logger.Info("protocol draft saved",
		zap.String("protocol_plan_id", protocol.ID),
		zap.String("user_id", user.ID),
	)

	c.JSON(http.StatusOK, toProtocolResponse(protocol))
}

// ExtractProtocol turns pasted protocol text into a draft
func (h *ProtocolHandler) ExtractProtocol(c *gin.Context) {
	user, ok := requireUser(c)
	if !ok {
		return
	}

	var req api.ExtractRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	filename := derefString(req.Filename)
	if filename == "" {
		filename = "protocol.txt"
	}

	protocol, err := h.service.ExtractFromText(c.Request.Context(), user.ID, filename, req.Text)
	if err != nil {
		respondError(c, h.logger, err, "Failed to extract protocol")
		return
	}

	c.JSON(http.StatusOK, toProtocolResponse(protocol))
}

// ConfirmProtocol activates a draft and generates its plan
func (h *ProtocolHandler) ConfirmProtocol(c *gin.Context, id types.UUID) {
	user, ok := requireUser(c)
	if !ok {
		return
	}

	result, err := h.service.Confirm(c.Request.Context(), user, uuidToString(id))
	if err != nil {
		respondError(c, h.logger, err, "Failed to confirm protocol")
		return
	}

	resp := api.ConfirmResponse{Protocol: toProtocolResponse(result.Protocol)}
	if result.Plan != nil {
		resp.Plan = api.PlanSummary{
			PlanDaysCreated: result.Plan.PlanDaysCreated,
			TasksCreated:    result.Plan.TasksCreated,
		}
	}

	c.JSON(http.StatusOK, resp)
}

// GetCurrentProtocol returns the protocol of the active cycle
func (h *ProtocolHandler) GetCurrentProtocol(c *gin.Context) {
	user, ok := requireUser(c)
	if !ok {
		return
	}

	protocol, err := h.service.Current(c.Request.Context(), user.ID)
	if err != nil {
		respondError(c, h.logger, err, "Failed to load protocol")
		return
	}

	c.JSON(http.StatusOK, toProtocolResponse(protocol))
}
