package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/neerajk1208/ivfb/internal/service"
	"github.com/neerajk1208/ivfb/pkg/api"
	"go.uber.org/zap"
)

// SettingsServiceInterface updates user preferences
type SettingsServiceInterface interface {
	UpdateSettings(ctx context.Context, userID string, upd service.SettingsUpdate) (*service.SettingsResult, error)
}

// PushServiceInterface registers device tokens
type PushServiceInterface interface {
	Subscribe(ctx context.Context, userID, token string, deviceInfo *string) error
	Unsubscribe(ctx context.Context, userID, token string) error
}

// UserHandler implements settings and push registration endpoints
type UserHandler struct {
	settings SettingsServiceInterface
	push     PushServiceInterface
	logger   *zap.Logger
}

// NewUserHandler creates a new UserHandler
func NewUserHandler(settings SettingsServiceInterface, push PushServiceInterface, logger *zap.Logger) *UserHandler {
	return &UserHandler{
		settings: settings,
		push:     push,
		logger:   logger,
	}
}

// GetSettings returns the caller's settings
func (h *UserHandler) GetSettings(c *gin.Context) {
	user, ok := requireUser(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, toUserResponse(user))
}

// UpdateSettings applies a partial settings update. Timezone and quiet-hour
// changes regenerate the active plan.
func (h *UserHandler) UpdateSettings(c *gin.Context) {
	user, ok := requireUser(c)
	if !ok {
		return
	}

	var req api.SettingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	result, err := h.settings.UpdateSettings(c.Request.Context(), user.ID, service.SettingsUpdate{
		Timezone:        req.Timezone,
		Phone:           req.Phone,
		SMSConsent:      req.SmsConsent,
		QuietHoursStart: req.QuietHoursStart,
		QuietHoursEnd:   req.QuietHoursEnd,
	})
	if err != nil {
		respondError(c, h.logger, err, "Failed to update settings")
		return
	}

	c.JSON(http.StatusOK, api.SettingsResponse{
		User:            toUserResponse(result.User),
		PlanRegenerated: result.PlanRegenerated,
	})
}

// SubscribePush registers a device token for the caller
func (h *UserHandler) SubscribePush(c *gin.Context) {
	user, ok := requireUser(c)
	if !ok {
		return
	}

	var req api.PushSubscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	if err := h.push.Subscribe(c.Request.Context(), user.ID, req.Token, req.DeviceInfo); err != nil {
		respondError(c, h.logger, err, "Failed to register device")
		return
	}

	c.Status(http.StatusNoContent)
}

// UnsubscribePush removes one of the caller's device tokens
func (h *UserHandler) UnsubscribePush(c *gin.Context) {
	user, ok := requireUser(c)
	if !ok {
		return
	}

	var req api.PushSubscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	if err := h.push.Unsubscribe(c.Request.Context(), user.ID, req.Token); err != nil {
		respondError(c, h.logger, err, "Failed to remove device")
		return
	}

	c.Status(http.StatusNoContent)
}
