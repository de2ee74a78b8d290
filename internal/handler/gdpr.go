package handler

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// GDPRServiceInterface erases and exports a user's data
type GDPRServiceInterface interface {
	DeleteUser(ctx context.Context, userID, ipAddress, userAgent string) error
	ExportUserData(ctx context.Context, userID string) ([]byte, error)
}

// GDPRHandler implements GDPR compliance endpoints
type GDPRHandler struct {
	service GDPRServiceInterface
	logger  *zap.Logger
}

// NewGDPRHandler creates a new GDPRHandler
func NewGDPRHandler(service GDPRServiceInterface, logger *zap.Logger) *GDPRHandler {
	return &GDPRHandler{
		service: service,
		logger:  logger,
	}
}

// DeleteUser erases the caller's account and everything it owns (right to be forgotten)
func (h *GDPRHandler) DeleteUser(c *gin.Context) {
	user, ok := requireUser(c)
	if !ok {
		return
	}

	ipAddress := c.ClientIP()
	userAgent := c.Request.UserAgent()

	h.logger.Info("processing user data deletion request (GDPR)",
		zap.String("user_id", user.ID),
		zap.String("ip", ipAddress),
	)

	if err := h.service.DeleteUser(c.Request.Context(), user.ID, ipAddress, userAgent); err != nil {
		respondError(c, h.logger, err, "Failed to delete user data")
		return
	}

	h.logger.Info("user data deleted successfully (GDPR)",
		zap.String("user_id", user.ID),
	)

	c.Status(http.StatusNoContent)
}

// ExportUser returns the caller's data as a JSON download (right to data portability)
func (h *GDPRHandler) ExportUser(c *gin.Context) {
	user, ok := requireUser(c)
	if !ok {
		return
	}

	jsonData, err := h.service.ExportUserData(c.Request.Context(), user.ID)
	if err != nil {
		respondError(c, h.logger, err, "Failed to export user data")
		return
	}

	h.logger.Info("user data exported successfully (GDPR)",
		zap.String("user_id", user.ID),
		zap.Int("data_size_bytes", len(jsonData)),
	)

	filename := fmt.Sprintf("user_data_%s.json", user.ID)
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%s", filename))
	c.Data(http.StatusOK, "application/json", jsonData)
}
