package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/neerajk1208/ivfb/internal/middleware"
	"github.com/neerajk1208/ivfb/internal/service"
	"github.com/neerajk1208/ivfb/pkg/api"
	"github.com/neerajk1208/ivfb/pkg/model"
	"go.uber.org/zap"
)

// respondError maps a service error to its HTTP status and body. Only
// unexpected errors are logged; their details are not returned to the client.
func respondError(c *gin.Context, logger *zap.Logger, err error, message string) {
	var verr *service.ValidationError
	switch {
	case errors.As(err, &verr):
		fields := make([]api.FieldError, len(verr.Fields))
		for i, f := range verr.Fields {
			fields[i] = api.FieldError{Field: f.Field, Message: f.Message}
		}
		c.JSON(http.StatusBadRequest, api.ErrorResponse{
			Code:    api.CodeValidation,
			Message: "Invalid request",
			Fields:  &fields,
		})
	case errors.Is(err, service.ErrForbidden):
		c.JSON(http.StatusForbidden, api.ErrorResponse{
			Code:    api.CodeForbidden,
			Message: "Not allowed to access this resource",
		})
	case errors.Is(err, service.ErrNotFound):
		c.JSON(http.StatusNotFound, api.ErrorResponse{
			Code:    api.CodeNotFound,
			Message: "Resource not found",
		})
	case errors.Is(err, service.ErrUnavailable):
		c.JSON(http.StatusServiceUnavailable, api.ErrorResponse{
			Code:    api.CodeUnavailable,
			Message: "Feature is not available",
		})
	default:
		logger.Error(message,
			zap.Error(err),
			zap.String("path", c.Request.URL.Path),
			zap.String("user_id", c.GetString(middleware.ContextUserIDKey)),
		)
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, api.ErrorResponse{
			Code:    api.CodeInternal,
			Message: message,
		})
	}
}

// badRequest reports a body that could not be decoded
func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, api.ErrorResponse{
		Code:    api.CodeValidation,
		Message: "Invalid request body",
		Details: stringPtr(err.Error()),
	})
}

// requireUser returns the authenticated user or aborts with 401
func requireUser(c *gin.Context) (*model.User, bool) {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, api.ErrorResponse{
			Code:    api.CodeUnauthorized,
			Message: "Authentication required",
		})
		return nil, false
	}
	return user, true
}
