package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/getkin/kin-openapi/openapi3filter"
	"github.com/getkin/kin-openapi/routers"
	"github.com/getkin/kin-openapi/routers/legacy"
	"github.com/gin-gonic/gin"
	"github.com/neerajk1208/ivfb/pkg/api"
	"go.uber.org/zap"
)

// OpenAPIValidator validates requests against the API document and runs the
// security schemes each operation declares. Requests for paths the document
// does not describe are passed through untouched.
func OpenAPIValidator(doc *openapi3.T, auth openapi3filter.AuthenticationFunc, logger *zap.Logger) (gin.HandlerFunc, error) {
	// Match on path only; the server URL in the document is informational
	doc.Servers = nil

	router, err := legacy.NewRouter(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to build OpenAPI router: %w", err)
	}

	options := &openapi3filter.Options{
		AuthenticationFunc: auth,
		MultiError:         true,
	}

	return func(c *gin.Context) {
		route, pathParams, err := router.FindRoute(c.Request)
		if err != nil {
			if !errors.Is(err, routers.ErrPathNotFound) && !errors.Is(err, routers.ErrMethodNotAllowed) {
				logger.Warn("OpenAPI route lookup failed", zap.Error(err))
			}
			c.Next()
			return
		}

		ctx := context.WithValue(c.Request.Context(), GinContextKey, c)
		input := &openapi3filter.RequestValidationInput{
			Request:    c.Request,
			PathParams: pathParams,
			Route:      route,
			Options:    options,
		}

		if err := openapi3filter.ValidateRequest(ctx, input); err != nil {
			status, body := validationFailure(err)
			if status >= http.StatusInternalServerError {
				logger.Error("request authentication failed", zap.Error(err),
					zap.String("path", c.Request.URL.Path),
				)
			}
			c.AbortWithStatusJSON(status, body)
			return
		}

		c.Next()
	}, nil
}

func validationFailure(err error) (int, api.ErrorResponse) {
	if status, body, ok := securityFailure(err); ok {
		return status, body
	}

	var multi openapi3.MultiError
	if errors.As(err, &multi) {
		for _, e := range multi {
			if status, body, ok := securityFailure(e); ok {
				return status, body
			}
		}
	}

	details := err.Error()
	return http.StatusBadRequest, api.ErrorResponse{
		Code:    api.CodeValidation,
		Message: "Request does not match the API contract",
		Details: &details,
	}
}

func securityFailure(err error) (int, api.ErrorResponse, bool) {
	var secErr *openapi3filter.SecurityRequirementsError
	if !errors.As(err, &secErr) {
		return 0, api.ErrorResponse{}, false
	}

	for _, e := range secErr.Errors {
		if errors.Is(e, ErrAuthBackend) {
			return http.StatusInternalServerError, api.ErrorResponse{
				Code:    api.CodeInternal,
				Message: "Failed to authenticate request",
			}, true
		}
	}

	return http.StatusUnauthorized, api.ErrorResponse{
		Code:    api.CodeUnauthorized,
		Message: "Missing or invalid credentials",
	}, true
}
