package handler

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/neerajk1208/ivfb/internal/service"
	"github.com/neerajk1208/ivfb/pkg/api"
	"go.uber.org/zap"
)

// Every service failure maps to one status and a standard error body
func TestProperty_ErrorResponseStructure(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	expected := map[string]struct {
		err    error
		status int
		code   string
	}{
		"validation":  {err: &service.ValidationError{Fields: []service.FieldError{{Field: "mood", Message: "must be between 1 and 5"}}}, status: http.StatusBadRequest, code: api.CodeValidation},
		"forbidden":   {err: fmt.Errorf("plan p1: %w", service.ErrForbidden), status: http.StatusForbidden, code: api.CodeForbidden},
		"not_found":   {err: fmt.Errorf("cycle: %w", service.ErrNotFound), status: http.StatusNotFound, code: api.CodeNotFound},
		"unavailable": {err: fmt.Errorf("protocol extraction: %w", service.ErrUnavailable), status: http.StatusServiceUnavailable, code: api.CodeUnavailable},
		"internal":    {err: errors.New("pq: connection reset"), status: http.StatusInternalServerError, code: api.CodeInternal},
	}

	properties.Property("error responses carry the mapped status and code", prop.ForAll(
		func(kind string, message string) bool {
			want := expected[kind]

			gin.SetMode(gin.TestMode)
			router := gin.New()
			router.GET("/test", func(c *gin.Context) {
				respondError(c, zap.NewNop(), want.err, message)
			})

			w := httptest.NewRecorder()
			router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/test", nil))

			if w.Code != want.status {
				t.Logf("%s: expected status %d, got %d", kind, want.status, w.Code)
				return false
			}

			var body api.ErrorResponse
			if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
				t.Logf("%s: unparseable body %s", kind, w.Body.String())
				return false
			}
			if body.Code != want.code || body.Message == "" {
				t.Logf("%s: unexpected body %+v", kind, body)
				return false
			}

			// Only validation failures enumerate fields
			if (kind == "validation") != (body.Fields != nil) {
				t.Logf("%s: fields presence mismatch", kind)
				return false
			}

			// Internal details never reach the client
			if kind == "internal" && bytes.Contains(w.Body.Bytes(), []byte("pq:")) {
				t.Logf("internal error leaked: %s", w.Body.String())
				return false
			}
			return true
		},
		gen.OneConstOf("validation", "forbidden", "not_found", "unavailable", "internal"),
		gen.AlphaString().SuchThat(func(s string) bool { return s != "" }),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}

// Malformed JSON bodies are rejected before any service call
func TestProperty_MalformedBodies(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("malformed JSON yields VALIDATION_ERROR", prop.ForAll(
		func(endpoint string, body string) bool {
			gin.SetMode(gin.TestMode)
			router := gin.New()
			router.Use(withUser(testUser()))

			logger := zap.NewNop()
			switch endpoint {
			case "draft":
				router.POST("/test", NewProtocolHandler(nil, logger).SaveProtocolDraft)
			case "checkin":
				router.POST("/test", NewTodayHandler(nil, nil, nil, logger).CreateCheckIn)
			case "chat":
				router.POST("/test", NewChatHandler(nil, "UTC", logger).SendChatMessage)
			case "settings":
				router.POST("/test", NewUserHandler(nil, nil, logger).UpdateSettings)
			}

			req := httptest.NewRequest(http.MethodPost, "/test", bytes.NewBufferString(body))
			req.Header.Set("Content-Type", "application/json")
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			var resp api.ErrorResponse
			if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
				return false
			}
			return w.Code == http.StatusBadRequest && resp.Code == api.CodeValidation && resp.Details != nil
		},
		gen.OneConstOf("draft", "checkin", "chat", "settings"),
		gen.OneConstOf(`{invalid json`, `{"text": }`, `[1,2,3`, `{"mood":"three"`),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}
