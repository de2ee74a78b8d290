package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/neerajk1208/ivfb/pkg/api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// Every request is logged once it completes with method, path, the
// authenticated user (or "anonymous") and timing
func TestProperty_RequestLogging(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("all requests are logged with required fields", prop.ForAll(
		func(method string, path string, userID string) bool {
			core, logs := observer.New(zapcore.InfoLevel)
			logger := zap.New(core)

			gin.SetMode(gin.TestMode)
			router := gin.New()
			router.Use(RequestLoggingMiddleware(logger))

			// The user is attached during the request, after the logger has started
			router.Handle(method, path, func(c *gin.Context) {
				if userID != "" {
					c.Set(ContextUserIDKey, userID)
				}
				c.Status(http.StatusOK)
			})

			req := httptest.NewRequest(method, path, nil)
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			entries := logs.FilterMessage("Request completed").All()
			if len(entries) != 1 {
				t.Logf("expected one request log entry, got %d", len(entries))
				return false
			}

			fields := entries[0].ContextMap()
			if fields["method"] != method || fields["path"] != path {
				t.Logf("method/path mismatch: %v %v", fields["method"], fields["path"])
				return false
			}

			wantUser := userID
			if wantUser == "" {
				wantUser = "anonymous"
			}
			if fields["user_id"] != wantUser {
				t.Logf("user_id mismatch: expected %s, got %v", wantUser, fields["user_id"])
				return false
			}

			for _, key := range []string{"timestamp", "duration", "status"} {
				if _, ok := fields[key]; !ok {
					t.Logf("%s field missing", key)
					return false
				}
			}
			return true
		},
		gen.OneConstOf("GET", "POST", "PUT", "DELETE"),
		gen.OneConstOf("/api/today", "/api/chat/messages", "/api/user/settings", "/api/jobs/tick"),
		gen.OneGenOf(gen.Const(""), gen.Identifier()),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}

// The log level follows the response class
func TestProperty_RequestLogLevel(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("status class selects the level", prop.ForAll(
		func(status int) bool {
			core, logs := observer.New(zapcore.DebugLevel)

			gin.SetMode(gin.TestMode)
			router := gin.New()
			router.Use(RequestLoggingMiddleware(zap.New(core)))
			router.GET("/api/today", func(c *gin.Context) { c.Status(status) })

			router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/today", nil))

			entries := logs.All()
			if len(entries) != 1 {
				return false
			}

			switch {
			case status >= 500:
				return entries[0].Level == zapcore.ErrorLevel
			case status >= 400:
				return entries[0].Level == zapcore.WarnLevel
			default:
				return entries[0].Level == zapcore.InfoLevel
			}
		},
		gen.OneConstOf(200, 201, 204, 400, 401, 403, 404, 500, 503),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}

func TestRequestLoggingQuietPaths(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)

	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(RequestLoggingMiddleware(zap.New(core), "/health"))
	router.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })
	router.GET("/health/deep", func(c *gin.Context) { c.Status(http.StatusOK) })
	router.GET("/broken", func(c *gin.Context) { c.Status(http.StatusServiceUnavailable) })

	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, 1, logs.Len())
	assert.Equal(t, zapcore.DebugLevel, logs.All()[0].Level)

	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health/deep", nil))
	assert.Equal(t, zapcore.InfoLevel, logs.All()[1].Level)

	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/broken", nil))
	assert.Equal(t, zapcore.ErrorLevel, logs.All()[2].Level)
}

// Errors attached to the gin context are logged with stack traces and
// request context
func TestProperty_ErrorLoggingDetail(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("errors are logged with stack traces and context", prop.ForAll(
		func(errorMessage string, path string) bool {
			core, logs := observer.New(zapcore.ErrorLevel)
			logger := zap.New(core)

			gin.SetMode(gin.TestMode)
			router := gin.New()
			router.Use(ErrorLoggingMiddleware(logger))

			router.GET(path, func(c *gin.Context) {
				_ = c.Error(gin.Error{
					Err:  &testError{msg: errorMessage},
					Type: gin.ErrorTypePrivate,
				})
				c.Status(http.StatusInternalServerError)
			})

			router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))

			entries := logs.FilterMessage("Request error occurred").All()
			if len(entries) != 1 {
				t.Logf("error log entry not found")
				return false
			}

			fields := entries[0].ContextMap()
			if fields["error"] != errorMessage {
				t.Logf("error field mismatch: %v", fields["error"])
				return false
			}
			if fields["method"] != "GET" || fields["path"] != path {
				t.Logf("method or path field missing or incorrect")
				return false
			}
			if _, ok := fields["stack_trace"]; !ok {
				t.Logf("stack_trace field missing")
				return false
			}
			return true
		},
		gen.AlphaString(),
		gen.OneConstOf("/api/today", "/api/protocol/current", "/api/user/export"),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}

func TestRequestIDMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(RequestIDMiddleware())
	router.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, c.GetString(ContextRequestIDKey))
	})

	t.Run("generated", func(t *testing.T) {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

		id := w.Header().Get("X-Request-ID")
		_, err := uuid.Parse(id)
		require.NoError(t, err)
		assert.Equal(t, id, w.Body.String())
	})

	t.Run("propagated", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		req.Header.Set("X-Request-ID", "req-42")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, "req-42", w.Header().Get("X-Request-ID"))
		assert.Equal(t, "req-42", w.Body.String())
	})
}

func TestRecoveryMiddleware(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)

	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(RecoveryMiddleware(zap.New(core)))
	router.GET("/api/today", func(c *gin.Context) { panic("nil map write") })

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/today", nil))

	require.Equal(t, http.StatusInternalServerError, w.Code)
	var body api.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, api.CodeInternal, body.Code)

	entries := logs.FilterMessage("Panic recovered").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "nil map write", entries[0].ContextMap()["error"])
}

func TestSlowRequestMiddleware(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)

	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(SlowRequestMiddleware(zap.New(core), 20*time.Millisecond))
	router.GET("/fast", func(c *gin.Context) { c.Status(http.StatusOK) })
	router.GET("/slow", func(c *gin.Context) {
		time.Sleep(40 * time.Millisecond)
		c.Status(http.StatusOK)
	})

	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/fast", nil))
	assert.Zero(t, logs.Len())

	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/slow", nil))
	entries := logs.FilterMessage("slow request").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "/slow", entries[0].ContextMap()["route"])
}

type testError struct {
	msg string
}

func (e *testError) Error() string {
	return e.msg
}
