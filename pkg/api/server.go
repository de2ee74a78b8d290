package api

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/oapi-codegen/runtime"
	openapi_types "github.com/oapi-codegen/runtime/types"
)

// ServerInterface represents all server handlers.
type ServerInterface interface {
	// (POST /api/jobs/tick)
	RunTick(c *gin.Context)
	// (POST /api/plan/regenerate)
	RegeneratePlans(c *gin.Context)
	// (POST /api/protocol/draft)
	SaveProtocolDraft(c *gin.Context)
	// (POST /api/protocol/extract)
	ExtractProtocol(c *gin.Context)
	// (POST /api/protocol/{id}/confirm)
	ConfirmProtocol(c *gin.Context, id openapi_types.UUID)
	// (GET /api/protocol/current)
	GetCurrentProtocol(c *gin.Context)
	// (GET /api/today)
	GetToday(c *gin.Context)
	// (POST /api/tasks/{id}/done)
	MarkTaskDone(c *gin.Context, id openapi_types.UUID)
	// (GET /api/chat/messages)
	ListChatMessages(c *gin.Context, params ListChatMessagesParams)
	// (POST /api/chat/messages)
	SendChatMessage(c *gin.Context)
	// (POST /api/checkins)
	CreateCheckIn(c *gin.Context)
	// (DELETE /api/user)
	DeleteUser(c *gin.Context)
	// (GET /api/user/settings)
	GetSettings(c *gin.Context)
	// (PUT /api/user/settings)
	UpdateSettings(c *gin.Context)
	// (GET /api/user/export)
	ExportUser(c *gin.Context)
	// (POST /api/push/subscriptions)
	SubscribePush(c *gin.Context)
	// (DELETE /api/push/subscriptions)
	UnsubscribePush(c *gin.Context)
	// (POST /api/twilio/inbound)
	TwilioInbound(c *gin.Context)
	// (GET /health)
	GetHealth(c *gin.Context)
}

// ServerInterfaceWrapper converts contexts to parameters.
type ServerInterfaceWrapper struct {
	Handler            ServerInterface
	HandlerMiddlewares []MiddlewareFunc
	ErrorHandler       func(*gin.Context, error, int)
}

type MiddlewareFunc func(c *gin.Context)

func (siw *ServerInterfaceWrapper) run(c *gin.Context, handler func()) {
	for _, middleware := range siw.HandlerMiddlewares {
		middleware(c)
		if c.IsAborted() {
			return
		}
	}
	handler()
}

func (siw *ServerInterfaceWrapper) bindID(c *gin.Context) (openapi_types.UUID, bool) {
	var id openapi_types.UUID
	err := runtime.BindStyledParameterWithOptions("simple", "id", c.Param("id"), &id,
		runtime.BindStyledParameterOptions{ParamLocation: runtime.ParamLocationPath, Explode: false, Required: true})
	if err != nil {
		siw.ErrorHandler(c, fmt.Errorf("invalid format for parameter id: %w", err), http.StatusBadRequest)
		return id, false
	}
	return id, true
}

// RunTick operation middleware
func (siw *ServerInterfaceWrapper) RunTick(c *gin.Context) {
	siw.run(c, func() { siw.Handler.RunTick(c) })
}

// RegeneratePlans operation middleware
func (siw *ServerInterfaceWrapper) RegeneratePlans(c *gin.Context) {
	siw.run(c, func() { siw.Handler.RegeneratePlans(c) })
}

// SaveProtocolDraft operation middleware
func (siw *ServerInterfaceWrapper) SaveProtocolDraft(c *gin.Context) {
	siw.run(c, func() { siw.Handler.SaveProtocolDraft(c) })
}

// ExtractProtocol operation middleware
func (siw *ServerInterfaceWrapper) ExtractProtocol(c *gin.Context) {
	siw.run(c, func() { siw.Handler.ExtractProtocol(c) })
}

// ConfirmProtocol operation middleware
func (siw *ServerInterfaceWrapper) ConfirmProtocol(c *gin.Context) {
	id, ok := siw.bindID(c)
	if !ok {
		return
	}
	siw.run(c, func() { siw.Handler.ConfirmProtocol(c, id) })
}

// GetCurrentProtocol operation middleware
func (siw *ServerInterfaceWrapper) GetCurrentProtocol(c *gin.Context) {
	siw.run(c, func() { siw.Handler.GetCurrentProtocol(c) })
}

// GetToday operation middleware
func (siw *ServerInterfaceWrapper) GetToday(c *gin.Context) {
	siw.run(c, func() { siw.Handler.GetToday(c) })
}

// MarkTaskDone operation middleware
func (siw *ServerInterfaceWrapper) MarkTaskDone(c *gin.Context) {
	id, ok := siw.bindID(c)
	if !ok {
		return
	}
	siw.run(c, func() { siw.Handler.MarkTaskDone(c, id) })
}

// ListChatMessages operation middleware
func (siw *ServerInterfaceWrapper) ListChatMessages(c *gin.Context) {
	var params ListChatMessagesParams

	err := runtime.BindQueryParameter("form", true, false, "date", c.Request.URL.Query(), &params.Date)
	if err != nil {
		siw.ErrorHandler(c, fmt.Errorf("invalid format for parameter date: %w", err), http.StatusBadRequest)
		return
	}

	siw.run(c, func() { siw.Handler.ListChatMessages(c, params) })
}

// SendChatMessage operation middleware
func (siw *ServerInterfaceWrapper) SendChatMessage(c *gin.Context) {
	siw.run(c, func() { siw.Handler.SendChatMessage(c) })
}

// CreateCheckIn operation middleware
func (siw *ServerInterfaceWrapper) CreateCheckIn(c *gin.Context) {
	siw.run(c, func() { siw.Handler.CreateCheckIn(c) })
}

// DeleteUser operation middleware
func (siw *ServerInterfaceWrapper) DeleteUser(c *gin.Context) {
	siw.run(c, func() { siw.Handler.DeleteUser(c) })
}

// GetSettings operation middleware
func (siw *ServerInterfaceWrapper) GetSettings(c *gin.Context) {
	siw.run(c, func() { siw.Handler.GetSettings(c) })
}

// UpdateSettings operation middleware
func (siw *ServerInterfaceWrapper) UpdateSettings(c *gin.Context) {
	siw.run(c, func() { siw.Handler.UpdateSettings(c) })
}

// ExportUser operation middleware
func (siw *ServerInterfaceWrapper) ExportUser(c *gin.Context) {
	siw.run(c, func() { siw.Handler.ExportUser(c) })
}

// SubscribePush operation middleware
func (siw *ServerInterfaceWrapper) SubscribePush(c *gin.Context) {
	siw.run(c, func() { siw.Handler.SubscribePush(c) })
}

// UnsubscribePush operation middleware
func (siw *ServerInterfaceWrapper) UnsubscribePush(c *gin.Context) {
	siw.run(c, func() { siw.Handler.UnsubscribePush(c) })
}

// TwilioInbound operation middleware
func (siw *ServerInterfaceWrapper) TwilioInbound(c *gin.Context) {
	siw.run(c, func() { siw.Handler.TwilioInbound(c) })
}

// GetHealth operation middleware
func (siw *ServerInterfaceWrapper) GetHealth(c *gin.Context) {
	siw.run(c, func() { siw.Handler.GetHealth(c) })
}

// GinServerOptions provides options for the Gin server.
type GinServerOptions struct {
	BaseURL      string
	Middlewares  []MiddlewareFunc
	ErrorHandler func(*gin.Context, error, int)
}

// RegisterHandlers creates http.Handler with routing matching OpenAPI spec.
func RegisterHandlers(router gin.IRouter, si ServerInterface) {
	RegisterHandlersWithOptions(router, si, GinServerOptions{})
}

// RegisterHandlersWithOptions creates http.Handler with additional options
func RegisterHandlersWithOptions(router gin.IRouter, si ServerInterface, options GinServerOptions) {
	errorHandler := options.ErrorHandler
	if errorHandler == nil {
		errorHandler = func(c *gin.Context, err error, statusCode int) {
			details := err.Error()
			c.JSON(statusCode, ErrorResponse{Code: CodeValidation, Message: "Invalid request parameters", Details: &details})
		}
	}

	wrapper := ServerInterfaceWrapper{
		Handler:            si,
		HandlerMiddlewares: options.Middlewares,
		ErrorHandler:       errorHandler,
	}

	router.POST(options.BaseURL+"/api/jobs/tick", wrapper.RunTick)
	router.POST(options.BaseURL+"/api/plan/regenerate", wrapper.RegeneratePlans)
	router.POST(options.BaseURL+"/api/protocol/draft", wrapper.SaveProtocolDraft)
	router.POST(options.BaseURL+"/api/protocol/extract", wrapper.ExtractProtocol)
	router.POST(options.BaseURL+"/api/protocol/:id/confirm", wrapper.ConfirmProtocol)
	router.GET(options.BaseURL+"/api/protocol/current", wrapper.GetCurrentProtocol)
	router.GET(options.BaseURL+"/api/today", wrapper.GetToday)
	router.POST(options.BaseURL+"/api/tasks/:id/done", wrapper.MarkTaskDone)
	router.GET(options.BaseURL+"/api/chat/messages", wrapper.ListChatMessages)
	router.POST(options.BaseURL+"/api/chat/messages", wrapper.SendChatMessage)
	router.POST(options.BaseURL+"/api/checkins", wrapper.CreateCheckIn)
	router.DELETE(options.BaseURL+"/api/user", wrapper.DeleteUser)
	router.GET(options.BaseURL+"/api/user/settings", wrapper.GetSettings)
	router.PUT(options.BaseURL+"/api/user/settings", wrapper.UpdateSettings)
	router.GET(options.BaseURL+"/api/user/export", wrapper.ExportUser)
	router.POST(options.BaseURL+"/api/push/subscriptions", wrapper.SubscribePush)
	router.DELETE(options.BaseURL+"/api/push/subscriptions", wrapper.UnsubscribePush)
	router.POST(options.BaseURL+"/api/twilio/inbound", wrapper.TwilioInbound)
	router.GET(options.BaseURL+"/health", wrapper.GetHealth)
}
