package handler

import (
	"context"
	"net/http"
	"time"

	"cloud.google.com/go/civil"
	"github.com/gin-gonic/gin"
	"github.com/neerajk1208/ivfb/internal/service"
	"github.com/neerajk1208/ivfb/internal/timeutil"
	"github.com/neerajk1208/ivfb/pkg/api"
	"github.com/neerajk1208/ivfb/pkg/model"
	"go.uber.org/zap"
)

// ChatServiceInterface runs conversational turns and lists the chat log
type ChatServiceInterface interface {
	SendUserMessage(ctx context.Context, user *model.User, text string) (*service.ChatResult, error)
	ListMessages(ctx context.Context, user *model.User, day civil.Date) ([]model.ChatMessage, error)
}

// ChatHandler implements chat endpoints
type ChatHandler struct {
	service         ChatServiceInterface
	defaultTimezone string
	now             func() time.Time
	logger          *zap.Logger
}

// NewChatHandler creates a new ChatHandler
func NewChatHandler(service ChatServiceInterface, defaultTimezone string, logger *zap.Logger) *ChatHandler {
	return &ChatHandler{
		service:         service,
		defaultTimezone: defaultTimezone,
		now:             time.Now,
		logger:          logger,
	}
}

// ListChatMessages returns the messages of one local day, today by default
func (h *ChatHandler) ListChatMessages(c *gin.Context, params api.ListChatMessagesParams) {
	user, ok := requireUser(c)
	if !ok {
		return
	}

	var day civil.Date
	if params.Date != nil {
		day = dateToCivil(*params.Date)
	} else {
		loc, err := timeutil.LoadLocation(user.Timezone, h.defaultTimezone)
		if err != nil {
			respondError(c, h.logger, err, "Failed to resolve timezone")
			return
		}
		day = timeutil.Today(h.now(), loc)
	}

	messages, err := h.service.ListMessages(c.Request.Context(), user, day)
	if err != nil {
		respondError(c, h.logger, err, "Failed to list messages")
		return
	}

	resp := make([]api.ChatMessageResponse, 0, len(messages))
	for i := range messages {
		resp = append(resp, toChatMessageResponse(&messages[i]))
	}

	c.JSON(http.StatusOK, resp)
}

// SendChatMessage records the user's message and returns the buddy reply
func (h *ChatHandler) SendChatMessage(c *gin.Context) {
	user, ok := requireUser(c)
	if !ok {
		return
	}

	var req api.ChatMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	result, err := h.service.SendUserMessage(c.Request.Context(), user, req.Text)
	if err != nil {
		respondError(c, h.logger, err, "Failed to send message")
		return
	}

	resp := api.SendMessageResponse{
		Reply:        toChatMessageResponse(result.Reply),
		LimitReached: result.LimitReached,
	}
	if result.UserMessage != nil {
		msg := toChatMessageResponse(result.UserMessage)
		resp.UserMessage = &msg
	}

	c.JSON(http.StatusOK, resp)
}
