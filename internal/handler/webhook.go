package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/neerajk1208/ivfb/internal/service"
	"go.uber.org/zap"
)

const emptyTwiML = `<?xml version="1.0" encoding="UTF-8"?><Response></Response>`

// InboundServiceInterface handles SMS replies
type InboundServiceInterface interface {
	HandleInbound(ctx context.Context, in service.InboundSMS) error
}

// WebhookHandler implements the Twilio inbound SMS webhook. The signature is
// verified before the handler runs.
type WebhookHandler struct {
	inbound InboundServiceInterface
	logger  *zap.Logger
}

// NewWebhookHandler creates a new WebhookHandler
func NewWebhookHandler(inbound InboundServiceInterface, logger *zap.Logger) *WebhookHandler {
	return &WebhookHandler{
		inbound: inbound,
		logger:  logger,
	}
}

// TwilioInbound processes one inbound SMS. Replies are sent through the
// REST API, so the TwiML response is always empty. Processing failures are
// logged and still acknowledged to stop Twilio retrying a message that
// already produced side effects.
func (h *WebhookHandler) TwilioInbound(c *gin.Context) {
	in := service.InboundSMS{
		From:       c.PostForm("From"),
		To:         c.PostForm("To"),
		Body:       c.PostForm("Body"),
		MessageSID: c.PostForm("MessageSid"),
	}

	if err := h.inbound.HandleInbound(c.Request.Context(), in); err != nil {
		h.logger.Error("failed to process inbound SMS",
			zap.Error(err),
			zap.String("message_sid", in.MessageSID),
		)
	}

	c.Data(http.StatusOK, "text/xml", []byte(emptyTwiML))
}
