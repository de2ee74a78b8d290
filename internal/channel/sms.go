package channel

import (
	"context"
	"fmt"

	"github.com/neerajk1208/ivfb/pkg/model"
	"go.uber.org/zap"
)

const (
	StatusSent     = "SENT"
	StatusFailed   = "FAILED"
	StatusReceived = "RECEIVED"
)

// SMSSender sends SMS through a provider and logs every attempt
type SMSSender struct {
	provider  SMSProvider
	recorder  MessageRecorder
	maxLength int
	logger    *zap.Logger
}

// NewSMSSender creates an SMSSender. A nil provider disables SMS.
func NewSMSSender(provider SMSProvider, recorder MessageRecorder, maxLength int, logger *zap.Logger) *SMSSender {
	return &SMSSender{
		provider:  provider,
		recorder:  recorder,
		maxLength: maxLength,
		logger:    logger,
	}
}

// Enabled reports whether a provider is configured
func (s *SMSSender) Enabled() bool {
	return s.provider != nil
}

// Truncate cuts body to at most max runes
func Truncate(body string, max int) string {
	if max <= 0 {
		return body
	}
	runes := []rune(body)
	if len(runes) <= max {
		return body
	}
	return string(runes[:max])
}

// Send delivers body to the given number and returns the provider SID.
// userID may be empty for messages to unknown numbers.
func (s *SMSSender) Send(ctx context.Context, userID, to, body string) (string, error) {
	if s.provider == nil {
		return "", ErrChannelDisabled
	}

	body = Truncate(body, s.maxLength)

	sid, sendErr := s.provider.SendSMS(ctx, to, body)

	entry := &model.MessageLog{
		Direction: model.DirectionOutbound,
		Channel:   model.ChannelSMS,
		To:        to,
		From:      s.provider.From(),
		Body:      body,
		Status:    StatusSent,
	}
	if userID != "" {
		entry.UserID = &userID
	}
	if sendErr != nil {
		entry.Status = StatusFailed
		msg := sendErr.Error()
		entry.Error = &msg
	} else if sid != "" {
		entry.ProviderID = &sid
	}

	// the log write must not mask the send outcome
	if err := s.recorder.RecordMessage(ctx, entry); err != nil {
		s.logger.Warn("failed to record outbound SMS", zap.Error(err), zap.String("user_id", userID))
	}

	if sendErr != nil {
		s.logger.Error("failed to send SMS", zap.Error(sendErr), zap.String("user_id", userID))
		return "", fmt.Errorf("failed to send SMS: %w", sendErr)
	}

	return sid, nil
}

// RecordInbound logs a message received from the provider webhook
func (s *SMSSender) RecordInbound(ctx context.Context, userID *string, from, to, body, sid string) error {
	entry := &model.MessageLog{
		UserID:    userID,
		Direction: model.DirectionInbound,
		Channel:   model.ChannelSMS,
		To:        to,
		From:      from,
		Body:      body,
		Status:    StatusReceived,
	}
	if sid != "" {
		entry.ProviderID = &sid
	}
	return s.recorder.RecordMessage(ctx, entry)
}
