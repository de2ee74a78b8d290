package channel

import (
	"context"
	"errors"
	"fmt"

	"github.com/neerajk1208/ivfb/internal/fcm"
	"go.uber.org/zap"
)

// PushReport counts the outcome of a fan-out to one user's devices
type PushReport struct {
	Sent    int `json:"sent"`
	Failed  int `json:"failed"`
	Removed int `json:"removed"`
}

// PushSender fans a notification out to every device of a user
type PushSender struct {
	provider PushProvider
	tokens   TokenStore
	logger   *zap.Logger
}

// NewPushSender creates a PushSender. A nil provider disables push.
func NewPushSender(provider PushProvider, tokens TokenStore, logger *zap.Logger) *PushSender {
	return &PushSender{
		provider: provider,
		tokens:   tokens,
		logger:   logger,
	}
}

// Enabled reports whether a provider is configured
func (p *PushSender) Enabled() bool {
	return p.provider != nil
}

// SendToUser sends n to each registered token independently. Tokens the
// provider reports as unregistered are deleted and counted as Removed.
// The error is non-nil only when the token list cannot be read.
func (p *PushSender) SendToUser(ctx context.Context, userID string, n fcm.Notification) (PushReport, error) {
	var report PushReport
	if p.provider == nil {
		return report, ErrChannelDisabled
	}

	subs, err := p.tokens.ListByUser(ctx, userID)
	if err != nil {
		return report, fmt.Errorf("failed to list push tokens: %w", err)
	}

	for _, sub := range subs {
		_, err := p.provider.Send(ctx, sub.Token, n)
		switch {
		case err == nil:
			report.Sent++
		case errors.Is(err, fcm.ErrTokenUnregistered):
			if delErr := p.tokens.DeleteByToken(ctx, sub.Token); delErr != nil {
				p.logger.Warn("failed to remove dead push token", zap.Error(delErr), zap.String("user_id", userID))
			}
			report.Removed++
		default:
			p.logger.Warn("push send failed",
				zap.Error(err),
				zap.String("user_id", userID),
				zap.String("subscription_id", sub.ID),
			)
			report.Failed++
		}
	}

	return report, nil
}
