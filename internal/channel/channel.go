// Package channel delivers outbound notifications over SMS and web push.
package channel

import (
	"context"
	"errors"

	"github.com/neerajk1208/ivfb/internal/fcm"
	"github.com/neerajk1208/ivfb/pkg/model"
)

// ErrChannelDisabled is returned when a channel has no provider configured
var ErrChannelDisabled = errors.New("channel: provider not configured")

// SMSProvider sends a text message and returns the provider message id
type SMSProvider interface {
	SendSMS(ctx context.Context, to, body string) (string, error)
	From() string
}

// PushProvider sends a notification to a single device token
type PushProvider interface {
	Send(ctx context.Context, token string, n fcm.Notification) (string, error)
}

// MessageRecorder appends provider message attempts to the message log
type MessageRecorder interface {
	RecordMessage(ctx context.Context, msg *model.MessageLog) error
}

// TokenStore lists and prunes a user's registered push tokens
type TokenStore interface {
	ListByUser(ctx context.Context, userID string) ([]model.PushSubscription, error)
	DeleteByToken(ctx context.Context, token string) error
}
