package fcm

import (
	"context"
	"errors"
	"fmt"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"go.uber.org/zap"
	"google.golang.org/api/option"
)

// ErrTokenUnregistered is returned when FCM reports that a device token is
// no longer valid. Callers should forget the token.
var ErrTokenUnregistered = errors.New("fcm: registration token is not registered")

// Notification is the content of one push message
type Notification struct {
	Title string
	Body  string
	// URL opened when the notification is clicked
	URL string
	// Tag collapses notifications about the same task on the device
	Tag  string
	Data map[string]string
}

type sender interface {
	Send(ctx context.Context, message *messaging.Message) (string, error)
}

// Client wraps Firebase Cloud Messaging
type Client struct {
	messaging sender
	logger    *zap.Logger
}

// NewClient creates a new FCM client. An empty credentials file falls back to
// application default credentials.
func NewClient(ctx context.Context, credentialsFile string, logger *zap.Logger) (*Client, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}

	app, err := firebase.NewApp(ctx, nil, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Firebase app: %w", err)
	}

	messagingClient, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get messaging client: %w", err)
	}

	logger.Info("FCM client initialized")
	return &Client{messaging: messagingClient, logger: logger}, nil
}

// BuildMessage renders a notification for one device token
func BuildMessage(token string, n Notification) *messaging.Message {
	data := make(map[string]string, len(n.Data)+2)
	for k, v := range n.Data {
		data[k] = v
	}
	if n.URL != "" {
		data["url"] = n.URL
	}
	if n.Tag != "" {
		data["tag"] = n.Tag
	}

	msg := &messaging.Message{
		Token: token,
		Notification: &messaging.Notification{
			Title: n.Title,
			Body:  n.Body,
		},
		Data: data,
		Webpush: &messaging.WebpushConfig{
			Notification: &messaging.WebpushNotification{
				Title: n.Title,
				Body:  n.Body,
				Icon:  "/icon-192.png",
				Tag:   n.Tag,
			},
		},
	}
	if n.URL != "" {
		msg.Webpush.FCMOptions = &messaging.WebpushFCMOptions{Link: n.URL}
	}
	return msg
}

// Send delivers a notification to a single device token and returns the FCM
// message id. Dead tokens yield ErrTokenUnregistered.
func (c *Client) Send(ctx context.Context, token string, n Notification) (string, error) {
	id, err := c.messaging.Send(ctx, BuildMessage(token, n))
	if err != nil {
		if messaging.IsUnregistered(err) || messaging.IsRegistrationTokenNotRegistered(err) {
			return "", fmt.Errorf("%w: %v", ErrTokenUnregistered, err)
		}
		return "", fmt.Errorf("failed to send FCM message: %w", err)
	}

	c.logger.Debug("FCM message sent", zap.String("message_id", id))
	return id, nil
}
