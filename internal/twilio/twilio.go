package twilio

import (
	"context"
	"fmt"

	twiliogo "github.com/twilio/twilio-go"
	twilioclient "github.com/twilio/twilio-go/client"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
	"go.uber.org/zap"
)

type messageCreator interface {
	CreateMessage(params *twilioApi.CreateMessageParams) (*twilioApi.ApiV2010Message, error)
}

// Client sends SMS through the Twilio REST API and validates webhook signatures
type Client struct {
	api       messageCreator
	validator twilioclient.RequestValidator
	from      string
	logger    *zap.Logger
}

// NewClient creates a Twilio client for the given account
func NewClient(accountSID, authToken, from string, logger *zap.Logger) (*Client, error) {
	if accountSID == "" || authToken == "" || from == "" {
		return nil, fmt.Errorf("accountSID, authToken, and from number are required")
	}

	rest := twiliogo.NewRestClientWithParams(twiliogo.ClientParams{
		Username: accountSID,
		Password: authToken,
	})

	return &Client{
		api:       rest.Api,
		validator: twilioclient.NewRequestValidator(authToken),
		from:      from,
		logger:    logger,
	}, nil
}

// From is the sender number used for outbound messages
func (c *Client) From() string {
	return c.from
}

// SendSMS sends one message and returns the Twilio message SID. The SDK call
// is not context-aware, so a done ctx aborts before the request only.
func (c *Client) SendSMS(ctx context.Context, to, body string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	params := &twilioApi.CreateMessageParams{}
	params.SetTo(to)
	params.SetFrom(c.from)
	params.SetBody(body)

	type result struct {
		sid string
		err error
	}
	done := make(chan result, 1)

	go func() {
		resp, err := c.api.CreateMessage(params)
		if err != nil {
			done <- result{err: fmt.Errorf("failed to send SMS: %w", err)}
			return
		}
		sid := ""
		if resp != nil && resp.Sid != nil {
			sid = *resp.Sid
		}
		done <- result{sid: sid}
	}()

	select {
	case <-ctx.Done():
		return "", fmt.Errorf("failed to send SMS: %w", ctx.Err())
	case r := <-done:
		if r.err != nil {
			return "", r.err
		}
		c.logger.Debug("SMS sent", zap.String("sid", r.sid))
		return r.sid, nil
	}
}

// ValidateSignature checks the X-Twilio-Signature header of a webhook request.
// url is the full public URL Twilio posted to and params the form fields.
func (c *Client) ValidateSignature(url string, params map[string]string, signature string) bool {
	if signature == "" {
		return false
	}
	return c.validator.Validate(url, params, signature)
}
