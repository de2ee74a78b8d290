package integration_tests

import (
	"context"
	"fmt"
	"sync"

	"github.com/neerajk1208/ivfb/internal/azure"
	"github.com/neerajk1208/ivfb/internal/channel"
	"github.com/neerajk1208/ivfb/internal/fcm"
	"go.uber.org/zap"
)

var (
	_ channel.SMSProvider  = (*FakeSMSProvider)(nil)
	_ channel.PushProvider = (*FakePushProvider)(nil)
	_ azure.Completer      = (*FakeCompleter)(nil)
)

// SentSMS is one message accepted by FakeSMSProvider
type SentSMS struct {
	To   string
	Body string
	SID  string
}

// FakeSMSProvider records outbound SMS in memory
type FakeSMSProvider struct {
	mu     sync.Mutex
	from   string
	sent   []SentSMS
	logger *zap.Logger
}

// NewFakeSMSProvider creates a provider sending from the given number
func NewFakeSMSProvider(from string, logger *zap.Logger) *FakeSMSProvider {
	return &FakeSMSProvider{from: from, logger: logger}
}

func (f *FakeSMSProvider) From() string {
	return f.from
}

func (f *FakeSMSProvider) SendSMS(ctx context.Context, to, body string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	sid := fmt.Sprintf("SMfake%04d", len(f.sent)+1)
	f.sent = append(f.sent, SentSMS{To: to, Body: body, SID: sid})
	f.logger.Info("fake: sent SMS", zap.String("to", to), zap.String("sid", sid))
	return sid, nil
}

// Sent returns a copy of every message sent so far
func (f *FakeSMSProvider) Sent() []SentSMS {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]SentSMS(nil), f.sent...)
}

// FakePushProvider records notifications per device token. Tokens marked
// unregistered fail the way FCM reports a stale token.
type FakePushProvider struct {
	mu           sync.Mutex
	sent         map[string][]fcm.Notification
	unregistered map[string]bool
	logger       *zap.Logger
}

// NewFakePushProvider creates an empty push provider
func NewFakePushProvider(logger *zap.Logger) *FakePushProvider {
	return &FakePushProvider{
		sent:         make(map[string][]fcm.Notification),
		unregistered: make(map[string]bool),
		logger:       logger,
	}
}

func (f *FakePushProvider) Send(ctx context.Context, token string, n fcm.Notification) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.unregistered[token] {
		return "", fmt.Errorf("send to %s: %w", token, fcm.ErrTokenUnregistered)
	}
	f.sent[token] = append(f.sent[token], n)
	f.logger.Info("fake: sent push", zap.String("tag", n.Tag))
	return fmt.Sprintf("projects/fake/messages/%d", len(f.sent[token])), nil
}

// Unregister makes later sends to token fail as unregistered
func (f *FakePushProvider) Unregister(token string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.unregistered[token] = true
}

// SentTo returns the notifications delivered to token
func (f *FakePushProvider) SentTo(token string) []fcm.Notification {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]fcm.Notification(nil), f.sent[token]...)
}

// FakeCompleter answers every completion with a fixed response
type FakeCompleter struct {
	mu       sync.Mutex
	response string
	requests []azure.CompletionRequest
}

// NewFakeCompleter creates a completer that always returns response
func NewFakeCompleter(response string) *FakeCompleter {
	return &FakeCompleter{response: response}
}

func (f *FakeCompleter) Complete(ctx context.Context, req azure.CompletionRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	return f.response, nil
}

// Requests returns the prompts received so far
func (f *FakeCompleter) Requests() []azure.CompletionRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]azure.CompletionRequest(nil), f.requests...)
}
