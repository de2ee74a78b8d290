package service

import (
	"context"
	"time"

	"cloud.google.com/go/civil"
	"github.com/neerajk1208/ivfb/internal/audit"
	"github.com/neerajk1208/ivfb/internal/azure"
	"github.com/neerajk1208/ivfb/internal/channel"
	"github.com/neerajk1208/ivfb/internal/fcm"
	"github.com/neerajk1208/ivfb/internal/repository"
	"github.com/neerajk1208/ivfb/pkg/model"
	"github.com/stretchr/testify/mock"
)

// Mock implementations for testing

type MockProtocolRepository struct {
	mock.Mock
}

func (m *MockProtocolRepository) ReplaceForCycle(ctx context.Context, p *model.Protocol) error {
	args := m.Called(ctx, p)
	return args.Error(0)
}

func (m *MockProtocolRepository) GetByID(ctx context.Context, planID string) (*model.Protocol, error) {
	args := m.Called(ctx, planID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Protocol), args.Error(1)
}

func (m *MockProtocolRepository) GetByCycle(ctx context.Context, cycleID string) (*model.Protocol, error) {
	args := m.Called(ctx, cycleID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Protocol), args.Error(1)
}

func (m *MockProtocolRepository) Activate(ctx context.Context, planID string) error {
	args := m.Called(ctx, planID)
	return args.Error(0)
}

func (m *MockProtocolRepository) Deactivate(ctx context.Context, planID string) error {
	args := m.Called(ctx, planID)
	return args.Error(0)
}

func (m *MockProtocolRepository) SetDocumentPath(ctx context.Context, planID, path string) error {
	args := m.Called(ctx, planID, path)
	return args.Error(0)
}

type MockCycleRepository struct {
	mock.Mock
}

func (m *MockCycleRepository) GetByID(ctx context.Context, cycleID string) (*model.Cycle, error) {
	args := m.Called(ctx, cycleID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Cycle), args.Error(1)
}

func (m *MockCycleRepository) GetActiveByUser(ctx context.Context, userID string) (*model.Cycle, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Cycle), args.Error(1)
}

func (m *MockCycleRepository) EnsureActive(ctx context.Context, userID string) (*model.Cycle, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Cycle), args.Error(1)
}

type MockPlanStore struct {
	mock.Mock
}

func (m *MockPlanStore) ReplaceFuturePlan(ctx context.Context, cycleID string, now time.Time, today civil.Date, days []model.PlanDay, tasks []model.Task) (int64, error) {
	args := m.Called(ctx, cycleID, now, today, days, tasks)
	return args.Get(0).(int64), args.Error(1)
}

type MockPlanGenerator struct {
	mock.Mock
}

func (m *MockPlanGenerator) GeneratePlanTasks(ctx context.Context, req PlanRequest) (*PlanResult, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*PlanResult), args.Error(1)
}

type MockCompleter struct {
	mock.Mock
}

func (m *MockCompleter) Complete(ctx context.Context, req azure.CompletionRequest) (string, error) {
	args := m.Called(ctx, req)
	return args.String(0), args.Error(1)
}

type MockAuditLogger struct {
	mock.Mock
}

func (m *MockAuditLogger) Log(ctx context.Context, entry audit.AuditLog) error {
	args := m.Called(ctx, entry)
	return args.Error(0)
}

func (m *MockAuditLogger) LogUpdate(ctx context.Context, userID string, resourceType audit.ResourceType, resourceID string, changes map[string]interface{}) error {
	args := m.Called(ctx, userID, resourceType, resourceID, changes)
	return args.Error(0)
}

func (m *MockAuditLogger) LogDelete(ctx context.Context, userID string, resourceType audit.ResourceType, resourceID, ipAddress, userAgent string) error {
	args := m.Called(ctx, userID, resourceType, resourceID, ipAddress, userAgent)
	return args.Error(0)
}

type MockDueTaskStore struct {
	mock.Mock
}

func (m *MockDueTaskStore) ClaimDue(ctx context.Context, now time.Time, kinds []model.TaskKind, limit int, lease time.Duration) ([]repository.DueTask, error) {
	args := m.Called(ctx, now, kinds, limit, lease)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]repository.DueTask), args.Error(1)
}

func (m *MockDueTaskStore) ReleaseClaim(ctx context.Context, taskID string) error {
	args := m.Called(ctx, taskID)
	return args.Error(0)
}

func (m *MockDueTaskStore) ParkTask(ctx context.Context, taskID, reason string) error {
	args := m.Called(ctx, taskID, reason)
	return args.Error(0)
}

func (m *MockDueTaskStore) MarkSent(ctx context.Context, taskID string, at time.Time) (bool, error) {
	args := m.Called(ctx, taskID, at)
	return args.Bool(0), args.Error(1)
}

type MockConversationStore struct {
	mock.Mock
}

func (m *MockConversationStore) CreateMessage(ctx context.Context, msg *model.ChatMessage) error {
	args := m.Called(ctx, msg)
	return args.Error(0)
}

func (m *MockConversationStore) ListMessages(ctx context.Context, userID string, from, to time.Time) ([]model.ChatMessage, error) {
	args := m.Called(ctx, userID, from, to)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.ChatMessage), args.Error(1)
}

func (m *MockConversationStore) GetConversationState(ctx context.Context, cycleID string) (*model.ConversationState, error) {
	args := m.Called(ctx, cycleID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.ConversationState), args.Error(1)
}

func (m *MockConversationStore) SaveConversationState(ctx context.Context, state *model.ConversationState) error {
	args := m.Called(ctx, state)
	return args.Error(0)
}

type MockSMSChannel struct {
	mock.Mock
}

func (m *MockSMSChannel) Enabled() bool {
	return m.Called().Bool(0)
}

func (m *MockSMSChannel) Send(ctx context.Context, userID, to, body string) (string, error) {
	args := m.Called(ctx, userID, to, body)
	return args.String(0), args.Error(1)
}

type MockPushChannel struct {
	mock.Mock
}

func (m *MockPushChannel) Enabled() bool {
	return m.Called().Bool(0)
}

func (m *MockPushChannel) SendToUser(ctx context.Context, userID string, n fcm.Notification) (channel.PushReport, error) {
	args := m.Called(ctx, userID, n)
	return args.Get(0).(channel.PushReport), args.Error(1)
}

type MockQuotaStore struct {
	mock.Mock
}

func (m *MockQuotaStore) GetMessageQuota(ctx context.Context, userID string) (int, *time.Time, error) {
	args := m.Called(ctx, userID)
	var lastAt *time.Time
	if v := args.Get(1); v != nil {
		lastAt = v.(*time.Time)
	}
	return args.Int(0), lastAt, args.Error(2)
}

func (m *MockQuotaStore) IncrementMessageCount(ctx context.Context, userID string, now, dayStart time.Time) (int, error) {
	args := m.Called(ctx, userID, now, dayStart)
	return args.Int(0), args.Error(1)
}

type MockQuotaChecker struct {
	mock.Mock
}

func (m *MockQuotaChecker) MaxDaily() int {
	return m.Called().Int(0)
}

func (m *MockQuotaChecker) CheckDailyLimit(ctx context.Context, userID, timezone string) (QuotaStatus, error) {
	args := m.Called(ctx, userID, timezone)
	return args.Get(0).(QuotaStatus), args.Error(1)
}

func (m *MockQuotaChecker) IncrementMessageCount(ctx context.Context, userID, timezone string) (int, error) {
	args := m.Called(ctx, userID, timezone)
	return args.Int(0), args.Error(1)
}

type MockTaskReader struct {
	mock.Mock
}

func (m *MockTaskReader) ListBetween(ctx context.Context, cycleID string, from, to time.Time) ([]model.Task, error) {
	args := m.Called(ctx, cycleID, from, to)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Task), args.Error(1)
}

func (m *MockTaskReader) ListUpcoming(ctx context.Context, cycleID string, from time.Time, limit int) ([]model.Task, error) {
	args := m.Called(ctx, cycleID, from, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Task), args.Error(1)
}

type MockCheckInRepository struct {
	mock.Mock
}

func (m *MockCheckInRepository) Create(ctx context.Context, checkIn *model.CheckIn) error {
	args := m.Called(ctx, checkIn)
	return args.Error(0)
}

func (m *MockCheckInRepository) ListRecent(ctx context.Context, userID string, limit int) ([]model.CheckIn, error) {
	args := m.Called(ctx, userID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.CheckIn), args.Error(1)
}

func (m *MockCheckInRepository) ListBetween(ctx context.Context, userID string, from, to time.Time) ([]model.CheckIn, error) {
	args := m.Called(ctx, userID, from, to)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.CheckIn), args.Error(1)
}

type MockUserRepository struct {
	mock.Mock
}

func (m *MockUserRepository) Create(ctx context.Context, user *model.User) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

func (m *MockUserRepository) GetByID(ctx context.Context, userID string) (*model.User, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.User), args.Error(1)
}

func (m *MockUserRepository) GetByPhone(ctx context.Context, phone string) (*model.User, error) {
	args := m.Called(ctx, phone)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.User), args.Error(1)
}

func (m *MockUserRepository) UpdateSettings(ctx context.Context, user *model.User) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

func (m *MockUserRepository) SetSMSConsent(ctx context.Context, userID string, consent bool) error {
	args := m.Called(ctx, userID, consent)
	return args.Error(0)
}

type MockInboundRecorder struct {
	mock.Mock
}

func (m *MockInboundRecorder) RecordInbound(ctx context.Context, userID *string, from, to, body, sid string) error {
	args := m.Called(ctx, userID, from, to, body, sid)
	return args.Error(0)
}

// staticReplies is a ReplyGeneratorInterface returning a fixed reply and
// remembering the contexts it was asked about
type staticReplies struct {
	reply    Reply
	contexts []ReplyContext
}

func (s *staticReplies) GenerateReply(_ context.Context, rc ReplyContext) Reply {
	s.contexts = append(s.contexts, rc)
	return s.reply
}

// recentCheckIns is a RecentCheckInsInterface over a fixed list
type recentCheckIns []model.CheckIn

func (r recentCheckIns) Recent(_ context.Context, _ string, limit int) ([]model.CheckIn, error) {
	if limit < len(r) {
		return r[:limit], nil
	}
	return r, nil
}

func ptr[T any](v T) *T {
	return &v
}
