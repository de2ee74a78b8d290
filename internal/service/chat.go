package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
	"github.com/neerajk1208/ivfb/internal/timeutil"
	"github.com/neerajk1208/ivfb/pkg/model"
	"go.uber.org/zap"
)

// ConversationStoreInterface persists chat messages and the rolling summary
type ConversationStoreInterface interface {
	CreateMessage(ctx context.Context, msg *model.ChatMessage) error
	ListMessages(ctx context.Context, userID string, from, to time.Time) ([]model.ChatMessage, error)
	GetConversationState(ctx context.Context, cycleID string) (*model.ConversationState, error)
	SaveConversationState(ctx context.Context, state *model.ConversationState) error
}

// TaskReaderInterface lists a cycle's tasks
type TaskReaderInterface interface {
	ListBetween(ctx context.Context, cycleID string, from, to time.Time) ([]model.Task, error)
	ListUpcoming(ctx context.Context, cycleID string, from time.Time, limit int) ([]model.Task, error)
}

// QuotaCheckerInterface enforces the daily conversational limit
type QuotaCheckerInterface interface {
	MaxDaily() int
	CheckDailyLimit(ctx context.Context, userID, timezone string) (QuotaStatus, error)
	IncrementMessageCount(ctx context.Context, userID, timezone string) (int, error)
}

// RecentCheckInsInterface returns decrypted recent check-ins
type RecentCheckInsInterface interface {
	Recent(ctx context.Context, userID string, limit int) ([]model.CheckIn, error)
}

const (
	upcomingContextLimit = 5
	recentCheckInLimit   = 3
	recentSymptomLimit   = 5
)

// QuotaMessage is the notice posted when the daily limit is reached
func QuotaMessage(max int) string {
	return fmt.Sprintf("You've reached your daily message limit (%d). Check back tomorrow! 💛", max)
}

// ContextBuilder assembles what the reply generator knows about a user
type ContextBuilder struct {
	protocols       ProtocolRepositoryInterface
	tasks           TaskReaderInterface
	checkIns        RecentCheckInsInterface
	chat            ConversationStoreInterface
	defaultTimezone string
	now             func() time.Time
	logger          *zap.Logger
}

// NewContextBuilder creates a new ContextBuilder
func NewContextBuilder(protocols ProtocolRepositoryInterface, tasks TaskReaderInterface, checkIns RecentCheckInsInterface, chat ConversationStoreInterface, defaultTimezone string, logger *zap.Logger) *ContextBuilder {
	return &ContextBuilder{
		protocols:       protocols,
		tasks:           tasks,
		checkIns:        checkIns,
		chat:            chat,
		defaultTimezone: defaultTimezone,
		now:             time.Now,
		logger:          logger,
	}
}

// Build collects cycle day, medications, upcoming tasks, recent check-ins and
// the conversation summary. Missing pieces are left empty; the reply
// generator works without them.
func (b *ContextBuilder) Build(ctx context.Context, user *model.User, cycle *model.Cycle, message string, mood *int) ReplyContext {
	rc := ReplyContext{UserMessage: message, Mood: mood}

	loc, err := timeutil.LoadLocation(user.Timezone, b.defaultTimezone)
	if err != nil {
		loc = time.UTC
	}
	now := b.now()
	today := timeutil.Today(now, loc)

	if cycle == nil {
		rc.RecentMoodTrend, rc.RecentSymptoms = b.recent(ctx, user.ID)
		return rc
	}

	protocol, err := b.protocols.GetByCycle(ctx, cycle.ID)
	switch {
	case err == nil && protocol.Status == model.ProtocolStatusActive:
		idx := timeutil.CycleDayIndex(protocol.CycleStartDate, today)
		rc.CycleDayIndex = &idx
		for _, m := range protocol.Medications {
			if m.ActiveOn(idx) {
				rc.TodaysMedications = append(rc.TodaysMedications, m.Label())
			}
		}
	case err != nil && !errors.Is(err, ErrNotFound):
		b.logger.Warn("failed to load protocol for reply context", zap.Error(err), zap.String("cycle_id", cycle.ID))
	}

	upcoming, err := b.tasks.ListUpcoming(ctx, cycle.ID, now, upcomingContextLimit)
	if err != nil {
		b.logger.Warn("failed to load upcoming tasks for reply context", zap.Error(err), zap.String("cycle_id", cycle.ID))
	}
	for _, t := range upcoming {
		rc.UpcomingTasks = append(rc.UpcomingTasks, t.Label+" ("+t.DueAt.In(loc).Format("Mon 15:04")+")")
	}

	rc.RecentMoodTrend, rc.RecentSymptoms = b.recent(ctx, user.ID)

	state, err := b.chat.GetConversationState(ctx, cycle.ID)
	if err != nil {
		b.logger.Warn("failed to load conversation summary", zap.Error(err), zap.String("cycle_id", cycle.ID))
	} else {
		rc.ConversationSummary = state.Summary
	}

	return rc
}

func (b *ContextBuilder) recent(ctx context.Context, userID string) ([]int, []string) {
	checkIns, err := b.checkIns.Recent(ctx, userID, recentCheckInLimit)
	if err != nil {
		b.logger.Warn("failed to load recent check-ins for reply context", zap.Error(err), zap.String("user_id", userID))
		return nil, nil
	}

	var moods []int
	var symptoms []string
	seen := map[string]bool{}
	for _, c := range checkIns {
		if c.Mood != nil {
			moods = append(moods, *c.Mood)
		}
		for _, s := range c.Symptoms {
			if !seen[s] && len(symptoms) < recentSymptomLimit {
				seen[s] = true
				symptoms = append(symptoms, s)
			}
		}
	}
	return moods, symptoms
}

// ChatResult is the outcome of one user turn. UserMessage is nil when the
// daily limit was reached; Reply then holds the quota notice.
type ChatResult struct {
	UserMessage  *model.ChatMessage `json:"userMessage"`
	Reply        *model.ChatMessage `json:"reply"`
	LimitReached bool               `json:"limitReached"`
}

// ChatService runs in-app conversational turns
type ChatService struct {
	cycles           CycleRepositoryInterface
	chat             ConversationStoreInterface
	quota            QuotaCheckerInterface
	contexts         *ContextBuilder
	buddy            ReplyGeneratorInterface
	summaryMaxLength int
	defaultTimezone  string
	logger           *zap.Logger
}

// NewChatService creates a new ChatService
func NewChatService(
	cycles CycleRepositoryInterface,
	chat ConversationStoreInterface,
	quota QuotaCheckerInterface,
	contexts *ContextBuilder,
	buddy ReplyGeneratorInterface,
	summaryMaxLength int,
	defaultTimezone string,
	logger *zap.Logger,
) *ChatService {
	return &ChatService{
		cycles:           cycles,
		chat:             chat,
		quota:            quota,
		contexts:         contexts,
		buddy:            buddy,
		summaryMaxLength: summaryMaxLength,
		defaultTimezone:  defaultTimezone,
		logger:           logger,
	}
}

// SendUserMessage records the user's message, generates and records a buddy
// reply and folds the exchange into the conversation summary. Over the daily
// limit, a SYSTEM notice is recorded instead and no reply is generated.
func (s *ChatService) SendUserMessage(ctx context.Context, user *model.User, text string) (*ChatResult, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, newValidationError("content", "message cannot be empty")
	}
	if len([]rune(text)) > 1000 {
		return nil, newValidationError("content", "message too long (max 1000 characters)")
	}

	cycle, err := s.cycles.GetActiveByUser(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	cycleID := cycle.ID

	status, err := s.quota.CheckDailyLimit(ctx, user.ID, user.Timezone)
	if err != nil {
		return nil, err
	}
	if !status.Allowed {
		notice := &model.ChatMessage{
			ID:      uuid.New().String(),
			UserID:  user.ID,
			CycleID: &cycleID,
			Sender:  model.ChatSenderSystem,
			Type:    model.ChatTypeInfo,
			Content: QuotaMessage(s.quota.MaxDaily()),
			Tags:    []string{"quota"},
		}
		if err := s.chat.CreateMessage(ctx, notice); err != nil {
			return nil, fmt.Errorf("failed to record quota notice: %w", err)
		}
		s.logger.Info("daily message limit reached", zap.String("user_id", user.ID))
		return &ChatResult{Reply: notice, LimitReached: true}, nil
	}

	userMsg := &model.ChatMessage{
		ID:      uuid.New().String(),
		UserID:  user.ID,
		CycleID: &cycleID,
		Sender:  model.ChatSenderUser,
		Type:    model.ChatTypeMessage,
		Content: text,
	}
	if err := s.chat.CreateMessage(ctx, userMsg); err != nil {
		return nil, fmt.Errorf("failed to record user message: %w", err)
	}

	if _, err := s.quota.IncrementMessageCount(ctx, user.ID, user.Timezone); err != nil {
		s.logger.Warn("message count not incremented", zap.Error(err), zap.String("user_id", user.ID))
	}

	rc := s.contexts.Build(ctx, user, cycle, text, nil)
	reply := s.buddy.GenerateReply(ctx, rc)

	replyMsg, err := recordReply(ctx, s.chat, user.ID, cycleID, reply)
	if err != nil {
		return nil, err
	}

	updateSummary(ctx, s.chat, s.logger, user.ID, cycleID, rc.ConversationSummary, text, reply, s.summaryMaxLength)

	return &ChatResult{UserMessage: userMsg, Reply: replyMsg}, nil
}

// ListMessages returns the user's chat messages for one local civil day
func (s *ChatService) ListMessages(ctx context.Context, user *model.User, day civil.Date) ([]model.ChatMessage, error) {
	if !day.IsValid() {
		return nil, newValidationError("date", "must be a valid date")
	}
	loc, err := timeutil.LoadLocation(user.Timezone, s.defaultTimezone)
	if err != nil {
		return nil, err
	}
	return s.chat.ListMessages(ctx, user.ID, timeutil.StartOfDay(day, loc), timeutil.StartOfDay(day.AddDays(1), loc))
}

func recordReply(ctx context.Context, chat ConversationStoreInterface, userID, cycleID string, reply Reply) (*model.ChatMessage, error) {
	msgType := model.ChatTypeMessage
	if reply.Escalation {
		msgType = model.ChatTypeEscalation
	}
	msg := &model.ChatMessage{
		ID:      uuid.New().String(),
		UserID:  userID,
		CycleID: &cycleID,
		Sender:  model.ChatSenderBuddy,
		Type:    msgType,
		Content: reply.MessageText,
		Tags:    reply.Tags,
	}
	if err := chat.CreateMessage(ctx, msg); err != nil {
		return nil, fmt.Errorf("failed to record buddy reply: %w", err)
	}
	return msg, nil
}

// escalation replies are not summarized
func updateSummary(ctx context.Context, chat ConversationStoreInterface, logger *zap.Logger, userID, cycleID, summary, text string, reply Reply, max int) {
	if reply.Escalation {
		return
	}
	state := &model.ConversationState{
		CycleID: cycleID,
		UserID:  userID,
		Summary: AppendSummary(summary, text, reply.MessageText, max),
	}
	if err := chat.SaveConversationState(ctx, state); err != nil {
		logger.Warn("failed to update conversation summary", zap.Error(err), zap.String("cycle_id", cycleID))
	}
}
