package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/neerajk1208/ivfb/internal/audit"
	"github.com/neerajk1208/ivfb/pkg/model"
	"go.uber.org/zap"
)

const (
	optOutConfirmation = "You've been unsubscribed from IVF Buddy SMS. You can re-enable notifications anytime in the app. Take care 💛"
	noCycleReply       = "Hi! Please complete your profile in the IVF Buddy app first 💛"
)

var stopKeywords = []string{"stop", "unsubscribe", "cancel", "quit", "end"}

// symptomKeywords maps message phrases to canonical symptom names. Order is
// the order symptoms are reported in.
var symptomKeywords = []struct{ phrase, symptom string }{
	{"bloated", "bloating"},
	{"bloating", "bloating"},
	{"cramp", "cramps"},
	{"anxious", "anxiety"},
	{"anxiety", "anxiety"},
	{"worried", "anxiety"},
	{"sad", "sadness"},
	{"down", "sadness"},
	{"low", "sadness"},
	{"nausea", "nausea"},
	{"nauseous", "nausea"},
	{"sick", "nausea"},
	{"tired", "fatigue"},
	{"exhausted", "fatigue"},
	{"fatigue", "fatigue"},
	{"headache", "headache"},
	{"head ache", "headache"},
	{"dizz", "dizziness"},
	{"moody", "mood swings"},
	{"mood swings", "mood swings"},
	{"emotional", "mood swings"},
	{"sore", "soreness"},
	{"tender", "soreness"},
	{"pain", "pain"},
	{"uncomfortable", "discomfort"},
	{"discomfort", "discomfort"},
	{"hot flash", "hot flashes"},
	{"spotting", "spotting"},
	{"insomnia", "insomnia"},
	{"can't sleep", "insomnia"},
	{"sleep issues", "insomnia"},
}

var (
	bareMoodPattern   = regexp.MustCompile(`^(\d)\s*$`)
	inlineMoodPattern = regexp.MustCompile(`\b([1-5])\s*(?:out of 5|/5)?\b`)
)

// ParsedInbound is what an inbound SMS says about the sender's day
type ParsedInbound struct {
	OptOut   bool
	Mood     *int
	Symptoms []string
	Note     string
}

// IsOptOut reports whether a message is a STOP-style unsubscribe request
func IsOptOut(body string) bool {
	b := strings.ToLower(strings.TrimSpace(body))
	for _, kw := range stopKeywords {
		if b == kw || strings.HasPrefix(b, kw+" ") {
			return true
		}
	}
	return false
}

// ParseMood extracts a 1-5 mood from a bare digit or an inline "N/5" or
// "N out of 5". The second result reports whether the message was only the digit.
func ParseMood(body string) (*int, bool) {
	b := strings.ToLower(strings.TrimSpace(body))
	if m := bareMoodPattern.FindStringSubmatch(b); m != nil {
		n, _ := strconv.Atoi(m[1])
		if n >= 1 && n <= 5 {
			return &n, true
		}
	}
	if m := inlineMoodPattern.FindStringSubmatch(b); m != nil {
		n, _ := strconv.Atoi(m[1])
		return &n, false
	}
	return nil, false
}

// ParseSymptoms returns the canonical symptoms mentioned in a message
func ParseSymptoms(body string) []string {
	b := strings.ToLower(body)
	out := []string{}
	seen := map[string]bool{}
	for _, k := range symptomKeywords {
		if !seen[k.symptom] && strings.Contains(b, k.phrase) {
			seen[k.symptom] = true
			out = append(out, k.symptom)
		}
	}
	return out
}

// ParseInbound classifies an inbound SMS body
func ParseInbound(body string) ParsedInbound {
	if IsOptOut(body) {
		return ParsedInbound{OptOut: true, Symptoms: []string{}, Note: strings.TrimSpace(body)}
	}
	mood, bare := ParseMood(body)
	p := ParsedInbound{Mood: mood, Symptoms: ParseSymptoms(body), Note: strings.TrimSpace(body)}
	if bare {
		p.Note = ""
	}
	return p
}

// InboundSMS is one message received on the Twilio webhook
type InboundSMS struct {
	From       string
	To         string
	Body       string
	MessageSID string
}

// PhoneUserInterface resolves and updates users reached by SMS
type PhoneUserInterface interface {
	GetByPhone(ctx context.Context, phone string) (*model.User, error)
	SetSMSConsent(ctx context.Context, userID string, consent bool) error
}

// InboundRecorderInterface logs provider messages received on the webhook
type InboundRecorderInterface interface {
	RecordInbound(ctx context.Context, userID *string, from, to, body, sid string) error
}

// CheckInCreatorInterface records check-ins
type CheckInCreatorInterface interface {
	Create(ctx context.Context, userID string, in CheckInInput) (*model.CheckIn, error)
}

// InboundService handles SMS replies: opt-outs, mood and symptom check-ins
// and conversational turns answered by SMS
type InboundService struct {
	users            PhoneUserInterface
	cycles           CycleRepositoryInterface
	recorder         InboundRecorderInterface
	sms              SMSChannelInterface
	checkIns         CheckInCreatorInterface
	chat             ConversationStoreInterface
	quota            QuotaCheckerInterface
	contexts         *ContextBuilder
	buddy            ReplyGeneratorInterface
	audit            AuditLoggerInterface
	summaryMaxLength int
	logger           *zap.Logger
}

// InboundDeps groups the collaborators of InboundService
type InboundDeps struct {
	Users            PhoneUserInterface
	Cycles           CycleRepositoryInterface
	Recorder         InboundRecorderInterface
	SMS              SMSChannelInterface
	CheckIns         CheckInCreatorInterface
	Chat             ConversationStoreInterface
	Quota            QuotaCheckerInterface
	Contexts         *ContextBuilder
	Buddy            ReplyGeneratorInterface
	Audit            AuditLoggerInterface
	SummaryMaxLength int
}

// NewInboundService creates a new InboundService
func NewInboundService(deps InboundDeps, logger *zap.Logger) *InboundService {
	return &InboundService{
		users:            deps.Users,
		cycles:           deps.Cycles,
		recorder:         deps.Recorder,
		sms:              deps.SMS,
		checkIns:         deps.CheckIns,
		chat:             deps.Chat,
		quota:            deps.Quota,
		contexts:         deps.Contexts,
		buddy:            deps.Buddy,
		audit:            deps.Audit,
		summaryMaxLength: deps.SummaryMaxLength,
		logger:           logger,
	}
}

// HandleInbound processes one inbound SMS. Messages from unknown numbers are
// logged and otherwise ignored.
func (s *InboundService) HandleInbound(ctx context.Context, in InboundSMS) error {
	if in.From == "" {
		return newValidationError("From", "is required")
	}

	user, err := s.users.GetByPhone(ctx, in.From)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return fmt.Errorf("failed to resolve sender: %w", err)
	}

	var userID *string
	if user != nil {
		userID = &user.ID
	}
	if err := s.recorder.RecordInbound(ctx, userID, in.From, in.To, in.Body, in.MessageSID); err != nil {
		s.logger.Warn("failed to log inbound message", zap.Error(err))
	}

	if user == nil {
		s.logger.Warn("inbound SMS from unknown number")
		return nil
	}

	parsed := ParseInbound(in.Body)

	if parsed.OptOut {
		return s.optOut(ctx, user, in.From)
	}

	cycle, err := s.cycles.GetActiveByUser(ctx, user.ID)
	if errors.Is(err, ErrNotFound) {
		s.reply(ctx, user.ID, in.From, noCycleReply)
		return nil
	}
	if err != nil {
		return err
	}
	cycleID := cycle.ID

	if _, err := s.checkIns.Create(ctx, user.ID, CheckInInput{
		CycleID:  &cycleID,
		Mood:     parsed.Mood,
		Symptoms: parsed.Symptoms,
		Note:     parsed.Note,
		Source:   model.CheckInSourceSMS,
	}); err != nil {
		s.logger.Warn("failed to record SMS check-in", zap.Error(err), zap.String("user_id", user.ID))
	}

	status, err := s.quota.CheckDailyLimit(ctx, user.ID, user.Timezone)
	if err != nil {
		return err
	}
	if !status.Allowed {
		notice := QuotaMessage(s.quota.MaxDaily())
		s.record(ctx, &model.ChatMessage{
			UserID:  user.ID,
			CycleID: &cycleID,
			Sender:  model.ChatSenderSystem,
			Type:    model.ChatTypeInfo,
			Content: notice,
			Tags:    []string{"quota", "sms"},
		})
		s.reply(ctx, user.ID, in.From, notice)
		return nil
	}

	body := strings.TrimSpace(in.Body)
	s.record(ctx, &model.ChatMessage{
		UserID:  user.ID,
		CycleID: &cycleID,
		Sender:  model.ChatSenderUser,
		Type:    model.ChatTypeMessage,
		Content: body,
		Tags:    []string{"sms"},
	})
	if _, err := s.quota.IncrementMessageCount(ctx, user.ID, user.Timezone); err != nil {
		s.logger.Warn("message count not incremented", zap.Error(err), zap.String("user_id", user.ID))
	}

	rc := s.contexts.Build(ctx, user, cycle, body, parsed.Mood)
	reply := s.buddy.GenerateReply(ctx, rc)

	if _, err := recordReply(ctx, s.chat, user.ID, cycleID, reply); err != nil {
		s.logger.Warn("failed to record buddy reply", zap.Error(err), zap.String("user_id", user.ID))
	}
	updateSummary(ctx, s.chat, s.logger, user.ID, cycleID, rc.ConversationSummary, body, reply, s.summaryMaxLength)

	s.reply(ctx, user.ID, in.From, reply.MessageText)
	return nil
}

func (s *InboundService) optOut(ctx context.Context, user *model.User, from string) error {
	if err := s.users.SetSMSConsent(ctx, user.ID, false); err != nil {
		return fmt.Errorf("failed to revoke SMS consent: %w", err)
	}

	if err := s.audit.Log(ctx, audit.AuditLog{
		UserID:         user.ID,
		OperationType:  audit.OperationUpdate,
		ResourceType:   audit.ResourceSMSConsent,
		ResourceID:     user.ID,
		AdditionalData: map[string]interface{}{"sms_consent": false, "via": "sms"},
	}); err != nil {
		s.logger.Warn("failed to audit SMS opt-out", zap.Error(err))
	}

	s.logger.Info("user opted out of SMS", zap.String("user_id", user.ID))
	s.reply(ctx, user.ID, from, optOutConfirmation)
	return nil
}

// reply sends an SMS answer; failures are logged by the channel
func (s *InboundService) reply(ctx context.Context, userID, to, body string) {
	if s.sms == nil || !s.sms.Enabled() {
		return
	}
	if _, err := s.sms.Send(ctx, userID, to, body); err != nil {
		s.logger.Warn("failed to send SMS reply", zap.Error(err), zap.String("user_id", userID))
	}
}

func (s *InboundService) record(ctx context.Context, msg *model.ChatMessage) {
	msg.ID = uuid.New().String()
	if err := s.chat.CreateMessage(ctx, msg); err != nil {
		s.logger.Warn("failed to record chat message", zap.Error(err), zap.String("user_id", msg.UserID))
	}
}
