package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/neerajk1208/ivfb/internal/azure"
	"go.uber.org/zap"
)

const escalationText = "I'm concerned about what you're describing. Please contact your clinic or urgent care right away. If it's an emergency, call 911. Your health and safety come first 💛"

var severeKeywords = []string{
	"severe pain",
	"can't breathe",
	"cannot breathe",
	"difficulty breathing",
	"heavy bleeding",
	"soaking through",
	"passing clots",
	"fainting",
	"fainted",
	"passed out",
	"chest pain",
	"heart racing",
	"suicidal",
	"want to die",
	"end my life",
	"kill myself",
	"panic attack",
	"can't stop crying",
	"emergency",
	"hospital",
	"911",
	"ambulance",
	"collapsed",
	"unconscious",
	"high fever",
	"vomiting blood",
	"severe headache",
	"vision problems",
	"blurred vision",
	"sudden swelling",
	"can't urinate",
	"blood in urine",
}

const buddySystemPrompt = `You are IVF Buddy, a warm and supportive companion for someone going through an IVF cycle.
You are not a doctor. Never give medical advice, never change medication instructions, and never interpret test results.
For anything medical, gently suggest contacting the clinic.
Keep replies short, kind and concrete: at most 320 characters, plain text, at most one emoji.

Respond with a single JSON object:
{"messageText": string, "tags": string[], "escalation": boolean}
Set escalation to true only when the message suggests a medical emergency.`

// ReplyContext is what the reply generator knows about the user's situation
type ReplyContext struct {
	CycleDayIndex       *int
	TodaysMedications   []string
	UpcomingTasks       []string
	RecentMoodTrend     []int
	RecentSymptoms      []string
	ConversationSummary string
	UserMessage         string
	// Mood parsed from the current message, used to pick a fallback
	Mood *int
}

// Reply is a buddy response
type Reply struct {
	MessageText string   `json:"messageText" validate:"required,max=320"`
	Tags        []string `json:"tags" validate:"max=10,dive,max=40"`
	Escalation  bool     `json:"escalation"`
}

// ReplyGeneratorInterface produces a buddy reply. It never fails.
type ReplyGeneratorInterface interface {
	GenerateReply(ctx context.Context, rc ReplyContext) Reply
}

// BuddyService generates conversational replies through the language model,
// with keyword escalation and deterministic fallbacks
type BuddyService struct {
	completer azure.Completer
	validate  *validator.Validate
	timeout   time.Duration
	logger    *zap.Logger
}

// NewBuddyService creates a new BuddyService. A nil completer always falls back.
func NewBuddyService(completer azure.Completer, timeout time.Duration, logger *zap.Logger) *BuddyService {
	return &BuddyService{
		completer: completer,
		validate:  validator.New(),
		timeout:   timeout,
		logger:    logger,
	}
}

// IsSevere reports whether text contains an emergency keyword
func IsSevere(text string) bool {
	lower := strings.ToLower(text)
	for _, k := range severeKeywords {
		if strings.Contains(lower, k) {
			return true
		}
	}
	return false
}

// EscalationReply is returned for messages that mention an emergency
func EscalationReply() Reply {
	return Reply{MessageText: escalationText, Tags: []string{"escalation", "urgent"}, Escalation: true}
}

// FallbackReply is the fixed reply for a mood bucket
func FallbackReply(mood *int) Reply {
	switch {
	case mood == nil:
		return Reply{
			MessageText: "Thanks for reaching out 💛 I'm here if you need anything. How are you feeling today on a scale of 1-5?",
			Tags:        []string{"general", "check-in"},
		}
	case *mood <= 2:
		return Reply{
			MessageText: "Hey 💛 I'm here. That sounds like a heavy day. Want one tiny grounding tip or just a little encouragement?",
			Tags:        []string{"low-mood", "supportive"},
		}
	case *mood == 3:
		return Reply{
			MessageText: "Thanks for checking in 💛 Middle-of-the-road days happen. Just keep doing what you're doing - you're making progress.",
			Tags:        []string{"neutral", "encouraging"},
		}
	default:
		return Reply{
			MessageText: "Love to hear that 💛 Want to keep the momentum with a quick hydration + rest reminder?",
			Tags:        []string{"positive", "encouraging"},
		}
	}
}

// GenerateReply answers a user message. Emergencies short-circuit without a
// model call; any model failure yields the mood-bucket fallback.
func (s *BuddyService) GenerateReply(ctx context.Context, rc ReplyContext) Reply {
	if IsSevere(rc.UserMessage) {
		s.logger.Warn("escalation keyword detected")
		return EscalationReply()
	}

	if s.completer == nil {
		return FallbackReply(rc.Mood)
	}

	cctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	raw, err := s.completer.Complete(cctx, azure.CompletionRequest{
		System:      buddySystemPrompt,
		User:        BuildReplyPrompt(rc),
		MaxTokens:   300,
		Temperature: 0.7,
		JSON:        true,
	})
	if err != nil {
		s.logger.Warn("reply generation failed, using fallback", zap.Error(err))
		return FallbackReply(rc.Mood)
	}

	reply, err := s.parseReply(raw)
	if err != nil {
		s.logger.Warn("invalid model reply, using fallback", zap.Error(err))
		return FallbackReply(rc.Mood)
	}

	return reply
}

func (s *BuddyService) parseReply(raw string) (Reply, error) {
	var reply Reply
	if err := json.Unmarshal([]byte(azure.StripCodeFences(raw)), &reply); err != nil {
		return Reply{}, fmt.Errorf("failed to parse reply: %w", err)
	}
	reply.MessageText = strings.TrimSpace(reply.MessageText)
	if err := s.validate.Struct(reply); err != nil {
		return Reply{}, fmt.Errorf("reply failed validation: %w", err)
	}
	if reply.Tags == nil {
		reply.Tags = []string{}
	}
	return reply, nil
}

// BuildReplyPrompt renders the situation block sent with the user message
func BuildReplyPrompt(rc ReplyContext) string {
	var b strings.Builder

	if rc.CycleDayIndex != nil {
		fmt.Fprintf(&b, "Cycle day: %d\n", *rc.CycleDayIndex)
	} else {
		b.WriteString("Cycle day: unknown\n")
	}
	fmt.Fprintf(&b, "Today's medications: %s\n", listOrNone(rc.TodaysMedications))
	fmt.Fprintf(&b, "Upcoming: %s\n", listOrNone(rc.UpcomingTasks))

	moods := make([]string, len(rc.RecentMoodTrend))
	for i, m := range rc.RecentMoodTrend {
		moods[i] = strconv.Itoa(m)
	}
	fmt.Fprintf(&b, "Recent moods (1-5, newest first): %s\n", listOrNone(moods))
	fmt.Fprintf(&b, "Recent symptoms: %s\n", listOrNone(rc.RecentSymptoms))

	summary := rc.ConversationSummary
	if summary == "" {
		summary = "none"
	}
	fmt.Fprintf(&b, "Conversation so far:\n%s\n\n", summary)
	fmt.Fprintf(&b, "User message: %s", rc.UserMessage)

	return b.String()
}

func listOrNone(items []string) string {
	if len(items) == 0 {
		return "none"
	}
	return strings.Join(items, ", ")
}

// AppendSummary adds one exchange to a rolling summary and drops the oldest
// lines until it fits in max characters. A single exchange longer than max
// is cut from the front.
func AppendSummary(summary, userText, replyText string, max int) string {
	line := "User: " + oneLine(userText) + " | Buddy: " + oneLine(replyText)

	lines := []string{}
	if summary != "" {
		lines = strings.Split(summary, "\n")
	}
	lines = append(lines, line)

	out := strings.Join(lines, "\n")
	for len(out) > max && len(lines) > 1 {
		lines = lines[1:]
		out = strings.Join(lines, "\n")
	}
	if len(out) > max {
		r := []rune(out)
		for len(string(r)) > max {
			r = r[1:]
		}
		out = string(r)
	}
	return out
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
