package model

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/neerajk1208/ivfb/internal/timeutil"
)

// User represents a patient account
type User struct {
	ID                string     `json:"id"`
	Email             string     `json:"email"`
	Timezone          string     `json:"timezone"`
	Phone             *string    `json:"phone,omitempty"`
	SMSConsent        bool       `json:"sms_consent"`
	QuietHoursStart   *string    `json:"quiet_hours_start,omitempty"`
	QuietHoursEnd     *string    `json:"quiet_hours_end,omitempty"`
	DailyMessageCount int        `json:"-"`
	LastMessageAt     *time.Time `json:"-"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

// QuietHours parses the stored quiet-hours window. Nil means none configured.
func (u *User) QuietHours() (*timeutil.QuietHours, error) {
	var start, end string
	if u.QuietHoursStart != nil {
		start = *u.QuietHoursStart
	}
	if u.QuietHoursEnd != nil {
		end = *u.QuietHoursEnd
	}
	return timeutil.ParseQuietHours(start, end)
}

// CanReceiveSMS reports whether SMS delivery is allowed for the user
func (u *User) CanReceiveSMS() bool {
	return u.SMSConsent && u.Phone != nil && *u.Phone != ""
}

// CycleStatus represents the state of a treatment cycle
type CycleStatus string

const (
	CycleStatusActive    CycleStatus = "ACTIVE"
	CycleStatusCompleted CycleStatus = "COMPLETED"
)

// Cycle represents one treatment cycle of a user
type Cycle struct {
	ID        string      `json:"id"`
	UserID    string      `json:"user_id"`
	Status    CycleStatus `json:"status"`
	StartDate *civil.Date `json:"start_date,omitempty"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}

// ProtocolStatus represents the lifecycle state of a protocol plan
type ProtocolStatus string

const (
	ProtocolStatusDraft  ProtocolStatus = "DRAFT"
	ProtocolStatusActive ProtocolStatus = "ACTIVE"
)

// ProtocolSource records how a protocol was captured
type ProtocolSource string

const (
	ProtocolSourceExtraction ProtocolSource = "EXTRACTION"
	ProtocolSourceManual     ProtocolSource = "MANUAL"
)

// Protocol is the normalized treatment plan of one cycle
type Protocol struct {
	ID             string         `json:"id"`
	CycleID        string         `json:"cycle_id"`
	Status         ProtocolStatus `json:"status"`
	Source         ProtocolSource `json:"source"`
	CycleStartDate civil.Date     `json:"cycle_start_date"`
	Notes          string         `json:"notes,omitempty"`
	DocumentPath   *string        `json:"document_path,omitempty"`
	MissingFields  []string       `json:"missing_fields,omitempty"`
	Medications    []Medication   `json:"medications"`
	Appointments   []Appointment  `json:"appointments"`
	Milestones     []Milestone    `json:"milestones"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// Medication is a recurring dose over a range of cycle days
type Medication struct {
	ID             string              `json:"id"`
	ProtocolID     string              `json:"protocol_id"`
	Name           string              `json:"name"`
	DosageAmount   *float64            `json:"dosage_amount,omitempty"`
	DosageUnit     string              `json:"dosage_unit,omitempty"`
	Dosage         string              `json:"dosage,omitempty"`
	Frequency      string              `json:"frequency,omitempty"`
	Route          string              `json:"route,omitempty"`
	StartDayOffset int                 `json:"start_day_offset"`
	DurationDays   int                 `json:"duration_days"`
	TimeOfDay      *timeutil.TimeOfDay `json:"time_of_day,omitempty"`
	ExactTime      *civil.Time         `json:"exact_time,omitempty"`
	Instructions   string              `json:"instructions,omitempty"`
}

// DosageLabel renders the structured dose, falling back to the free text
func (m Medication) DosageLabel() string {
	if m.DosageAmount != nil && m.DosageUnit != "" {
		return strconv.FormatFloat(*m.DosageAmount, 'f', -1, 64) + " " + m.DosageUnit
	}
	return m.Dosage
}

// Label is the reminder label: name followed by dose when known
func (m Medication) Label() string {
	if d := m.DosageLabel(); d != "" {
		return m.Name + " " + d
	}
	return m.Name
}

// ActiveOn reports whether the medication is taken on the given cycle day
func (m Medication) ActiveOn(dayIndex int) bool {
	return dayIndex >= m.StartDayOffset && dayIndex <= m.StartDayOffset+m.DurationDays-1
}

// AppointmentType enumerates clinic visit kinds
type AppointmentType string

const (
	AppointmentBloodwork    AppointmentType = "BLOODWORK"
	AppointmentUltrasound   AppointmentType = "ULTRASOUND"
	AppointmentMonitoring   AppointmentType = "MONITORING"
	AppointmentTrigger      AppointmentType = "TRIGGER"
	AppointmentRetrieval    AppointmentType = "RETRIEVAL"
	AppointmentTransfer     AppointmentType = "TRANSFER"
	AppointmentConsultation AppointmentType = "CONSULTATION"
	AppointmentOther        AppointmentType = "OTHER"
)

var appointmentTitles = map[AppointmentType]string{
	AppointmentBloodwork:    "Bloodwork",
	AppointmentUltrasound:   "Ultrasound",
	AppointmentMonitoring:   "Monitoring visit",
	AppointmentTrigger:      "Trigger shot",
	AppointmentRetrieval:    "Egg retrieval",
	AppointmentTransfer:     "Embryo transfer",
	AppointmentConsultation: "Consultation",
	AppointmentOther:        "Appointment",
}

// TimeCritical reports whether the procedure must happen at an exact minute
func (t AppointmentType) TimeCritical() bool {
	return t == AppointmentTrigger || t == AppointmentRetrieval || t == AppointmentTransfer
}

// Appointment is a single-day clinic event
type Appointment struct {
	ID         string          `json:"id"`
	ProtocolID string          `json:"protocol_id"`
	Type       AppointmentType `json:"type"`
	DayOffset  int             `json:"day_offset"`
	ExactTime  *civil.Time     `json:"exact_time,omitempty"`
	Notes      string          `json:"notes,omitempty"`
	Fasting    bool            `json:"fasting"`
	Critical   bool            `json:"critical"`
}

// Label is the task label for the appointment
func (a Appointment) Label() string {
	title, ok := appointmentTitles[a.Type]
	if !ok {
		title = appointmentTitles[AppointmentOther]
	}
	if a.Type == AppointmentOther && a.Notes != "" {
		title = a.Notes
	}
	if a.Fasting {
		title += " (fasting)"
	}
	return title
}

// MilestoneType enumerates cycle milestones
type MilestoneType string

const (
	MilestoneCycleStart MilestoneType = "CYCLE_START"
	MilestoneStimStart  MilestoneType = "STIM_START"
	MilestoneTrigger    MilestoneType = "TRIGGER"
	MilestoneRetrieval  MilestoneType = "RETRIEVAL"
	MilestoneTransfer   MilestoneType = "TRANSFER"
	MilestonePregTest   MilestoneType = "PREG_TEST"
	MilestoneOther      MilestoneType = "OTHER"
)

// Milestone is an informational single-day marker
type Milestone struct {
	ID         string        `json:"id"`
	ProtocolID string        `json:"protocol_id"`
	Type       MilestoneType `json:"type"`
	DayOffset  int           `json:"day_offset"`
	Label      string        `json:"label"`
	Details    string        `json:"details,omitempty"`
}

// PlanDay groups the tasks of one civil day in the rolling window
type PlanDay struct {
	ID            string     `json:"id"`
	CycleID       string     `json:"cycle_id"`
	Date          civil.Date `json:"date"`
	CycleDayIndex int        `json:"cycle_day_index"`
	Title         string     `json:"title"`
	Summary       string     `json:"summary"`
	Generation    int64      `json:"-"`
}

// ConversationState holds the rolling summary of a cycle's conversation
type ConversationState struct {
	CycleID   string    `json:"cycle_id"`
	UserID    string    `json:"user_id"`
	Summary   string    `json:"summary"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ChatSender identifies who authored a chat message
type ChatSender string

const (
	ChatSenderUser   ChatSender = "USER"
	ChatSenderBuddy  ChatSender = "BUDDY"
	ChatSenderSystem ChatSender = "SYSTEM"
)

// ChatMessageType classifies a chat message for rendering
type ChatMessageType string

const (
	ChatTypeMessage     ChatMessageType = "MESSAGE"
	ChatTypeReminder    ChatMessageType = "REMINDER"
	ChatTypeCheckIn     ChatMessageType = "CHECKIN"
	ChatTypeAppointment ChatMessageType = "APPOINTMENT"
	ChatTypeInfo        ChatMessageType = "INFO"
	ChatTypeEscalation  ChatMessageType = "ESCALATION"
)

// ChatMessage is one entry in the user's conversation log
type ChatMessage struct {
	ID        string          `json:"id"`
	UserID    string          `json:"user_id"`
	CycleID   *string         `json:"cycle_id,omitempty"`
	TaskID    *string         `json:"task_id,omitempty"`
	Sender    ChatSender      `json:"sender"`
	Type      ChatMessageType `json:"type"`
	Content   string          `json:"content"`
	Tags      []string        `json:"tags,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// PushSubscription is a registered FCM device token
type PushSubscription struct {
	ID         string    `json:"id"`
	UserID     string    `json:"user_id"`
	Token      string    `json:"token"`
	DeviceInfo *string   `json:"device_info,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// MessageDirection is the direction of a provider message
type MessageDirection string

const (
	DirectionInbound  MessageDirection = "INBOUND"
	DirectionOutbound MessageDirection = "OUTBOUND"
)

// MessageChannel is the provider channel of a logged message
type MessageChannel string

const (
	ChannelSMS  MessageChannel = "SMS"
	ChannelPush MessageChannel = "PUSH"
)

// MessageLog is an append-only record of a provider message attempt
type MessageLog struct {
	ID         string           `json:"id"`
	UserID     *string          `json:"user_id,omitempty"`
	Direction  MessageDirection `json:"direction"`
	Channel    MessageChannel   `json:"channel"`
	To         string           `json:"to"`
	From       string           `json:"from"`
	Body       string           `json:"body"`
	Status     string           `json:"status"`
	ProviderID *string          `json:"provider_id,omitempty"`
	Error      *string          `json:"error,omitempty"`
	CreatedAt  time.Time        `json:"created_at"`
}

// CheckInSource records where a check-in came from
type CheckInSource string

const (
	CheckInSourceApp CheckInSource = "APP"
	CheckInSourceSMS CheckInSource = "SMS"
)

// CheckIn is a daily mood and symptom report
type CheckIn struct {
	ID        string        `json:"id"`
	UserID    string        `json:"user_id"`
	CycleID   *string       `json:"cycle_id,omitempty"`
	Mood      *int          `json:"mood,omitempty"`
	Symptoms  []string      `json:"symptoms"`
	Note      string        `json:"note,omitempty"`
	Source    CheckInSource `json:"source"`
	CreatedAt time.Time     `json:"created_at"`
}

// ValidateMood checks that a mood score is on the 1-5 scale
func ValidateMood(mood *int) error {
	if mood == nil {
		return nil
	}
	if *mood < 1 || *mood > 5 {
		return fmt.Errorf("mood must be between 1 and 5, got %d", *mood)
	}
	return nil
}

// NormalizeSymptoms lowercases, trims and de-duplicates symptom names
func NormalizeSymptoms(symptoms []string) []string {
	seen := make(map[string]bool, len(symptoms))
	out := make([]string, 0, len(symptoms))
	for _, s := range symptoms {
		s = strings.ToLower(strings.TrimSpace(s))
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}
