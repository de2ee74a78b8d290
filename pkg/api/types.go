// Package api holds the HTTP contract: request and response types, the
// server interface and the embedded OpenAPI document they follow.
package api

import (
	"time"

	openapi_types "github.com/oapi-codegen/runtime/types"
)

// Error codes used in ErrorResponse.Code
const (
	CodeValidation   = "VALIDATION_ERROR"
	CodeUnauthorized = "UNAUTHORIZED"
	CodeForbidden    = "FORBIDDEN"
	CodeNotFound     = "NOT_FOUND"
	CodeInternal     = "INTERNAL_ERROR"
	CodeUnavailable  = "UNAVAILABLE"
)

// ErrorResponse is the body of every non-2xx JSON response
type ErrorResponse struct {
	Code    string        `json:"code"`
	Message string        `json:"message"`
	Details *string       `json:"details,omitempty"`
	Fields  *[]FieldError `json:"fields,omitempty"`
}

// FieldError names one rejected input field
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// TickResponse defines model for TickResponse.
type TickResponse struct {
	Processed   int      `json:"processed"`
	SmsSent     int      `json:"smsSent"`
	PushSent    int      `json:"pushSent"`
	ChatCreated int      `json:"chatCreated"`
	Failed      int      `json:"failed"`
	Errors      []string `json:"errors"`
}

// RegenerateRequest defines model for RegenerateRequest.
type RegenerateRequest struct {
	CycleId *openapi_types.UUID `json:"cycleId,omitempty"`
}

// RegenerateResponse defines model for RegenerateResponse.
type RegenerateResponse struct {
	Plans           int      `json:"plans"`
	PlanDaysCreated int      `json:"planDaysCreated"`
	TasksCreated    int      `json:"tasksCreated"`
	Failed          int      `json:"failed"`
	Errors          []string `json:"errors"`
}

// MedicationInput defines model for MedicationInput.
type MedicationInput struct {
	Name           string   `json:"name"`
	DosageAmount   *float64 `json:"dosageAmount,omitempty"`
	DosageUnit     *string  `json:"dosageUnit,omitempty"`
	Dosage         *string  `json:"dosage,omitempty"`
	Frequency      *string  `json:"frequency,omitempty"`
	Route          *string  `json:"route,omitempty"`
	StartDayOffset int      `json:"startDayOffset"`
	DurationDays   int      `json:"durationDays"`
	TimeOfDay      *string  `json:"timeOfDay,omitempty"`
	ExactTime      *string  `json:"exactTime,omitempty"`
	Instructions   *string  `json:"instructions,omitempty"`
}

// AppointmentInput defines model for AppointmentInput.
type AppointmentInput struct {
	Type      string  `json:"type"`
	DayOffset int     `json:"dayOffset"`
	ExactTime *string `json:"exactTime,omitempty"`
	Notes     *string `json:"notes,omitempty"`
	Fasting   *bool   `json:"fasting,omitempty"`
	Critical  *bool   `json:"critical,omitempty"`
}

// MilestoneInput defines model for MilestoneInput.
type MilestoneInput struct {
	Type      string  `json:"type"`
	DayOffset int     `json:"dayOffset"`
	Label     string  `json:"label"`
	Details   *string `json:"details,omitempty"`
}

// ProtocolDraftRequest defines model for ProtocolDraftRequest.
type ProtocolDraftRequest struct {
	SchemaVersion  *int                `json:"schemaVersion,omitempty"`
	CycleStartDate string              `json:"cycleStartDate"`
	Notes          *string             `json:"notes,omitempty"`
	Medications    *[]MedicationInput  `json:"medications,omitempty"`
	Appointments   *[]AppointmentInput `json:"appointments,omitempty"`
	Milestones     *[]MilestoneInput   `json:"milestones,omitempty"`
	MissingFields  *[]string           `json:"missingFields,omitempty"`
}

// ExtractRequest defines model for ExtractRequest.
type ExtractRequest struct {
	Text     string  `json:"text"`
	Filename *string `json:"filename,omitempty"`
}

// MedicationResponse defines model for MedicationResponse.
type MedicationResponse struct {
	Id             openapi_types.UUID `json:"id"`
	Name           string             `json:"name"`
	Label          string             `json:"label"`
	DosageAmount   *float64           `json:"dosageAmount,omitempty"`
	DosageUnit     *string            `json:"dosageUnit,omitempty"`
	Dosage         *string            `json:"dosage,omitempty"`
	Frequency      *string            `json:"frequency,omitempty"`
	Route          *string            `json:"route,omitempty"`
	StartDayOffset int                `json:"startDayOffset"`
	DurationDays   int                `json:"durationDays"`
	TimeOfDay      *string            `json:"timeOfDay,omitempty"`
	ExactTime      *string            `json:"exactTime,omitempty"`
	Instructions   *string            `json:"instructions,omitempty"`
}

// AppointmentResponse defines model for AppointmentResponse.
type AppointmentResponse struct {
	Id        openapi_types.UUID `json:"id"`
	Type      string             `json:"type"`
	Label     string             `json:"label"`
	DayOffset int                `json:"dayOffset"`
	ExactTime *string            `json:"exactTime,omitempty"`
	Notes     *string            `json:"notes,omitempty"`
	Fasting   bool               `json:"fasting"`
	Critical  bool               `json:"critical"`
}

// MilestoneResponse defines model for MilestoneResponse.
type MilestoneResponse struct {
	Id        openapi_types.UUID `json:"id"`
	Type      string             `json:"type"`
	DayOffset int                `json:"dayOffset"`
	Label     string             `json:"label"`
	Details   *string            `json:"details,omitempty"`
}

// ProtocolResponse defines model for ProtocolResponse.
type ProtocolResponse struct {
	Id             openapi_types.UUID    `json:"id"`
	CycleId        openapi_types.UUID    `json:"cycleId"`
	Status         string                `json:"status"`
	Source         string                `json:"source"`
	CycleStartDate openapi_types.Date    `json:"cycleStartDate"`
	Notes          *string               `json:"notes,omitempty"`
	MissingFields  *[]string             `json:"missingFields,omitempty"`
	Medications    []MedicationResponse  `json:"medications"`
	Appointments   []AppointmentResponse `json:"appointments"`
	Milestones     []MilestoneResponse   `json:"milestones"`
	CreatedAt      *time.Time            `json:"createdAt,omitempty"`
}

// PlanSummary defines model for PlanSummary.
type PlanSummary struct {
	PlanDaysCreated int `json:"planDaysCreated"`
	TasksCreated    int `json:"tasksCreated"`
}

// ConfirmResponse defines model for ConfirmResponse.
type ConfirmResponse struct {
	Protocol ProtocolResponse `json:"protocol"`
	Plan     PlanSummary      `json:"plan"`
}

// TaskResponse defines model for TaskResponse.
type TaskResponse struct {
	Id        openapi_types.UUID  `json:"id"`
	Kind      string              `json:"kind"`
	Label     string              `json:"label"`
	DueAt     time.Time           `json:"dueAt"`
	Status    string              `json:"status"`
	PlanDayId *openapi_types.UUID `json:"planDayId,omitempty"`
	Meta      interface{}         `json:"meta,omitempty"`
}

// CheckInRequest defines model for CheckInRequest.
type CheckInRequest struct {
	Mood     *int      `json:"mood,omitempty"`
	Symptoms *[]string `json:"symptoms,omitempty"`
	Note     *string   `json:"note,omitempty"`
}

// CheckInResponse defines model for CheckInResponse.
type CheckInResponse struct {
	Id        openapi_types.UUID `json:"id"`
	Mood      *int               `json:"mood,omitempty"`
	Symptoms  []string           `json:"symptoms"`
	Note      *string            `json:"note,omitempty"`
	Source    string             `json:"source"`
	CreatedAt time.Time          `json:"createdAt"`
}

// ProtocolSummary defines model for ProtocolSummary.
type ProtocolSummary struct {
	Id     openapi_types.UUID `json:"id"`
	Status string             `json:"status"`
}

// TodayResponse defines model for TodayResponse.
type TodayResponse struct {
	Date          openapi_types.Date `json:"date"`
	CycleDayIndex *int               `json:"cycleDayIndex,omitempty"`
	Tasks         []TaskResponse     `json:"tasks"`
	Upcoming      []TaskResponse     `json:"upcoming"`
	CheckIn       *CheckInResponse   `json:"checkIn,omitempty"`
	Protocol      *ProtocolSummary   `json:"protocol,omitempty"`
}

// ChatMessageRequest defines model for ChatMessageRequest.
type ChatMessageRequest struct {
	Text string `json:"text"`
}

// ChatMessageResponse defines model for ChatMessageResponse.
type ChatMessageResponse struct {
	Id        openapi_types.UUID  `json:"id"`
	Sender    string              `json:"sender"`
	Type      string              `json:"type"`
	Content   string              `json:"content"`
	Tags      []string            `json:"tags"`
	TaskId    *openapi_types.UUID `json:"taskId,omitempty"`
	CreatedAt time.Time           `json:"createdAt"`
}

// SendMessageResponse defines model for SendMessageResponse.
type SendMessageResponse struct {
	UserMessage  *ChatMessageResponse `json:"userMessage,omitempty"`
	Reply        ChatMessageResponse  `json:"reply"`
	LimitReached bool                 `json:"limitReached"`
}

// ListChatMessagesParams defines parameters for ListChatMessages.
type ListChatMessagesParams struct {
	Date *openapi_types.Date `form:"date,omitempty" json:"date,omitempty"`
}

// SettingsRequest defines model for SettingsRequest.
type SettingsRequest struct {
	Timezone        *string `json:"timezone,omitempty"`
	Phone           *string `json:"phone,omitempty"`
	SmsConsent      *bool   `json:"smsConsent,omitempty"`
	QuietHoursStart *string `json:"quietHoursStart,omitempty"`
	QuietHoursEnd   *string `json:"quietHoursEnd,omitempty"`
}

// UserResponse defines model for UserResponse.
type UserResponse struct {
	Id              openapi_types.UUID `json:"id"`
	Email           string             `json:"email"`
	Timezone        string             `json:"timezone"`
	Phone           *string            `json:"phone,omitempty"`
	SmsConsent      bool               `json:"smsConsent"`
	QuietHoursStart *string            `json:"quietHoursStart,omitempty"`
	QuietHoursEnd   *string            `json:"quietHoursEnd,omitempty"`
}

// SettingsResponse defines model for SettingsResponse.
type SettingsResponse struct {
	User            UserResponse `json:"user"`
	PlanRegenerated bool         `json:"planRegenerated"`
}

// PushSubscriptionRequest defines model for PushSubscriptionRequest.
type PushSubscriptionRequest struct {
	Token      string  `json:"token"`
	DeviceInfo *string `json:"deviceInfo,omitempty"`
}

// HealthResponse defines model for HealthResponse.
type HealthResponse struct {
	Status   string  `json:"status"`
	Database string  `json:"database"`
	Error    *string `json:"error,omitempty"`
}
