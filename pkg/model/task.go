package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// TaskKind classifies a scheduled task
type TaskKind string

const (
	TaskKindReminder    TaskKind = "REMINDER"
	TaskKindCheckIn     TaskKind = "CHECKIN"
	TaskKindAppointment TaskKind = "APPOINTMENT"
	TaskKindCritical    TaskKind = "CRITICAL"
	TaskKindInfo        TaskKind = "INFO"
)

// ParseTaskKind validates a task kind name
func ParseTaskKind(s string) (TaskKind, error) {
	switch k := TaskKind(s); k {
	case TaskKindReminder, TaskKindCheckIn, TaskKindAppointment, TaskKindCritical, TaskKindInfo:
		return k, nil
	}
	return "", fmt.Errorf("unknown task kind %q", s)
}

// TaskStatus is the delivery state of a task. Transitions only move forward:
// PENDING -> SENT -> DONE, or PENDING -> DONE.
type TaskStatus string

const (
	TaskStatusPending TaskStatus = "PENDING"
	TaskStatusSent    TaskStatus = "SENT"
	TaskStatusDone    TaskStatus = "DONE"
)

// Task is one scheduled instance produced by the planner
type Task struct {
	ID         string     `json:"id"`
	CycleID    string     `json:"cycle_id"`
	PlanDayID  *string    `json:"plan_day_id,omitempty"`
	Kind       TaskKind   `json:"kind"`
	Label      string     `json:"label"`
	DueAt      time.Time  `json:"due_at"`
	Status     TaskStatus `json:"status"`
	Meta       TaskMeta   `json:"meta"`
	SentAt     *time.Time `json:"sent_at,omitempty"`
	Generation int64      `json:"-"`
	CreatedAt  time.Time  `json:"created_at"`
}

// TaskMeta is the kind-specific payload of a task. The concrete type is fixed
// by the task kind: ReminderMeta for REMINDER, AppointmentMeta for APPOINTMENT
// and CRITICAL, InfoMeta for INFO and CheckInMeta for CHECKIN.
type TaskMeta interface {
	taskMeta()
}

// ReminderMeta carries the source medication of a REMINDER task
type ReminderMeta struct {
	MedicationID string `json:"medication_id"`
	Name         string `json:"name"`
	Dosage       string `json:"dosage,omitempty"`
	Route        string `json:"route,omitempty"`
	Instructions string `json:"instructions,omitempty"`
}

// AppointmentMeta carries the source appointment of an APPOINTMENT or CRITICAL task
type AppointmentMeta struct {
	AppointmentID string          `json:"appointment_id"`
	Type          AppointmentType `json:"type"`
	ExactTime     string          `json:"exact_time,omitempty"`
	Notes         string          `json:"notes,omitempty"`
	Fasting       bool            `json:"fasting"`
	Critical      bool            `json:"critical"`
}

// InfoMeta carries the source milestone of an INFO task
type InfoMeta struct {
	MilestoneID string        `json:"milestone_id"`
	Type        MilestoneType `json:"type"`
	Details     string        `json:"details,omitempty"`
}

// CheckInMeta marks the daily check-in prompt
type CheckInMeta struct{}

func (ReminderMeta) taskMeta()    {}
func (AppointmentMeta) taskMeta() {}
func (InfoMeta) taskMeta()        {}
func (CheckInMeta) taskMeta()     {}

// MetaMatchesKind reports whether meta is the payload type required by kind
func MetaMatchesKind(kind TaskKind, meta TaskMeta) bool {
	switch meta.(type) {
	case ReminderMeta:
		return kind == TaskKindReminder
	case AppointmentMeta:
		return kind == TaskKindAppointment || kind == TaskKindCritical
	case InfoMeta:
		return kind == TaskKindInfo
	case CheckInMeta:
		return kind == TaskKindCheckIn
	}
	return false
}

// EncodeTaskMeta serializes meta for storage
func EncodeTaskMeta(meta TaskMeta) ([]byte, error) {
	if meta == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(meta)
}

// DecodeTaskMeta restores the typed payload of a stored task
func DecodeTaskMeta(kind TaskKind, raw []byte) (TaskMeta, error) {
	if len(raw) == 0 {
		raw = []byte("{}")
	}
	switch kind {
	case TaskKindReminder:
		var m ReminderMeta
		if err := json.Unmarshal(raw, &m); err != nil {
			return nil, fmt.Errorf("failed to decode reminder meta: %w", err)
		}
		return m, nil
	case TaskKindAppointment, TaskKindCritical:
		var m AppointmentMeta
		if err := json.Unmarshal(raw, &m); err != nil {
			return nil, fmt.Errorf("failed to decode appointment meta: %w", err)
		}
		return m, nil
	case TaskKindInfo:
		var m InfoMeta
		if err := json.Unmarshal(raw, &m); err != nil {
			return nil, fmt.Errorf("failed to decode info meta: %w", err)
		}
		return m, nil
	case TaskKindCheckIn:
		return CheckInMeta{}, nil
	}
	return nil, fmt.Errorf("unknown task kind %q", kind)
}
