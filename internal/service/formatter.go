package service

import (
	"fmt"

	"github.com/neerajk1208/ivfb/internal/fcm"
	"github.com/neerajk1208/ivfb/pkg/model"
)

const checkInPrompt = "💛 Quick check-in: How are you feeling today? Reply with a number 1-5 (1=rough, 5=great) and any notes."

// DeliveryContent is the per-channel rendering of one task
type DeliveryContent struct {
	ChatType model.ChatMessageType
	Chat     string
	SMS      string
	Push     fcm.Notification
}

// FormatTask renders a task for the chat log, SMS and push
func FormatTask(t model.Task, clickURL string) (DeliveryContent, error) {
	if !model.MetaMatchesKind(t.Kind, t.Meta) {
		return DeliveryContent{}, fmt.Errorf("task %s: meta %T does not match kind %s", t.ID, t.Meta, t.Kind)
	}

	push := fcm.Notification{
		URL:  clickURL,
		Tag:  "task-" + t.ID,
		Data: map[string]string{"taskId": t.ID, "kind": string(t.Kind)},
	}

	switch m := t.Meta.(type) {
	case model.ReminderMeta:
		body := "💊 Reminder: " + t.Label
		if m.Instructions != "" {
			body += "\n" + m.Instructions
		}
		push.Title = "💊 Medication reminder"
		push.Body = t.Label
		if m.Instructions != "" {
			push.Body += " · " + m.Instructions
		}
		return DeliveryContent{ChatType: model.ChatTypeReminder, Chat: body, SMS: body, Push: push}, nil

	case model.CheckInMeta:
		push.Title = "💛 Daily check-in"
		push.Body = "How are you feeling today? Tap to check in."
		return DeliveryContent{ChatType: model.ChatTypeCheckIn, Chat: checkInPrompt, SMS: checkInPrompt, Push: push}, nil

	case model.AppointmentMeta:
		at := ""
		if m.ExactTime != "" {
			at = " at " + m.ExactTime
		}
		body := "📅 " + t.Label + at
		push.Title = "📅 Appointment today"
		if m.Critical || t.Kind == model.TaskKindCritical {
			body = "⚠️ Time-critical: " + t.Label + at
			push.Title = "⚠️ Time-critical"
		}
		push.Body = t.Label + at
		return DeliveryContent{ChatType: model.ChatTypeAppointment, Chat: body, SMS: body, Push: push}, nil

	case model.InfoMeta:
		body := "📋 " + t.Label
		push.Title = "📋 Cycle update"
		push.Body = t.Label
		return DeliveryContent{ChatType: model.ChatTypeInfo, Chat: body, SMS: body, Push: push}, nil
	}

	return DeliveryContent{}, fmt.Errorf("task %s: unsupported meta %T", t.ID, t.Meta)
}
