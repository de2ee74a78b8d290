package handler

import (
	"github.com/neerajk1208/ivfb/internal/service"
	"github.com/neerajk1208/ivfb/internal/timeutil"
	"github.com/neerajk1208/ivfb/pkg/api"
	"github.com/neerajk1208/ivfb/pkg/model"
)

// toExtraction converts a manual protocol draft into the extraction shape the
// protocol service normalizes
func toExtraction(req api.ProtocolDraftRequest) *service.ProtocolExtraction {
	ext := &service.ProtocolExtraction{
		CycleStartDate: req.CycleStartDate,
		Notes:          derefString(req.Notes),
		Medications:    []service.ExtractedMedication{},
		Appointments:   []service.ExtractedAppointment{},
		Milestones:     []service.ExtractedMilestone{},
	}
	if req.SchemaVersion != nil {
		ext.SchemaVersion = *req.SchemaVersion
	}
	if req.MissingFields != nil {
		ext.MissingFields = *req.MissingFields
	}

	if req.Medications != nil {
		for _, m := range *req.Medications {
			ext.Medications = append(ext.Medications, service.ExtractedMedication{
				Name:           m.Name,
				DosageAmount:   m.DosageAmount,
				DosageUnit:     derefString(m.DosageUnit),
				Dosage:         derefString(m.Dosage),
				Frequency:      derefString(m.Frequency),
				Route:          derefString(m.Route),
				StartDayOffset: m.StartDayOffset,
				DurationDays:   m.DurationDays,
				TimeOfDay:      derefString(m.TimeOfDay),
				ExactTime:      derefString(m.ExactTime),
				Instructions:   derefString(m.Instructions),
			})
		}
	}

	if req.Appointments != nil {
		for _, a := range *req.Appointments {
			ext.Appointments = append(ext.Appointments, service.ExtractedAppointment{
				Type:      a.Type,
				DayOffset: a.DayOffset,
				ExactTime: derefString(a.ExactTime),
				Notes:     derefString(a.Notes),
				Fasting:   derefBool(a.Fasting),
				Critical:  derefBool(a.Critical),
			})
		}
	}

	if req.Milestones != nil {
		for _, m := range *req.Milestones {
			ext.Milestones = append(ext.Milestones, service.ExtractedMilestone{
				Type:      m.Type,
				DayOffset: m.DayOffset,
				Label:     m.Label,
				Details:   derefString(m.Details),
			})
		}
	}

	return ext
}

func toProtocolResponse(p *model.Protocol) api.ProtocolResponse {
	resp := api.ProtocolResponse{
		Id:             toUUID(p.ID),
		CycleId:        toUUID(p.CycleID),
		Status:         string(p.Status),
		Source:         string(p.Source),
		CycleStartDate: civilToDate(p.CycleStartDate),
		Notes:          optString(p.Notes),
		Medications:    make([]api.MedicationResponse, 0, len(p.Medications)),
		Appointments:   make([]api.AppointmentResponse, 0, len(p.Appointments)),
		Milestones:     make([]api.MilestoneResponse, 0, len(p.Milestones)),
		CreatedAt:      timePtr(p.CreatedAt),
	}
	if len(p.MissingFields) > 0 {
		missing := p.MissingFields
		resp.MissingFields = &missing
	}

	for _, m := range p.Medications {
		med := api.MedicationResponse{
			Id:             toUUID(m.ID),
			Name:           m.Name,
			Label:          m.Label(),
			DosageAmount:   m.DosageAmount,
			DosageUnit:     optString(m.DosageUnit),
			Dosage:         optString(m.Dosage),
			Frequency:      optString(m.Frequency),
			Route:          optString(m.Route),
			StartDayOffset: m.StartDayOffset,
			DurationDays:   m.DurationDays,
			Instructions:   optString(m.Instructions),
		}
		if m.TimeOfDay != nil {
			med.TimeOfDay = stringPtr(string(*m.TimeOfDay))
		}
		if m.ExactTime != nil {
			med.ExactTime = stringPtr(timeutil.FormatClock(*m.ExactTime))
		}
		resp.Medications = append(resp.Medications, med)
	}

	for _, a := range p.Appointments {
		appt := api.AppointmentResponse{
			Id:        toUUID(a.ID),
			Type:      string(a.Type),
			Label:     a.Label(),
			DayOffset: a.DayOffset,
			Notes:     optString(a.Notes),
			Fasting:   a.Fasting,
			Critical:  a.Critical,
		}
		if a.ExactTime != nil {
			appt.ExactTime = stringPtr(timeutil.FormatClock(*a.ExactTime))
		}
		resp.Appointments = append(resp.Appointments, appt)
	}

	for _, m := range p.Milestones {
		resp.Milestones = append(resp.Milestones, api.MilestoneResponse{
			Id:        toUUID(m.ID),
			Type:      string(m.Type),
			DayOffset: m.DayOffset,
			Label:     m.Label,
			Details:   optString(m.Details),
		})
	}

	return resp
}

func toTaskResponse(t model.Task) api.TaskResponse {
	return api.TaskResponse{
		Id:        toUUID(t.ID),
		Kind:      string(t.Kind),
		Label:     t.Label,
		DueAt:     t.DueAt,
		Status:    string(t.Status),
		PlanDayId: stringToUUID(t.PlanDayID),
		Meta:      t.Meta,
	}
}

func toTaskResponses(tasks []model.Task) []api.TaskResponse {
	out := make([]api.TaskResponse, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, toTaskResponse(t))
	}
	return out
}

func toCheckInResponse(ci *model.CheckIn) api.CheckInResponse {
	return api.CheckInResponse{
		Id:        toUUID(ci.ID),
		Mood:      ci.Mood,
		Symptoms:  sliceOrEmpty(ci.Symptoms),
		Note:      optString(ci.Note),
		Source:    string(ci.Source),
		CreatedAt: ci.CreatedAt,
	}
}

func toChatMessageResponse(m *model.ChatMessage) api.ChatMessageResponse {
	return api.ChatMessageResponse{
		Id:        toUUID(m.ID),
		Sender:    string(m.Sender),
		Type:      string(m.Type),
		Content:   m.Content,
		Tags:      sliceOrEmpty(m.Tags),
		TaskId:    stringToUUID(m.TaskID),
		CreatedAt: m.CreatedAt,
	}
}

func toUserResponse(u *model.User) api.UserResponse {
	return api.UserResponse{
		Id:              toUUID(u.ID),
		Email:           u.Email,
		Timezone:        u.Timezone,
		Phone:           u.Phone,
		SmsConsent:      u.SMSConsent,
		QuietHoursStart: u.QuietHoursStart,
		QuietHoursEnd:   u.QuietHoursEnd,
	}
}
