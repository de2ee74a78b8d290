package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
	"github.com/neerajk1208/ivfb/internal/timeutil"
	"github.com/neerajk1208/ivfb/pkg/model"
	"go.uber.org/zap"
)

const checkInLabel = "Daily check-in"

// ProtocolReaderInterface loads protocols with their children
type ProtocolReaderInterface interface {
	GetByID(ctx context.Context, planID string) (*model.Protocol, error)
}

// PlanStoreInterface persists a regenerated plan window
type PlanStoreInterface interface {
	ReplaceFuturePlan(ctx context.Context, cycleID string, now time.Time, today civil.Date, days []model.PlanDay, tasks []model.Task) (int64, error)
}

// PlanRequest identifies the cycle and protocol to expand
type PlanRequest struct {
	CycleID        string
	ProtocolPlanID string
	Timezone       string
	QuietHours     *timeutil.QuietHours
}

// PlanResult reports what a generation wrote
type PlanResult struct {
	PlanDaysCreated int `json:"planDaysCreated"`
	TasksCreated    int `json:"tasksCreated"`
}

// PlannerConfig holds the window size and default clock times
type PlannerConfig struct {
	DaysAhead       int
	Times           timeutil.ReminderTimes
	CheckInTime     civil.Time
	DefaultTimezone string
}

// Planner expands a protocol into a rolling window of plan days and tasks
type Planner struct {
	protocols ProtocolReaderInterface
	store     PlanStoreInterface
	cfg       PlannerConfig
	now       func() time.Time
	logger    *zap.Logger
}

// NewPlanner creates a new Planner
func NewPlanner(protocols ProtocolReaderInterface, store PlanStoreInterface, cfg PlannerConfig, logger *zap.Logger) *Planner {
	return &Planner{
		protocols: protocols,
		store:     store,
		cfg:       cfg,
		now:       time.Now,
		logger:    logger,
	}
}

// GeneratePlanTasks regenerates the future part of a cycle's plan. Tasks that
// are already due are kept; everything from now on is replaced.
func (p *Planner) GeneratePlanTasks(ctx context.Context, req PlanRequest) (*PlanResult, error) {
	loc, err := timeutil.LoadLocation(req.Timezone, p.cfg.DefaultTimezone)
	if err != nil {
		return nil, newValidationError("timezone", err.Error())
	}

	protocol, err := p.protocols.GetByID(ctx, req.ProtocolPlanID)
	if err != nil {
		p.logger.Error("failed to load protocol for plan generation",
			zap.Error(err),
			zap.String("protocol_plan_id", req.ProtocolPlanID),
		)
		return nil, fmt.Errorf("failed to load protocol: %w", err)
	}
	if protocol.CycleID != req.CycleID {
		return nil, fmt.Errorf("protocol %s for cycle %s: %w", req.ProtocolPlanID, req.CycleID, ErrNotFound)
	}

	// one instant drives both the future-only filter and the replacement
	now := p.now().UTC()
	today := timeutil.Today(now, loc)

	days, tasks := BuildPlan(protocol, PlanWindow{
		Today:       today,
		Now:         now,
		Location:    loc,
		QuietHours:  req.QuietHours,
		DaysAhead:   p.cfg.DaysAhead,
		Times:       p.cfg.Times,
		CheckInTime: p.cfg.CheckInTime,
	})

	generation, err := p.store.ReplaceFuturePlan(ctx, req.CycleID, now, today, days, tasks)
	if err != nil {
		return nil, fmt.Errorf("failed to store plan: %w", err)
	}

	p.logger.Info("plan generated",
		zap.String("cycle_id", req.CycleID),
		zap.String("protocol_plan_id", req.ProtocolPlanID),
		zap.Int64("generation", generation),
		zap.Int("plan_days", len(days)),
		zap.Int("tasks", len(tasks)),
	)

	return &PlanResult{PlanDaysCreated: len(days), TasksCreated: len(tasks)}, nil
}

// PlanWindow fixes the inputs of one plan expansion
type PlanWindow struct {
	Today       civil.Date
	Now         time.Time
	Location    *time.Location
	QuietHours  *timeutil.QuietHours
	DaysAhead   int
	Times       timeutil.ReminderTimes
	CheckInTime civil.Time
}

// BuildPlan expands protocol over DaysAhead civil days starting at Today.
// Only tasks due strictly after Now are emitted.
func BuildPlan(protocol *model.Protocol, w PlanWindow) ([]model.PlanDay, []model.Task) {
	days := make([]model.PlanDay, 0, w.DaysAhead)
	var tasks []model.Task

	for i := 0; i < w.DaysAhead; i++ {
		date := w.Today.AddDays(i)
		dayIndex := timeutil.CycleDayIndex(protocol.CycleStartDate, date)

		day := model.PlanDay{
			ID:            uuid.New().String(),
			CycleID:       protocol.CycleID,
			Date:          date,
			CycleDayIndex: dayIndex,
			Title:         fmt.Sprintf("Day %d", dayIndex),
		}

		var dayTasks []model.Task
		emit := func(kind model.TaskKind, label string, due time.Time, meta model.TaskMeta) {
			if !due.After(w.Now) {
				return
			}
			dayTasks = append(dayTasks, model.Task{
				ID:        uuid.New().String(),
				CycleID:   protocol.CycleID,
				PlanDayID: &day.ID,
				Kind:      kind,
				Label:     label,
				DueAt:     due,
				Status:    model.TaskStatusPending,
				Meta:      meta,
			})
		}

		for _, m := range protocol.Medications {
			if !m.ActiveOn(dayIndex) {
				continue
			}
			due := timeutil.ResolveDueInstant(date, m.TimeOfDay, m.ExactTime, w.Times, w.Location)
			due = timeutil.PushOutOfQuietHours(due, w.QuietHours, w.Location)
			emit(model.TaskKindReminder, m.Label(), due, model.ReminderMeta{
				MedicationID: m.ID,
				Name:         m.Name,
				Dosage:       m.DosageLabel(),
				Route:        m.Route,
				Instructions: m.Instructions,
			})
		}

		for _, a := range protocol.Appointments {
			if a.DayOffset != dayIndex {
				continue
			}
			due := timeutil.ResolveDueInstant(date, nil, a.ExactTime, w.Times, w.Location)
			// a clinic-set time is kept even inside quiet hours
			if a.ExactTime == nil && !a.Critical {
				due = timeutil.PushOutOfQuietHours(due, w.QuietHours, w.Location)
			}
			kind := model.TaskKindAppointment
			if a.Critical {
				kind = model.TaskKindCritical
			}
			meta := model.AppointmentMeta{
				AppointmentID: a.ID,
				Type:          a.Type,
				Notes:         a.Notes,
				Fasting:       a.Fasting,
				Critical:      a.Critical,
			}
			if a.ExactTime != nil {
				meta.ExactTime = timeutil.FormatClock(*a.ExactTime)
			}
			emit(kind, a.Label(), due, meta)
		}

		for _, ms := range protocol.Milestones {
			if ms.DayOffset != dayIndex {
				continue
			}
			// informational only, always the morning default
			due := timeutil.ResolveDueInstant(date, nil, nil, w.Times, w.Location)
			emit(model.TaskKindInfo, ms.Label, due, model.InfoMeta{
				MilestoneID: ms.ID,
				Type:        ms.Type,
				Details:     ms.Details,
			})
		}

		checkIn := timeutil.At(date, w.CheckInTime, w.Location)
		checkIn = timeutil.PushOutOfQuietHours(checkIn, w.QuietHours, w.Location)
		emit(model.TaskKindCheckIn, checkInLabel, checkIn, model.CheckInMeta{})

		day.Summary = summarizeDay(dayTasks)
		days = append(days, day)
		tasks = append(tasks, dayTasks...)
	}

	return days, tasks
}

func summarizeDay(tasks []model.Task) string {
	counts := map[model.TaskKind]int{}
	for _, t := range tasks {
		counts[t.Kind]++
	}

	var parts []string
	add := func(n int, singular, plural string) {
		switch {
		case n == 1:
			parts = append(parts, "1 "+singular)
		case n > 1:
			parts = append(parts, fmt.Sprintf("%d %s", n, plural))
		}
	}
	add(counts[model.TaskKindReminder], "medication", "medications")
	add(counts[model.TaskKindAppointment]+counts[model.TaskKindCritical], "appointment", "appointments")
	add(counts[model.TaskKindInfo], "milestone", "milestones")

	if len(parts) == 0 {
		return "Rest day"
	}
	return strings.Join(parts, ", ")
}
