package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/civil"
	"github.com/neerajk1208/ivfb/internal/timeutil"
	"github.com/neerajk1208/ivfb/pkg/model"
	"go.uber.org/zap"
)

// TodayCheckInInterface finds the check-in of the user's current day
type TodayCheckInInterface interface {
	TodayCheckIn(ctx context.Context, userID, timezone string) (*model.CheckIn, error)
}

// TodayView is the user's day at a glance
type TodayView struct {
	Date          civil.Date       `json:"date"`
	CycleDayIndex *int             `json:"cycleDayIndex"`
	Tasks         []model.Task     `json:"tasks"`
	Upcoming      []model.Task     `json:"upcoming"`
	CheckIn       *model.CheckIn   `json:"checkIn"`
	Protocol      *ProtocolSummary `json:"protocol"`
}

// ProtocolSummary is the summary of the cycle's protocol shown on the Today view
type ProtocolSummary struct {
	ID     string               `json:"id"`
	Status model.ProtocolStatus `json:"status"`
}

const todayUpcomingLimit = 5

// TodayService builds the Today view
type TodayService struct {
	cycles          CycleRepositoryInterface
	protocols       ProtocolRepositoryInterface
	tasks           TaskReaderInterface
	checkIns        TodayCheckInInterface
	defaultTimezone string
	now             func() time.Time
	logger          *zap.Logger
}

// NewTodayService creates a new TodayService
func NewTodayService(cycles CycleRepositoryInterface, protocols ProtocolRepositoryInterface, tasks TaskReaderInterface, checkIns TodayCheckInInterface, defaultTimezone string, logger *zap.Logger) *TodayService {
	return &TodayService{
		cycles:          cycles,
		protocols:       protocols,
		tasks:           tasks,
		checkIns:        checkIns,
		defaultTimezone: defaultTimezone,
		now:             time.Now,
		logger:          logger,
	}
}

// Get returns today's tasks, the next pending tasks and today's check-in. A
// user without a cycle or protocol gets an empty view.
func (s *TodayService) Get(ctx context.Context, user *model.User) (*TodayView, error) {
	loc, err := timeutil.LoadLocation(user.Timezone, s.defaultTimezone)
	if err != nil {
		return nil, err
	}
	now := s.now()
	today := timeutil.Today(now, loc)

	view := &TodayView{Date: today, Tasks: []model.Task{}, Upcoming: []model.Task{}}

	checkIn, err := s.checkIns.TodayCheckIn(ctx, user.ID, user.Timezone)
	if err != nil {
		s.logger.Warn("failed to load today's check-in", zap.Error(err), zap.String("user_id", user.ID))
	}
	view.CheckIn = checkIn

	cycle, err := s.cycles.GetActiveByUser(ctx, user.ID)
	if errors.Is(err, ErrNotFound) {
		return view, nil
	}
	if err != nil {
		return nil, err
	}

	protocol, err := s.protocols.GetByCycle(ctx, cycle.ID)
	switch {
	case errors.Is(err, ErrNotFound):
		return view, nil
	case err != nil:
		return nil, err
	}
	view.Protocol = &ProtocolSummary{ID: protocol.ID, Status: protocol.Status}
	if protocol.Status != model.ProtocolStatusActive {
		return view, nil
	}

	idx := timeutil.CycleDayIndex(protocol.CycleStartDate, today)
	view.CycleDayIndex = &idx

	view.Tasks, err = s.tasks.ListBetween(ctx, cycle.ID, timeutil.StartOfDay(today, loc), timeutil.StartOfDay(today.AddDays(1), loc))
	if err != nil {
		return nil, fmt.Errorf("failed to load today's tasks: %w", err)
	}

	view.Upcoming, err = s.tasks.ListUpcoming(ctx, cycle.ID, now, todayUpcomingLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to load upcoming tasks: %w", err)
	}

	return view, nil
}
