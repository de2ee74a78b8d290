package service

import (
	"context"
	"fmt"
	"time"

	"github.com/neerajk1208/ivfb/internal/timeutil"
	"go.uber.org/zap"
)

// QuotaStoreInterface reads and bumps a user's daily message counter
type QuotaStoreInterface interface {
	GetMessageQuota(ctx context.Context, userID string) (int, *time.Time, error)
	IncrementMessageCount(ctx context.Context, userID string, now, dayStart time.Time) (int, error)
}

// QuotaStatus is the outcome of a daily-limit check
type QuotaStatus struct {
	Allowed   bool `json:"allowed"`
	Remaining int  `json:"remaining"`
}

// EvaluateQuota computes the quota from the stored counter. The counter only
// applies when its last message fell on the current civil day in loc.
func EvaluateQuota(count int, lastAt *time.Time, now time.Time, loc *time.Location, max int) QuotaStatus {
	if lastAt == nil || timeutil.Today(*lastAt, loc) != timeutil.Today(now, loc) {
		count = 0
	}
	remaining := max - count
	if remaining < 0 {
		remaining = 0
	}
	return QuotaStatus{Allowed: remaining > 0, Remaining: remaining}
}

// QuotaService bounds user-initiated conversational turns per civil day
type QuotaService struct {
	store           QuotaStoreInterface
	maxDaily        int
	defaultTimezone string
	now             func() time.Time
	logger          *zap.Logger
}

// NewQuotaService creates a new QuotaService
func NewQuotaService(store QuotaStoreInterface, maxDaily int, defaultTimezone string, logger *zap.Logger) *QuotaService {
	return &QuotaService{
		store:           store,
		maxDaily:        maxDaily,
		defaultTimezone: defaultTimezone,
		now:             time.Now,
		logger:          logger,
	}
}

// MaxDaily is the configured per-day limit
func (s *QuotaService) MaxDaily() int {
	return s.maxDaily
}

// CheckDailyLimit reports whether the user may send another message today
func (s *QuotaService) CheckDailyLimit(ctx context.Context, userID, timezone string) (QuotaStatus, error) {
	loc, err := timeutil.LoadLocation(timezone, s.defaultTimezone)
	if err != nil {
		return QuotaStatus{}, err
	}

	count, lastAt, err := s.store.GetMessageQuota(ctx, userID)
	if err != nil {
		return QuotaStatus{}, fmt.Errorf("failed to read message quota: %w", err)
	}

	return EvaluateQuota(count, lastAt, s.now(), loc, s.maxDaily), nil
}

// IncrementMessageCount records one conversational turn, starting a fresh
// count on the first message of a new civil day. Returns the new count.
func (s *QuotaService) IncrementMessageCount(ctx context.Context, userID, timezone string) (int, error) {
	loc, err := timeutil.LoadLocation(timezone, s.defaultTimezone)
	if err != nil {
		return 0, err
	}

	now := s.now()
	dayStart := timeutil.StartOfDay(timeutil.Today(now, loc), loc)

	count, err := s.store.IncrementMessageCount(ctx, userID, now, dayStart)
	if err != nil {
		s.logger.Error("failed to increment message count", zap.Error(err), zap.String("user_id", userID))
		return 0, fmt.Errorf("failed to increment message count: %w", err)
	}
	return count, nil
}
