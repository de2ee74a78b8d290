package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/neerajk1208/ivfb/internal/security"
	"github.com/neerajk1208/ivfb/internal/timeutil"
	"github.com/neerajk1208/ivfb/pkg/model"
	"go.uber.org/zap"
)

// CheckInRepositoryInterface stores check-ins
type CheckInRepositoryInterface interface {
	Create(ctx context.Context, checkIn *model.CheckIn) error
	ListRecent(ctx context.Context, userID string, limit int) ([]model.CheckIn, error)
	ListBetween(ctx context.Context, userID string, from, to time.Time) ([]model.CheckIn, error)
}

// CheckInInput is a mood and symptom report from the app or SMS
type CheckInInput struct {
	CycleID  *string
	Mood     *int
	Symptoms []string
	Note     string
	Source   model.CheckInSource
}

// CheckInService records daily check-ins. Notes are encrypted at rest.
type CheckInService struct {
	repo            CheckInRepositoryInterface
	cipher          security.FieldCipher
	defaultTimezone string
	now             func() time.Time
	logger          *zap.Logger
}

// NewCheckInService creates a new CheckInService
func NewCheckInService(repo CheckInRepositoryInterface, cipher security.FieldCipher, defaultTimezone string, logger *zap.Logger) *CheckInService {
	return &CheckInService{
		repo:            repo,
		cipher:          cipher,
		defaultTimezone: defaultTimezone,
		now:             time.Now,
		logger:          logger,
	}
}

// Create validates and stores a check-in, returning it with the plaintext note
func (s *CheckInService) Create(ctx context.Context, userID string, in CheckInInput) (*model.CheckIn, error) {
	if err := model.ValidateMood(in.Mood); err != nil {
		return nil, newValidationError("mood", err.Error())
	}
	if len(in.Symptoms) > 20 {
		return nil, newValidationError("symptoms", "at most 20 symptoms")
	}
	note := strings.TrimSpace(in.Note)
	if len(note) > 2000 {
		return nil, newValidationError("note", "must be at most 2000 characters")
	}
	if in.Source == "" {
		in.Source = model.CheckInSourceApp
	}

	stored := note
	if note != "" {
		enc, err := s.cipher.Encrypt(note)
		if err != nil {
			return nil, fmt.Errorf("failed to encrypt check-in note: %w", err)
		}
		stored = enc
	}

	checkIn := &model.CheckIn{
		ID:        uuid.New().String(),
		UserID:    userID,
		CycleID:   in.CycleID,
		Mood:      in.Mood,
		Symptoms:  model.NormalizeSymptoms(in.Symptoms),
		Note:      stored,
		Source:    in.Source,
		CreatedAt: s.now().UTC(),
	}

	if err := s.repo.Create(ctx, checkIn); err != nil {
		return nil, fmt.Errorf("failed to save check-in: %w", err)
	}

	s.logger.Info("check-in recorded",
		zap.String("user_id", userID),
		zap.String("check_in_id", checkIn.ID),
		zap.String("source", string(in.Source)),
		zap.Bool("has_mood", in.Mood != nil),
		zap.Int("symptoms", len(checkIn.Symptoms)),
	)

	checkIn.Note = note
	return checkIn, nil
}

// Recent returns the user's latest check-ins, newest first, with notes decrypted
func (s *CheckInService) Recent(ctx context.Context, userID string, limit int) ([]model.CheckIn, error) {
	checkIns, err := s.repo.ListRecent(ctx, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list check-ins: %w", err)
	}
	return s.decryptAll(checkIns), nil
}

// TodayCheckIn returns the latest check-in of the user's current local day,
// or nil when there is none
func (s *CheckInService) TodayCheckIn(ctx context.Context, userID, timezone string) (*model.CheckIn, error) {
	loc, err := timeutil.LoadLocation(timezone, s.defaultTimezone)
	if err != nil {
		return nil, err
	}
	today := timeutil.Today(s.now(), loc)
	from := timeutil.StartOfDay(today, loc)
	to := timeutil.StartOfDay(today.AddDays(1), loc)

	checkIns, err := s.repo.ListBetween(ctx, userID, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to list today's check-ins: %w", err)
	}
	if len(checkIns) == 0 {
		return nil, nil
	}

	checkIns = s.decryptAll(checkIns)
	latest := checkIns[0]
	for _, c := range checkIns[1:] {
		if c.CreatedAt.After(latest.CreatedAt) {
			latest = c
		}
	}
	return &latest, nil
}

func (s *CheckInService) decryptAll(checkIns []model.CheckIn) []model.CheckIn {
	for i := range checkIns {
		if checkIns[i].Note == "" {
			continue
		}
		plain, err := s.cipher.Decrypt(checkIns[i].Note)
		if err != nil {
			// unreadable notes are withheld, not returned as ciphertext
			s.logger.Warn("failed to decrypt check-in note",
				zap.Error(err),
				zap.String("check_in_id", checkIns[i].ID),
			)
			checkIns[i].Note = ""
			continue
		}
		checkIns[i].Note = plain
	}
	return checkIns
}
