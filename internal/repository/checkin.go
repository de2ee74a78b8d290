package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/neerajk1208/ivfb/pkg/model"
	"go.uber.org/zap"
)

// CheckInRepository manages daily mood and symptom check-ins
type CheckInRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

// NewCheckInRepository creates a new CheckInRepository
func NewCheckInRepository(db *pgxpool.Pool, logger *zap.Logger) *CheckInRepository {
	return &CheckInRepository{
		db:     db,
		logger: logger,
	}
}

// Create saves a check-in. Note is stored as given; callers encrypt it.
func (r *CheckInRepository) Create(ctx context.Context, checkIn *model.CheckIn) error {
	query := `
		INSERT INTO check_ins (id, user_id, cycle_id, mood, symptoms, note, source, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	symptoms := checkIn.Symptoms
	if symptoms == nil {
		symptoms = []string{}
	}

	_, err := r.db.Exec(ctx, query,
		checkIn.ID,
		checkIn.UserID,
		checkIn.CycleID,
		checkIn.Mood,
		symptoms,
		nullIfEmpty(checkIn.Note),
		checkIn.Source,
		checkIn.CreatedAt,
	)
	if err != nil {
		r.logger.Error("failed to create check-in",
			zap.Error(err),
			zap.String("check_in_id", checkIn.ID),
			zap.String("user_id", checkIn.UserID),
		)
		return fmt.Errorf("failed to create check-in: %w", err)
	}

	return nil
}

// ListRecent returns the user's latest check-ins, newest first
func (r *CheckInRepository) ListRecent(ctx context.Context, userID string, limit int) ([]model.CheckIn, error) {
	query := `
		SELECT id, user_id, cycle_id, mood, symptoms, note, source, created_at
		FROM check_ins
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`
	return r.list(ctx, query, userID, limit)
}

// ListBetween returns the user's check-ins created in [from, to), newest first
func (r *CheckInRepository) ListBetween(ctx context.Context, userID string, from, to time.Time) ([]model.CheckIn, error) {
	query := `
		SELECT id, user_id, cycle_id, mood, symptoms, note, source, created_at
		FROM check_ins
		WHERE user_id = $1 AND created_at >= $2 AND created_at < $3
		ORDER BY created_at DESC
	`
	return r.list(ctx, query, userID, from, to)
}

func (r *CheckInRepository) list(ctx context.Context, query string, args ...any) ([]model.CheckIn, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		r.logger.Error("failed to list check-ins", zap.Error(err))
		return nil, fmt.Errorf("failed to list check-ins: %w", err)
	}
	defer rows.Close()

	checkIns := []model.CheckIn{}
	for rows.Next() {
		var c model.CheckIn
		var note *string
		if err := rows.Scan(&c.ID, &c.UserID, &c.CycleID, &c.Mood, &c.Symptoms, &note, &c.Source, &c.CreatedAt); err != nil {
			r.logger.Error("failed to scan check-in", zap.Error(err))
			continue
		}
		c.Note = deref(note)
		checkIns = append(checkIns, c)
	}

	if err := rows.Err(); err != nil {
		r.logger.Error("error iterating check-ins", zap.Error(err))
		return nil, fmt.Errorf("error iterating check-ins: %w", err)
	}

	return checkIns, nil
}
