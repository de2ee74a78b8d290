package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/neerajk1208/ivfb/pkg/model"
	"go.uber.org/zap"
)

// CycleRepository manages treatment cycles
type CycleRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

// NewCycleRepository creates a new CycleRepository
func NewCycleRepository(db *pgxpool.Pool, logger *zap.Logger) *CycleRepository {
	return &CycleRepository{
		db:     db,
		logger: logger,
	}
}

func scanCycle(row pgx.Row) (*model.Cycle, error) {
	var c model.Cycle
	var start *time.Time
	if err := row.Scan(&c.ID, &c.UserID, &c.Status, &start, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, err
	}
	if start != nil {
		d := dateFromDB(*start)
		c.StartDate = &d
	}
	return &c, nil
}

// GetByID retrieves a cycle by ID
func (r *CycleRepository) GetByID(ctx context.Context, cycleID string) (*model.Cycle, error) {
	query := `SELECT id, user_id, status, start_date, created_at, updated_at FROM cycles WHERE id = $1`

	cycle, err := scanCycle(r.db.QueryRow(ctx, query, cycleID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("cycle %s: %w", cycleID, ErrNotFound)
		}
		r.logger.Error("failed to get cycle", zap.Error(err), zap.String("cycle_id", cycleID))
		return nil, fmt.Errorf("failed to get cycle: %w", err)
	}

	return cycle, nil
}

// GetActiveByUser retrieves the user's most recent active cycle
func (r *CycleRepository) GetActiveByUser(ctx context.Context, userID string) (*model.Cycle, error) {
	query := `
		SELECT id, user_id, status, start_date, created_at, updated_at
		FROM cycles
		WHERE user_id = $1 AND status = $2
		ORDER BY created_at DESC
		LIMIT 1
	`

	cycle, err := scanCycle(r.db.QueryRow(ctx, query, userID, model.CycleStatusActive))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("active cycle for user %s: %w", userID, ErrNotFound)
		}
		r.logger.Error("failed to get active cycle", zap.Error(err), zap.String("user_id", userID))
		return nil, fmt.Errorf("failed to get active cycle: %w", err)
	}

	return cycle, nil
}

// EnsureActive returns the user's active cycle, creating one when none exists
func (r *CycleRepository) EnsureActive(ctx context.Context, userID string) (*model.Cycle, error) {
	cycle, err := r.GetActiveByUser(ctx, userID)
	if err == nil {
		return cycle, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	query := `
		INSERT INTO cycles (id, user_id, status, created_at, updated_at)
		VALUES ($1, $2, $3, NOW(), NOW())
		RETURNING id, user_id, status, start_date, created_at, updated_at
	`

	cycle, err = scanCycle(r.db.QueryRow(ctx, query, uuid.New().String(), userID, model.CycleStatusActive))
	if err != nil {
		r.logger.Error("failed to create cycle", zap.Error(err), zap.String("user_id", userID))
		return nil, fmt.Errorf("failed to create cycle: %w", err)
	}

	r.logger.Info("cycle created", zap.String("cycle_id", cycle.ID), zap.String("user_id", userID))
	return cycle, nil
}

// SetStartDate records the cycle's day-zero civil date
func (r *CycleRepository) SetStartDate(ctx context.Context, cycleID string, start civil.Date) error {
	query := `UPDATE cycles SET start_date = $1, updated_at = NOW() WHERE id = $2`

	result, err := r.db.Exec(ctx, query, dateParam(start), cycleID)
	if err != nil {
		r.logger.Error("failed to set cycle start date", zap.Error(err), zap.String("cycle_id", cycleID))
		return fmt.Errorf("failed to set cycle start date: %w", err)
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("cycle %s: %w", cycleID, ErrNotFound)
	}

	return nil
}
