package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/neerajk1208/ivfb/pkg/model"
	"go.uber.org/zap"
)

// UserRepository manages user accounts, settings and the daily message counter
type UserRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

// NewUserRepository creates a new UserRepository
func NewUserRepository(db *pgxpool.Pool, logger *zap.Logger) *UserRepository {
	return &UserRepository{
		db:     db,
		logger: logger,
	}
}

const userColumns = `id, email, timezone, phone, sms_consent, quiet_hours_start, quiet_hours_end,
		daily_message_count, last_message_at, created_at, updated_at`

func scanUser(row pgx.Row) (*model.User, error) {
	var u model.User
	err := row.Scan(
		&u.ID,
		&u.Email,
		&u.Timezone,
		&u.Phone,
		&u.SMSConsent,
		&u.QuietHoursStart,
		&u.QuietHoursEnd,
		&u.DailyMessageCount,
		&u.LastMessageAt,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// Create inserts a new user
func (r *UserRepository) Create(ctx context.Context, user *model.User) error {
	query := `
		INSERT INTO users (id, email, timezone, phone, sms_consent, quiet_hours_start, quiet_hours_end, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW(), NOW())
	`

	_, err := r.db.Exec(ctx, query,
		user.ID,
		user.Email,
		user.Timezone,
		user.Phone,
		user.SMSConsent,
		user.QuietHoursStart,
		user.QuietHoursEnd,
	)
	if err != nil {
		r.logger.Error("failed to create user", zap.Error(err), zap.String("user_id", user.ID))
		return fmt.Errorf("failed to create user: %w", err)
	}

	return nil
}

// GetByID retrieves a user by ID
func (r *UserRepository) GetByID(ctx context.Context, userID string) (*model.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`

	user, err := scanUser(r.db.QueryRow(ctx, query, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("user %s: %w", userID, ErrNotFound)
		}
		r.logger.Error("failed to get user", zap.Error(err), zap.String("user_id", userID))
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	return user, nil
}

// GetByPhone retrieves a user by E.164 phone number
func (r *UserRepository) GetByPhone(ctx context.Context, phone string) (*model.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE phone = $1`

	user, err := scanUser(r.db.QueryRow(ctx, query, phone))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("user with phone: %w", ErrNotFound)
		}
		r.logger.Error("failed to get user by phone", zap.Error(err))
		return nil, fmt.Errorf("failed to get user by phone: %w", err)
	}

	return user, nil
}

// UpdateSettings writes timezone, phone, consent and quiet hours
func (r *UserRepository) UpdateSettings(ctx context.Context, user *model.User) error {
	query := `
		UPDATE users
		SET timezone = $1, phone = $2, sms_consent = $3, quiet_hours_start = $4, quiet_hours_end = $5, updated_at = NOW()
		WHERE id = $6
	`

	result, err := r.db.Exec(ctx, query,
		user.Timezone,
		user.Phone,
		user.SMSConsent,
		user.QuietHoursStart,
		user.QuietHoursEnd,
		user.ID,
	)
	if err != nil {
		r.logger.Error("failed to update user settings", zap.Error(err), zap.String("user_id", user.ID))
		return fmt.Errorf("failed to update user settings: %w", err)
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("user %s: %w", user.ID, ErrNotFound)
	}

	return nil
}

// SetSMSConsent toggles SMS consent
func (r *UserRepository) SetSMSConsent(ctx context.Context, userID string, consent bool) error {
	query := `UPDATE users SET sms_consent = $1, updated_at = NOW() WHERE id = $2`

	result, err := r.db.Exec(ctx, query, consent, userID)
	if err != nil {
		r.logger.Error("failed to set sms consent", zap.Error(err), zap.String("user_id", userID))
		return fmt.Errorf("failed to set sms consent: %w", err)
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("user %s: %w", userID, ErrNotFound)
	}

	return nil
}

// GetMessageQuota returns the stored counter and the instant of the last counted message
func (r *UserRepository) GetMessageQuota(ctx context.Context, userID string) (int, *time.Time, error) {
	query := `SELECT daily_message_count, last_message_at FROM users WHERE id = $1`

	var count int
	var lastAt *time.Time
	err := r.db.QueryRow(ctx, query, userID).Scan(&count, &lastAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, nil, fmt.Errorf("user %s: %w", userID, ErrNotFound)
		}
		r.logger.Error("failed to get message quota", zap.Error(err), zap.String("user_id", userID))
		return 0, nil, fmt.Errorf("failed to get message quota: %w", err)
	}

	return count, lastAt, nil
}

// IncrementMessageCount bumps the counter atomically, restarting at 1 when
// the last counted message is before dayStart. Returns the new count.
func (r *UserRepository) IncrementMessageCount(ctx context.Context, userID string, now, dayStart time.Time) (int, error) {
	query := `
		UPDATE users
		SET daily_message_count = CASE
				WHEN last_message_at IS NULL OR last_message_at < $2 THEN 1
				ELSE daily_message_count + 1
			END,
			last_message_at = $1
		WHERE id = $3
		RETURNING daily_message_count
	`

	var count int
	err := r.db.QueryRow(ctx, query, now, dayStart, userID).Scan(&count)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, fmt.Errorf("user %s: %w", userID, ErrNotFound)
		}
		r.logger.Error("failed to increment message count", zap.Error(err), zap.String("user_id", userID))
		return 0, fmt.Errorf("failed to increment message count: %w", err)
	}

	return count, nil
}
