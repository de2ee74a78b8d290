package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/neerajk1208/ivfb/pkg/model"
	"go.uber.org/zap"
)

// PushSubscriptionRepository manages registered FCM tokens
type PushSubscriptionRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

// NewPushSubscriptionRepository creates a new PushSubscriptionRepository
func NewPushSubscriptionRepository(db *pgxpool.Pool, logger *zap.Logger) *PushSubscriptionRepository {
	return &PushSubscriptionRepository{
		db:     db,
		logger: logger,
	}
}

// Upsert registers a token for a user. A token already known moves to this user.
func (r *PushSubscriptionRepository) Upsert(ctx context.Context, userID, token string, deviceInfo *string) error {
	query := `
		INSERT INTO push_subscriptions (id, user_id, token, device_info, created_at, updated_at)
		VALUES ($1, $2, $3, $4, NOW(), NOW())
		ON CONFLICT (token) DO UPDATE
		SET user_id = EXCLUDED.user_id, device_info = EXCLUDED.device_info, updated_at = NOW()
	`

	_, err := r.db.Exec(ctx, query, uuid.New().String(), userID, token, deviceInfo)
	if err != nil {
		r.logger.Error("failed to upsert push subscription", zap.Error(err), zap.String("user_id", userID))
		return fmt.Errorf("failed to upsert push subscription: %w", err)
	}

	return nil
}

// Delete removes a user's token
func (r *PushSubscriptionRepository) Delete(ctx context.Context, userID, token string) error {
	_, err := r.db.Exec(ctx, `DELETE FROM push_subscriptions WHERE user_id = $1 AND token = $2`, userID, token)
	if err != nil {
		r.logger.Error("failed to delete push subscription", zap.Error(err), zap.String("user_id", userID))
		return fmt.Errorf("failed to delete push subscription: %w", err)
	}
	return nil
}

// DeleteByToken removes a token regardless of owner
func (r *PushSubscriptionRepository) DeleteByToken(ctx context.Context, token string) error {
	_, err := r.db.Exec(ctx, `DELETE FROM push_subscriptions WHERE token = $1`, token)
	if err != nil {
		r.logger.Error("failed to delete push token", zap.Error(err))
		return fmt.Errorf("failed to delete push token: %w", err)
	}
	return nil
}

// ListByUser returns every token registered for a user
func (r *PushSubscriptionRepository) ListByUser(ctx context.Context, userID string) ([]model.PushSubscription, error) {
	query := `
		SELECT id, user_id, token, device_info, created_at, updated_at
		FROM push_subscriptions
		WHERE user_id = $1
		ORDER BY created_at
	`

	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		r.logger.Error("failed to list push subscriptions", zap.Error(err), zap.String("user_id", userID))
		return nil, fmt.Errorf("failed to list push subscriptions: %w", err)
	}
	defer rows.Close()

	var subs []model.PushSubscription
	for rows.Next() {
		var s model.PushSubscription
		if err := rows.Scan(&s.ID, &s.UserID, &s.Token, &s.DeviceInfo, &s.CreatedAt, &s.UpdatedAt); err != nil {
			r.logger.Error("failed to scan push subscription", zap.Error(err))
			continue
		}
		subs = append(subs, s)
	}

	if err := rows.Err(); err != nil {
		r.logger.Error("error iterating push subscriptions", zap.Error(err))
		return nil, fmt.Errorf("error iterating push subscriptions: %w", err)
	}

	return subs, nil
}
