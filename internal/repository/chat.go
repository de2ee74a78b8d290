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

// ChatRepository manages the conversation log and per-cycle summaries
type ChatRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

// NewChatRepository creates a new ChatRepository
func NewChatRepository(db *pgxpool.Pool, logger *zap.Logger) *ChatRepository {
	return &ChatRepository{
		db:     db,
		logger: logger,
	}
}

// CreateMessage appends a message to the conversation log
func (r *ChatRepository) CreateMessage(ctx context.Context, msg *model.ChatMessage) error {
	query := `
		INSERT INTO chat_messages (id, user_id, cycle_id, task_id, sender, type, content, tags, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	tags := msg.Tags
	if tags == nil {
		tags = []string{}
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}

	_, err := r.db.Exec(ctx, query,
		msg.ID,
		msg.UserID,
		msg.CycleID,
		msg.TaskID,
		msg.Sender,
		msg.Type,
		msg.Content,
		tags,
		msg.CreatedAt,
	)
	if err != nil {
		r.logger.Error("failed to create chat message",
			zap.Error(err),
			zap.String("message_id", msg.ID),
			zap.String("user_id", msg.UserID),
		)
		return fmt.Errorf("failed to create chat message: %w", err)
	}

	return nil
}

// ListMessages returns a user's messages created in [from, to), oldest first
func (r *ChatRepository) ListMessages(ctx context.Context, userID string, from, to time.Time) ([]model.ChatMessage, error) {
	query := `
		SELECT id, user_id, cycle_id, task_id, sender, type, content, tags, created_at
		FROM chat_messages
		WHERE user_id = $1 AND created_at >= $2 AND created_at < $3
		ORDER BY created_at ASC
	`

	rows, err := r.db.Query(ctx, query, userID, from, to)
	if err != nil {
		r.logger.Error("failed to list chat messages", zap.Error(err), zap.String("user_id", userID))
		return nil, fmt.Errorf("failed to list chat messages: %w", err)
	}
	defer rows.Close()

	messages := []model.ChatMessage{}
	for rows.Next() {
		var m model.ChatMessage
		if err := rows.Scan(&m.ID, &m.UserID, &m.CycleID, &m.TaskID, &m.Sender, &m.Type, &m.Content, &m.Tags, &m.CreatedAt); err != nil {
			r.logger.Error("failed to scan chat message", zap.Error(err))
			continue
		}
		messages = append(messages, m)
	}

	if err := rows.Err(); err != nil {
		r.logger.Error("error iterating chat messages", zap.Error(err))
		return nil, fmt.Errorf("error iterating chat messages: %w", err)
	}

	return messages, nil
}

// GetConversationState returns the cycle's summary, or an empty state when none is stored
func (r *ChatRepository) GetConversationState(ctx context.Context, cycleID string) (*model.ConversationState, error) {
	query := `SELECT cycle_id, user_id, summary, updated_at FROM conversation_states WHERE cycle_id = $1`

	var s model.ConversationState
	err := r.db.QueryRow(ctx, query, cycleID).Scan(&s.CycleID, &s.UserID, &s.Summary, &s.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return &model.ConversationState{CycleID: cycleID}, nil
		}
		r.logger.Error("failed to get conversation state", zap.Error(err), zap.String("cycle_id", cycleID))
		return nil, fmt.Errorf("failed to get conversation state: %w", err)
	}

	return &s, nil
}

// SaveConversationState upserts the cycle's summary
func (r *ChatRepository) SaveConversationState(ctx context.Context, state *model.ConversationState) error {
	query := `
		INSERT INTO conversation_states (cycle_id, user_id, summary, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (cycle_id) DO UPDATE SET summary = EXCLUDED.summary, updated_at = NOW()
	`

	_, err := r.db.Exec(ctx, query, state.CycleID, state.UserID, state.Summary)
	if err != nil {
		r.logger.Error("failed to save conversation state", zap.Error(err), zap.String("cycle_id", state.CycleID))
		return fmt.Errorf("failed to save conversation state: %w", err)
	}

	return nil
}
