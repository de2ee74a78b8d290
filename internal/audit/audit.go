package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/neerajk1208/ivfb/pkg/model"
	"go.uber.org/zap"
)

// OperationType represents the type of operation performed
type OperationType string

const (
	OperationCreate   OperationType = "CREATE"
	OperationUpdate   OperationType = "UPDATE"
	OperationDelete   OperationType = "DELETE"
	OperationActivate OperationType = "ACTIVATE"
)

// ResourceType represents the type of resource being accessed
type ResourceType string

const (
	ResourceUser         ResourceType = "user"
	ResourceProtocolPlan ResourceType = "protocol_plan"
	ResourceSettings     ResourceType = "user_settings"
	ResourceSMSConsent   ResourceType = "sms_consent"
)

// AuditLog represents an audit log entry
type AuditLog struct {
	UserID         string                 `json:"user_id"`
	OperationType  OperationType          `json:"operation_type"`
	ResourceType   ResourceType           `json:"resource_type"`
	ResourceID     string                 `json:"resource_id"`
	Timestamp      time.Time              `json:"timestamp"`
	IPAddress      string                 `json:"ip_address,omitempty"`
	UserAgent      string                 `json:"user_agent,omitempty"`
	AdditionalData map[string]interface{} `json:"additional_data,omitempty"`
}

// Logger writes the append-only audit trail: data operations to audit_logs
// and every provider message attempt to message_logs.
type Logger struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

// NewLogger creates a new audit logger
func NewLogger(db *pgxpool.Pool, logger *zap.Logger) *Logger {
	return &Logger{
		db:     db,
		logger: logger,
	}
}

// Log creates an audit log entry
func (l *Logger) Log(ctx context.Context, entry AuditLog) error {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}

	// Log to structured logger first
	l.logger.Info("Audit log entry",
		zap.String("user_id", entry.UserID),
		zap.String("operation", string(entry.OperationType)),
		zap.String("resource_type", string(entry.ResourceType)),
		zap.String("resource_id", entry.ResourceID),
		zap.Time("timestamp", entry.Timestamp),
	)

	query := `
		INSERT INTO audit_logs (
			user_id, operation_type, resource_type, resource_id,
			timestamp, ip_address, user_agent, additional_data
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := l.db.Exec(ctx, query,
		entry.UserID,
		entry.OperationType,
		entry.ResourceType,
		entry.ResourceID,
		entry.Timestamp,
		entry.IPAddress,
		entry.UserAgent,
		entry.AdditionalData,
	)
	if err != nil {
		l.logger.Error("Failed to write audit log to database",
			zap.Error(err),
			zap.String("user_id", entry.UserID),
			zap.String("operation", string(entry.OperationType)),
			zap.String("resource_type", string(entry.ResourceType)),
		)
		return fmt.Errorf("failed to write audit log: %w", err)
	}

	return nil
}

// LogUpdate logs a change to a user-owned resource
func (l *Logger) LogUpdate(ctx context.Context, userID string, resourceType ResourceType, resourceID string, changes map[string]interface{}) error {
	return l.Log(ctx, AuditLog{
		UserID:         userID,
		OperationType:  OperationUpdate,
		ResourceType:   resourceType,
		ResourceID:     resourceID,
		AdditionalData: changes,
	})
}

// LogDelete logs a delete operation
func (l *Logger) LogDelete(ctx context.Context, userID string, resourceType ResourceType, resourceID, ipAddress, userAgent string) error {
	return l.Log(ctx, AuditLog{
		UserID:        userID,
		OperationType: OperationDelete,
		ResourceType:  resourceType,
		ResourceID:    resourceID,
		IPAddress:     ipAddress,
		UserAgent:     userAgent,
	})
}

// RecordMessage appends a provider message attempt to message_logs
func (l *Logger) RecordMessage(ctx context.Context, msg *model.MessageLog) error {
	if msg.ID == "" {
		msg.ID = uuid.New().String()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}

	l.logger.Info("Message log entry",
		zap.String("direction", string(msg.Direction)),
		zap.String("channel", string(msg.Channel)),
		zap.String("status", msg.Status),
		zap.Int("body_length", len(msg.Body)),
	)

	query := `
		INSERT INTO message_logs (id, user_id, direction, channel, to_address, from_address, body, status, provider_id, error, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	_, err := l.db.Exec(ctx, query,
		msg.ID,
		msg.UserID,
		msg.Direction,
		msg.Channel,
		msg.To,
		msg.From,
		msg.Body,
		msg.Status,
		msg.ProviderID,
		msg.Error,
		msg.CreatedAt,
	)
	if err != nil {
		l.logger.Error("Failed to write message log to database",
			zap.Error(err),
			zap.String("channel", string(msg.Channel)),
		)
		return fmt.Errorf("failed to write message log: %w", err)
	}

	return nil
}

// GetAuditLogs retrieves audit logs for a user
func (l *Logger) GetAuditLogs(ctx context.Context, userID string, limit int) ([]AuditLog, error) {
	query := `
		SELECT user_id, operation_type, resource_type, resource_id,
		       timestamp, COALESCE(ip_address, ''), COALESCE(user_agent, ''), additional_data
		FROM audit_logs
		WHERE user_id = $1
		ORDER BY timestamp DESC
		LIMIT $2
	`

	rows, err := l.db.Query(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit logs: %w", err)
	}
	defer rows.Close()

	logs := []AuditLog{}
	for rows.Next() {
		var log AuditLog
		err := rows.Scan(
			&log.UserID,
			&log.OperationType,
			&log.ResourceType,
			&log.ResourceID,
			&log.Timestamp,
			&log.IPAddress,
			&log.UserAgent,
			&log.AdditionalData,
		)
		if err != nil {
			l.logger.Error("Failed to scan audit log", zap.Error(err))
			continue
		}
		logs = append(logs, log)
	}

	return logs, rows.Err()
}

// ListMessages returns a user's message log, newest first
func (l *Logger) ListMessages(ctx context.Context, userID string, limit int) ([]model.MessageLog, error) {
	query := `
		SELECT id, user_id, direction, channel, to_address, from_address, body, status, provider_id, error, created_at
		FROM message_logs
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`

	rows, err := l.db.Query(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query message logs: %w", err)
	}
	defer rows.Close()

	out := []model.MessageLog{}
	for rows.Next() {
		var m model.MessageLog
		if err := rows.Scan(&m.ID, &m.UserID, &m.Direction, &m.Channel, &m.To, &m.From, &m.Body, &m.Status, &m.ProviderID, &m.Error, &m.CreatedAt); err != nil {
			l.logger.Error("Failed to scan message log", zap.Error(err))
			continue
		}
		out = append(out, m)
	}

	return out, rows.Err()
}
