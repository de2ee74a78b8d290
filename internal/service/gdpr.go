package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/neerajk1208/ivfb/internal/audit"
	"github.com/neerajk1208/ivfb/internal/azure"
	"github.com/neerajk1208/ivfb/pkg/model"
	"go.uber.org/zap"
)

// AuditDeleteLoggerInterface records deletions
type AuditDeleteLoggerInterface interface {
	LogDelete(ctx context.Context, userID string, resourceType audit.ResourceType, resourceID, ipAddress, userAgent string) error
}

// ExportSourcesInterface reads everything a user export contains
type ExportSourcesInterface interface {
	GetUser(ctx context.Context, userID string) (*model.User, error)
	GetActiveCycle(ctx context.Context, userID string) (*model.Cycle, error)
	GetProtocol(ctx context.Context, cycleID string) (*model.Protocol, error)
	RecentCheckIns(ctx context.Context, userID string, limit int) ([]model.CheckIn, error)
	ListMessages(ctx context.Context, userID string, from, to time.Time) ([]model.ChatMessage, error)
	MessageLogs(ctx context.Context, userID string, limit int) ([]model.MessageLog, error)
	AuditTrail(ctx context.Context, userID string, limit int) ([]audit.AuditLog, error)
}

// GDPRService handles account deletion and data export
type GDPRService struct {
	db          *pgxpool.Pool
	documents   azure.DocumentStore
	auditLogger AuditDeleteLoggerInterface
	exports     ExportSourcesInterface
	logger      *zap.Logger
}

// NewGDPRService creates a new GDPR service. documents may be nil.
func NewGDPRService(db *pgxpool.Pool, documents azure.DocumentStore, auditLogger AuditDeleteLoggerInterface, exports ExportSourcesInterface, logger *zap.Logger) *GDPRService {
	return &GDPRService{
		db:          db,
		documents:   documents,
		auditLogger: auditLogger,
		exports:     exports,
		logger:      logger,
	}
}

// userOwnedTables are cleared in order before the user row. Cycles cascade
// to protocols, plan days and tasks.
var userOwnedTables = []string{
	"message_logs",
	"chat_messages",
	"conversation_states",
	"check_ins",
	"push_subscriptions",
	"cycles",
}

// DeleteUser removes the user and every row they own in one transaction,
// then deletes archived protocol documents. The deletion is recorded in
// audit_logs, which keeps no reference to the user row.
func (s *GDPRService) DeleteUser(ctx context.Context, userID, ipAddress, userAgent string) error {
	s.logger.Info("starting user deletion", zap.String("user_id", userID))

	var documents []string
	err := pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		var exists bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM users WHERE id = $1)`, userID).Scan(&exists); err != nil {
			return fmt.Errorf("failed to look up user: %w", err)
		}
		if !exists {
			return fmt.Errorf("user %s: %w", userID, ErrNotFound)
		}

		rows, err := tx.Query(ctx, `
			SELECT p.document_path FROM protocol_plans p
			JOIN cycles c ON c.id = p.cycle_id
			WHERE c.user_id = $1 AND p.document_path IS NOT NULL
		`, userID)
		if err != nil {
			return fmt.Errorf("failed to list protocol documents: %w", err)
		}
		documents, err = pgx.CollectRows(rows, pgx.RowTo[string])
		if err != nil {
			return fmt.Errorf("failed to read protocol documents: %w", err)
		}

		for _, table := range userOwnedTables {
			if _, err := tx.Exec(ctx, "DELETE FROM "+table+" WHERE user_id = $1", userID); err != nil {
				return fmt.Errorf("failed to delete %s: %w", table, err)
			}
		}

		if _, err := tx.Exec(ctx, "DELETE FROM users WHERE id = $1", userID); err != nil {
			return fmt.Errorf("failed to delete user: %w", err)
		}
		return nil
	})
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			s.logger.Error("user deletion failed", zap.Error(err), zap.String("user_id", userID))
		}
		return err
	}

	if s.documents != nil {
		for _, path := range documents {
			if err := s.documents.DeleteProtocolDocument(ctx, path); err != nil {
				s.logger.Error("failed to delete protocol document", zap.Error(err), zap.String("blob", path))
			}
		}
	}

	if err := s.auditLogger.LogDelete(ctx, userID, audit.ResourceUser, userID, ipAddress, userAgent); err != nil {
		s.logger.Error("failed to log audit entry for user deletion", zap.Error(err))
	}

	s.logger.Info("user deletion completed",
		zap.String("user_id", userID),
		zap.Int("documents", len(documents)),
	)

	return nil
}

// UserDataExport represents all user data for export
type UserDataExport struct {
	User         *model.User         `json:"user"`
	Cycle        *model.Cycle        `json:"cycle,omitempty"`
	Protocol     *model.Protocol     `json:"protocol,omitempty"`
	CheckIns     []model.CheckIn     `json:"check_ins"`
	ChatMessages []model.ChatMessage `json:"chat_messages"`
	Messages     []model.MessageLog  `json:"message_logs"`
	AuditTrail   []audit.AuditLog    `json:"audit_logs"`
	ExportedAt   time.Time           `json:"exported_at"`
}

const (
	exportCheckInLimit = 1000
	exportLogLimit     = 5000
)

// ExportUserData returns the user's data as indented JSON
func (s *GDPRService) ExportUserData(ctx context.Context, userID string) ([]byte, error) {
	s.logger.Info("starting user data export", zap.String("user_id", userID))

	export := UserDataExport{ExportedAt: time.Now().UTC()}

	user, err := s.exports.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	export.User = user

	cycle, err := s.exports.GetActiveCycle(ctx, userID)
	switch {
	case err == nil:
		export.Cycle = cycle
		protocol, err := s.exports.GetProtocol(ctx, cycle.ID)
		if err != nil && !errors.Is(err, ErrNotFound) {
			return nil, err
		}
		export.Protocol = protocol
	case !errors.Is(err, ErrNotFound):
		return nil, err
	}

	export.CheckIns, err = s.exports.RecentCheckIns(ctx, userID, exportCheckInLimit)
	if err != nil {
		return nil, err
	}

	export.ChatMessages, err = s.exports.ListMessages(ctx, userID, user.CreatedAt.Add(-time.Hour), export.ExportedAt.Add(time.Minute))
	if err != nil {
		return nil, err
	}

	export.Messages, err = s.exports.MessageLogs(ctx, userID, exportLogLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to read message logs: %w", err)
	}

	export.AuditTrail, err = s.exports.AuditTrail(ctx, userID, exportLogLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to read audit trail: %w", err)
	}

	jsonData, err := json.MarshalIndent(export, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal export data: %w", err)
	}

	s.logger.Info("user data export completed",
		zap.String("user_id", userID),
		zap.Int("check_ins", len(export.CheckIns)),
		zap.Int("chat_messages", len(export.ChatMessages)),
		zap.Int("message_logs", len(export.Messages)),
	)

	return jsonData, nil
}

// AuditReaderInterface reads a user's audit and message trails
type AuditReaderInterface interface {
	GetAuditLogs(ctx context.Context, userID string, limit int) ([]audit.AuditLog, error)
	ListMessages(ctx context.Context, userID string, limit int) ([]model.MessageLog, error)
}

// ExportSources adapts the repositories, the check-in service and the audit
// logger to ExportSourcesInterface
type ExportSources struct {
	Users     interface{ GetByID(ctx context.Context, userID string) (*model.User, error) }
	Cycles    CycleRepositoryInterface
	Protocols ProtocolRepositoryInterface
	CheckIns  RecentCheckInsInterface
	Chat      ConversationStoreInterface
	Audit     AuditReaderInterface
}

func (e ExportSources) GetUser(ctx context.Context, userID string) (*model.User, error) {
	return e.Users.GetByID(ctx, userID)
}

func (e ExportSources) GetActiveCycle(ctx context.Context, userID string) (*model.Cycle, error) {
	return e.Cycles.GetActiveByUser(ctx, userID)
}

func (e ExportSources) GetProtocol(ctx context.Context, cycleID string) (*model.Protocol, error) {
	return e.Protocols.GetByCycle(ctx, cycleID)
}

func (e ExportSources) RecentCheckIns(ctx context.Context, userID string, limit int) ([]model.CheckIn, error) {
	return e.CheckIns.Recent(ctx, userID, limit)
}

func (e ExportSources) ListMessages(ctx context.Context, userID string, from, to time.Time) ([]model.ChatMessage, error) {
	return e.Chat.ListMessages(ctx, userID, from, to)
}

func (e ExportSources) MessageLogs(ctx context.Context, userID string, limit int) ([]model.MessageLog, error) {
	return e.Audit.ListMessages(ctx, userID, limit)
}

func (e ExportSources) AuditTrail(ctx context.Context, userID string, limit int) ([]audit.AuditLog, error) {
	return e.Audit.GetAuditLogs(ctx, userID, limit)
}
