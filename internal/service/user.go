package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/neerajk1208/ivfb/internal/audit"
	"github.com/neerajk1208/ivfb/internal/timeutil"
	"github.com/neerajk1208/ivfb/pkg/model"
	"go.uber.org/zap"
)

var e164Pattern = regexp.MustCompile(`^\+[1-9]\d{6,14}$`)

// UserRepositoryInterface stores user accounts
type UserRepositoryInterface interface {
	Create(ctx context.Context, user *model.User) error
	GetByID(ctx context.Context, userID string) (*model.User, error)
	UpdateSettings(ctx context.Context, user *model.User) error
}

// AuditUpdateLoggerInterface records changes
type AuditUpdateLoggerInterface interface {
	LogUpdate(ctx context.Context, userID string, resourceType audit.ResourceType, resourceID string, changes map[string]interface{}) error
}

// SettingsUpdate is a partial settings change. Nil fields are left as they
// are; an empty phone or empty quiet-hours pair clears the value.
type SettingsUpdate struct {
	Timezone        *string
	Phone           *string
	SMSConsent      *bool
	QuietHoursStart *string
	QuietHoursEnd   *string
}

// SettingsResult is the updated user and whether the plan was regenerated
type SettingsResult struct {
	User            *model.User `json:"user"`
	PlanRegenerated bool        `json:"planRegenerated"`
}

// UserService manages accounts and settings
type UserService struct {
	users             UserRepositoryInterface
	cycles            CycleRepositoryInterface
	protocols         ProtocolRepositoryInterface
	planner           PlanGeneratorInterface
	audit             AuditUpdateLoggerInterface
	defaultTimezone   string
	defaultQuietHours *timeutil.QuietHours
	logger            *zap.Logger
}

// NewUserService creates a new UserService
func NewUserService(
	users UserRepositoryInterface,
	cycles CycleRepositoryInterface,
	protocols ProtocolRepositoryInterface,
	planner PlanGeneratorInterface,
	auditLogger AuditUpdateLoggerInterface,
	defaultTimezone string,
	logger *zap.Logger,
) *UserService {
	return &UserService{
		users:           users,
		cycles:          cycles,
		protocols:       protocols,
		planner:         planner,
		audit:           auditLogger,
		defaultTimezone: defaultTimezone,
		logger:          logger,
	}
}

// SetDefaultQuietHours sets the quiet hours given to accounts on creation
func (s *UserService) SetDefaultQuietHours(qh *timeutil.QuietHours) {
	s.defaultQuietHours = qh
}

// Get returns a user by ID
func (s *UserService) Get(ctx context.Context, userID string) (*model.User, error) {
	return s.users.GetByID(ctx, userID)
}

// EnsureUser returns the user, creating the account with default settings on
// first sign-in
func (s *UserService) EnsureUser(ctx context.Context, userID, email string) (*model.User, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	user = &model.User{
		ID:       userID,
		Email:    email,
		Timezone: s.defaultTimezone,
	}
	if qh := s.defaultQuietHours; qh != nil {
		start, end := timeutil.FormatClock(qh.Start), timeutil.FormatClock(qh.End)
		user.QuietHoursStart = &start
		user.QuietHoursEnd = &end
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, err
	}
	s.logger.Info("user created", zap.String("user_id", userID))
	return s.users.GetByID(ctx, userID)
}

// UpdateSettings validates and applies a settings change. A timezone or
// quiet-hours change regenerates the plan of an active protocol.
func (s *UserService) UpdateSettings(ctx context.Context, userID string, upd SettingsUpdate) (*SettingsResult, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	verr := &ValidationError{}
	changes := map[string]interface{}{}
	reschedule := false

	if upd.Timezone != nil {
		tz := strings.TrimSpace(*upd.Timezone)
		if _, err := time.LoadLocation(tz); err != nil || tz == "" {
			verr.Fields = append(verr.Fields, FieldError{Field: "timezone", Message: "must be an IANA timezone name"})
		} else if tz != user.Timezone {
			user.Timezone = tz
			changes["timezone"] = tz
			reschedule = true
		}
	}

	if upd.Phone != nil {
		phone := strings.TrimSpace(*upd.Phone)
		switch {
		case phone == "":
			if user.Phone != nil {
				changes["phone"] = "cleared"
			}
			user.Phone = nil
			user.SMSConsent = false
		case !e164Pattern.MatchString(phone):
			verr.Fields = append(verr.Fields, FieldError{Field: "phone", Message: "must be an E.164 number such as +14155550100"})
		default:
			if user.Phone == nil || *user.Phone != phone {
				changes["phone"] = "updated"
			}
			user.Phone = &phone
		}
	}

	if upd.SMSConsent != nil && *upd.SMSConsent != user.SMSConsent {
		user.SMSConsent = *upd.SMSConsent
		changes["sms_consent"] = user.SMSConsent
	}
	if user.SMSConsent && (user.Phone == nil || *user.Phone == "") {
		verr.Fields = append(verr.Fields, FieldError{Field: "smsConsent", Message: "requires a phone number"})
	}

	if upd.QuietHoursStart != nil || upd.QuietHoursEnd != nil {
		if upd.QuietHoursStart == nil || upd.QuietHoursEnd == nil {
			verr.Fields = append(verr.Fields, FieldError{Field: "quietHours", Message: "start and end must be set together"})
		} else if qh, err := timeutil.ParseQuietHours(*upd.QuietHoursStart, *upd.QuietHoursEnd); err != nil {
			verr.Fields = append(verr.Fields, FieldError{Field: "quietHours", Message: err.Error()})
		} else {
			var start, end *string
			if qh != nil {
				st, en := timeutil.FormatClock(qh.Start), timeutil.FormatClock(qh.End)
				start, end = &st, &en
			}
			if !sameOptional(user.QuietHoursStart, start) || !sameOptional(user.QuietHoursEnd, end) {
				changes["quiet_hours"] = qhLabel(qh)
				reschedule = true
			}
			user.QuietHoursStart, user.QuietHoursEnd = start, end
		}
	}

	if len(verr.Fields) > 0 {
		return nil, verr
	}

	result := &SettingsResult{User: user}
	if len(changes) == 0 {
		return result, nil
	}

	if err := s.users.UpdateSettings(ctx, user); err != nil {
		return nil, err
	}

	if err := s.audit.LogUpdate(ctx, userID, audit.ResourceSettings, userID, changes); err != nil {
		s.logger.Warn("failed to audit settings change", zap.Error(err))
	}

	s.logger.Info("user settings updated", zap.String("user_id", userID), zap.Int("changes", len(changes)))

	if reschedule {
		regenerated, err := s.regenerate(ctx, user)
		if err != nil {
			// the settings are saved; the next regeneration run picks them up
			s.logger.Error("failed to regenerate plan after settings change", zap.Error(err), zap.String("user_id", userID))
		}
		result.PlanRegenerated = regenerated
	}

	return result, nil
}

func (s *UserService) regenerate(ctx context.Context, user *model.User) (bool, error) {
	cycle, err := s.cycles.GetActiveByUser(ctx, user.ID)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	protocol, err := s.protocols.GetByCycle(ctx, cycle.ID)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if protocol.Status != model.ProtocolStatusActive {
		return false, nil
	}

	qh, err := user.QuietHours()
	if err != nil {
		return false, err
	}

	if _, err := s.planner.GeneratePlanTasks(ctx, PlanRequest{
		CycleID:        cycle.ID,
		ProtocolPlanID: protocol.ID,
		Timezone:       user.Timezone,
		QuietHours:     qh,
	}); err != nil {
		return false, fmt.Errorf("failed to regenerate plan: %w", err)
	}
	return true, nil
}

func sameOptional(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func qhLabel(qh *timeutil.QuietHours) string {
	if qh == nil {
		return "cleared"
	}
	return qh.String()
}

// PushTokenStoreInterface stores FCM device tokens
type PushTokenStoreInterface interface {
	Upsert(ctx context.Context, userID, token string, deviceInfo *string) error
	Delete(ctx context.Context, userID, token string) error
}

// PushSubscriptionService registers and removes devices for push delivery
type PushSubscriptionService struct {
	store  PushTokenStoreInterface
	logger *zap.Logger
}

// NewPushSubscriptionService creates a new PushSubscriptionService
func NewPushSubscriptionService(store PushTokenStoreInterface, logger *zap.Logger) *PushSubscriptionService {
	return &PushSubscriptionService{store: store, logger: logger}
}

func validToken(token string) (string, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return "", newValidationError("token", "is required")
	}
	if len(token) > 4096 {
		return "", newValidationError("token", "is too long")
	}
	return token, nil
}

// Subscribe registers a device token for the user. Re-registering a token
// moves it to the user.
func (s *PushSubscriptionService) Subscribe(ctx context.Context, userID, token string, deviceInfo *string) error {
	token, err := validToken(token)
	if err != nil {
		return err
	}
	if err := s.store.Upsert(ctx, userID, token, deviceInfo); err != nil {
		return err
	}
	s.logger.Info("push subscription registered", zap.String("user_id", userID))
	return nil
}

// Unsubscribe removes a device token of the user
func (s *PushSubscriptionService) Unsubscribe(ctx context.Context, userID, token string) error {
	token, err := validToken(token)
	if err != nil {
		return err
	}
	if err := s.store.Delete(ctx, userID, token); err != nil {
		return err
	}
	s.logger.Info("push subscription removed", zap.String("user_id", userID))
	return nil
}
