package service

import (
	"context"
	"errors"
	"testing"

	"cloud.google.com/go/civil"
	"github.com/neerajk1208/ivfb/internal/audit"
	"github.com/neerajk1208/ivfb/internal/timeutil"
	"github.com/neerajk1208/ivfb/pkg/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type userFixture struct {
	users     *MockUserRepository
	cycles    *MockCycleRepository
	protocols *MockProtocolRepository
	planner   *MockPlanGenerator
	audit     *MockAuditLogger
}

func newUserFixture() *userFixture {
	return &userFixture{
		users:     new(MockUserRepository),
		cycles:    new(MockCycleRepository),
		protocols: new(MockProtocolRepository),
		planner:   new(MockPlanGenerator),
		audit:     new(MockAuditLogger),
	}
}

func (f *userFixture) service() *UserService {
	return NewUserService(f.users, f.cycles, f.protocols, f.planner, f.audit, "America/Los_Angeles", zap.NewNop())
}

func storedUser() *model.User {
	return &model.User{ID: "user-1", Email: "a@example.com", Timezone: "America/Los_Angeles"}
}

func TestEnsureUser(t *testing.T) {
	ctx := context.Background()

	t.Run("existing user", func(t *testing.T) {
		f := newUserFixture()
		f.users.On("GetByID", ctx, "user-1").Return(storedUser(), nil)

		u, err := f.service().EnsureUser(ctx, "user-1", "a@example.com")

		require.NoError(t, err)
		assert.Equal(t, "user-1", u.ID)
		f.users.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	})

	t.Run("first sign-in creates the account", func(t *testing.T) {
		f := newUserFixture()
		f.users.On("GetByID", ctx, "user-2").Return(nil, ErrNotFound).Once()
		f.users.On("Create", ctx, mock.MatchedBy(func(u *model.User) bool {
			return u.ID == "user-2" && u.Timezone == "America/Los_Angeles" && !u.SMSConsent
		})).Return(nil)
		f.users.On("GetByID", ctx, "user-2").Return(&model.User{ID: "user-2", Timezone: "America/Los_Angeles"}, nil).Once()

		u, err := f.service().EnsureUser(ctx, "user-2", "b@example.com")

		require.NoError(t, err)
		assert.Equal(t, "user-2", u.ID)
		f.users.AssertExpectations(t)
	})

	t.Run("new accounts get the default quiet hours", func(t *testing.T) {
		f := newUserFixture()
		f.users.On("GetByID", ctx, "user-4").Return(nil, ErrNotFound).Once()
		f.users.On("Create", ctx, mock.MatchedBy(func(u *model.User) bool {
			return u.QuietHoursStart != nil && *u.QuietHoursStart == "21:00" &&
				u.QuietHoursEnd != nil && *u.QuietHoursEnd == "08:00"
		})).Return(nil)
		f.users.On("GetByID", ctx, "user-4").Return(&model.User{ID: "user-4"}, nil).Once()

		svc := f.service()
		svc.SetDefaultQuietHours(&timeutil.QuietHours{Start: civil.Time{Hour: 21}, End: civil.Time{Hour: 8}})

		_, err := svc.EnsureUser(ctx, "user-4", "d@example.com")

		require.NoError(t, err)
		f.users.AssertExpectations(t)
	})

	t.Run("lookup failure", func(t *testing.T) {
		f := newUserFixture()
		f.users.On("GetByID", ctx, "user-3").Return(nil, errors.New("db down"))

		_, err := f.service().EnsureUser(ctx, "user-3", "c@example.com")
		assert.Error(t, err)
		f.users.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	})
}

func TestUpdateSettings_Validation(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name   string
		upd    SettingsUpdate
		fields []string
	}{
		{name: "unknown timezone", upd: SettingsUpdate{Timezone: ptr("Mars/Base")}, fields: []string{"timezone"}},
		{name: "empty timezone", upd: SettingsUpdate{Timezone: ptr(" ")}, fields: []string{"timezone"}},
		{name: "phone not E.164", upd: SettingsUpdate{Phone: ptr("415-555-0100")}, fields: []string{"phone"}},
		{name: "consent without phone", upd: SettingsUpdate{SMSConsent: ptr(true)}, fields: []string{"smsConsent"}},
		{name: "half quiet hours", upd: SettingsUpdate{QuietHoursStart: ptr("21:00")}, fields: []string{"quietHours"}},
		{name: "bad clock", upd: SettingsUpdate{QuietHoursStart: ptr("9pm"), QuietHoursEnd: ptr("08:00")}, fields: []string{"quietHours"}},
		{
			name:   "several at once",
			upd:    SettingsUpdate{Timezone: ptr("Nowhere"), Phone: ptr("12")},
			fields: []string{"timezone", "phone"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newUserFixture()
			f.users.On("GetByID", ctx, "user-1").Return(storedUser(), nil)

			_, err := f.service().UpdateSettings(ctx, "user-1", tt.upd)

			assert.Equal(t, tt.fields, fieldNames(err))
			f.users.AssertNotCalled(t, "UpdateSettings", mock.Anything, mock.Anything)
		})
	}
}

func TestUpdateSettings_QuietHoursRegeneratesActivePlan(t *testing.T) {
	ctx := context.Background()
	f := newUserFixture()
	f.users.On("GetByID", ctx, "user-1").Return(storedUser(), nil)
	f.users.On("UpdateSettings", ctx, mock.MatchedBy(func(u *model.User) bool {
		return *u.QuietHoursStart == "21:00" && *u.QuietHoursEnd == "08:00"
	})).Return(nil)
	f.audit.On("LogUpdate", ctx, "user-1", audit.ResourceSettings, "user-1", map[string]interface{}{
		"quiet_hours": "21:00-08:00",
	}).Return(nil)
	f.cycles.On("GetActiveByUser", ctx, "user-1").Return(&model.Cycle{ID: "cycle-1", UserID: "user-1"}, nil)
	f.protocols.On("GetByCycle", ctx, "cycle-1").Return(&model.Protocol{ID: "plan-1", CycleID: "cycle-1", Status: model.ProtocolStatusActive}, nil)
	f.planner.On("GeneratePlanTasks", ctx, mock.MatchedBy(func(req PlanRequest) bool {
		return req.ProtocolPlanID == "plan-1" && req.QuietHours != nil && req.QuietHours.End == civil.Time{Hour: 8}
	})).Return(&PlanResult{}, nil)

	res, err := f.service().UpdateSettings(ctx, "user-1", SettingsUpdate{
		QuietHoursStart: ptr("21:00"),
		QuietHoursEnd:   ptr("08:00"),
	})

	require.NoError(t, err)
	assert.True(t, res.PlanRegenerated)
	f.planner.AssertExpectations(t)
	f.audit.AssertExpectations(t)
}

func TestUpdateSettings_PhoneAndConsentDoNotRegenerate(t *testing.T) {
	ctx := context.Background()
	f := newUserFixture()
	f.users.On("GetByID", ctx, "user-1").Return(storedUser(), nil)
	f.users.On("UpdateSettings", ctx, mock.Anything).Return(nil)
	f.audit.On("LogUpdate", ctx, "user-1", audit.ResourceSettings, "user-1", mock.Anything).Return(nil)

	res, err := f.service().UpdateSettings(ctx, "user-1", SettingsUpdate{
		Phone:      ptr("+14155550100"),
		SMSConsent: ptr(true),
	})

	require.NoError(t, err)
	assert.False(t, res.PlanRegenerated)
	assert.Equal(t, "+14155550100", *res.User.Phone)
	assert.True(t, res.User.SMSConsent)
	f.planner.AssertNotCalled(t, "GeneratePlanTasks", mock.Anything, mock.Anything)
}

func TestUpdateSettings_ClearingPhoneRevokesConsent(t *testing.T) {
	ctx := context.Background()
	f := newUserFixture()
	u := storedUser()
	u.Phone = ptr("+14155550100")
	u.SMSConsent = true
	f.users.On("GetByID", ctx, "user-1").Return(u, nil)
	f.users.On("UpdateSettings", ctx, mock.MatchedBy(func(u *model.User) bool {
		return u.Phone == nil && !u.SMSConsent
	})).Return(nil)
	f.audit.On("LogUpdate", ctx, "user-1", audit.ResourceSettings, "user-1", mock.Anything).Return(nil)

	_, err := f.service().UpdateSettings(ctx, "user-1", SettingsUpdate{Phone: ptr("")})

	require.NoError(t, err)
	f.users.AssertExpectations(t)
}

func TestUpdateSettings_NoChangeIsNoOp(t *testing.T) {
	ctx := context.Background()
	f := newUserFixture()
	f.users.On("GetByID", ctx, "user-1").Return(storedUser(), nil)

	res, err := f.service().UpdateSettings(ctx, "user-1", SettingsUpdate{Timezone: ptr("America/Los_Angeles")})

	require.NoError(t, err)
	assert.False(t, res.PlanRegenerated)
	f.users.AssertNotCalled(t, "UpdateSettings", mock.Anything, mock.Anything)
	f.audit.AssertNotCalled(t, "LogUpdate", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestUpdateSettings_RegenerationFailureKeepsSettings(t *testing.T) {
	ctx := context.Background()
	f := newUserFixture()
	f.users.On("GetByID", ctx, "user-1").Return(storedUser(), nil)
	f.users.On("UpdateSettings", ctx, mock.Anything).Return(nil)
	f.audit.On("LogUpdate", ctx, mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)
	f.cycles.On("GetActiveByUser", ctx, "user-1").Return(&model.Cycle{ID: "cycle-1", UserID: "user-1"}, nil)
	f.protocols.On("GetByCycle", ctx, "cycle-1").Return(&model.Protocol{ID: "plan-1", CycleID: "cycle-1", Status: model.ProtocolStatusActive}, nil)
	f.planner.On("GeneratePlanTasks", ctx, mock.Anything).Return(nil, errors.New("tx aborted"))

	res, err := f.service().UpdateSettings(ctx, "user-1", SettingsUpdate{Timezone: ptr("Europe/Budapest")})

	require.NoError(t, err)
	assert.False(t, res.PlanRegenerated)
	assert.Equal(t, "Europe/Budapest", res.User.Timezone)
}

func TestUpdateSettings_DraftProtocolIsNotRegenerated(t *testing.T) {
	ctx := context.Background()
	f := newUserFixture()
	f.users.On("GetByID", ctx, "user-1").Return(storedUser(), nil)
	f.users.On("UpdateSettings", ctx, mock.Anything).Return(nil)
	f.audit.On("LogUpdate", ctx, mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)
	f.cycles.On("GetActiveByUser", ctx, "user-1").Return(&model.Cycle{ID: "cycle-1", UserID: "user-1"}, nil)
	f.protocols.On("GetByCycle", ctx, "cycle-1").Return(&model.Protocol{ID: "plan-1", CycleID: "cycle-1", Status: model.ProtocolStatusDraft}, nil)

	res, err := f.service().UpdateSettings(ctx, "user-1", SettingsUpdate{Timezone: ptr("Europe/Budapest")})

	require.NoError(t, err)
	assert.False(t, res.PlanRegenerated)
	f.planner.AssertNotCalled(t, "GeneratePlanTasks", mock.Anything, mock.Anything)
}

type memoryTokens map[string]string

func (m memoryTokens) Upsert(_ context.Context, userID, token string, _ *string) error {
	m[token] = userID
	return nil
}

func (m memoryTokens) Delete(_ context.Context, userID, token string) error {
	if m[token] == userID {
		delete(m, token)
	}
	return nil
}

func TestPushSubscriptionService(t *testing.T) {
	ctx := context.Background()
	tokens := memoryTokens{}
	svc := NewPushSubscriptionService(tokens, zap.NewNop())

	require.NoError(t, svc.Subscribe(ctx, "user-1", " tok-1 ", nil))
	require.NoError(t, svc.Subscribe(ctx, "user-2", "tok-1", ptr("Pixel 8")))
	assert.Equal(t, "user-2", tokens["tok-1"], "re-registering moves the token")

	require.NoError(t, svc.Unsubscribe(ctx, "user-1", "tok-1"))
	assert.Contains(t, tokens, "tok-1", "only the owner can remove a token")

	require.NoError(t, svc.Unsubscribe(ctx, "user-2", "tok-1"))
	assert.Empty(t, tokens)

	assert.Equal(t, []string{"token"}, fieldNames(svc.Subscribe(ctx, "user-1", "  ", nil)))
}
