package integration_tests

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/neerajk1208/ivfb/pkg/api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func draftRequest() api.ProtocolDraftRequest {
	bedtime := "bedtime"
	return api.ProtocolDraftRequest{
		CycleStartDate: localToday().String(),
		Medications: &[]api.MedicationInput{
			{Name: "Progesterone", StartDayOffset: 0, DurationDays: 5, TimeOfDay: &bedtime},
		},
	}
}

// TestConversationAndCheckInFlow covers chat turns, app check-ins and
// settings changes for a user with a draft protocol
func TestConversationAndCheckInFlow(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	ctx := context.Background()
	db, cleanup := setupTestDatabase(t, ctx)
	defer cleanup()

	app := newTestApp(t, db)
	userID := uuid.NewString()
	token := userToken(t, userID, "chat@example.com")

	t.Run("Chat needs a cycle", func(t *testing.T) {
		w := app.do(t, http.MethodPost, "/api/chat/messages", token, api.ChatMessageRequest{Text: "hello"})
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("Chat turn", func(t *testing.T) {
		w := app.do(t, http.MethodPost, "/api/protocol/draft", token, draftRequest())
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		assert.Equal(t, "MANUAL", decode[api.ProtocolResponse](t, w).Source)

		w = app.do(t, http.MethodPost, "/api/chat/messages", token, api.ChatMessageRequest{Text: "Feeling really bloated today"})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		res := decode[api.SendMessageResponse](t, w)
		assert.False(t, res.LimitReached)
		require.NotNil(t, res.UserMessage)
		assert.Equal(t, "USER", res.UserMessage.Sender)
		assert.Equal(t, "BUDDY", res.Reply.Sender)
		assert.NotEmpty(t, res.Reply.Content)

		w = app.do(t, http.MethodGet, "/api/chat/messages?date="+localToday().String(), token, nil)
		require.Equal(t, http.StatusOK, w.Code)
		messages := decode[[]api.ChatMessageResponse](t, w)
		assert.Len(t, messages, 2)

		w = app.do(t, http.MethodPost, "/api/chat/messages", token, api.ChatMessageRequest{Text: "   "})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("App check-in is encrypted at rest", func(t *testing.T) {
		mood := 3
		note := "a bit sore after the injection"
		w := app.do(t, http.MethodPost, "/api/checkins", token, api.CheckInRequest{
			Mood:     &mood,
			Symptoms: &[]string{"bloating"},
			Note:     &note,
		})
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

		checkIn := decode[api.CheckInResponse](t, w)
		assert.Equal(t, "APP", checkIn.Source)
		require.NotNil(t, checkIn.Note)
		assert.Equal(t, note, *checkIn.Note)

		var stored string
		require.NoError(t, db.QueryRow(ctx, `SELECT note FROM check_ins WHERE id = $1`, checkIn.Id.String()).Scan(&stored))
		assert.True(t, strings.HasPrefix(stored, "enc:v1:"), "stored note: %s", stored)
		assert.NotContains(t, stored, "sore")

		w = app.do(t, http.MethodGet, "/api/today", token, nil)
		require.Equal(t, http.StatusOK, w.Code)
		today := decode[api.TodayResponse](t, w)
		require.NotNil(t, today.CheckIn)
		assert.Equal(t, &mood, today.CheckIn.Mood)

		bad := 9
		w = app.do(t, http.MethodPost, "/api/checkins", token, api.CheckInRequest{Mood: &bad})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("Settings", func(t *testing.T) {
		w := app.do(t, http.MethodGet, "/api/user/settings", token, nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, testTimezone, decode[api.UserResponse](t, w).Timezone)

		tz := "Europe/London"
		w = app.do(t, http.MethodPut, "/api/user/settings", token, api.SettingsRequest{Timezone: &tz})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		res := decode[api.SettingsResponse](t, w)
		assert.Equal(t, tz, res.User.Timezone)
		assert.False(t, res.PlanRegenerated, "draft protocols have no plan")

		phone := "555-0100"
		w = app.do(t, http.MethodPut, "/api/user/settings", token, api.SettingsRequest{Phone: &phone})
		require.Equal(t, http.StatusBadRequest, w.Code)
		body := decode[api.ErrorResponse](t, w)
		assert.Equal(t, api.CodeValidation, body.Code)
		require.NotNil(t, body.Fields)
		assert.Equal(t, "phone", (*body.Fields)[0].Field)
	})
}

// TestInboundSMSFlow covers check-ins and opt-out by SMS reply
func TestInboundSMSFlow(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	ctx := context.Background()
	db, cleanup := setupTestDatabase(t, ctx)
	defer cleanup()

	app := newTestApp(t, db)
	userID := uuid.NewString()
	token := userToken(t, userID, "sms@example.com")
	phone := "+14155550142"

	consent := true
	w := app.do(t, http.MethodPut, "/api/user/settings", token, api.SettingsRequest{Phone: &phone, SmsConsent: &consent})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	t.Run("Reply before a cycle exists", func(t *testing.T) {
		w := app.inbound(t, phone, "hi")
		require.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Header().Get("Content-Type"), "text/xml")

		sent := app.sms.Sent()
		require.NotEmpty(t, sent)
		assert.Contains(t, sent[len(sent)-1].Body, "complete your profile")
	})

	t.Run("Mood and symptoms by SMS", func(t *testing.T) {
		w := app.do(t, http.MethodPost, "/api/protocol/draft", token, draftRequest())
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		before := len(app.sms.Sent())
		w = app.inbound(t, phone, "4 tired and a bit bloated")
		require.Equal(t, http.StatusOK, w.Code)

		w = app.do(t, http.MethodGet, "/api/today", token, nil)
		require.Equal(t, http.StatusOK, w.Code)
		today := decode[api.TodayResponse](t, w)
		require.NotNil(t, today.CheckIn)
		assert.Equal(t, "SMS", today.CheckIn.Source)
		require.NotNil(t, today.CheckIn.Mood)
		assert.Equal(t, 4, *today.CheckIn.Mood)
		assert.ElementsMatch(t, []string{"fatigue", "bloating"}, today.CheckIn.Symptoms)

		assert.Len(t, app.sms.Sent(), before+1, "buddy replies by SMS")

		var inbound int
		require.NoError(t, db.QueryRow(ctx,
			`SELECT COUNT(*) FROM message_logs WHERE user_id = $1 AND direction = 'INBOUND'`, userID).Scan(&inbound))
		assert.Equal(t, 2, inbound)
	})

	t.Run("Forged signature is rejected", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodPost, "/api/twilio/inbound", strings.NewReader("From=%2B14155550142&Body=STOP"))
		r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		r.Header.Set("X-Twilio-Signature", "Zm9yZ2Vk")
		w := httptest.NewRecorder()
		app.router.ServeHTTP(w, r)
		assert.Equal(t, http.StatusUnauthorized, w.Code)

		var consent bool
		require.NoError(t, db.QueryRow(ctx, `SELECT sms_consent FROM users WHERE id = $1`, userID).Scan(&consent))
		assert.True(t, consent)
	})

	t.Run("Unknown sender is acknowledged", func(t *testing.T) {
		w := app.inbound(t, "+14155559999", "hello?")
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("STOP revokes consent", func(t *testing.T) {
		w := app.inbound(t, phone, "STOP")
		require.Equal(t, http.StatusOK, w.Code)

		w = app.do(t, http.MethodGet, "/api/user/settings", token, nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.False(t, decode[api.UserResponse](t, w).SmsConsent)

		sent := app.sms.Sent()
		assert.Contains(t, sent[len(sent)-1].Body, "unsubscribed")
	})
}

// TestGDPRFlow exports and then erases a user's data
func TestGDPRFlow(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	ctx := context.Background()
	db, cleanup := setupTestDatabase(t, ctx)
	defer cleanup()

	app := newTestApp(t, db)
	userID := uuid.NewString()
	token := userToken(t, userID, "gdpr@example.com")

	w := app.do(t, http.MethodPost, "/api/protocol/draft", token, draftRequest())
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	mood := 2
	w = app.do(t, http.MethodPost, "/api/checkins", token, api.CheckInRequest{Mood: &mood})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	w = app.do(t, http.MethodPost, "/api/chat/messages", token, api.ChatMessageRequest{Text: "nervous about tomorrow"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	t.Run("Export", func(t *testing.T) {
		w := app.do(t, http.MethodGet, "/api/user/export", token, nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Header().Get("Content-Disposition"), "attachment")

		var export struct {
			User         struct{ ID string } `json:"user"`
			Protocol     *json.RawMessage    `json:"protocol"`
			CheckIns     []json.RawMessage   `json:"check_ins"`
			ChatMessages []json.RawMessage   `json:"chat_messages"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &export))
		assert.Equal(t, userID, export.User.ID)
		assert.NotNil(t, export.Protocol)
		assert.Len(t, export.CheckIns, 1)
		assert.Len(t, export.ChatMessages, 2)
	})

	t.Run("Delete", func(t *testing.T) {
		w := app.do(t, http.MethodDelete, "/api/user", token, nil)
		require.Equal(t, http.StatusNoContent, w.Code, w.Body.String())

		for _, table := range []string{"check_ins", "chat_messages", "cycles"} {
			var n int
			require.NoError(t, db.QueryRow(ctx, "SELECT COUNT(*) FROM "+table+" WHERE user_id = $1", userID).Scan(&n))
			assert.Zero(t, n, table)
		}

		var audited int
		require.NoError(t, db.QueryRow(ctx,
			`SELECT COUNT(*) FROM audit_logs WHERE operation_type = 'DELETE' AND resource_id = $1`, userID).Scan(&audited))
		assert.Equal(t, 1, audited)
	})

	t.Run("Signing in again starts fresh", func(t *testing.T) {
		w := app.do(t, http.MethodGet, "/api/protocol/current", token, nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}
