package integration_tests

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"sort"
	"strings"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/neerajk1208/ivfb/internal/audit"
	"github.com/neerajk1208/ivfb/internal/azure"
	"github.com/neerajk1208/ivfb/internal/channel"
	"github.com/neerajk1208/ivfb/internal/handler"
	"github.com/neerajk1208/ivfb/internal/middleware"
	"github.com/neerajk1208/ivfb/internal/repository"
	"github.com/neerajk1208/ivfb/internal/security"
	"github.com/neerajk1208/ivfb/internal/service"
	"github.com/neerajk1208/ivfb/internal/timeutil"
	"github.com/neerajk1208/ivfb/internal/twilio"
	"github.com/neerajk1208/ivfb/migrations"
	"github.com/neerajk1208/ivfb/pkg/api"
	"github.com/neerajk1208/ivfb/pkg/model"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"
)

const (
	testJWTSecret     = "integration-jwt-secret"
	testCronSecret    = "integration-cron-secret"
	testTwilioToken   = "integration-twilio-token"
	testWebhookURL    = "https://ivfb.example.com/api/twilio/inbound"
	testFromNumber    = "+14155550000"
	testTimezone      = "America/Los_Angeles"
	testEncryptionKey = "0123456789abcdef0123456789abcdef"
)

// extractionResponse is what the fake language model returns for a protocol
const extractionResponse = `{
  "schemaVersion": 1,
  "cycleStartDate": "%s",
  "medications": [
    {"name": "Gonal-F", "dosageAmount": 225, "dosageUnit": "IU", "startDayOffset": 0, "durationDays": 3, "timeOfDay": "evening"},
    {"name": "Cetrotide", "dosageAmount": 0.25, "dosageUnit": "mg", "startDayOffset": 1, "durationDays": 2, "exactTime": "07:30"}
  ],
  "appointments": [
    {"type": "ULTRASOUND", "dayOffset": 2, "exactTime": "08:15", "fasting": false, "critical": false}
  ],
  "milestones": [
    {"type": "STIM_START", "dayOffset": 0, "label": "Stims begin"}
  ],
  "missingFields": ["trigger time"]
}`

// setupTestDatabase starts a PostgreSQL container, or connects to
// TEST_DATABASE_URL when set, and applies the schema
func setupTestDatabase(t *testing.T, ctx context.Context) (*pgxpool.Pool, func()) {
	t.Helper()

	dbURL := os.Getenv("TEST_DATABASE_URL")
	terminate := func() {}

	if dbURL == "" {
		container, err := postgres.Run(ctx,
			"postgres:15-alpine",
			postgres.WithDatabase("ivfb_integration"),
			postgres.WithUsername("test"),
			postgres.WithPassword("test"),
			testcontainers.WithWaitStrategy(
				wait.ForLog("database system is ready to accept connections").
					WithOccurrence(2).
					WithStartupTimeout(60*time.Second)),
		)
		require.NoError(t, err, "Should be able to start PostgreSQL container")

		dbURL, err = container.ConnectionString(ctx, "sslmode=disable")
		require.NoError(t, err)

		terminate = func() {
			if err := container.Terminate(ctx); err != nil {
				t.Logf("failed to terminate container: %s", err)
			}
		}
	}

	db, err := pgxpool.New(ctx, dbURL)
	require.NoError(t, err, "Should be able to connect to database")
	require.NoError(t, db.Ping(ctx), "Should be able to ping database")

	var tableExists bool
	err = db.QueryRow(ctx, "SELECT EXISTS (SELECT FROM information_schema.tables WHERE table_name = 'users')").Scan(&tableExists)
	require.NoError(t, err)

	if !tableExists {
		all, err := migrations.All()
		require.NoError(t, err)
		for _, m := range all {
			_, err := db.Exec(ctx, m.SQL)
			require.NoError(t, err, "migration %s", m.Name)
		}
		t.Log("Schema migrations applied")
	}

	cleanup := func() {
		db.Close()
		terminate()
		t.Log("Database connection closed")
	}
	return db, cleanup
}

// testApp is the full HTTP stack over a real database with fake providers
type testApp struct {
	db        *pgxpool.Pool
	router    *gin.Engine
	sms       *FakeSMSProvider
	push      *FakePushProvider
	completer *FakeCompleter
	documents *azure.MockBlobStorageClient
}

func newTestApp(t *testing.T, db *pgxpool.Pool) *testApp {
	t.Helper()
	logger := zap.NewNop()

	app := &testApp{
		db:        db,
		sms:       NewFakeSMSProvider(testFromNumber, logger),
		push:      NewFakePushProvider(logger),
		completer: NewFakeCompleter(strings.Replace(extractionResponse, "%s", localToday().String(), 1)),
		documents: azure.NewMockBlobStorageClient(logger),
	}

	signatures, err := twilio.NewClient("ACintegration", testTwilioToken, testFromNumber, logger)
	require.NoError(t, err)
	cipher, err := security.NewFieldCipher(testEncryptionKey)
	require.NoError(t, err)

	userRepo := repository.NewUserRepository(db, logger)
	cycleRepo := repository.NewCycleRepository(db, logger)
	protocolRepo := repository.NewProtocolRepository(db, logger)
	taskRepo := repository.NewTaskRepository(db, logger)
	chatRepo := repository.NewChatRepository(db, logger)
	checkInRepo := repository.NewCheckInRepository(db, logger)
	pushRepo := repository.NewPushSubscriptionRepository(db, logger)
	auditLogger := audit.NewLogger(db, logger)

	smsSender := channel.NewSMSSender(app.sms, auditLogger, 320, logger)
	pushSender := channel.NewPushSender(app.push, pushRepo, logger)

	planner := service.NewPlanner(protocolRepo, taskRepo, service.PlannerConfig{
		DaysAhead:       14,
		Times:           timeutil.DefaultReminderTimes(),
		CheckInTime:     civil.Time{Hour: 19},
		DefaultTimezone: testTimezone,
	}, logger)
	refresher := service.NewPlanRefresher(protocolRepo, planner, logger)

	userService := service.NewUserService(userRepo, cycleRepo, protocolRepo, planner, auditLogger, testTimezone, logger)
	pushService := service.NewPushSubscriptionService(pushRepo, logger)
	protocolService := service.NewProtocolService(cycleRepo, protocolRepo, planner, app.completer, app.documents, auditLogger, 5*time.Second, logger)
	checkInService := service.NewCheckInService(checkInRepo, cipher, testTimezone, logger)
	taskService := service.NewTaskService(taskRepo, logger)
	todayService := service.NewTodayService(cycleRepo, protocolRepo, taskRepo, checkInService, testTimezone, logger)
	quotaService := service.NewQuotaService(userRepo, 30, testTimezone, logger)
	// no completer: replies come from the deterministic fallbacks
	buddyService := service.NewBuddyService(nil, time.Second, logger)
	contexts := service.NewContextBuilder(protocolRepo, taskRepo, checkInService, chatRepo, testTimezone, logger)
	chatService := service.NewChatService(cycleRepo, chatRepo, quotaService, contexts, buddyService, 1200, testTimezone, logger)

	inboundService := service.NewInboundService(service.InboundDeps{
		Users:            userRepo,
		Cycles:           cycleRepo,
		Recorder:         smsSender,
		SMS:              smsSender,
		CheckIns:         checkInService,
		Chat:             chatRepo,
		Quota:            quotaService,
		Contexts:         contexts,
		Buddy:            buddyService,
		Audit:            auditLogger,
		SummaryMaxLength: 1200,
	}, logger)

	scheduler := service.NewScheduler(taskRepo, chatRepo, smsSender, pushSender, service.SchedulerConfig{
		BatchLimit:     100,
		Concurrency:    4,
		ChannelTimeout: 5 * time.Second,
		ClaimLease:     time.Minute,
		Kinds: []model.TaskKind{
			model.TaskKindReminder,
			model.TaskKindCheckIn,
			model.TaskKindAppointment,
			model.TaskKindCritical,
		},
		ClickURL: "/chat",
	}, logger)

	gdprService := service.NewGDPRService(db, app.documents, auditLogger, service.ExportSources{
		Users:     userRepo,
		Cycles:    cycleRepo,
		Protocols: protocolRepo,
		CheckIns:  checkInService,
		Chat:      chatRepo,
		Audit:     auditLogger,
	}, logger)

	apiHandler := &handler.API{
		ProtocolHandler: handler.NewProtocolHandler(protocolService, logger),
		TodayHandler:    handler.NewTodayHandler(todayService, taskService, checkInService, logger),
		ChatHandler:     handler.NewChatHandler(chatService, testTimezone, logger),
		UserHandler:     handler.NewUserHandler(userService, pushService, logger),
		GDPRHandler:     handler.NewGDPRHandler(gdprService, logger),
		JobsHandler:     handler.NewJobsHandler(scheduler, refresher, logger),
		WebhookHandler:  handler.NewWebhookHandler(inboundService, logger),
		HealthHandler:   handler.NewHealthHandler(db, logger),
	}

	authenticator := middleware.NewAuthenticator(middleware.AuthConfig{
		JWTSecret:  testJWTSecret,
		CronSecret: testCronSecret,
		Users:      userService,
		Twilio:     signatures,
		WebhookURL: testWebhookURL,
	}, logger)

	swagger, err := api.GetSwagger()
	require.NoError(t, err)
	validator, err := middleware.OpenAPIValidator(swagger, authenticator.Authenticate, logger)
	require.NoError(t, err)

	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(middleware.RecoveryMiddleware(logger))
	r.Use(middleware.RequestIDMiddleware())
	r.Use(middleware.ErrorLoggingMiddleware(logger))
	r.Use(validator)
	api.RegisterHandlers(r, apiHandler)

	app.router = r
	return app
}

func localToday() civil.Date {
	loc, _ := time.LoadLocation(testTimezone)
	return timeutil.Today(time.Now(), loc)
}

// userToken signs an access token for userID
func userToken(t *testing.T, userID, email string) string {
	t.Helper()
	claims := middleware.Claims{
		UserID: userID,
		Email:  email,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testJWTSecret))
	require.NoError(t, err)
	return token
}

// do sends a JSON request with a bearer token; body may be nil
func (a *testApp) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	return w
}

// inbound posts a signed Twilio webhook request
func (a *testApp) inbound(t *testing.T, from, body string) *httptest.ResponseRecorder {
	t.Helper()

	form := url.Values{
		"From":       {from},
		"To":         {testFromNumber},
		"Body":       {body},
		"MessageSid": {"SMin" + strings.ReplaceAll(from, "+", "")},
	}
	params := make(map[string]string, len(form))
	for k, v := range form {
		params[k] = v[0]
	}

	req := httptest.NewRequest(http.MethodPost, "/api/twilio/inbound", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("X-Twilio-Signature", twilioSignature(testTwilioToken, testWebhookURL, params))

	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	return w
}

// twilioSignature computes X-Twilio-Signature: HMAC-SHA1 over the URL
// followed by each sorted parameter name and value
func twilioSignature(authToken, webhookURL string, params map[string]string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(webhookURL)
	for _, k := range keys {
		b.WriteString(k)
		b.WriteString(params[k])
	}

	mac := hmac.New(sha1.New, []byte(authToken))
	mac.Write([]byte(b.String()))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), "body: %s", w.Body.String())
	return out
}
