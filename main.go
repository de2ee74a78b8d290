package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/neerajk1208/ivfb/internal/audit"
	"github.com/neerajk1208/ivfb/internal/azure"
	"github.com/neerajk1208/ivfb/internal/channel"
	"github.com/neerajk1208/ivfb/internal/config"
	"github.com/neerajk1208/ivfb/internal/fcm"
	"github.com/neerajk1208/ivfb/internal/handler"
	"github.com/neerajk1208/ivfb/internal/middleware"
	"github.com/neerajk1208/ivfb/internal/repository"
	"github.com/neerajk1208/ivfb/internal/security"
	"github.com/neerajk1208/ivfb/internal/service"
	"github.com/neerajk1208/ivfb/internal/twilio"
	"github.com/neerajk1208/ivfb/pkg/api"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	logger *zap.Logger
	pool   *pgxpool.Pool
	cfg    *config.Config
)

func main() {
	// Load configuration
	var err error
	cfg, err = config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	logger, err = newLogger(cfg)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	logger.Info("Configuration loaded successfully",
		zap.String("environment", cfg.Server.Environment),
		zap.String("port", cfg.Server.Port),
		zap.String("default_timezone", cfg.Reminders.DefaultTimezone),
	)

	// Initialize database connection pool with pgx
	pool, err = newPool(context.Background(), cfg)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer pool.Close()

	if err := pool.Ping(context.Background()); err != nil {
		logger.Fatal("Failed to ping database", zap.Error(err))
	}
	logger.Info("Successfully connected to database")

	// Providers are optional; an unconfigured one disables its feature
	var smsProvider channel.SMSProvider
	var signatures middleware.SignatureValidator
	if cfg.SMS.AccountSID != "" {
		twilioClient, err := twilio.NewClient(cfg.SMS.AccountSID, cfg.SMS.AuthToken, cfg.SMS.FromNumber, logger)
		if err != nil {
			logger.Fatal("Failed to initialize Twilio client", zap.Error(err))
		}
		smsProvider = twilioClient
		signatures = twilioClient
	} else {
		logger.Warn("Twilio not configured, SMS delivery and the inbound webhook are disabled")
	}

	var pushProvider channel.PushProvider
	if cfg.Push.CredentialsFile != "" {
		fcmClient, err := fcm.NewClient(context.Background(), cfg.Push.CredentialsFile, logger)
		if err != nil {
			logger.Fatal("Failed to initialize Firebase messaging client", zap.Error(err))
		}
		pushProvider = fcmClient
	} else {
		logger.Warn("Firebase not configured, push delivery is disabled")
	}

	var completer azure.Completer
	if cfg.Azure.OpenAI.Endpoint != "" {
		openAIClient, err := azure.NewOpenAIClient(
			cfg.Azure.OpenAI.Endpoint,
			cfg.Azure.OpenAI.APIKey,
			cfg.Azure.OpenAI.Deployment,
			logger,
		)
		if err != nil {
			logger.Fatal("Failed to initialize Azure OpenAI client", zap.Error(err))
		}
		completer = openAIClient
	} else {
		logger.Warn("Azure OpenAI not configured, extraction is disabled and replies use fallbacks")
	}

	var documents azure.DocumentStore
	if cfg.Azure.Storage.AccountName != "" {
		blobClient, err := azure.NewBlobStorageClient(
			cfg.Azure.Storage.AccountName,
			cfg.Azure.Storage.AccountKey,
			cfg.Azure.Storage.ProtocolContainer,
			logger,
		)
		if err != nil {
			logger.Fatal("Failed to initialize Azure Blob Storage client", zap.Error(err))
		}
		documents = blobClient
	} else {
		logger.Warn("Azure Storage not configured, protocol documents are kept in memory")
		documents = azure.NewMockBlobStorageClient(logger)
	}

	var cipher security.FieldCipher = security.PlainCipher{}
	if cfg.Security.EncryptionKey != "" {
		cipher, err = security.NewFieldCipher(cfg.Security.EncryptionKey)
		if err != nil {
			logger.Fatal("Failed to initialize field encryption", zap.Error(err))
		}
	} else {
		logger.Warn("Encryption key not set, check-in notes are stored in plain text")
	}

	reminderTimes, err := cfg.ReminderTimes()
	if err != nil {
		logger.Fatal("Invalid reminder times", zap.Error(err))
	}
	checkInTime, err := cfg.CheckInTime()
	if err != nil {
		logger.Fatal("Invalid check-in time", zap.Error(err))
	}
	quietHours, err := cfg.DefaultQuietHours()
	if err != nil {
		logger.Fatal("Invalid quiet hours", zap.Error(err))
	}
	kinds, err := cfg.DeliverableKinds()
	if err != nil {
		logger.Fatal("Invalid deliverable kinds", zap.Error(err))
	}
	tz := cfg.Reminders.DefaultTimezone

	// Initialize repositories
	userRepo := repository.NewUserRepository(pool, logger)
	cycleRepo := repository.NewCycleRepository(pool, logger)
	protocolRepo := repository.NewProtocolRepository(pool, logger)
	taskRepo := repository.NewTaskRepository(pool, logger)
	chatRepo := repository.NewChatRepository(pool, logger)
	checkInRepo := repository.NewCheckInRepository(pool, logger)
	pushRepo := repository.NewPushSubscriptionRepository(pool, logger)
	auditLogger := audit.NewLogger(pool, logger)

	// Delivery channels
	smsSender := channel.NewSMSSender(smsProvider, auditLogger, cfg.SMS.MaxLength, logger)
	pushSender := channel.NewPushSender(pushProvider, pushRepo, logger)

	// Initialize services
	planner := service.NewPlanner(protocolRepo, taskRepo, service.PlannerConfig{
		DaysAhead:       cfg.Plan.DaysAhead,
		Times:           reminderTimes,
		CheckInTime:     checkInTime,
		DefaultTimezone: tz,
	}, logger)
	refresher := service.NewPlanRefresher(protocolRepo, planner, logger)

	userService := service.NewUserService(userRepo, cycleRepo, protocolRepo, planner, auditLogger, tz, logger)
	userService.SetDefaultQuietHours(quietHours)
	pushService := service.NewPushSubscriptionService(pushRepo, logger)

	protocolService := service.NewProtocolService(
		cycleRepo,
		protocolRepo,
		planner,
		completer,
		documents,
		auditLogger,
		cfg.Azure.OpenAI.ExtractTimeout,
		logger,
	)

	checkInService := service.NewCheckInService(checkInRepo, cipher, tz, logger)
	taskService := service.NewTaskService(taskRepo, logger)
	todayService := service.NewTodayService(cycleRepo, protocolRepo, taskRepo, checkInService, tz, logger)

	quotaService := service.NewQuotaService(userRepo, cfg.Quota.MaxDaily, tz, logger)
	buddyService := service.NewBuddyService(completer, cfg.Buddy.Timeout, logger)
	contexts := service.NewContextBuilder(protocolRepo, taskRepo, checkInService, chatRepo, tz, logger)
	chatService := service.NewChatService(
		cycleRepo,
		chatRepo,
		quotaService,
		contexts,
		buddyService,
		cfg.Conversation.SummaryMaxLength,
		tz,
		logger,
	)

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
		SummaryMaxLength: cfg.Conversation.SummaryMaxLength,
	}, logger)

	scheduler := service.NewScheduler(taskRepo, chatRepo, smsSender, pushSender, service.SchedulerConfig{
		BatchLimit:     cfg.Scheduler.BatchLimit,
		Concurrency:    cfg.Scheduler.Concurrency,
		ChannelTimeout: cfg.Scheduler.ChannelTimeout,
		ClaimLease:     cfg.Scheduler.ClaimLease,
		Kinds:          kinds,
		ClickURL:       cfg.Push.ClickURL,
	}, logger)

	gdprService := service.NewGDPRService(pool, documents, auditLogger, service.ExportSources{
		Users:     userRepo,
		Cycles:    cycleRepo,
		Protocols: protocolRepo,
		CheckIns:  checkInService,
		Chat:      chatRepo,
		Audit:     auditLogger,
	}, logger)

	// One value implements the whole generated ServerInterface
	apiHandler := &handler.API{
		ProtocolHandler: handler.NewProtocolHandler(protocolService, logger),
		TodayHandler:    handler.NewTodayHandler(todayService, taskService, checkInService, logger),
		ChatHandler:     handler.NewChatHandler(chatService, tz, logger),
		UserHandler:     handler.NewUserHandler(userService, pushService, logger),
		GDPRHandler:     handler.NewGDPRHandler(gdprService, logger),
		JobsHandler:     handler.NewJobsHandler(scheduler, refresher, logger),
		WebhookHandler:  handler.NewWebhookHandler(inboundService, logger),
		HealthHandler:   handler.NewHealthHandler(pool, logger),
	}

	authenticator := middleware.NewAuthenticator(middleware.AuthConfig{
		JWTSecret:  cfg.Auth.JWTSecret,
		CronSecret: cfg.Auth.CronSecret,
		Users:      userService,
		Twilio:     signatures,
		WebhookURL: webhookURL(cfg),
	}, logger)

	swagger, err := api.GetSwagger()
	if err != nil {
		logger.Fatal("Failed to load API document", zap.Error(err))
	}
	validator, err := middleware.OpenAPIValidator(swagger, authenticator.Authenticate, logger)
	if err != nil {
		logger.Fatal("Failed to build request validator", zap.Error(err))
	}

	// Set Gin mode
	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()

	// Recovery must be first
	r.Use(middleware.RecoveryMiddleware(logger))

	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Request-ID"},
		ExposeHeaders:    []string{"Content-Length", "Content-Disposition", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	r.Use(middleware.RequestIDMiddleware())
	r.Use(middleware.RequestLoggingMiddleware(logger, "/health"))
	r.Use(middleware.ErrorLoggingMiddleware(logger))
	r.Use(middleware.SlowRequestMiddleware(logger, 1*time.Second))

	// Authenticates and validates against the API document
	r.Use(validator)

	api.RegisterHandlers(r, apiHandler)

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("Starting server",
			zap.String("port", cfg.Server.Port),
			zap.Bool("sms_enabled", smsSender.Enabled()),
			zap.Bool("push_enabled", pushSender.Enabled()),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	pool.Close()

	logger.Info("Server exited")
}

// newLogger builds the production or development zap logger and applies the
// configured level and encoding
func newLogger(cfg *config.Config) (*zap.Logger, error) {
	zc := zap.NewDevelopmentConfig()
	if cfg.Server.Environment == "production" {
		zc = zap.NewProductionConfig()
	}

	if cfg.Logging.Level != "" {
		level, err := zapcore.ParseLevel(cfg.Logging.Level)
		if err != nil {
			return nil, err
		}
		zc.Level = zap.NewAtomicLevelAt(level)
	}
	if cfg.Logging.Format == "json" || cfg.Logging.Format == "console" {
		zc.Encoding = cfg.Logging.Format
	}

	return zc.Build()
}

func newPool(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	pc, err := pgxpool.ParseConfig(cfg.Database.URL)
	if err != nil {
		return nil, err
	}
	if cfg.Database.MaxOpenConns > 0 {
		pc.MaxConns = int32(cfg.Database.MaxOpenConns)
	}
	if cfg.Database.ConnMaxLifetime > 0 {
		pc.MaxConnLifetime = cfg.Database.ConnMaxLifetime
	}
	return pgxpool.NewWithConfig(ctx, pc)
}

// webhookURL is the externally visible URL Twilio signs inbound requests with
func webhookURL(cfg *config.Config) string {
	if cfg.SMS.WebhookURL != "" {
		return cfg.SMS.WebhookURL
	}
	return strings.TrimRight(cfg.Server.PublicURL, "/") + "/api/twilio/inbound"
}
