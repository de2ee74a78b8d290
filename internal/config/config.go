package config

import (
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/neerajk1208/ivfb/internal/timeutil"
	"github.com/neerajk1208/ivfb/pkg/model"
)

// Config holds all application configuration
type Config struct {
	Server       ServerConfig
	Database     DatabaseConfig
	Logging      LoggingConfig
	Auth         AuthConfig
	Reminders    RemindersConfig
	Plan         PlanConfig
	Scheduler    SchedulerConfig
	Quota        QuotaConfig
	Conversation ConversationConfig
	SMS          SMSConfig
	Push         PushConfig
	Azure        AzureConfig
	Buddy        BuddyConfig
	Security     SecurityConfig
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	Port            string
	Environment     string
	ShutdownTimeout time.Duration
	PublicURL       string
}

// DatabaseConfig holds database connection configuration
type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	ConnMaxLifetime time.Duration
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string
	Format string // json or console
}

// AuthConfig holds the user JWT secret and the job trigger secret
type AuthConfig struct {
	JWTSecret  string
	CronSecret string
}

// RemindersConfig holds the local wall-clock defaults for delivery slots
type RemindersConfig struct {
	Morning         string
	Afternoon       string
	Evening         string
	Bedtime         string
	CheckIn         string
	QuietHoursStart string
	QuietHoursEnd   string
	DefaultTimezone string
}

// PlanConfig holds plan generation settings
type PlanConfig struct {
	DaysAhead int
}

// SchedulerConfig holds tick settings
type SchedulerConfig struct {
	BatchLimit       int
	Concurrency      int
	ChannelTimeout   time.Duration
	ClaimLease       time.Duration
	DeliverableKinds []string
}

// QuotaConfig bounds user-initiated conversational turns
type QuotaConfig struct {
	MaxDaily int
}

// ConversationConfig holds conversation summary settings
type ConversationConfig struct {
	SummaryMaxLength int
}

// SMSConfig holds Twilio settings
type SMSConfig struct {
	MaxLength  int
	AccountSID string
	AuthToken  string
	FromNumber string
	WebhookURL string
}

// PushConfig holds Firebase Cloud Messaging settings
type PushConfig struct {
	CredentialsFile string
	ClickURL        string
}

// AzureConfig holds Azure service configuration
type AzureConfig struct {
	OpenAI  OpenAIConfig
	Storage StorageConfig
}

// OpenAIConfig holds Azure OpenAI configuration
type OpenAIConfig struct {
	Endpoint       string
	APIKey         string
	Deployment     string
	ExtractTimeout time.Duration
}

// StorageConfig holds Azure Blob Storage configuration
type StorageConfig struct {
	AccountName       string
	AccountKey        string
	ProtocolContainer string
}

// BuddyConfig holds reply generator settings
type BuddyConfig struct {
	Timeout time.Duration
}

// SecurityConfig holds at-rest encryption settings
type SecurityConfig struct {
	EncryptionKey string
}

// Load reads configuration from environment variables and an optional .env file
func Load() (*Config, error) {
	// .env is optional; real environment variables take precedence
	_ = godotenv.Load()

	v := viper.New()

	// Set default values
	setDefaults(v)

	// Read from environment variables
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Bind specific environment variables
	bindEnvVars(v)

	// Unmarshal into config struct
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.environment", "development")
	v.SetDefault("server.shutdowntimeout", 30*time.Second)
	v.SetDefault("server.publicurl", "http://localhost:8080")

	// Database defaults
	v.SetDefault("database.maxopenconns", 25)
	v.SetDefault("database.connmaxlifetime", 5*time.Minute)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	// Reminder slots
	v.SetDefault("reminders.morning", "09:00")
	v.SetDefault("reminders.afternoon", "13:00")
	v.SetDefault("reminders.evening", "20:30")
	v.SetDefault("reminders.bedtime", "22:00")
	v.SetDefault("reminders.checkin", "19:00")
	v.SetDefault("reminders.quiethoursstart", "21:00")
	v.SetDefault("reminders.quiethoursend", "08:00")
	v.SetDefault("reminders.defaulttimezone", "America/Los_Angeles")

	v.SetDefault("plan.daysahead", 14)

	// Scheduler defaults
	v.SetDefault("scheduler.batchlimit", 50)
	v.SetDefault("scheduler.concurrency", 4)
	v.SetDefault("scheduler.channeltimeout", 10*time.Second)
	v.SetDefault("scheduler.claimlease", 10*time.Minute)
	v.SetDefault("scheduler.deliverablekinds", []string{
		string(model.TaskKindReminder),
		string(model.TaskKindCheckIn),
		string(model.TaskKindAppointment),
		string(model.TaskKindCritical),
	})

	v.SetDefault("quota.maxdaily", 30)
	v.SetDefault("conversation.summarymaxlength", 1200)
	v.SetDefault("sms.maxlength", 320)
	v.SetDefault("push.clickurl", "/chat")
	v.SetDefault("azure.storage.protocolcontainer", "protocol-documents")
	v.SetDefault("azure.openai.extracttimeout", 60*time.Second)
	v.SetDefault("buddy.timeout", 15*time.Second)
}

// bindEnvVars binds environment variables to config keys
func bindEnvVars(v *viper.Viper) {
	// Server
	v.BindEnv("server.port", "PORT")
	v.BindEnv("server.environment", "ENV", "ENVIRONMENT")
	v.BindEnv("server.publicurl", "PUBLIC_URL")

	// Database
	v.BindEnv("database.url", "DATABASE_URL")

	// Auth
	v.BindEnv("auth.jwtsecret", "JWT_SECRET")
	v.BindEnv("auth.cronsecret", "CRON_SECRET")

	// Reminders
	v.BindEnv("reminders.defaulttimezone", "DEFAULT_TIMEZONE")
	v.BindEnv("plan.daysahead", "PLAN_DAYS_AHEAD")

	// Scheduler
	v.BindEnv("scheduler.batchlimit", "SCHEDULER_BATCH_LIMIT")
	v.BindEnv("scheduler.concurrency", "SCHEDULER_CONCURRENCY")
	v.BindEnv("scheduler.channeltimeout", "SCHEDULER_CHANNEL_TIMEOUT")
	v.BindEnv("scheduler.claimlease", "SCHEDULER_CLAIM_LEASE")
	v.BindEnv("scheduler.deliverablekinds", "SCHEDULER_DELIVERABLE_KINDS")

	// Twilio
	v.BindEnv("sms.accountsid", "TWILIO_ACCOUNT_SID")
	v.BindEnv("sms.authtoken", "TWILIO_AUTH_TOKEN")
	v.BindEnv("sms.fromnumber", "TWILIO_PHONE_NUMBER")
	v.BindEnv("sms.webhookurl", "TWILIO_WEBHOOK_URL")

	// Firebase
	v.BindEnv("push.credentialsfile", "FIREBASE_CREDENTIALS_FILE", "GOOGLE_APPLICATION_CREDENTIALS")

	// Azure OpenAI
	v.BindEnv("azure.openai.endpoint", "AZURE_OPENAI_ENDPOINT")
	v.BindEnv("azure.openai.apikey", "AZURE_OPENAI_API_KEY")
	v.BindEnv("azure.openai.deployment", "AZURE_OPENAI_DEPLOYMENT")

	// Azure Storage
	v.BindEnv("azure.storage.accountname", "AZURE_STORAGE_ACCOUNT_NAME")
	v.BindEnv("azure.storage.accountkey", "AZURE_STORAGE_ACCOUNT_KEY")

	v.BindEnv("security.encryptionkey", "ENCRYPTION_KEY")

	// Logging
	v.BindEnv("logging.level", "LOG_LEVEL")
	v.BindEnv("logging.format", "LOG_FORMAT")
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("database.url is required")
	}

	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwtsecret is required")
	}

	if c.Auth.CronSecret == "" {
		return fmt.Errorf("auth.cronsecret is required")
	}

	if _, err := c.ReminderTimes(); err != nil {
		return err
	}

	if _, err := c.CheckInTime(); err != nil {
		return err
	}

	if _, err := c.DefaultQuietHours(); err != nil {
		return fmt.Errorf("reminders quiet hours: %w", err)
	}

	if _, err := timeutil.LoadLocation(c.Reminders.DefaultTimezone, ""); err != nil {
		return fmt.Errorf("reminders.defaulttimezone: %w", err)
	}

	if c.Plan.DaysAhead < 1 {
		return fmt.Errorf("plan.daysahead must be at least 1")
	}

	if c.Scheduler.BatchLimit < 1 {
		return fmt.Errorf("scheduler.batchlimit must be at least 1")
	}

	if c.Scheduler.Concurrency < 1 {
		return fmt.Errorf("scheduler.concurrency must be at least 1")
	}

	if c.Scheduler.ChannelTimeout <= 0 {
		return fmt.Errorf("scheduler.channeltimeout must be positive")
	}

	// a claim must outlive the slowest tick or an overlapping tick
	// picks up tasks that are still being delivered
	if worst := c.Scheduler.WorstCaseTick(); c.Scheduler.ClaimLease < worst {
		return fmt.Errorf("scheduler.claimlease %s is shorter than the worst-case tick of %s", c.Scheduler.ClaimLease, worst)
	}

	if _, err := c.DeliverableKinds(); err != nil {
		return fmt.Errorf("scheduler.deliverablekinds: %w", err)
	}

	if c.Security.EncryptionKey != "" && len(c.Security.EncryptionKey) != 32 {
		return fmt.Errorf("security.encryptionkey must be 32 bytes")
	}

	return nil
}

// WorstCaseTick is how long one tick runs when every claimed task waits out
// both channel timeouts
func (s SchedulerConfig) WorstCaseTick() time.Duration {
	conc := max(s.Concurrency, 1)
	rounds := (s.BatchLimit + conc - 1) / conc
	return time.Duration(rounds) * 2 * s.ChannelTimeout
}

// ReminderTimes parses the named slot table
func (c *Config) ReminderTimes() (timeutil.ReminderTimes, error) {
	var out timeutil.ReminderTimes
	slots := []struct {
		key string
		val string
		dst *civil.Time
	}{
		{"reminders.morning", c.Reminders.Morning, &out.Morning},
		{"reminders.afternoon", c.Reminders.Afternoon, &out.Afternoon},
		{"reminders.evening", c.Reminders.Evening, &out.Evening},
		{"reminders.bedtime", c.Reminders.Bedtime, &out.Bedtime},
	}
	for _, s := range slots {
		t, err := timeutil.ParseClock(s.val)
		if err != nil {
			return out, fmt.Errorf("%s: %w", s.key, err)
		}
		*s.dst = t
	}
	return out, nil
}

// CheckInTime parses the daily check-in wall-clock time
func (c *Config) CheckInTime() (civil.Time, error) {
	t, err := timeutil.ParseClock(c.Reminders.CheckIn)
	if err != nil {
		return civil.Time{}, fmt.Errorf("reminders.checkin: %w", err)
	}
	return t, nil
}

// DefaultQuietHours parses the quiet hours applied to new users
func (c *Config) DefaultQuietHours() (*timeutil.QuietHours, error) {
	return timeutil.ParseQuietHours(c.Reminders.QuietHoursStart, c.Reminders.QuietHoursEnd)
}

// DeliverableKinds parses the task kinds the tick sends on SMS and push
func (c *Config) DeliverableKinds() ([]model.TaskKind, error) {
	kinds := make([]model.TaskKind, 0, len(c.Scheduler.DeliverableKinds))
	for _, raw := range c.Scheduler.DeliverableKinds {
		for _, part := range strings.Split(raw, ",") {
			part = strings.TrimSpace(strings.ToUpper(part))
			if part == "" {
				continue
			}
			k, err := model.ParseTaskKind(part)
			if err != nil {
				return nil, err
			}
			kinds = append(kinds, k)
		}
	}
	if len(kinds) == 0 {
		return nil, fmt.Errorf("at least one kind is required")
	}
	return kinds, nil
}
