// Command trigger drives the server's job endpoints on a cron schedule. It
// stands in for an external scheduler when running outside a hosted cron.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

type triggerConfig struct {
	BaseURL        string
	CronSecret     string
	TickSpec       string
	RegenerateSpec string
	Timezone       string
	RequestTimeout time.Duration
}

func loadConfig() (*triggerConfig, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetDefault("baseurl", "http://localhost:8080")
	v.SetDefault("tickspec", "* * * * *")
	v.SetDefault("regeneratespec", "15 3 * * *")
	v.SetDefault("timezone", "UTC")
	// long enough for the server's worst-case tick under its default settings
	v.SetDefault("requesttimeout", 5*time.Minute)

	v.BindEnv("baseurl", "TRIGGER_BASE_URL", "PUBLIC_URL")
	v.BindEnv("cronsecret", "CRON_SECRET")
	v.BindEnv("tickspec", "TRIGGER_TICK_SPEC")
	v.BindEnv("regeneratespec", "TRIGGER_REGENERATE_SPEC")
	v.BindEnv("timezone", "TRIGGER_TIMEZONE")
	v.BindEnv("requesttimeout", "TRIGGER_REQUEST_TIMEOUT")

	var cfg triggerConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if cfg.CronSecret == "" {
		return nil, fmt.Errorf("CRON_SECRET is required")
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &cfg, nil
}

// jobClient calls one job endpoint with the shared secret
type jobClient struct {
	baseURL string
	secret  string
	client  *http.Client
	logger  *zap.Logger
}

func (j *jobClient) post(ctx context.Context, path string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, j.baseURL+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+j.secret)

	start := time.Now()
	resp, err := j.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var summary map[string]any
	_ = json.Unmarshal(body, &summary)
	j.logger.Info("job completed",
		zap.String("path", path),
		zap.Duration("duration", time.Since(start)),
		zap.Any("result", summary),
	)
	return nil
}

func (j *jobClient) job(path string) func() {
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), j.client.Timeout)
		defer cancel()
		if err := j.post(ctx, path); err != nil {
			j.logger.Error("job failed", zap.String("path", path), zap.Error(err))
		}
	}
}

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	cfg, err := loadConfig()
	if err != nil {
		logger.Fatal("Failed to load configuration", zap.Error(err))
	}

	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		logger.Fatal("Invalid timezone", zap.String("timezone", cfg.Timezone), zap.Error(err))
	}

	jobs := &jobClient{
		baseURL: cfg.BaseURL,
		secret:  cfg.CronSecret,
		client:  &http.Client{Timeout: cfg.RequestTimeout},
		logger:  logger,
	}

	// A slow tick is skipped rather than run concurrently with the next
	c := cron.New(
		cron.WithLocation(loc),
		cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
	)
	if _, err := c.AddFunc(cfg.TickSpec, jobs.job("/api/jobs/tick")); err != nil {
		logger.Fatal("Invalid tick schedule", zap.String("spec", cfg.TickSpec), zap.Error(err))
	}
	if _, err := c.AddFunc(cfg.RegenerateSpec, jobs.job("/api/plan/regenerate")); err != nil {
		logger.Fatal("Invalid regenerate schedule", zap.String("spec", cfg.RegenerateSpec), zap.Error(err))
	}

	c.Start()
	logger.Info("Trigger started",
		zap.String("base_url", cfg.BaseURL),
		zap.String("tick", cfg.TickSpec),
		zap.String("regenerate", cfg.RegenerateSpec),
	)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	<-c.Stop().Done()
	logger.Info("Trigger stopped")
}
