// Command test-channels exercises each configured external provider once:
// Azure OpenAI, Azure Blob Storage, Twilio and Firebase Cloud Messaging.
// Providers without credentials are skipped.
package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/neerajk1208/ivfb/internal/azure"
	"github.com/neerajk1208/ivfb/internal/fcm"
	"github.com/neerajk1208/ivfb/internal/twilio"
)

func main() {
	_ = godotenv.Load()

	logger, err := zap.NewDevelopment()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	checks := []struct {
		name string
		env  []string
		run  func(context.Context, *zap.Logger) error
	}{
		{"Azure OpenAI", []string{"AZURE_OPENAI_ENDPOINT", "AZURE_OPENAI_API_KEY", "AZURE_OPENAI_DEPLOYMENT"}, testOpenAI},
		{"Azure Blob Storage", []string{"AZURE_STORAGE_ACCOUNT_NAME", "AZURE_STORAGE_ACCOUNT_KEY"}, testBlobStorage},
		{"Twilio SMS", []string{"TWILIO_ACCOUNT_SID", "TWILIO_AUTH_TOKEN", "TWILIO_PHONE_NUMBER", "TEST_SMS_TO"}, testTwilio},
		{"Firebase push", []string{"FIREBASE_CREDENTIALS_FILE", "TEST_PUSH_TOKEN"}, testPush},
	}

	failed := 0
	for _, c := range checks {
		if missing := missingEnv(c.env); len(missing) > 0 {
			logger.Warn("skipping provider", zap.String("provider", c.name), zap.Strings("missing", missing))
			continue
		}

		logger.Info("testing provider", zap.String("provider", c.name))
		if err := c.run(ctx, logger); err != nil {
			logger.Error("provider test failed", zap.String("provider", c.name), zap.Error(err))
			failed++
			continue
		}
		logger.Info("provider test passed", zap.String("provider", c.name))
	}

	if failed > 0 {
		os.Exit(1)
	}
}

func missingEnv(keys []string) []string {
	var missing []string
	for _, k := range keys {
		if os.Getenv(k) == "" {
			missing = append(missing, k)
		}
	}
	return missing
}

func testOpenAI(ctx context.Context, logger *zap.Logger) error {
	client, err := azure.NewOpenAIClient(
		os.Getenv("AZURE_OPENAI_ENDPOINT"),
		os.Getenv("AZURE_OPENAI_API_KEY"),
		os.Getenv("AZURE_OPENAI_DEPLOYMENT"),
		logger,
	)
	if err != nil {
		return fmt.Errorf("failed to create OpenAI client: %w", err)
	}

	reply, err := client.Complete(ctx, azure.CompletionRequest{
		System:    "You reply with a JSON object only.",
		User:      `Return {"ok": true}.`,
		MaxTokens: 20,
		JSON:      true,
	})
	if err != nil {
		return fmt.Errorf("completion failed: %w", err)
	}

	logger.Info("OpenAI response received", zap.String("response", reply))
	return nil
}

func testBlobStorage(ctx context.Context, logger *zap.Logger) error {
	container := os.Getenv("AZURE_STORAGE_PROTOCOL_CONTAINER")
	if container == "" {
		container = "protocol-documents"
	}

	client, err := azure.NewBlobStorageClient(
		os.Getenv("AZURE_STORAGE_ACCOUNT_NAME"),
		os.Getenv("AZURE_STORAGE_ACCOUNT_KEY"),
		container,
		logger,
	)
	if err != nil {
		return fmt.Errorf("failed to create blob client: %w", err)
	}

	data := []byte("Stims: Gonal-F 225 IU evening, days 1-10\n")
	name, err := client.UploadProtocolDocument(ctx, "smoke-test", "protocol.txt", "text/plain", data)
	if err != nil {
		return fmt.Errorf("upload failed: %w", err)
	}
	logger.Info("document uploaded", zap.String("blob_name", name))

	got, err := client.DownloadProtocolDocument(ctx, name)
	if err != nil {
		return fmt.Errorf("download failed: %w", err)
	}
	if !bytes.Equal(got, data) {
		return fmt.Errorf("downloaded %d bytes, want %d", len(got), len(data))
	}

	if err := client.DeleteProtocolDocument(ctx, name); err != nil {
		return fmt.Errorf("delete failed: %w", err)
	}
	return nil
}

func testTwilio(ctx context.Context, logger *zap.Logger) error {
	client, err := twilio.NewClient(
		os.Getenv("TWILIO_ACCOUNT_SID"),
		os.Getenv("TWILIO_AUTH_TOKEN"),
		os.Getenv("TWILIO_PHONE_NUMBER"),
		logger,
	)
	if err != nil {
		return fmt.Errorf("failed to create Twilio client: %w", err)
	}

	sid, err := client.SendSMS(ctx, os.Getenv("TEST_SMS_TO"), "IVF buddy test message. Reply STOP to opt out.")
	if err != nil {
		return fmt.Errorf("send failed: %w", err)
	}
	logger.Info("SMS queued", zap.String("sid", sid))
	return nil
}

func testPush(ctx context.Context, logger *zap.Logger) error {
	client, err := fcm.NewClient(ctx, os.Getenv("FIREBASE_CREDENTIALS_FILE"), logger)
	if err != nil {
		return fmt.Errorf("failed to create FCM client: %w", err)
	}

	id, err := client.Send(ctx, os.Getenv("TEST_PUSH_TOKEN"), fcm.Notification{
		Title: "IVF buddy",
		Body:  "Test notification",
		URL:   "/chat",
		Tag:   "smoke-test",
	})
	if err != nil {
		return fmt.Errorf("send failed: %w", err)
	}
	logger.Info("push sent", zap.String("message_id", id))
	return nil
}
