package azure

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// MockBlobStorageClient is an in-memory DocumentStore for tests and local runs
// without storage credentials
type MockBlobStorageClient struct {
	Storage map[string][]byte
	mu      sync.RWMutex
	logger  *zap.Logger
}

// NewMockBlobStorageClient creates a new mock blob storage client
func NewMockBlobStorageClient(logger *zap.Logger) *MockBlobStorageClient {
	return &MockBlobStorageClient{
		Storage: make(map[string][]byte),
		logger:  logger,
	}
}

// UploadProtocolDocument stores the document in memory
func (c *MockBlobStorageClient) UploadProtocolDocument(ctx context.Context, userID, filename, contentType string, data []byte) (string, error) {
	if userID == "" {
		return "", fmt.Errorf("userID is required")
	}
	if len(data) == 0 {
		return "", fmt.Errorf("document is empty")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	blobName := ProtocolBlobName(userID, filename, time.Now())
	c.Storage[blobName] = bytes.Clone(data)

	if c.logger != nil {
		c.logger.Info("mock: protocol document uploaded",
			zap.String("blob_name", blobName),
			zap.Int("size_bytes", len(data)),
		)
	}

	return blobName, nil
}

// DownloadProtocolDocument returns a stored document
func (c *MockBlobStorageClient) DownloadProtocolDocument(ctx context.Context, blobName string) ([]byte, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	data, exists := c.Storage[blobName]
	if !exists {
		return nil, fmt.Errorf("blob not found: %s", blobName)
	}

	return bytes.Clone(data), nil
}

// DeleteProtocolDocument removes a stored document
func (c *MockBlobStorageClient) DeleteProtocolDocument(ctx context.Context, blobName string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.Storage, blobName)
	return nil
}

// ListBlobs returns all blob names in storage
func (c *MockBlobStorageClient) ListBlobs() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	blobs := make([]string, 0, len(c.Storage))
	for name := range c.Storage {
		blobs = append(blobs, name)
	}

	return blobs
}
