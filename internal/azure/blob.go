package azure

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"go.uber.org/zap"
)

// BlobStorageClient archives protocol documents in Azure Blob Storage
type BlobStorageClient struct {
	client        *azblob.Client
	containerName string
	logger        *zap.Logger
}

// NewBlobStorageClient creates a new Azure Blob Storage client
func NewBlobStorageClient(accountName, accountKey, containerName string, logger *zap.Logger) (*BlobStorageClient, error) {
	if accountName == "" || accountKey == "" || containerName == "" {
		return nil, fmt.Errorf("accountName, accountKey, and containerName are required")
	}

	serviceURL := fmt.Sprintf("https://%s.blob.core.windows.net/", accountName)

	credential, err := azblob.NewSharedKeyCredential(accountName, accountKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create shared key credential: %w", err)
	}

	client, err := azblob.NewClientWithSharedKeyCredential(serviceURL, credential, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create blob client: %w", err)
	}

	return &BlobStorageClient{
		client:        client,
		containerName: containerName,
		logger:        logger,
	}, nil
}

// ProtocolBlobName builds the archive path of a user's protocol document
func ProtocolBlobName(userID, filename string, at time.Time) string {
	name := path.Base(strings.TrimSpace(filename))
	if name == "" || name == "." || name == "/" {
		name = "protocol.txt"
	}
	return fmt.Sprintf("protocols/%s/%s-%s", userID, at.UTC().Format("20060102T150405Z"), name)
}

// UploadProtocolDocument stores the raw document a protocol was extracted from
func (c *BlobStorageClient) UploadProtocolDocument(ctx context.Context, userID, filename, contentType string, data []byte) (string, error) {
	if userID == "" {
		return "", fmt.Errorf("userID is required")
	}
	if len(data) == 0 {
		return "", fmt.Errorf("document is empty")
	}

	blobName := ProtocolBlobName(userID, filename, time.Now())

	c.logger.Info("uploading protocol document to blob storage",
		zap.String("blob_name", blobName),
		zap.Int("size_bytes", len(data)),
	)

	blobClient := c.client.ServiceClient().NewContainerClient(c.containerName).NewBlockBlobClient(blobName)

	_, err := blobClient.UploadBuffer(ctx, data, &azblob.UploadBufferOptions{
		Metadata: map[string]*string{
			"contenttype": toPtr(contentType),
			"userid":      toPtr(userID),
		},
	})
	if err != nil {
		c.logger.Error("failed to upload protocol document",
			zap.String("blob_name", blobName),
			zap.Error(err),
		)
		return "", fmt.Errorf("failed to upload protocol document: %w", err)
	}

	return blobName, nil
}

// DownloadProtocolDocument reads an archived protocol document
func (c *BlobStorageClient) DownloadProtocolDocument(ctx context.Context, blobName string) ([]byte, error) {
	if blobName == "" {
		return nil, fmt.Errorf("blobName is required")
	}

	blobClient := c.client.ServiceClient().NewContainerClient(c.containerName).NewBlockBlobClient(blobName)

	downloadResponse, err := blobClient.DownloadStream(ctx, nil)
	if err != nil {
		c.logger.Error("failed to download protocol document",
			zap.String("blob_name", blobName),
			zap.Error(err),
		)
		return nil, fmt.Errorf("failed to download protocol document: %w", err)
	}
	defer downloadResponse.Body.Close()

	data, err := io.ReadAll(downloadResponse.Body)
	if err != nil {
		c.logger.Error("failed to read protocol document",
			zap.String("blob_name", blobName),
			zap.Error(err),
		)
		return nil, fmt.Errorf("failed to read protocol document: %w", err)
	}

	return data, nil
}

// DeleteProtocolDocument removes an archived document. A missing blob is not an error.
func (c *BlobStorageClient) DeleteProtocolDocument(ctx context.Context, blobName string) error {
	if blobName == "" {
		return nil
	}

	blobClient := c.client.ServiceClient().NewContainerClient(c.containerName).NewBlockBlobClient(blobName)

	if _, err := blobClient.Delete(ctx, nil); err != nil {
		if strings.Contains(err.Error(), "BlobNotFound") {
			return nil
		}
		c.logger.Error("failed to delete protocol document",
			zap.String("blob_name", blobName),
			zap.Error(err),
		)
		return fmt.Errorf("failed to delete protocol document: %w", err)
	}

	c.logger.Info("protocol document deleted", zap.String("blob_name", blobName))
	return nil
}

func toPtr(s string) *string {
	return &s
}
