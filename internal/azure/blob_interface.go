package azure

import (
	"context"
)

// DocumentStore archives the source documents of extracted protocols
type DocumentStore interface {
	UploadProtocolDocument(ctx context.Context, userID, filename, contentType string, data []byte) (string, error)
	DownloadProtocolDocument(ctx context.Context, blobName string) ([]byte, error)
	DeleteProtocolDocument(ctx context.Context, blobName string) error
}

var (
	_ DocumentStore = (*BlobStorageClient)(nil)
	_ DocumentStore = (*MockBlobStorageClient)(nil)
)
