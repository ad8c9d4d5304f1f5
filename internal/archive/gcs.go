package archive

import (
	"context"
	"fmt"
	"path"

	"cloud.google.com/go/storage"
	"go.uber.org/zap"
)

// GCSProvider archives workbooks in a Google Cloud Storage bucket.
// Authentication uses Application Default Credentials.
type GCSProvider struct {
	client     *storage.Client
	bucketName string
	prefix     string
	logger     *zap.Logger
}

// NewGCSProvider initializes a GCS client and verifies bucket access so a
// misconfigured deployment fails at startup instead of on first download.
// The prefix, when set, namespaces every archived object.
func NewGCSProvider(ctx context.Context, bucketName, prefix string, logger *zap.Logger) (*GCSProvider, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("create GCS client: %w", err)
	}
	if _, err := client.Bucket(bucketName).Attrs(ctx); err != nil {
		if closeErr := client.Close(); closeErr != nil {
			logger.Warn("close GCS client after bucket check failure", zap.Error(closeErr))
		}
		return nil, fmt.Errorf("get GCS bucket %q attributes: %w", bucketName, err)
	}
	return &GCSProvider{client: client, bucketName: bucketName, prefix: prefix, logger: logger}, nil
}

// Save uploads the workbook bytes to the named object in the bucket.
func (g *GCSProvider) Save(ctx context.Context, objectName string, data []byte) error {
	if g.prefix != "" {
		objectName = path.Join(g.prefix, objectName)
	}
	wc := g.client.Bucket(g.bucketName).Object(objectName).NewWriter(ctx)
	if _, err := wc.Write(data); err != nil {
		if closeErr := wc.Close(); closeErr != nil {
			g.logger.Warn("close GCS writer after write failure", zap.Error(closeErr))
		}
		return fmt.Errorf("write GCS object %s: %w", objectName, err)
	}
	// Close finalizes the upload and flushes buffered data.
	if err := wc.Close(); err != nil {
		return fmt.Errorf("close GCS writer for object %s: %w", objectName, err)
	}
	return nil
}

// Close releases the underlying storage client.
func (g *GCSProvider) Close() error {
	if err := g.client.Close(); err != nil {
		return fmt.Errorf("close GCS client: %w", err)
	}
	return nil
}
