// Package gcs implements a blob provider backed by Google Cloud Storage.
package gcs

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"cloud.google.com/go/storage"
)

// Provider uploads blobs to a configured GCS bucket.
type Provider struct {
	client *storage.Client
	bucket string
}

// New wraps an existing storage client.
func New(client *storage.Client, bucket string) (*Provider, error) {
	if client == nil {
		return nil, fmt.Errorf("storage client is required")
	}
	if bucket == "" {
		return nil, fmt.Errorf("bucket name is required")
	}
	return &Provider{client: client, bucket: bucket}, nil
}

// Save uploads the blob and returns its gs:// URI.
func (p *Provider) Save(ctx context.Context, name string, data []byte) (string, error) {
	if name == "" {
		return "", fmt.Errorf("blob name is required")
	}
	writer := p.client.Bucket(p.bucket).Object(name).NewWriter(ctx)
	if _, err := io.Copy(writer, bytes.NewReader(data)); err != nil {
		if closeErr := writer.Close(); closeErr != nil {
			return "", fmt.Errorf("upload blob: %w (close writer: %v)", err, closeErr)
		}
		return "", fmt.Errorf("upload blob: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("close writer: %w", err)
	}
	return fmt.Sprintf("gs://%s/%s", p.bucket, name), nil
}
