// Package storage defines the blob provider interface used for downloaded
// media assets. Implementations live in subpackages so the GCS client is
// only linked when configured.
package storage

import "context"

// Provider persists one named blob and returns a URI for the record.
type Provider interface {
	Save(ctx context.Context, name string, data []byte) (string, error)
}
