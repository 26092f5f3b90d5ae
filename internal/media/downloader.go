// Package media downloads resolved media assets into blob storage.
package media

import (
	"context"
	"fmt"
	"path"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/sugetang/redharvest/internal/storage"
)

// The CDN rejects requests without a plausible browser referer.
const refererHeader = "https://www.xiaohongshu.com"

// Config bounds one download.
type Config struct {
	Timeout   time.Duration
	UserAgent string
	// MaxBytes rejects assets larger than this. Zero means 512 MiB.
	MaxBytes int64
}

// Downloader fetches assets over HTTP and hands the bytes to a blob
// provider.
type Downloader struct {
	http     *resty.Client
	blobs    storage.Provider
	maxBytes int64
	logger   *zap.Logger
}

// New builds a Downloader writing through the given provider.
func New(cfg Config, blobs storage.Provider, logger *zap.Logger) *Downloader {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 2 * time.Minute
	}
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = 512 << 20
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	httpClient := resty.New().
		SetTimeout(cfg.Timeout).
		SetHeader("Referer", refererHeader)
	if cfg.UserAgent != "" {
		httpClient.SetHeader("User-Agent", cfg.UserAgent)
	}

	return &Downloader{
		http:     httpClient,
		blobs:    blobs,
		maxBytes: cfg.MaxBytes,
		logger:   logger,
	}
}

// Download fetches srcURL and stores it under "videos/<name>", returning the
// blob URI.
func (d *Downloader) Download(ctx context.Context, name, srcURL string) (string, error) {
	if name == "" || srcURL == "" {
		return "", fmt.Errorf("name and source url are required")
	}

	resp, err := d.http.R().SetContext(ctx).Get(srcURL)
	if err != nil {
		return "", fmt.Errorf("fetch %s: %w", srcURL, err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("fetch %s: status %d", srcURL, resp.StatusCode())
	}

	body := resp.Body()
	if int64(len(body)) > d.maxBytes {
		return "", fmt.Errorf("asset %s exceeds size limit (%d bytes)", name, len(body))
	}
	if len(body) == 0 {
		return "", fmt.Errorf("asset %s is empty", name)
	}

	uri, err := d.blobs.Save(ctx, path.Join("videos", name), body)
	if err != nil {
		return "", fmt.Errorf("store asset %s: %w", name, err)
	}

	d.logger.Info("media asset stored",
		zap.String("name", name),
		zap.Int("bytes", len(body)),
		zap.String("uri", uri),
	)
	return uri, nil
}
