// Package local implements a local filesystem blob provider.
package local

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Provider writes blobs under a base directory.
type Provider struct {
	baseDir string
}

// New verifies the base directory is usable and returns a Provider.
func New(baseDir string) (*Provider, error) {
	if strings.TrimSpace(baseDir) == "" {
		return nil, fmt.Errorf("base directory is required")
	}
	info, err := os.Stat(baseDir)
	switch {
	case os.IsNotExist(err):
		if mkErr := os.MkdirAll(baseDir, 0o750); mkErr != nil {
			return nil, fmt.Errorf("create base directory: %w", mkErr)
		}
	case err != nil:
		return nil, fmt.Errorf("stat base directory: %w", err)
	case !info.IsDir():
		return nil, fmt.Errorf("base directory path %s is not a directory", baseDir)
	}
	return &Provider{baseDir: baseDir}, nil
}

// Save writes the blob to a file and returns its file:// URI. Names must
// stay inside the base directory.
func (p *Provider) Save(_ context.Context, name string, data []byte) (string, error) {
	if strings.TrimSpace(name) == "" {
		return "", fmt.Errorf("blob name is required")
	}

	fullPath := filepath.Join(p.baseDir, name)
	cleanBase := filepath.Clean(p.baseDir)
	if !strings.HasPrefix(filepath.Clean(fullPath), cleanBase+string(filepath.Separator)) {
		return "", fmt.Errorf("blob name %q escapes the base directory", name)
	}

	if err := os.MkdirAll(filepath.Dir(fullPath), 0o750); err != nil {
		return "", fmt.Errorf("create blob directory: %w", err)
	}
	if err := os.WriteFile(fullPath, data, 0o600); err != nil {
		return "", fmt.Errorf("write blob: %w", err)
	}

	abs, err := filepath.Abs(fullPath)
	if err != nil {
		abs = fullPath
	}
	return "file://" + abs, nil
}
