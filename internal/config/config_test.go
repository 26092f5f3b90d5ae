package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 20, cfg.Harvest.Quota)
	assert.Equal(t, 5, cfg.Harvest.StallThreshold)
	assert.Equal(t, 6, cfg.Harvest.CandidateWindow)
	assert.Equal(t, "memory", cfg.Visited.Backend)
	assert.Equal(t, "local", cfg.Blobs.Backend)
	assert.Equal(t, 3, cfg.API.RetryAttempts)
	assert.Equal(t, 5, cfg.Store.FlushThreshold)
	assert.Equal(t, 30*time.Second, cfg.FlushInterval())
	assert.Equal(t, 60*time.Second, cfg.APITimeout())
	assert.False(t, cfg.Server.Enabled)
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	payload := []byte(`
harvest:
  search_term: "travel gear"
  quota: 7
store:
  flush_threshold: 2
server:
  enabled: true
  port: 9091
`)
	require.NoError(t, os.WriteFile(path, payload, 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "travel gear", cfg.Harvest.SearchTerm)
	assert.Equal(t, 7, cfg.Harvest.Quota)
	assert.Equal(t, 2, cfg.Store.FlushThreshold)
	assert.Equal(t, 9091, cfg.Server.Port)
}

func TestValidate(t *testing.T) {
	base, err := Load("")
	require.NoError(t, err)

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "zero quota",
			mutate:  func(c *Config) { c.Harvest.Quota = 0 },
			wantErr: "harvest.quota",
		},
		{
			name:    "zero stall threshold",
			mutate:  func(c *Config) { c.Harvest.StallThreshold = 0 },
			wantErr: "harvest.stall_threshold",
		},
		{
			name:    "postgres without dsn",
			mutate:  func(c *Config) { c.Visited.Backend = "postgres" },
			wantErr: "visited.dsn",
		},
		{
			name:    "unknown visited backend",
			mutate:  func(c *Config) { c.Visited.Backend = "redis" },
			wantErr: "visited.backend",
		},
		{
			name:    "gcs without bucket",
			mutate:  func(c *Config) { c.Blobs.Backend = "gcs" },
			wantErr: "blobs.gcs_bucket",
		},
		{
			name:    "publisher enabled without topic",
			mutate:  func(c *Config) { c.Publisher.Enabled = true },
			wantErr: "publisher.project_id",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := base
			tc.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}
}
