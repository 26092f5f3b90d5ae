package local

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSaveWritesFileAndReturnsURI(t *testing.T) {
	base := t.TempDir()
	p, err := New(base)
	require.NoError(t, err)

	uri, err := p.Save(context.Background(), "videos/abc.mp4", []byte("payload"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(uri, "file://"), "uri %q", uri)

	data, err := os.ReadFile(filepath.Join(base, "videos", "abc.mp4"))
	require.NoError(t, err)
	assert.Equal(t, "payload", string(data))
}

func TestSaveRejectsPathTraversal(t *testing.T) {
	p, err := New(t.TempDir())
	require.NoError(t, err)

	_, err = p.Save(context.Background(), "../escape.mp4", []byte("x"))
	assert.Error(t, err)
}

func TestNewCreatesMissingBaseDir(t *testing.T) {
	base := filepath.Join(t.TempDir(), "nested", "blobs")
	_, err := New(base)
	require.NoError(t, err)

	info, err := os.Stat(base)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestNewRequiresBaseDir(t *testing.T) {
	_, err := New("  ")
	assert.Error(t, err)
}
