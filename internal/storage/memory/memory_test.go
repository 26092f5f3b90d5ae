package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSaveAndGet(t *testing.T) {
	p := New()

	uri, err := p.Save(context.Background(), "videos/v1.mp4", []byte("bytes"))
	require.NoError(t, err)
	assert.Equal(t, "memory://videos/v1.mp4", uri)

	data, ok := p.Get("videos/v1.mp4")
	require.True(t, ok)
	assert.Equal(t, "bytes", string(data))
	assert.Equal(t, 1, p.Len())
}

func TestSaveCopiesData(t *testing.T) {
	p := New()
	payload := []byte("original")
	_, err := p.Save(context.Background(), "v", payload)
	require.NoError(t, err)

	payload[0] = 'X'
	data, _ := p.Get("v")
	assert.Equal(t, "original", string(data))
}
