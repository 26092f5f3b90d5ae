package media

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sugetang/redharvest/internal/storage/memory"
)

func TestDownloadStoresAsset(t *testing.T) {
	var gotReferer string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotReferer = r.Header.Get("Referer")
		_, _ = w.Write([]byte("video-bytes"))
	}))
	defer srv.Close()

	blobs := memory.New()
	d := New(Config{}, blobs, nil)

	uri, err := d.Download(context.Background(), "n1.mp4", srv.URL+"/pre/key")
	require.NoError(t, err)
	assert.Equal(t, "memory://videos/n1.mp4", uri)
	assert.Equal(t, refererHeader, gotReferer)

	data, ok := blobs.Get("videos/n1.mp4")
	require.True(t, ok)
	assert.Equal(t, "video-bytes", string(data))
}

func TestDownloadRejectsErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	d := New(Config{}, memory.New(), nil)
	_, err := d.Download(context.Background(), "n1.mp4", srv.URL)
	assert.Error(t, err)
}

func TestDownloadRejectsOversizedAsset(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write(make([]byte, 1024))
	}))
	defer srv.Close()

	blobs := memory.New()
	d := New(Config{MaxBytes: 512}, blobs, nil)
	_, err := d.Download(context.Background(), "n1.mp4", srv.URL)
	assert.Error(t, err)
	assert.Zero(t, blobs.Len())
}

func TestDownloadRequiresArguments(t *testing.T) {
	d := New(Config{}, memory.New(), nil)
	_, err := d.Download(context.Background(), "", "http://x")
	assert.Error(t, err)
	_, err = d.Download(context.Background(), "n", "")
	assert.Error(t, err)
}
