package store

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sugetang/redharvest/internal/harvest"
)

func unit(id string) harvest.ContentUnit {
	return harvest.ContentUnit{
		ID:        id,
		Title:     "title " + id,
		MediaType: harvest.MediaImage,
		ImageRefs: []string{},
		Comments:  []harvest.Comment{},
	}
}

func readArtifact(t *testing.T, path string) []harvest.ContentUnit {
	t.Helper()
	file, err := os.Open(path)
	require.NoError(t, err)
	defer file.Close()

	var units []harvest.ContentUnit
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		var u harvest.ContentUnit
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &u))
		units = append(units, u)
	}
	require.NoError(t, scanner.Err())
	return units
}

func openTestStore(t *testing.T, cfg Config) (*Store, string) {
	t.Helper()
	if cfg.Path == "" {
		cfg.Path = filepath.Join(t.TempDir(), "harvest.jsonl")
	}
	s, err := Open(cfg, nil)
	require.NoError(t, err)
	return s, cfg.Path
}

func TestFlushAtExactThresholdInArrivalOrder(t *testing.T) {
	s, path := openTestStore(t, Config{FlushThreshold: 3, FlushInterval: time.Hour})

	require.NoError(t, s.Append(unit("a1")))
	require.NoError(t, s.Append(unit("a2")))
	assert.Empty(t, readArtifact(t, path), "nothing durable below the threshold")

	require.NoError(t, s.Append(unit("a3")))
	units := readArtifact(t, path)
	require.Len(t, units, 3)
	assert.Equal(t, "a1", units[0].ID)
	assert.Equal(t, "a2", units[1].ID)
	assert.Equal(t, "a3", units[2].ID)
}

func TestDuplicateAppendIsNoOp(t *testing.T) {
	s, path := openTestStore(t, Config{FlushThreshold: 2, FlushInterval: time.Hour})

	require.NoError(t, s.Append(unit("a1")))
	require.NoError(t, s.Append(unit("a1")))
	require.NoError(t, s.Append(unit("a1")))
	assert.Empty(t, readArtifact(t, path), "duplicates must not count toward the threshold")

	require.NoError(t, s.Append(unit("a2")))
	assert.Len(t, readArtifact(t, path), 2)
}

func TestIntervalTriggerFlushesSmallBuffer(t *testing.T) {
	s, path := openTestStore(t, Config{FlushThreshold: 100, FlushInterval: 10 * time.Second})

	base := time.Now()
	s.now = func() time.Time { return base }
	s.lastFlush = base

	require.NoError(t, s.Append(unit("a1")))
	assert.Empty(t, readArtifact(t, path))

	s.now = func() time.Time { return base.Add(11 * time.Second) }
	require.NoError(t, s.Append(unit("a2")))
	assert.Len(t, readArtifact(t, path), 2)
}

func TestCloseFlushesRemainder(t *testing.T) {
	s, path := openTestStore(t, Config{FlushThreshold: 100, FlushInterval: time.Hour})

	require.NoError(t, s.Append(unit("a1")))
	require.NoError(t, s.Append(unit("a2")))
	require.NoError(t, s.Close())

	units := readArtifact(t, path)
	require.Len(t, units, 2)
	assert.Equal(t, "title a1", units[0].Title)
}

func TestReopenLoadsExistingIDs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "harvest.jsonl")

	s1, _ := openTestStore(t, Config{Path: path, FlushThreshold: 1})
	require.NoError(t, s1.Append(unit("a1")))
	require.NoError(t, s1.Close())

	s2, _ := openTestStore(t, Config{Path: path, FlushThreshold: 1})
	defer func() { require.NoError(t, s2.Close()) }()

	require.NoError(t, s2.Append(unit("a1")))
	require.NoError(t, s2.Append(unit("a2")))

	units := readArtifact(t, path)
	require.Len(t, units, 2)
	assert.Equal(t, "a1", units[0].ID)
	assert.Equal(t, "a2", units[1].ID)
	assert.Equal(t, 2, s2.Len())
}

func TestAppendRejectsEmptyID(t *testing.T) {
	s, _ := openTestStore(t, Config{})
	assert.Error(t, s.Append(harvest.ContentUnit{}))
}

func TestAllFieldsAlwaysPresentInArtifact(t *testing.T) {
	s, path := openTestStore(t, Config{FlushThreshold: 1})
	require.NoError(t, s.Append(unit("a1")))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	var rec map[string]any
	require.NoError(t, json.Unmarshal(raw, &rec))
	for _, key := range []string{
		"id", "source_url", "title", "body", "publish_date",
		"media_type", "image_refs", "video_ref", "comments",
	} {
		assert.Contains(t, rec, key)
	}
}
