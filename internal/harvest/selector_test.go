package harvest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNavGuardOnResults(t *testing.T) {
	guard, err := newNavGuard("https://www.xiaohongshu.com", "search_result")
	require.NoError(t, err)

	tests := []struct {
		name     string
		location string
		want     bool
	}{
		{"results listing", "https://www.xiaohongshu.com/search_result?keyword=food", true},
		{"results listing without query", "https://www.xiaohongshu.com/search_result", true},
		{"detail page on same host", "https://www.xiaohongshu.com/explore/65f1a2b3", false},
		{"landing page", "https://www.xiaohongshu.com/", false},
		{"other host with matching path", "https://phish.example/search_result", false},
		{"empty", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, guard.onResults(tt.location))
		})
	}
}

func TestNavGuardRejectsHostlessBase(t *testing.T) {
	_, err := newNavGuard("not a url", "search_result")
	assert.Error(t, err)
}

func TestNextUnvisitedScansInOrder(t *testing.T) {
	ctx := context.Background()
	visited := newMemVisited()
	_, err := visited.Mark(ctx, "aa01")
	require.NoError(t, err)

	cands := []Candidate{
		{ID: "aa01"},
		{ID: ""},
		{ID: "aa02"},
		{ID: "aa03"},
	}

	cand, found, err := nextUnvisited(ctx, visited, cands)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "aa02", cand.ID)
}

func TestNextUnvisitedAllSeen(t *testing.T) {
	ctx := context.Background()
	visited := newMemVisited()
	for _, id := range []string{"aa01", "aa02"} {
		_, err := visited.Mark(ctx, id)
		require.NoError(t, err)
	}

	_, found, err := nextUnvisited(ctx, visited, []Candidate{{ID: "aa01"}, {ID: "aa02"}})
	require.NoError(t, err)
	assert.False(t, found)
}

func TestNoteIDFromURL(t *testing.T) {
	assert.Equal(t, "65f1a2b3c4d5", NoteIDFromURL("https://www.xiaohongshu.com/explore/65f1a2b3c4d5?xsec_token=tk"))
	assert.Equal(t, "", NoteIDFromURL("https://www.xiaohongshu.com/search_result?keyword=x"))
	assert.Equal(t, "", NoteIDFromURL(""))
}
