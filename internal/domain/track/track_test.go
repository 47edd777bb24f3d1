package track

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLoadResult_Empty(t *testing.T) {
	tests := []struct {
		name     string
		result   LoadResult
		expected bool
	}{
		{
			name:     "load failed",
			result:   LoadResult{Type: LoadFailed},
			expected: true,
		},
		{
			name:     "no matches",
			result:   LoadResult{Type: NoMatches},
			expected: true,
		},
		{
			name:     "search result with tracks",
			result:   LoadResult{Type: SearchResult, Tracks: []Info{{Encoded: "abc"}}},
			expected: false,
		},
		{
			name:     "playlist with tracks",
			result:   LoadResult{Type: PlaylistLoaded, Tracks: []Info{{Encoded: "a"}, {Encoded: "b"}}},
			expected: false,
		},
		{
			name:     "track loaded but empty track list",
			result:   LoadResult{Type: TrackLoaded},
			expected: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.result.Empty())
		})
	}
}

func TestLoadResult_First(t *testing.T) {
	r := LoadResult{
		Type: SearchResult,
		Tracks: []Info{
			{Encoded: "first", Title: "First"},
			{Encoded: "second", Title: "Second"},
		},
	}

	first, ok := r.First()
	assert.True(t, ok)
	assert.Equal(t, "first", first.Encoded)

	empty := LoadResult{Type: NoMatches}
	_, ok = empty.First()
	assert.False(t, ok)
}

func TestInfo_Label(t *testing.T) {
	tests := []struct {
		name     string
		info     Info
		expected string
	}{
		{
			name:     "title preferred",
			info:     Info{Title: "Lofi Beats", URI: "https://example.com/watch?v=x"},
			expected: "Lofi Beats",
		},
		{
			name:     "uri fallback",
			info:     Info{URI: "https://example.com/watch?v=x"},
			expected: "https://example.com/watch?v=x",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.info.Label())
		})
	}
}
