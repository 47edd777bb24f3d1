// Package track provides the playable track domain entities.
package track

import "time"

// Info describes a playable track as resolved by the audio node.
// Immutable once obtained from the resolver.
type Info struct {
	Encoded    string        // Opaque playable reference understood by the node
	Title      string        // Track title
	Author     string        // Uploader / artist name
	URI        string        // Source URI
	SourceName string        // e.g. "youtube", "soundcloud"
	Duration   time.Duration // Track length (zero for live streams)
	IsStream   bool          // Live stream flag
}

// Label returns the display name for the track.
// Falls back to the source URI when the node supplied no title.
func (i Info) Label() string {
	if i.Title != "" {
		return i.Title
	}
	return i.URI
}

// LoadType classifies the outcome of a track resolution.
// Values match the audio node's wire representation.
type LoadType string

const (
	LoadFailed     LoadType = "LOAD_FAILED"
	NoMatches      LoadType = "NO_MATCHES"
	TrackLoaded    LoadType = "TRACK_LOADED"
	SearchResult   LoadType = "SEARCH_RESULT"
	PlaylistLoaded LoadType = "PLAYLIST_LOADED"
)

// LoadResult is the resolver's answer to a single query.
type LoadResult struct {
	Type         LoadType
	Tracks       []Info
	PlaylistName string // Set only for PlaylistLoaded
}

// First returns the first resolved track.
func (r *LoadResult) First() (Info, bool) {
	if len(r.Tracks) == 0 {
		return Info{}, false
	}
	return r.Tracks[0], true
}

// Empty reports whether the resolution produced nothing playable,
// either because the lookup failed or nothing matched.
func (r *LoadResult) Empty() bool {
	switch r.Type {
	case LoadFailed, NoMatches:
		return true
	}
	return len(r.Tracks) == 0
}
