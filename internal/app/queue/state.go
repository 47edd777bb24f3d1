// Package queue provides the per-guild playback queue and its registry.
package queue

// State represents a guild queue's playback state.
type State int

const (
	StateIdle    State = iota // No track playing (pending may be non-empty)
	StatePlaying              // Node confirmed a track is playing
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePlaying:
		return "playing"
	default:
		return "unknown"
	}
}
