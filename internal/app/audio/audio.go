// Package audio defines the contracts the playback core drives.
// The concrete implementation lives in internal/infra/lavalink; the core
// consumes only these interfaces so it can be exercised against fakes.
package audio

import (
	"context"

	"github.com/osa030/discbox/internal/domain/track"
)

// EventType represents a player lifecycle event type.
type EventType int

const (
	EventTrackStart EventType = iota // Node confirmed a track started playing
	EventTrackEnd                    // Current track finished (or was stopped)
)

// String returns the string representation of the event type.
func (e EventType) String() string {
	switch e {
	case EventTrackStart:
		return "track_start"
	case EventTrackEnd:
		return "track_end"
	default:
		return "unknown"
	}
}

// Event is a player lifecycle event emitted by the audio node.
type Event struct {
	Type  EventType
	Track string // Encoded track reference (empty for some end events)
}

// Player is one guild's voice session on the audio node.
type Player interface {
	// Connect requests a voice connection to the given channel.
	Connect(channelID string) error
	// Disconnect leaves the voice channel and releases the session.
	Disconnect() error
	// Play instructs the node to play the encoded track.
	Play(encoded string) error
	// Stop stops the current track without disconnecting.
	Stop() error

	// ChannelID returns the connected voice channel, or "" when not connected.
	ChannelID() string

	// Events returns the lifecycle event stream for this player.
	// The channel is closed when the player is closed.
	Events() <-chan Event

	// SubmitVoiceServer feeds a voice-server assignment into the session.
	SubmitVoiceServer(token, endpoint string)
	// SubmitVoiceState feeds the bot's own voice-state change into the session.
	SubmitVoiceState(sessionID string)

	// Close releases local resources without signaling the node.
	Close()
}

// Engine is the audio node: track resolution plus player management.
type Engine interface {
	// Search resolves a query into zero or more playable tracks.
	Search(ctx context.Context, query string) (*track.LoadResult, error)
	// Decode looks up display metadata for an encoded track reference.
	Decode(ctx context.Context, encoded string) (*track.Info, error)
	// NewPlayer creates the voice session for a guild.
	// Fails if the node is unavailable; never returns a nil player with nil error.
	NewPlayer(guildID string) (Player, error)
	// RemovePlayer discards a guild's session on the node side.
	RemovePlayer(guildID string)
}
