package lavalink

import (
	"sync"

	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/discbox/internal/app/audio"
)

// eventBuffer sizes the lifecycle channel. The consumer is the queue's
// advancement loop; if it ever falls this far behind, events are dropped
// rather than blocking the node read loop.
const eventBuffer = 16

// Player is one guild's voice session. Voice credentials arrive in two
// halves (server assignment from the gateway, the bot's own state change);
// the session is registered with the node once both are present.
type Player struct {
	client  *Client
	guildID string

	mu            sync.Mutex
	channelID     string
	sessionID     string
	voiceToken    string
	voiceEndpoint string

	events    chan audio.Event
	closeOnce sync.Once
}

func newPlayer(c *Client, guildID string) *Player {
	return &Player{
		client:  c,
		guildID: guildID,
		events:  make(chan audio.Event, eventBuffer),
	}
}

// Connect asks the gateway to join the voice channel. The node learns
// about the connection through the signaling events that follow.
func (p *Player) Connect(channelID string) error {
	if err := p.client.gateway.JoinVoice(p.guildID, channelID); err != nil {
		return err
	}

	p.mu.Lock()
	p.channelID = channelID
	p.mu.Unlock()
	return nil
}

// Disconnect leaves the voice channel.
func (p *Player) Disconnect() error {
	err := p.client.gateway.LeaveVoice(p.guildID)

	p.mu.Lock()
	p.channelID = ""
	p.mu.Unlock()
	return err
}

// Play instructs the node to play the encoded track. The queue tracks
// what it issued; the player only carries the instruction.
func (p *Player) Play(encoded string) error {
	return p.client.send(map[string]any{
		"op":      "play",
		"guildId": p.guildID,
		"track":   encoded,
	})
}

// Stop stops the current track without disconnecting.
func (p *Player) Stop() error {
	return p.client.send(map[string]any{
		"op":      "stop",
		"guildId": p.guildID,
	})
}

// ChannelID returns the connected voice channel, or "" when not connected.
func (p *Player) ChannelID() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.channelID
}

// Events returns the lifecycle event stream for this player.
func (p *Player) Events() <-chan audio.Event {
	return p.events
}

// SubmitVoiceServer feeds a voice-server assignment into the session.
func (p *Player) SubmitVoiceServer(token, endpoint string) {
	p.mu.Lock()
	p.voiceToken = token
	p.voiceEndpoint = endpoint
	p.mu.Unlock()

	p.forwardVoiceUpdate()
}

// SubmitVoiceState feeds the bot's own voice-state change into the session.
func (p *Player) SubmitVoiceState(sessionID string) {
	p.mu.Lock()
	p.sessionID = sessionID
	p.mu.Unlock()

	p.forwardVoiceUpdate()
}

// forwardVoiceUpdate registers the voice session with the node once both
// signaling halves have arrived.
func (p *Player) forwardVoiceUpdate() {
	p.mu.Lock()
	sessionID := p.sessionID
	token := p.voiceToken
	endpoint := p.voiceEndpoint
	p.mu.Unlock()

	if sessionID == "" || token == "" || endpoint == "" {
		return
	}

	err := p.client.send(map[string]any{
		"op":        "voiceUpdate",
		"guildId":   p.guildID,
		"sessionId": sessionID,
		"event": map[string]any{
			"token":    token,
			"guild_id": p.guildID,
			"endpoint": endpoint,
		},
	})
	if err != nil {
		zlog.Warn().Msgf("lavalink: voice update failed: guild=%s err=%v", p.guildID, err)
	}
}

// Close releases local resources without signaling the node.
func (p *Player) Close() {
	p.closeOnce.Do(func() { close(p.events) })
}

func (p *Player) onTrackStart(encoded string) {
	p.emit(audio.Event{Type: audio.EventTrackStart, Track: encoded})
}

func (p *Player) onTrackEnd() {
	p.emit(audio.Event{Type: audio.EventTrackEnd})
}

func (p *Player) emit(evt audio.Event) {
	defer func() {
		// The channel closes when the queue tears down; an event racing
		// that close is safe to discard.
		if recover() != nil {
			zlog.Debug().Msgf("lavalink: event after close: guild=%s type=%s", p.guildID, evt.Type)
		}
	}()

	select {
	case p.events <- evt:
	default:
		zlog.Warn().Msgf("lavalink: event dropped: guild=%s type=%s", p.guildID, evt.Type)
	}
}

var _ audio.Player = (*Player)(nil)
