// Package router forwards raw voice-signaling events from the gateway to
// the guild's playback session, when one exists.
package router

import (
	"encoding/json"
	"sync"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/discbox/internal/app/queue"
)

// Gateway event kinds the router acts on. Everything else is ignored.
const (
	KindVoiceServerUpdate = "VOICE_SERVER_UPDATE"
	KindVoiceStateUpdate  = "VOICE_STATE_UPDATE"
)

type voiceServerUpdate struct {
	GuildID  string `json:"guild_id"`
	Token    string `json:"token"`
	Endpoint string `json:"endpoint"`
}

type voiceStateUpdate struct {
	GuildID   string `json:"guild_id"`
	UserID    string `json:"user_id"`
	SessionID string `json:"session_id"`
}

// Router dispatches signaling events to playback sessions by guild id.
// Events for guilds without a session are dropped, as are voice-state
// changes of users other than the bot itself.
type Router struct {
	registry *queue.Registry

	mu     sync.RWMutex
	userID string
}

// New creates a router over the given registry.
func New(registry *queue.Registry) *Router {
	return &Router{registry: registry}
}

// SetUserID records the bot's own user id, known once the gateway reports
// ready. Voice-state events are filtered against it.
func (r *Router) SetUserID(userID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.userID = userID
}

// Dispatch routes one raw gateway event. Unknown kinds and events for
// guilds without an active session are dropped without error.
func (r *Router) Dispatch(kind string, payload []byte) error {
	switch kind {
	case KindVoiceServerUpdate:
		return r.dispatchVoiceServer(payload)
	case KindVoiceStateUpdate:
		return r.dispatchVoiceState(payload)
	default:
		return nil
	}
}

func (r *Router) dispatchVoiceServer(payload []byte) error {
	var evt voiceServerUpdate
	if err := json.Unmarshal(payload, &evt); err != nil {
		return errors.Wrap(err, "failed to parse voice server update")
	}

	q, ok := r.registry.Get(evt.GuildID)
	if !ok {
		return nil
	}

	zlog.Debug().Msgf("router: voice server update: guild=%s endpoint=%s", evt.GuildID, evt.Endpoint)
	q.Player().SubmitVoiceServer(evt.Token, evt.Endpoint)
	return nil
}

func (r *Router) dispatchVoiceState(payload []byte) error {
	var evt voiceStateUpdate
	if err := json.Unmarshal(payload, &evt); err != nil {
		return errors.Wrap(err, "failed to parse voice state update")
	}

	r.mu.RLock()
	userID := r.userID
	r.mu.RUnlock()
	if userID == "" || evt.UserID != userID {
		return nil
	}

	q, ok := r.registry.Get(evt.GuildID)
	if !ok {
		return nil
	}

	zlog.Debug().Msgf("router: voice state update: guild=%s session=%s", evt.GuildID, evt.SessionID)
	q.Player().SubmitVoiceState(evt.SessionID)
	return nil
}
