package queue

import (
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/discbox/internal/app/audio"
	"github.com/osa030/discbox/internal/domain/track"
)

var (
	ErrSessionExists = errors.New("a playback session already exists for this guild")
	ErrNoPlayer      = errors.New("audio node returned no player")
)

// defaultNowPlayingFormat takes the track label and the source URI.
const defaultNowPlayingFormat = "🎶 Playing [**%s**](%s)"

// Config holds registry configuration.
type Config struct {
	NowPlayingFormat string        // Status message format: label, URI
	DecodeTimeout    time.Duration // Bound on metadata lookups
}

// Registry is the process-wide guild-to-queue table. It owns queue
// creation and teardown; at most one queue exists per guild at a time.
type Registry struct {
	mu     sync.RWMutex
	engine audio.Engine
	config Config
	queues map[string]*Queue
}

// NewRegistry creates a new queue registry backed by the given engine.
func NewRegistry(engine audio.Engine, config Config) *Registry {
	if config.NowPlayingFormat == "" {
		config.NowPlayingFormat = defaultNowPlayingFormat
	}
	if config.DecodeTimeout <= 0 {
		config.DecodeTimeout = defaultDecodeTimeout
	}
	return &Registry{
		engine: engine,
		config: config,
		queues: make(map[string]*Queue),
	}
}

// Get retrieves a guild's queue.
func (r *Registry) Get(guildID string) (*Queue, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	q, ok := r.queues[guildID]
	return q, ok
}

// Create builds the queue and its voice session for a guild and starts the
// advancement loop. Fails with ErrSessionExists when the guild already has
// a live queue.
func (r *Registry) Create(guildID string, reply Replier) (*Queue, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.queues[guildID]; ok {
		return nil, ErrSessionExists
	}

	player, err := r.engine.NewPlayer(guildID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create player")
	}
	if player == nil {
		return nil, ErrNoPlayer
	}

	q := &Queue{
		guildID:          guildID,
		sessionID:        uuid.New().String(),
		engine:           r.engine,
		player:           player,
		reply:            reply,
		pending:          make([]track.Info, 0),
		state:            StateIdle,
		nowPlayingFormat: r.config.NowPlayingFormat,
		decodeTimeout:    r.config.DecodeTimeout,
		registry:         r,
		done:             make(chan struct{}),
	}
	r.queues[guildID] = q

	go q.run()

	zlog.Info().Msgf("registry: queue created: guild=%s session=%s", guildID, q.sessionID)
	return q, nil
}

// Count returns the number of live queues.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.queues)
}

// Close tears down every live queue. Used on process shutdown; engine
// sessions are not recoverable across restarts, so nothing is persisted.
func (r *Registry) Close() {
	r.mu.Lock()
	queues := make([]*Queue, 0, len(r.queues))
	for _, q := range r.queues {
		queues = append(queues, q)
	}
	r.queues = make(map[string]*Queue)
	r.mu.Unlock()

	for _, q := range queues {
		q.shutdown()
		r.engine.RemovePlayer(q.guildID)
	}
}

// remove drops a guild's queue and discards its node-side session.
func (r *Registry) remove(guildID string) {
	r.mu.Lock()
	_, ok := r.queues[guildID]
	delete(r.queues, guildID)
	r.mu.Unlock()

	if ok {
		r.engine.RemovePlayer(guildID)
		zlog.Info().Msgf("registry: queue removed: guild=%s", guildID)
	}
}
