package queue

import (
	"context"
	"fmt"
	"sync"
	"time"

	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/discbox/internal/app/audio"
	"github.com/osa030/discbox/internal/domain/track"
)

// Replier is the text destination for status messages.
// Sends are fire and forget; a failed send never feeds back into queue state.
type Replier interface {
	Send(content string) error
}

// defaultDecodeTimeout bounds the metadata lookup for the "now playing"
// message. The lookup is decorative, so a slow node only costs the message.
const defaultDecodeTimeout = 5 * time.Second

// Queue is one guild's ordered playback queue plus its voice session.
// All mutation of pending/current/nowPlaying happens under mu; the
// advancement loop and the command handlers share that critical section,
// which is what prevents two concurrent callers from both observing
// "nothing playing" and double-issuing a play instruction. The queue
// tracks the issued track itself rather than asking the node: node-side
// state can change before the corresponding event is handled here.
type Queue struct {
	mu sync.Mutex

	guildID   string
	sessionID string // Correlation id for logs

	engine audio.Engine
	player audio.Player
	reply  Replier

	pending    []track.Info
	current    string // Encoded track issued to the node, "" when idle
	nowPlaying *track.Info
	state      State

	nowPlayingFormat string
	decodeTimeout    time.Duration

	registry  *Registry
	closeOnce sync.Once
	done      chan struct{}
}

// GuildID returns the guild this queue belongs to.
func (q *Queue) GuildID() string {
	return q.guildID
}

// Player returns the guild's voice session handle.
func (q *Queue) Player() audio.Player {
	return q.player
}

// State returns the current playback state.
func (q *Queue) State() State {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.state
}

// NowPlaying returns the track confirmed playing by the node, if any.
func (q *Queue) NowPlaying() (track.Info, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.nowPlaying == nil {
		return track.Info{}, false
	}
	return *q.nowPlaying, true
}

// Size returns the number of pending tracks.
func (q *Queue) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Done returns a channel that is closed when the queue has been torn down.
func (q *Queue) Done() <-chan struct{} {
	return q.done
}

// Enqueue appends tracks to the pending list and, when no track has been
// issued to the node, pops the head and instructs the node to play it.
// When the session has no voice channel yet it is told to connect to
// channelID. The whole sequence holds the guild's critical section so it
// cannot interleave with end-event advancement; the issued-track check
// reads queue-owned state, so a track the node already finished still
// counts as playing until the end event is handled here.
func (q *Queue) Enqueue(tracks []track.Info, channelID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.pending = append(q.pending, tracks...)
	zlog.Debug().Msgf("queue: enqueued: guild=%s session=%s added=%d pending=%d",
		q.guildID, q.sessionID, len(tracks), len(q.pending))

	if q.current == "" && len(q.pending) > 0 {
		next := q.pending[0]
		q.pending = q.pending[1:]
		if err := q.player.Play(next.Encoded); err != nil {
			zlog.Error().Msgf("queue: play failed: guild=%s track=%s err=%v", q.guildID, next.Label(), err)
			return err
		}
		q.current = next.Encoded
	}

	if q.player.ChannelID() == "" && channelID != "" {
		if err := q.player.Connect(channelID); err != nil {
			zlog.Error().Msgf("queue: connect failed: guild=%s channel=%s err=%v", q.guildID, channelID, err)
			return err
		}
	}

	return nil
}

// run consumes the player's lifecycle events and drives queue advancement.
// It exits when the queue drains to its terminal state or the player's
// event channel is closed.
func (q *Queue) run() {
	for evt := range q.player.Events() {
		switch evt.Type {
		case audio.EventTrackStart:
			q.onTrackStart(evt.Track)
		case audio.EventTrackEnd:
			if q.onTrackEnd() {
				return
			}
		}
	}
}

// onTrackStart records the started track and announces it. Metadata decode
// is strictly decorative: on failure the status message is skipped and the
// state transition happens anyway.
func (q *Queue) onTrackStart(encoded string) {
	ctx, cancel := context.WithTimeout(context.Background(), q.decodeTimeout)
	info, err := q.engine.Decode(ctx, encoded)
	cancel()

	q.mu.Lock()
	if err != nil || info == nil {
		q.nowPlaying = &track.Info{Encoded: encoded}
	} else {
		cp := *info
		q.nowPlaying = &cp
	}
	q.state = StatePlaying
	q.mu.Unlock()

	if err != nil || info == nil {
		zlog.Warn().Msgf("queue: decode failed, skipping now-playing message: guild=%s err=%v", q.guildID, err)
		return
	}

	zlog.Info().Msgf("queue: track started: guild=%s session=%s track=%s", q.guildID, q.sessionID, info.Label())
	if err := q.reply.Send(fmt.Sprintf(q.nowPlayingFormat, info.Label(), info.URI)); err != nil {
		zlog.Warn().Msgf("queue: now-playing message failed: guild=%s err=%v", q.guildID, err)
	}
}

// onTrackEnd advances the queue. Returns true when the queue reached its
// terminal state and the advancement loop should stop.
func (q *Queue) onTrackEnd() bool {
	q.mu.Lock()
	q.nowPlaying = nil
	q.current = ""
	q.state = StateIdle

	if len(q.pending) > 0 {
		next := q.pending[0]
		q.pending = q.pending[1:]
		err := q.player.Play(next.Encoded)
		if err == nil {
			q.current = next.Encoded
		}
		q.mu.Unlock()

		if err != nil {
			// No automatic retry; the queue stays idle until the next
			// command or end event triggers another attempt.
			zlog.Error().Msgf("queue: advance failed: guild=%s track=%s err=%v", q.guildID, next.Label(), err)
		}
		return false
	}
	q.mu.Unlock()

	zlog.Info().Msgf("queue: drained, tearing down: guild=%s session=%s", q.guildID, q.sessionID)
	q.teardown()
	return true
}

// teardown disconnects the voice session and removes the queue from the
// registry. Absence from the registry is the terminated state.
func (q *Queue) teardown() {
	q.shutdown()
	q.registry.remove(q.guildID)
}

// shutdown releases the voice session. Safe to call more than once; the
// registry's Close and the queue's own terminal transition can race here.
func (q *Queue) shutdown() {
	q.closeOnce.Do(func() {
		if err := q.player.Disconnect(); err != nil {
			zlog.Warn().Msgf("queue: disconnect failed: guild=%s err=%v", q.guildID, err)
		}
		q.player.Close()
		close(q.done)
	})
}
