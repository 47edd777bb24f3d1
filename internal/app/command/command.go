// Package command provides the join/play entry points exposed to the bot's
// command layer. User input errors are converted to replies here and never
// escape to terminate the process.
package command

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/discbox/internal/app/audio"
	"github.com/osa030/discbox/internal/app/queue"
	"github.com/osa030/discbox/internal/domain/track"
)

var (
	ErrNotInGuild     = errors.New("command invoked outside a guild")
	ErrNoVoiceChannel = errors.New("invoker is not in a voice channel")
	ErrWrongChannel   = errors.New("invoker is in a different voice channel")
)

// Messages holds the user-visible reply texts. Formats use the verbs
// documented per field; texts come from config, defaults match the bot's
// stock wording.
type Messages struct {
	NotInGuild     string // no verbs
	NoVoiceChannel string // no verbs
	SessionExists  string // no verbs
	WrongChannel   string // no verbs
	NothingFound   string // query
	Queued         string // label, URI
	QueuedPlaylist string // count, playlist name
	Connected      string // channel name, guild id, channel id
	GenericError   string // no verbs
}

// Config holds command handler configuration.
type Config struct {
	Messages       Messages
	DefaultSource  string        // Search prefix for non-URI queries, e.g. "ytsearch"
	ResolveTimeout time.Duration // Bound on resolver round trips
}

const (
	defaultSource         = "ytsearch"
	defaultResolveTimeout = 10 * time.Second
)

// Invocation is one command's context: where it was issued and where
// replies go.
type Invocation struct {
	GuildID          string
	VoiceChannelID   string // Invoker's current voice channel, "" when none
	VoiceChannelName string
	Reply            queue.Replier
}

// Handlers implements the join and play commands against a queue registry
// and an audio engine.
type Handlers struct {
	registry *queue.Registry
	engine   audio.Engine
	config   Config
}

// NewHandlers creates the command handlers.
func NewHandlers(registry *queue.Registry, engine audio.Engine, config Config) *Handlers {
	if config.DefaultSource == "" {
		config.DefaultSource = defaultSource
	}
	if config.ResolveTimeout <= 0 {
		config.ResolveTimeout = defaultResolveTimeout
	}
	applyMessageDefaults(&config.Messages)

	return &Handlers{
		registry: registry,
		engine:   engine,
		config:   config,
	}
}

func applyMessageDefaults(m *Messages) {
	if m.NotInGuild == "" {
		m.NotInGuild = "this command can only be run in guilds."
	}
	if m.NoVoiceChannel == "" {
		m.NoVoiceChannel = "join a voice channel"
	}
	if m.SessionExists == "" {
		m.SessionExists = "a player for this guild already exists."
	}
	if m.WrongChannel == "" {
		m.WrongChannel = "join my voice channel"
	}
	if m.NothingFound == "" {
		m.NothingFound = "Nothing found for: `%s`"
	}
	if m.Queued == "" {
		m.Queued = "👌 Queued [**%s**](%s)"
	}
	if m.QueuedPlaylist == "" {
		m.QueuedPlaylist = "👌 Queued `%d` tracks from playlist: **%s**"
	}
	if m.Connected == "" {
		m.Connected = "connected to [**%s**](https://discord.com/channels/%s/%s)"
	}
	if m.GenericError == "" {
		m.GenericError = "hmm, something weird happened"
	}
}

// HandleJoin creates a guild's playback session and connects it to the
// invoker's voice channel.
func (h *Handlers) HandleJoin(ctx context.Context, inv Invocation) error {
	if inv.GuildID == "" {
		h.send(inv, h.config.Messages.NotInGuild)
		return ErrNotInGuild
	}
	if inv.VoiceChannelID == "" {
		h.send(inv, h.config.Messages.NoVoiceChannel)
		return ErrNoVoiceChannel
	}

	q, err := h.registry.Create(inv.GuildID, inv.Reply)
	if err != nil {
		if errors.Is(err, queue.ErrSessionExists) {
			h.send(inv, h.config.Messages.SessionExists)
			return err
		}
		zlog.Error().Msgf("command: join: session creation failed: guild=%s err=%v", inv.GuildID, err)
		h.send(inv, h.config.Messages.GenericError)
		return err
	}

	if err := q.Player().Connect(inv.VoiceChannelID); err != nil {
		zlog.Error().Msgf("command: join: connect failed: guild=%s channel=%s err=%v",
			inv.GuildID, inv.VoiceChannelID, err)
		h.send(inv, h.config.Messages.GenericError)
		return err
	}

	h.send(inv, fmt.Sprintf(h.config.Messages.Connected,
		inv.VoiceChannelName, inv.GuildID, inv.VoiceChannelID))
	return nil
}

// HandlePlay resolves a query, enqueues the result on the guild's queue and
// kicks playback when nothing is playing. Creates the session on first use.
func (h *Handlers) HandlePlay(ctx context.Context, inv Invocation, query string) error {
	if inv.GuildID == "" {
		h.send(inv, h.config.Messages.NotInGuild)
		return ErrNotInGuild
	}

	q, ok := h.registry.Get(inv.GuildID)
	if !ok {
		if inv.VoiceChannelID == "" {
			h.send(inv, h.config.Messages.NoVoiceChannel)
			return ErrNoVoiceChannel
		}
		var err error
		q, err = h.registry.Create(inv.GuildID, inv.Reply)
		if err != nil {
			zlog.Error().Msgf("command: play: session creation failed: guild=%s err=%v", inv.GuildID, err)
			h.send(inv, h.config.Messages.GenericError)
			return err
		}
	} else if inv.VoiceChannelID == "" || inv.VoiceChannelID != q.Player().ChannelID() {
		h.send(inv, h.config.Messages.WrongChannel)
		return ErrWrongChannel
	}

	result, err := h.resolve(ctx, query)
	if err != nil {
		// A resolver failure is indistinguishable from an empty result to
		// the user; the queue is not mutated either way.
		zlog.Warn().Msgf("command: play: resolve failed: guild=%s query=%q err=%v", inv.GuildID, query, err)
		h.send(inv, fmt.Sprintf(h.config.Messages.NothingFound, query))
		return nil
	}

	if result.Empty() {
		h.send(inv, fmt.Sprintf(h.config.Messages.NothingFound, query))
		return nil
	}

	var toAdd []track.Info
	switch result.Type {
	case track.TrackLoaded, track.SearchResult:
		first, _ := result.First()
		toAdd = []track.Info{first}
		h.send(inv, fmt.Sprintf(h.config.Messages.Queued, first.Label(), first.URI))

	case track.PlaylistLoaded:
		toAdd = result.Tracks
		h.send(inv, fmt.Sprintf(h.config.Messages.QueuedPlaylist, len(result.Tracks), result.PlaylistName))

	default:
		zlog.Warn().Msgf("command: play: unknown load type: guild=%s type=%s", inv.GuildID, result.Type)
		h.send(inv, fmt.Sprintf(h.config.Messages.NothingFound, query))
		return nil
	}

	if err := q.Enqueue(toAdd, inv.VoiceChannelID); err != nil {
		h.send(inv, h.config.Messages.GenericError)
		return err
	}
	return nil
}

// resolve searches the audio node for the query, wrapping non-URI input as
// a search against the default source.
func (h *Handlers) resolve(ctx context.Context, query string) (*track.LoadResult, error) {
	identifier := query
	if !isAbsoluteURI(query) {
		identifier = h.config.DefaultSource + ":" + query
	}

	rctx, cancel := context.WithTimeout(ctx, h.config.ResolveTimeout)
	defer cancel()

	result, err := h.engine.Search(rctx, identifier)
	if err != nil {
		return nil, err
	}
	if result == nil {
		return nil, errors.New("resolver returned no result")
	}
	return result, nil
}

func isAbsoluteURI(query string) bool {
	return strings.HasPrefix(query, "http://") || strings.HasPrefix(query, "https://")
}

// send delivers a status reply, logging delivery failures only.
func (h *Handlers) send(inv Invocation, content string) {
	if inv.Reply == nil {
		return
	}
	if err := inv.Reply.Send(content); err != nil {
		zlog.Warn().Msgf("command: reply failed: guild=%s err=%v", inv.GuildID, err)
	}
}
