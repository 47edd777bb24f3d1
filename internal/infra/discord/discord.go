// Package discord adapts the Discord gateway: inbound messages become
// command invocations, raw signaling events feed the session router, and
// replies go out as embeds.
package discord

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/discbox/internal/app/command"
	"github.com/osa030/discbox/internal/app/router"
	"github.com/osa030/discbox/internal/infra/config"
)

const embedColor = 0xb963a5

// AudioStarter is started once the gateway reports the bot's identity.
type AudioStarter interface {
	Start(userID string)
}

// Bot is the gateway connection plus the command dispatch wiring.
type Bot struct {
	session *discordgo.Session
	prefix  string

	handlers *command.Handlers
	router   *router.Router
	audio    AudioStarter
}

// New creates the gateway session. Bind must be called before Open.
func New(cfg config.DiscordConfig) (*Bot, error) {
	session, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create session")
	}

	session.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsGuildVoiceStates |
		discordgo.IntentMessageContent

	return &Bot{session: session, prefix: cfg.Prefix}, nil
}

// Bind attaches the command handlers, the signaling router and the audio
// layer to the gateway's event stream.
func (b *Bot) Bind(handlers *command.Handlers, r *router.Router, audio AudioStarter) {
	b.handlers = handlers
	b.router = r
	b.audio = audio

	b.session.AddHandler(b.onReady)
	b.session.AddHandler(b.onRawEvent)
	b.session.AddHandler(b.onMessageCreate)
}

// Open connects to the gateway.
func (b *Bot) Open() error {
	if b.handlers == nil {
		return errors.New("bot not bound")
	}
	return errors.Wrap(b.session.Open(), "failed to open gateway")
}

// Close disconnects from the gateway.
func (b *Bot) Close() error {
	return b.session.Close()
}

// JoinVoice asks the gateway to join a voice channel. The voice connection
// itself is handled by the audio node, so the join is signaling-only.
func (b *Bot) JoinVoice(guildID, channelID string) error {
	return b.session.ChannelVoiceJoinManual(guildID, channelID, false, true)
}

// LeaveVoice disconnects the bot from the guild's voice channel.
func (b *Bot) LeaveVoice(guildID string) error {
	return b.session.ChannelVoiceJoinManual(guildID, "", false, true)
}

func (b *Bot) onReady(s *discordgo.Session, r *discordgo.Ready) {
	zlog.Info().Msgf("discord: ready: user=%s#%s id=%s", r.User.Username, r.User.Discriminator, r.User.ID)
	b.router.SetUserID(r.User.ID)
	b.audio.Start(r.User.ID)
}

// onRawEvent forwards every gateway event to the signaling router, which
// ignores all but the voice-signaling kinds.
func (b *Bot) onRawEvent(s *discordgo.Session, e *discordgo.Event) {
	if e.Type == "" || len(e.RawData) == 0 {
		return
	}
	if err := b.router.Dispatch(e.Type, e.RawData); err != nil {
		zlog.Warn().Msgf("discord: event dispatch failed: type=%s err=%v", e.Type, err)
	}
}

func (b *Bot) onMessageCreate(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.Bot {
		return
	}
	name, args, ok := parseCommand(b.prefix, m.Content)
	if !ok {
		return
	}

	inv := b.buildInvocation(m)

	var err error
	switch name {
	case "join":
		err = b.handlers.HandleJoin(context.Background(), inv)
	case "play", "p":
		if args == "" {
			return
		}
		err = b.handlers.HandlePlay(context.Background(), inv, args)
	case "ping":
		err = inv.Reply.Send(b.pong(s, m.ChannelID))
	default:
		return
	}
	if err != nil {
		// User-input errors were already answered with a reply.
		zlog.Debug().Msgf("discord: command finished with error: cmd=%s guild=%s err=%v", name, m.GuildID, err)
	}
}

// pong reports gateway heartbeat latency plus the round trip of one
// lightweight REST call.
func (b *Bot) pong(s *discordgo.Session, channelID string) string {
	gateway := s.HeartbeatLatency().Milliseconds()

	start := time.Now()
	if _, err := s.Channel(channelID); err != nil {
		return fmt.Sprintf("🏓 pong! gateway: `%dms`", gateway)
	}
	rest := time.Since(start).Milliseconds()

	return fmt.Sprintf("🏓 pong! gateway: `%dms`, rest: `%dms`", gateway, rest)
}

// parseCommand splits a prefixed message into a lowercased command name
// and its argument string.
func parseCommand(prefix, content string) (name, args string, ok bool) {
	if prefix == "" || !strings.HasPrefix(content, prefix) {
		return "", "", false
	}

	fields := strings.Fields(strings.TrimPrefix(content, prefix))
	if len(fields) == 0 {
		return "", "", false
	}
	return strings.ToLower(fields[0]), strings.Join(fields[1:], " "), true
}

// buildInvocation captures where the command came from and where replies
// go, including the invoker's current voice channel when they are in one.
func (b *Bot) buildInvocation(m *discordgo.MessageCreate) command.Invocation {
	inv := command.Invocation{
		GuildID: m.GuildID,
		Reply:   &embedReplier{session: b.session, message: m.Message},
	}

	if m.GuildID == "" {
		return inv
	}

	vs, err := b.session.State.VoiceState(m.GuildID, m.Author.ID)
	if err != nil || vs == nil || vs.ChannelID == "" {
		return inv
	}
	inv.VoiceChannelID = vs.ChannelID
	inv.VoiceChannelName = b.channelName(vs.ChannelID)
	return inv
}

func (b *Bot) channelName(channelID string) string {
	if ch, err := b.session.State.Channel(channelID); err == nil {
		return ch.Name
	}
	if ch, err := b.session.Channel(channelID); err == nil {
		return ch.Name
	}
	return channelID
}

// embedReplier sends status messages as embeds referencing the triggering
// message. Send failures stay local; the playback core treats replies as
// fire and forget.
type embedReplier struct {
	session *discordgo.Session
	message *discordgo.Message
}

func (r *embedReplier) Send(content string) error {
	_, err := r.session.ChannelMessageSendComplex(r.message.ChannelID, &discordgo.MessageSend{
		Embeds: []*discordgo.MessageEmbed{
			{Description: content, Color: embedColor},
		},
		Reference: r.message.Reference(),
	})
	return errors.Wrap(err, "failed to send reply")
}
