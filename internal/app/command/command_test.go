package command

import (
	"context"
	"sync"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/discbox/internal/app/audio"
	"github.com/osa030/discbox/internal/app/queue"
	"github.com/osa030/discbox/internal/domain/track"
)

type fakePlayer struct {
	mu       sync.Mutex
	channel  string
	played   []string
	connects []string
	events   chan audio.Event
	once     sync.Once
}

func (p *fakePlayer) Connect(channelID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.channel = channelID
	p.connects = append(p.connects, channelID)
	return nil
}

func (p *fakePlayer) Disconnect() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.channel = ""
	return nil
}

func (p *fakePlayer) Play(encoded string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.played = append(p.played, encoded)
	return nil
}

func (p *fakePlayer) Stop() error { return nil }

func (p *fakePlayer) ChannelID() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.channel
}

func (p *fakePlayer) Events() <-chan audio.Event              { return p.events }
func (p *fakePlayer) SubmitVoiceServer(token, endpoint string) {}
func (p *fakePlayer) SubmitVoiceState(sessionID string)        {}
func (p *fakePlayer) Close()                                   { p.once.Do(func() { close(p.events) }) }

func (p *fakePlayer) playedTracks() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	result := make([]string, len(p.played))
	copy(result, p.played)
	return result
}

type fakeEngine struct {
	mu        sync.Mutex
	players   map[string]*fakePlayer
	queries   []string
	result    *track.LoadResult
	searchErr error
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{players: make(map[string]*fakePlayer)}
}

func (e *fakeEngine) Search(ctx context.Context, query string) (*track.LoadResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.queries = append(e.queries, query)
	if e.searchErr != nil {
		return nil, e.searchErr
	}
	return e.result, nil
}

func (e *fakeEngine) Decode(ctx context.Context, encoded string) (*track.Info, error) {
	return &track.Info{Encoded: encoded, Title: encoded}, nil
}

func (e *fakeEngine) NewPlayer(guildID string) (audio.Player, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	p := &fakePlayer{events: make(chan audio.Event, 10)}
	e.players[guildID] = p
	return p, nil
}

func (e *fakeEngine) RemovePlayer(guildID string) {}

func (e *fakeEngine) player(guildID string) *fakePlayer {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.players[guildID]
}

func (e *fakeEngine) searchedQueries() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	result := make([]string, len(e.queries))
	copy(result, e.queries)
	return result
}

type fakeReplier struct {
	mu       sync.Mutex
	messages []string
}

func (r *fakeReplier) Send(content string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, content)
	return nil
}

func (r *fakeReplier) sent() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	result := make([]string, len(r.messages))
	copy(result, r.messages)
	return result
}

func newTestHandlers() (*Handlers, *fakeEngine, *queue.Registry) {
	engine := newFakeEngine()
	registry := queue.NewRegistry(engine, queue.Config{})
	return NewHandlers(registry, engine, Config{}), engine, registry
}

func TestHandleJoin_CreatesSessionAndConnects(t *testing.T) {
	handlers, engine, registry := newTestHandlers()
	reply := &fakeReplier{}

	err := handlers.HandleJoin(context.Background(), Invocation{
		GuildID:          "g1",
		VoiceChannelID:   "c1",
		VoiceChannelName: "General",
		Reply:            reply,
	})
	require.NoError(t, err)

	_, ok := registry.Get("g1")
	assert.True(t, ok)
	assert.Equal(t, []string{"c1"}, engine.player("g1").connects)

	messages := reply.sent()
	require.Len(t, messages, 1)
	assert.Contains(t, messages[0], "General")
}

func TestHandleJoin_Preconditions(t *testing.T) {
	tests := []struct {
		name    string
		inv     Invocation
		wantErr error
	}{
		{
			name:    "outside guild",
			inv:     Invocation{VoiceChannelID: "c1", Reply: &fakeReplier{}},
			wantErr: ErrNotInGuild,
		},
		{
			name:    "not in a voice channel",
			inv:     Invocation{GuildID: "g1", Reply: &fakeReplier{}},
			wantErr: ErrNoVoiceChannel,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handlers, _, registry := newTestHandlers()

			err := handlers.HandleJoin(context.Background(), tt.inv)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Equal(t, 0, registry.Count())
		})
	}
}

func TestHandleJoin_RejectsExistingSession(t *testing.T) {
	handlers, _, registry := newTestHandlers()
	_, err := registry.Create("g1", &fakeReplier{})
	require.NoError(t, err)

	reply := &fakeReplier{}
	err = handlers.HandleJoin(context.Background(), Invocation{
		GuildID:        "g1",
		VoiceChannelID: "c1",
		Reply:          reply,
	})
	assert.ErrorIs(t, err, queue.ErrSessionExists)
	assert.Equal(t, 1, registry.Count())
	require.Len(t, reply.sent(), 1)
}

func TestHandlePlay_SingleResultPlaysImmediately(t *testing.T) {
	handlers, engine, registry := newTestHandlers()
	engine.result = &track.LoadResult{
		Type:   track.SearchResult,
		Tracks: []track.Info{{Encoded: "t1", Title: "Lofi Beats", URI: "https://yt/abc"}},
	}
	reply := &fakeReplier{}

	err := handlers.HandlePlay(context.Background(), Invocation{
		GuildID:        "g2",
		VoiceChannelID: "c1",
		Reply:          reply,
	}, "lofi beats")
	require.NoError(t, err)

	q, ok := registry.Get("g2")
	require.True(t, ok)
	assert.Equal(t, 0, q.Size())
	assert.Equal(t, []string{"t1"}, engine.player("g2").playedTracks())
	assert.Equal(t, []string{"c1"}, engine.player("g2").connects)

	messages := reply.sent()
	require.Len(t, messages, 1)
	assert.Contains(t, messages[0], "Lofi Beats")
}

func TestHandlePlay_WrapsNonURIQueries(t *testing.T) {
	tests := []struct {
		name  string
		query string
		want  string
	}{
		{
			name:  "plain text gets search prefix",
			query: "lofi beats",
			want:  "ytsearch:lofi beats",
		},
		{
			name:  "https url passes through",
			query: "https://example.com/watch?v=x",
			want:  "https://example.com/watch?v=x",
		},
		{
			name:  "http url passes through",
			query: "http://example.com/watch?v=x",
			want:  "http://example.com/watch?v=x",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handlers, engine, _ := newTestHandlers()
			engine.result = &track.LoadResult{Type: track.NoMatches}

			_ = handlers.HandlePlay(context.Background(), Invocation{
				GuildID:        "g1",
				VoiceChannelID: "c1",
				Reply:          &fakeReplier{},
			}, tt.query)

			assert.Equal(t, []string{tt.want}, engine.searchedQueries())
		})
	}
}

func TestHandlePlay_PlaylistAppendsAllWhilePlaying(t *testing.T) {
	handlers, engine, registry := newTestHandlers()

	// First play starts t1.
	engine.result = &track.LoadResult{
		Type:   track.TrackLoaded,
		Tracks: []track.Info{{Encoded: "t1", Title: "First"}},
	}
	inv := Invocation{GuildID: "g2", VoiceChannelID: "c1", Reply: &fakeReplier{}}
	require.NoError(t, handlers.HandlePlay(context.Background(), inv, "first"))

	// Playlist of five arrives while t1 is playing.
	engine.result = &track.LoadResult{
		Type:         track.PlaylistLoaded,
		PlaylistName: "Chill Mix",
		Tracks: []track.Info{
			{Encoded: "p1"}, {Encoded: "p2"}, {Encoded: "p3"}, {Encoded: "p4"}, {Encoded: "p5"},
		},
	}
	reply := &fakeReplier{}
	inv.Reply = reply
	require.NoError(t, handlers.HandlePlay(context.Background(), inv, "chill mix"))

	q, _ := registry.Get("g2")
	assert.Equal(t, 5, q.Size())
	assert.Equal(t, []string{"t1"}, engine.player("g2").playedTracks())

	messages := reply.sent()
	require.Len(t, messages, 1)
	assert.Contains(t, messages[0], "5")
	assert.Contains(t, messages[0], "Chill Mix")
}

func TestHandlePlay_WrongChannel(t *testing.T) {
	handlers, engine, registry := newTestHandlers()
	engine.result = &track.LoadResult{
		Type:   track.TrackLoaded,
		Tracks: []track.Info{{Encoded: "t1"}},
	}

	inv := Invocation{GuildID: "g1", VoiceChannelID: "c1", Reply: &fakeReplier{}}
	require.NoError(t, handlers.HandlePlay(context.Background(), inv, "first"))

	// Same guild, different voice channel.
	reply := &fakeReplier{}
	err := handlers.HandlePlay(context.Background(), Invocation{
		GuildID:        "g1",
		VoiceChannelID: "c2",
		Reply:          reply,
	}, "second")
	assert.ErrorIs(t, err, ErrWrongChannel)

	// No mutation: nothing new searched for, nothing queued.
	q, _ := registry.Get("g1")
	assert.Equal(t, 0, q.Size())
	assert.Len(t, engine.searchedQueries(), 1)
	require.Len(t, reply.sent(), 1)
}

func TestHandlePlay_NewSessionRequiresVoiceChannel(t *testing.T) {
	handlers, _, registry := newTestHandlers()

	err := handlers.HandlePlay(context.Background(), Invocation{
		GuildID: "g1",
		Reply:   &fakeReplier{},
	}, "anything")
	assert.ErrorIs(t, err, ErrNoVoiceChannel)
	assert.Equal(t, 0, registry.Count())
}

func TestHandlePlay_EmptyOutcomesLeaveQueueUntouched(t *testing.T) {
	tests := []struct {
		name      string
		result    *track.LoadResult
		searchErr error
	}{
		{name: "load failed", result: &track.LoadResult{Type: track.LoadFailed}},
		{name: "no matches", result: &track.LoadResult{Type: track.NoMatches}},
		{name: "search result with no tracks", result: &track.LoadResult{Type: track.SearchResult}},
		{name: "playlist with no tracks", result: &track.LoadResult{Type: track.PlaylistLoaded}},
		{name: "resolver error", searchErr: errors.New("node timeout")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handlers, engine, registry := newTestHandlers()
			engine.result = tt.result
			engine.searchErr = tt.searchErr
			reply := &fakeReplier{}

			err := handlers.HandlePlay(context.Background(), Invocation{
				GuildID:        "g1",
				VoiceChannelID: "c1",
				Reply:          reply,
			}, "obscure query")
			require.NoError(t, err)

			q, ok := registry.Get("g1")
			require.True(t, ok)
			assert.Equal(t, 0, q.Size())
			assert.Empty(t, engine.player("g1").playedTracks())

			messages := reply.sent()
			require.Len(t, messages, 1)
			assert.Contains(t, messages[0], "obscure query")
		})
	}
}

func TestHandlePlay_OutsideGuild(t *testing.T) {
	handlers, _, _ := newTestHandlers()

	err := handlers.HandlePlay(context.Background(), Invocation{Reply: &fakeReplier{}}, "q")
	assert.ErrorIs(t, err, ErrNotInGuild)
}
