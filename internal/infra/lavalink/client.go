// Package lavalink implements the audio engine against a Lavalink-style
// node: track resolution over REST, playback control and lifecycle events
// over a websocket.
package lavalink

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/mitchellh/mapstructure"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/discbox/internal/app/audio"
	"github.com/osa030/discbox/internal/domain/track"
	"github.com/osa030/discbox/internal/infra/config"
)

const clientName = "discbox/1.0"

var errNotConnected = errors.New("no audio node available")

// Gateway is the voice-channel side of the Discord connection. Joining a
// channel makes the gateway emit the signaling events the node needs.
type Gateway interface {
	JoinVoice(guildID, channelID string) error
	LeaveVoice(guildID string) error
}

// Settings holds one node's connection settings, decoded from the
// free-form config section.
type Settings struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	Secure   bool   `mapstructure:"secure"`
}

// wire shapes of the node's REST responses.
type restTrack struct {
	Track string `json:"track"`
	Info  struct {
		Title      string `json:"title"`
		Author     string `json:"author"`
		URI        string `json:"uri"`
		SourceName string `json:"sourceName"`
		Length     int64  `json:"length"`
		IsStream   bool   `json:"isStream"`
	} `json:"info"`
}

type loadResponse struct {
	LoadType     string      `json:"loadType"`
	Tracks       []restTrack `json:"tracks"`
	PlaylistInfo struct {
		Name string `json:"name"`
	} `json:"playlistInfo"`
}

// Client is the audio engine. One client manages a pool of nodes and the
// per-guild players that play through them.
type Client struct {
	gateway    Gateway
	nodes      []*node
	httpClient *http.Client

	mu      sync.RWMutex
	players map[string]*Player
	userID  string
}

// NewClient builds the engine from the configured node pool. The client
// does not connect until Start is called with the bot's user id.
func NewClient(gateway Gateway, nodeConfigs []config.NodeConfig) (*Client, error) {
	c := &Client{
		gateway:    gateway,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		players:    make(map[string]*Player),
	}

	for _, nc := range nodeConfigs {
		var settings Settings
		if err := mapstructure.Decode(nc.Settings, &settings); err != nil {
			return nil, errors.Wrapf(err, "failed to decode settings for node %q", nc.Name)
		}
		if settings.Host == "" || settings.Port == 0 {
			return nil, errors.Newf("node %q needs host and port", nc.Name)
		}
		c.nodes = append(c.nodes, &node{name: nc.Name, settings: settings, client: c})
	}

	return c, nil
}

// Start connects the node pool. The gateway's user id is required for the
// node handshake, so this runs once the gateway reports ready.
func (c *Client) Start(userID string) {
	c.mu.Lock()
	c.userID = userID
	c.mu.Unlock()

	for _, n := range c.nodes {
		go n.connect(userID)
	}
}

// Close drops all node connections and releases every player.
func (c *Client) Close() {
	c.mu.Lock()
	players := make([]*Player, 0, len(c.players))
	for _, p := range c.players {
		players = append(players, p)
	}
	c.players = make(map[string]*Player)
	c.mu.Unlock()

	for _, p := range players {
		p.Close()
	}
	for _, n := range c.nodes {
		n.close()
	}
}

// Search resolves a query via the node's REST interface.
func (c *Client) Search(ctx context.Context, query string) (*track.LoadResult, error) {
	var resp loadResponse
	endpoint := "/loadtracks?identifier=" + url.QueryEscape(query)
	if err := c.restGet(ctx, endpoint, &resp); err != nil {
		return nil, errors.Wrap(err, "track load failed")
	}

	result := &track.LoadResult{
		Type:         track.LoadType(resp.LoadType),
		PlaylistName: resp.PlaylistInfo.Name,
	}
	for _, t := range resp.Tracks {
		result.Tracks = append(result.Tracks, toInfo(t))
	}
	return result, nil
}

// Decode looks up display metadata for an encoded track.
func (c *Client) Decode(ctx context.Context, encoded string) (*track.Info, error) {
	var t restTrack
	endpoint := "/decodetrack?track=" + url.QueryEscape(encoded)
	if err := c.restGet(ctx, endpoint, &t.Info); err != nil {
		return nil, errors.Wrap(err, "track decode failed")
	}

	t.Track = encoded
	info := toInfo(t)
	return &info, nil
}

// NewPlayer creates the voice session for a guild. Fails while no node in
// the pool is connected.
func (c *Client) NewPlayer(guildID string) (audio.Player, error) {
	if c.pickNode() == nil {
		return nil, errNotConnected
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if p, ok := c.players[guildID]; ok {
		return p, nil
	}
	p := newPlayer(c, guildID)
	c.players[guildID] = p
	return p, nil
}

// RemovePlayer discards a guild's session on the node side.
func (c *Client) RemovePlayer(guildID string) {
	c.mu.Lock()
	p, ok := c.players[guildID]
	delete(c.players, guildID)
	c.mu.Unlock()

	if !ok {
		return
	}
	p.Close()
	if err := c.send(map[string]any{"op": "destroy", "guildId": guildID}); err != nil {
		zlog.Warn().Msgf("lavalink: destroy failed: guild=%s err=%v", guildID, err)
	}
}

// dispatchEvent routes a node lifecycle event to the guild's player.
func (c *Client) dispatchEvent(msg inboundMessage) {
	c.mu.RLock()
	p, ok := c.players[msg.GuildID]
	c.mu.RUnlock()
	if !ok {
		return
	}

	switch msg.Type {
	case "TrackStartEvent":
		p.onTrackStart(msg.Track)
	case "TrackEndEvent":
		p.onTrackEnd()
	case "TrackExceptionEvent", "TrackStuckEvent":
		zlog.Warn().Msgf("lavalink: track fault: guild=%s type=%s reason=%s", msg.GuildID, msg.Type, msg.Reason)
		p.onTrackEnd()
	case "WebSocketClosedEvent":
		zlog.Warn().Msgf("lavalink: voice websocket closed: guild=%s reason=%s", msg.GuildID, msg.Reason)
	}
}

// send writes an op frame through the first available node.
func (c *Client) send(payload any) error {
	n := c.pickNode()
	if n == nil {
		return errNotConnected
	}
	return n.send(payload)
}

func (c *Client) pickNode() *node {
	for _, n := range c.nodes {
		if n.available() {
			return n
		}
	}
	return nil
}

func (c *Client) restGet(ctx context.Context, endpoint string, out any) error {
	n := c.pickNode()
	if n == nil {
		return errNotConnected
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, n.restURL()+endpoint, nil)
	if err != nil {
		return errors.Wrap(err, "failed to build request")
	}
	req.Header.Set("Authorization", n.settings.Password)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Wrap(err, "request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return errors.Newf("node returned %s", resp.Status)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Wrap(err, "failed to decode response")
	}
	return nil
}

func toInfo(t restTrack) track.Info {
	return track.Info{
		Encoded:    t.Track,
		Title:      t.Info.Title,
		Author:     t.Info.Author,
		URI:        t.Info.URI,
		SourceName: t.Info.SourceName,
		Duration:   time.Duration(t.Info.Length) * time.Millisecond,
		IsStream:   t.Info.IsStream,
	}
}

var _ audio.Engine = (*Client)(nil)

// String identifies the first configured node, for startup logs.
func (c *Client) String() string {
	if len(c.nodes) == 0 {
		return "lavalink(no nodes)"
	}
	return fmt.Sprintf("lavalink(%s)", c.nodes[0].name)
}
