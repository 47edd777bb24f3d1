package lavalink

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	zlog "github.com/rs/zerolog/log"
)

const (
	handshakeTimeout = 10 * time.Second
	reconnectDelay   = 5 * time.Second
)

// inboundMessage is the envelope of every websocket message from the node.
type inboundMessage struct {
	Op      string `json:"op"`
	Type    string `json:"type"`
	GuildID string `json:"guildId"`
	Track   string `json:"track"`
	Reason  string `json:"reason"`
}

// node is one websocket connection to an audio node.
type node struct {
	name     string
	settings Settings
	client   *Client

	mu           sync.Mutex
	conn         *websocket.Conn
	connected    bool
	reconnecting bool
	closed       bool
}

func (n *node) wsURL() string {
	scheme := "ws"
	if n.settings.Secure {
		scheme = "wss"
	}
	return fmt.Sprintf("%s://%s:%d", scheme, n.settings.Host, n.settings.Port)
}

func (n *node) restURL() string {
	scheme := "http"
	if n.settings.Secure {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s:%d", scheme, n.settings.Host, n.settings.Port)
}

// connect dials the node and starts the read loop. On failure it schedules
// a retry until the client is closed.
func (n *node) connect(userID string) {
	n.mu.Lock()
	if n.connected || n.reconnecting || n.closed {
		n.mu.Unlock()
		return
	}
	n.reconnecting = true
	n.mu.Unlock()

	headers := http.Header{}
	headers.Set("Authorization", n.settings.Password)
	headers.Set("User-Id", userID)
	headers.Set("Client-Name", clientName)

	dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}
	conn, resp, err := dialer.Dial(n.wsURL(), headers)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		zlog.Warn().Msgf("lavalink: connect failed: node=%s err=%v", n.name, err)
		n.mu.Lock()
		n.reconnecting = false
		closed := n.closed
		n.mu.Unlock()

		if !closed {
			time.AfterFunc(reconnectDelay, func() { n.connect(userID) })
		}
		return
	}

	n.mu.Lock()
	n.conn = conn
	n.connected = true
	n.reconnecting = false
	n.mu.Unlock()

	zlog.Info().Msgf("lavalink: connected: node=%s", n.name)
	go n.readLoop(userID)
}

// readLoop consumes messages until the connection drops, then reconnects.
func (n *node) readLoop(userID string) {
	for {
		var msg inboundMessage
		if err := n.conn.ReadJSON(&msg); err != nil {
			n.mu.Lock()
			n.connected = false
			if n.conn != nil {
				n.conn.Close()
			}
			closed := n.closed
			n.mu.Unlock()

			if closed {
				return
			}
			zlog.Warn().Msgf("lavalink: connection lost: node=%s err=%v", n.name, err)
			time.AfterFunc(reconnectDelay, func() { n.connect(userID) })
			return
		}
		n.handleMessage(msg)
	}
}

func (n *node) handleMessage(msg inboundMessage) {
	switch msg.Op {
	case "event":
		n.client.dispatchEvent(msg)
	case "playerUpdate", "stats":
		// Position and load reporting, nothing to act on.
	default:
		zlog.Debug().Msgf("lavalink: unhandled op: node=%s op=%s", n.name, msg.Op)
	}
}

// send writes one op frame to the node.
func (n *node) send(payload any) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if !n.connected || n.conn == nil {
		return errNotConnected
	}
	return n.conn.WriteJSON(payload)
}

func (n *node) available() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.connected
}

func (n *node) close() {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.closed = true
	n.connected = false
	if n.conn != nil {
		n.conn.Close()
	}
}
