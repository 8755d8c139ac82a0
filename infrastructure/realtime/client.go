// Package realtime is a websocket client for a Phoenix-protocol realtime server.
// It speaks just enough of the protocol for broadcast and presence on named topics:
// join/leave, broadcast, presence track, presence_state/presence_diff and heartbeats.
package realtime

import (
	"chat-room/contract"
	"chat-room/domain/chat"
	"chat-room/errors"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	phoenixTopic = "phoenix"
	topicPrefix  = "realtime:"

	eventJoin      = "phx_join"
	eventLeave     = "phx_leave"
	eventReply     = "phx_reply"
	eventClose     = "phx_close"
	eventError     = "phx_error"
	eventHeartbeat = "heartbeat"
	eventBroadcast = "broadcast"
	eventPresence  = "presence"
	eventState     = "presence_state"
	eventDiff      = "presence_diff"

	eventAccessToken = "access_token"

	protocolVersion          = "1.0.0"
	defaultHeartbeatInterval = 25 * time.Second
)

// frame is the Phoenix v1 JSON envelope.
type frame struct {
	Topic   string          `json:"topic"`
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
	Ref     string          `json:"ref,omitempty"`
	JoinRef string          `json:"join_ref,omitempty"`
}

type Config struct {
	// URL is the realtime endpoint, e.g. wss://project.example.co/realtime/v1.
	URL               string
	APIKey            string
	HeartbeatInterval time.Duration
}

// Client multiplexes every channel over a single websocket connection.
// The connection is dialed lazily by the first Subscribe and is never re-dialed on its own.
type Client struct {
	log    *slog.Logger
	config Config
	dialer *websocket.Dialer

	mu       sync.Mutex
	conn     *websocket.Conn
	channels map[string]*Channel
	ref      uint64
	done     chan struct{}

	writeMu sync.Mutex
}

var _ contract.RealtimeService = (*Client)(nil)

func NewClient(log *slog.Logger, config Config) *Client {
	if config.HeartbeatInterval <= 0 {
		config.HeartbeatInterval = defaultHeartbeatInterval
	}
	return &Client{
		log:      log,
		config:   config,
		dialer:   websocket.DefaultDialer,
		channels: make(map[string]*Channel),
	}
}

// OpenChannel returns an unjoined channel; nothing is sent until Subscribe.
func (c *Client) OpenChannel(name string, opts chat.ChannelOptions) contract.Channel {
	return &Channel{
		client:     c,
		name:       name,
		topic:      topicPrefix + name,
		opts:       opts,
		state:      channelClosed,
		broadcasts: make(map[string][]func(json.RawMessage)),
		presence:   newPresence(),
	}
}

func (c *Client) endpoint() (string, error) {
	u, err := url.Parse(strings.TrimSuffix(c.config.URL, "/") + "/websocket")
	if err != nil {
		return "", fmt.Errorf("invalid realtime url %q: %w", c.config.URL, err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}
	q := u.Query()
	if c.config.APIKey != "" {
		q.Set("apikey", c.config.APIKey)
	}
	q.Set("vsn", protocolVersion)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Connect dials the server if no connection is open.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		return nil
	}
	endpoint, err := c.endpoint()
	if err != nil {
		return err
	}
	conn, _, err := c.dialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		return fmt.Errorf("dialing realtime server: %w", err)
	}
	c.conn = conn
	c.done = make(chan struct{})
	go c.readLoop(conn, c.done)
	go c.heartbeat(c.done)
	c.log.Info("Connected to realtime server", "url", c.config.URL)
	return nil
}

// Close shuts the connection down. Channels still joined are reported CHANNEL_ERROR.
func (c *Client) Close() error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return nil
	}
	c.writeMu.Lock()
	_ = conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	c.writeMu.Unlock()
	return conn.Close()
}

func (c *Client) nextRef() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ref++
	return strconv.FormatUint(c.ref, 10)
}

func (c *Client) register(ch *Channel) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.channels[ch.topic] = ch
}

func (c *Client) unregister(ch *Channel) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.channels[ch.topic] == ch {
		delete(c.channels, ch.topic)
	}
}

func (c *Client) push(ctx context.Context, f frame) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return errors.ErrConnectionClosed
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	// A context without deadline clears any previous write deadline.
	deadline, _ := ctx.Deadline()
	_ = conn.SetWriteDeadline(deadline)
	if err := conn.WriteJSON(f); err != nil {
		return fmt.Errorf("%w: %v", errors.ErrConnectionClosed, err)
	}
	return nil
}

// readLoop delivers frames to channels one at a time, preserving server order.
func (c *Client) readLoop(conn *websocket.Conn, done chan struct{}) {
	defer close(done)
	for {
		var f frame
		if err := conn.ReadJSON(&f); err != nil {
			c.log.Debug("Realtime connection ended", "error", err)
			c.dropConnection(conn)
			return
		}
		if f.Topic == phoenixTopic {
			continue
		}
		c.mu.Lock()
		ch := c.channels[f.Topic]
		c.mu.Unlock()
		if ch == nil {
			c.log.Debug("Frame for unknown topic", "topic", f.Topic, "event", f.Event)
			continue
		}
		ch.dispatch(f)
	}
}

func (c *Client) dropConnection(conn *websocket.Conn) {
	c.mu.Lock()
	if c.conn != conn {
		c.mu.Unlock()
		return
	}
	c.conn = nil
	channels := make([]*Channel, 0, len(c.channels))
	for _, ch := range c.channels {
		channels = append(channels, ch)
	}
	c.channels = make(map[string]*Channel)
	c.mu.Unlock()

	_ = conn.Close()
	for _, ch := range channels {
		ch.connectionLost()
	}
}

func (c *Client) heartbeat(done chan struct{}) {
	ticker := time.NewTicker(c.config.HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			err := c.push(context.Background(), frame{
				Topic:   phoenixTopic,
				Event:   eventHeartbeat,
				Payload: json.RawMessage(`{}`),
				Ref:     c.nextRef(),
			})
			if err != nil {
				c.log.Warn("Heartbeat failed", "error", err)
				return
			}
		}
	}
}
