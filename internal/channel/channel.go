// Package channel owns the lifecycle of the duplex conversation channel: it
// establishes the websocket with a bearer credential, watches connect and
// disconnect, retries transiently on authentication failure, and surfaces a
// tri-state status to the session layer. It knows nothing about message
// semantics beyond the wire event types it dispatches.
package channel

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/lumenhealth/consult/internal/credstore"
	"github.com/lumenhealth/consult/internal/wire"
	"github.com/lumenhealth/consult/pkg/logger"
)

type Status int

const (
	StatusDisconnected Status = iota
	StatusConnecting
	StatusConnected
)

func (s Status) String() string {
	switch s {
	case StatusConnecting:
		return "connecting"
	case StatusConnected:
		return "connected"
	default:
		return "disconnected"
	}
}

// maxAuthRetries bounds how many times a failed handshake is re-attempted
// with a freshly read credential before giving up.
const maxAuthRetries = 3

// Handlers are the callbacks a consumer registers on Connect. Nil callbacks
// are skipped. All handlers are invoked from the channel's read goroutine,
// one event at a time.
type Handlers struct {
	OnConnect    func()
	OnDisconnect func()
	OnHistory    func(messages []wire.HistoryMessage)
	OnDelta      func(id, delta string)
	OnToolCall   func(id, action string)
	OnCompleted  func(id, content string)
	OnError      func(id, errText string)
}

// Channel is an explicitly owned connection handle. A consumer owns exactly
// one Channel at a time and drives it through Connect/Disconnect.
type Channel struct {
	mu          sync.Mutex
	url         string
	creds       credstore.Store
	dialer      *websocket.Dialer
	conn        *websocket.Conn
	status      Status
	handlers    Handlers
	authRetries int
}

// New creates a Channel for the given backend base URL. The websocket
// endpoint is derived from the HTTP base ("http://host" -> "ws://host/ws").
func New(serverURL string, creds credstore.Store) *Channel {
	return &Channel{
		url:   websocketURL(serverURL),
		creds: creds,
		dialer: &websocket.Dialer{
			HandshakeTimeout: 10 * time.Second,
		},
	}
}

func websocketURL(serverURL string) string {
	url := serverURL
	switch {
	case strings.HasPrefix(url, "https://"):
		url = "wss://" + strings.TrimPrefix(url, "https://")
	case strings.HasPrefix(url, "http://"):
		url = "ws://" + strings.TrimPrefix(url, "http://")
	}
	return strings.TrimSuffix(url, "/") + "/ws"
}

// Connect establishes the channel and registers the handlers. It is a no-op
// when already connected. A stale handle from a previous attempt is fully
// discarded first, so repeated opens never leave duplicate listeners behind.
// Without a credential no connection is attempted and the status stays
// disconnected; all other failures also surface as status, never as a
// returned error.
func (c *Channel) Connect(ctx context.Context, handlers Handlers) {
	c.mu.Lock()
	if c.status == StatusConnected {
		c.mu.Unlock()
		return
	}
	c.teardownLocked()
	c.handlers = handlers
	c.authRetries = 0

	token, err := c.creds.AccessToken(ctx)
	if err != nil {
		logger.Error(logger.CHANNEL, "Failed to read credential: %v", err)
		c.mu.Unlock()
		return
	}
	if token == "" {
		logger.Debug(logger.CHANNEL, "No credential available, not connecting")
		c.mu.Unlock()
		return
	}

	c.status = StatusConnecting
	c.mu.Unlock()

	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)

	for {
		conn, resp, err := c.dialer.DialContext(ctx, c.url, header)
		if resp != nil && resp.Body != nil {
			resp.Body.Close()
		}
		if err == nil {
			c.established(conn)
			return
		}

		if classifyConnectError(err, resp) != kindAuth {
			logger.Warn(logger.CHANNEL, "Connect failed: %v", err)
			c.setDisconnected()
			return
		}

		c.mu.Lock()
		if c.authRetries >= maxAuthRetries {
			c.mu.Unlock()
			logger.Warn(logger.CHANNEL, "Auth retries exhausted after %d attempts", maxAuthRetries)
			c.setDisconnected()
			return
		}
		c.authRetries++
		attempt := c.authRetries
		c.mu.Unlock()

		fresh, cerr := c.creds.AccessToken(ctx)
		if cerr != nil || fresh == "" {
			logger.Warn(logger.CHANNEL, "No fresh credential for auth retry: %v", cerr)
			c.setDisconnected()
			return
		}

		// Swap the auth payload in place and let the dial loop re-attempt
		// the handshake with it.
		logger.Info(logger.CHANNEL, "Auth failure on connect, retrying with fresh credential (attempt %d/%d)", attempt, maxAuthRetries)
		header.Set("Authorization", "Bearer "+fresh)
	}
}

func (c *Channel) established(conn *websocket.Conn) {
	c.mu.Lock()
	c.conn = conn
	c.status = StatusConnected
	c.authRetries = 0
	onConnect := c.handlers.OnConnect
	c.mu.Unlock()

	logger.Info(logger.CHANNEL, "Channel connected to %s", c.url)
	if onConnect != nil {
		onConnect()
	}

	go c.readPump(conn)
}

func (c *Channel) setDisconnected() {
	c.mu.Lock()
	c.status = StatusDisconnected
	c.mu.Unlock()
}

// readPump consumes frames until the connection drops, dispatching each
// decoded event to the registered handlers.
func (c *Channel) readPump(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.lost(conn, err)
			return
		}

		ev, err := wire.DecodeEvent(data)
		if err != nil {
			logger.Warn(logger.CHANNEL, "Discarding undecodable frame: %v", err)
			continue
		}
		c.dispatch(ev)
	}
}

// lost marks the transport as disconnected, unless a newer handle has
// already replaced this connection.
func (c *Channel) lost(conn *websocket.Conn, err error) {
	c.mu.Lock()
	if c.conn != conn {
		c.mu.Unlock()
		return
	}
	c.conn = nil
	c.status = StatusDisconnected
	onDisconnect := c.handlers.OnDisconnect
	c.mu.Unlock()

	logger.Info(logger.CHANNEL, "Channel disconnected: %v", err)
	if onDisconnect != nil {
		onDisconnect()
	}
	conn.Close()
}

func (c *Channel) dispatch(ev wire.Event) {
	c.mu.Lock()
	h := c.handlers
	c.mu.Unlock()

	switch ev.Type {
	case wire.EventHistory:
		if h.OnHistory != nil {
			h.OnHistory(ev.Messages)
		}
	case wire.EventDelta:
		if h.OnDelta != nil {
			h.OnDelta(ev.ID, ev.Delta)
		}
	case wire.EventToolCall:
		if h.OnToolCall != nil {
			h.OnToolCall(ev.ID, ev.Action)
		}
	case wire.EventCompleted:
		if h.OnCompleted != nil {
			h.OnCompleted(ev.ID, ev.Content)
		}
	case wire.EventError:
		if h.OnError != nil {
			h.OnError(ev.ID, ev.Error)
		}
	default:
		logger.Debug(logger.CHANNEL, "Ignoring unknown event type %q", ev.Type)
	}
}

// SendMessage forwards a user message intent. No-op when not connected; the
// session layer performs its optimistic update before calling this.
func (c *Channel) SendMessage(text string) {
	c.writeIntent(wire.Intent{Type: wire.IntentMessage, Message: text})
}

// DeactivateSession forwards a clear/deactivate intent. No-op when not
// connected.
func (c *Channel) DeactivateSession() {
	c.writeIntent(wire.Intent{Type: wire.IntentDeactivate})
}

func (c *Channel) writeIntent(intent wire.Intent) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.status != StatusConnected || c.conn == nil {
		logger.Debug(logger.CHANNEL, "Dropping %q intent, channel not connected", intent.Type)
		return
	}
	if err := c.conn.WriteJSON(intent); err != nil {
		logger.Warn(logger.CHANNEL, "Failed to write %q intent: %v", intent.Type, err)
	}
}

// Disconnect tears the channel down. Idempotent; resets the auth retry
// counter.
func (c *Channel) Disconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.teardownLocked()
}

func (c *Channel) teardownLocked() {
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	c.status = StatusDisconnected
	c.authRetries = 0
}

// IsConnected reports point-in-time transport connectedness.
func (c *Channel) IsConnected() bool {
	return c.Status() == StatusConnected
}

// Status returns the current tri-state connection status.
func (c *Channel) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}
