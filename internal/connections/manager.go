// Package connections tracks live websocket connections and per-session
// conversation state for the reference backend.
package connections

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/lumenhealth/consult/internal/wire"
)

// TimeoutConfig holds the various timeout settings for WebSocket connections
type TimeoutConfig struct {
	PongWait   time.Duration
	PingPeriod time.Duration
	WriteWait  time.Duration
}

// DefaultTimeouts provides sensible default timeout values
var DefaultTimeouts = TimeoutConfig{
	PongWait:   30 * time.Second,
	PingPeriod: 27 * time.Second, // (PongWait * 9) / 10
	WriteWait:  10 * time.Second,
}

// SessionState is the server-side conversation history for one session id.
// It survives reconnects so a returning client can be re-hydrated with a
// history snapshot.
type SessionState struct {
	mu      sync.Mutex
	history []wire.HistoryMessage
}

// Append records a finished message in the conversation history.
func (st *SessionState) Append(msg wire.HistoryMessage) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.history = append(st.history, msg)
}

// History returns a snapshot of the conversation so far.
func (st *SessionState) History() []wire.HistoryMessage {
	st.mu.Lock()
	defer st.mu.Unlock()
	out := make([]wire.HistoryMessage, len(st.history))
	copy(out, st.history)
	return out
}

// Reset discards the conversation history on session deactivation.
func (st *SessionState) Reset() {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.history = nil
}

// Manager handles WebSocket connection lifecycle and the session registry
type Manager struct {
	connections sync.Map
	sessions    sync.Map
	timeouts    TimeoutConfig
}

// NewManager creates a new connection manager with the specified timeouts
func NewManager(timeouts TimeoutConfig) *Manager {
	return &Manager{
		timeouts: timeouts,
	}
}

// AddConnection registers a new WebSocket connection
func (m *Manager) AddConnection(conn *websocket.Conn) {
	m.connections.Store(conn, struct{}{})
}

// RemoveConnection removes a WebSocket connection
func (m *Manager) RemoveConnection(conn *websocket.Conn) {
	m.connections.Delete(conn)
}

// GetConnectionCount returns the current number of active connections
func (m *Manager) GetConnectionCount() int {
	count := 0
	m.connections.Range(func(key, value interface{}) bool {
		count++
		return true
	})
	return count
}

// Session returns the conversation state for a session id, creating it on
// first use.
func (m *Manager) Session(sessionID string) *SessionState {
	state, _ := m.sessions.LoadOrStore(sessionID, &SessionState{})
	return state.(*SessionState)
}

// GetTimeouts returns the current timeout configuration
func (m *Manager) GetTimeouts() TimeoutConfig {
	return m.timeouts
}

// SetTimeouts updates the timeout configuration
func (m *Manager) SetTimeouts(timeouts TimeoutConfig) {
	m.timeouts = timeouts
}
