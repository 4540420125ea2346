// Package wire defines the JSON event contract carried over the
// conversation channel, shared by the client core and the reference backend.
package wire

import "encoding/json"

// Inbound event types (server -> client).
const (
	EventHistory   = "history"
	EventDelta     = "delta"
	EventCompleted = "completed"
	EventError     = "error"
	EventToolCall  = "tool_call"
)

// Outbound intent types (client -> server).
const (
	IntentMessage    = "message"
	IntentDeactivate = "deactivate"
)

// HistoryMessage is one prior message inside a history snapshot.
type HistoryMessage struct {
	ID      string `json:"id"`
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Event is a server-to-client frame. Type selects which of the remaining
// fields are meaningful; ID correlates every streaming event except the
// history snapshot.
type Event struct {
	Type     string           `json:"type"`
	ID       string           `json:"id,omitempty"`
	Delta    string           `json:"delta,omitempty"`
	Content  string           `json:"content,omitempty"`
	Error    string           `json:"error,omitempty"`
	Action   string           `json:"action,omitempty"`
	Messages []HistoryMessage `json:"messages,omitempty"`
}

// Intent is a client-to-server frame.
type Intent struct {
	Type    string `json:"type"`
	Message string `json:"message,omitempty"`
}

// DecodeEvent parses a single inbound frame.
func DecodeEvent(data []byte) (Event, error) {
	var ev Event
	err := json.Unmarshal(data, &ev)
	return ev, err
}

// DecodeIntent parses a single outbound frame.
func DecodeIntent(data []byte) (Intent, error) {
	var in Intent
	err := json.Unmarshal(data, &in)
	return in, err
}
