// Package session folds the conversation event stream into an ordered,
// in-memory message list. It consumes the five channel event kinds (history
// snapshot, delta, tool call, completion, error) plus local user intents, and
// enforces the single-in-flight rule on the send path. State lives only for
// the lifetime of the Session; reopening starts from a fresh history
// snapshot.
package session

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lumenhealth/consult/internal/channel"
	"github.com/lumenhealth/consult/internal/wire"
	"github.com/lumenhealth/consult/pkg/logger"
)

// flightState is the per-session in-flight machine: idle, or exactly one
// assistant response outstanding.
type flightState int

const (
	flightIdle flightState = iota
	flightAwaiting
)

// Transport is the slice of the connection manager the session drives.
// Sends are side effects only; the session mutates its own state first.
type Transport interface {
	SendMessage(text string)
	DeactivateSession()
}

// Session is the authoritative in-memory conversation state.
type Session struct {
	mu        sync.Mutex
	transport Transport

	messages []Message
	// knownAssistantIDs holds every server-assigned id that has already
	// produced a streaming event. First event for an id materializes a new
	// message; later events mutate the existing one. Rebuilt wholesale on
	// every history snapshot.
	knownAssistantIDs map[string]struct{}
	flight            flightState
	status            channel.Status

	onChange func()
}

func New(transport Transport) *Session {
	return &Session{
		transport:         transport,
		knownAssistantIDs: make(map[string]struct{}),
	}
}

// SetOnChange registers a callback invoked after every state mutation, for
// renderers that redraw on change. Must be set before the channel connects.
func (s *Session) SetOnChange(fn func()) {
	s.mu.Lock()
	s.onChange = fn
	s.mu.Unlock()
}

// Handlers binds the session's fold functions to a channel handler set.
func (s *Session) Handlers() channel.Handlers {
	return channel.Handlers{
		OnConnect:    func() { s.setStatus(channel.StatusConnected) },
		OnDisconnect: func() { s.setStatus(channel.StatusDisconnected) },
		OnHistory:    s.applyHistory,
		OnDelta:      s.applyDelta,
		OnToolCall:   s.applyToolCall,
		OnCompleted:  s.applyCompletion,
		OnError:      s.applyError,
	}
}

// SendMessage optimistically appends the user message and a single pending
// placeholder, then forwards the raw text. Rejected as a no-op when the
// trimmed text is empty or a response is already in flight. The gate is the
// in-flight flag alone: while disconnected the local append still happens
// and only the transmission is silently dropped by the channel.
func (s *Session) SendMessage(text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}

	s.mu.Lock()
	if s.flight == flightAwaiting {
		s.mu.Unlock()
		logger.Debug(logger.SESSION, "Rejecting send, a response is already in flight")
		return
	}
	s.flight = flightAwaiting
	now := time.Now()
	s.messages = append(s.messages,
		Message{
			ID:        uuid.New().String(),
			Role:      RoleUser,
			Content:   text,
			Phase:     PhaseResolved,
			Timestamp: now,
		},
		Message{
			ID:        uuid.New().String(),
			Role:      RoleAssistant,
			Phase:     PhasePending,
			Timestamp: now,
		},
	)
	s.notifyLocked()
	s.mu.Unlock()

	s.transport.SendMessage(text)
}

// ClearMessages signals session deactivation and resets local state without
// waiting for server acknowledgment.
func (s *Session) ClearMessages() {
	s.transport.DeactivateSession()

	s.mu.Lock()
	s.messages = nil
	s.knownAssistantIDs = make(map[string]struct{})
	s.flight = flightIdle
	s.notifyLocked()
	s.mu.Unlock()
}

// applyHistory replaces all local state with the snapshot. Never merges.
func (s *Session) applyHistory(msgs []wire.HistoryMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.messages = make([]Message, 0, len(msgs))
	s.knownAssistantIDs = make(map[string]struct{})
	now := time.Now()

	for _, hm := range msgs {
		role := Role(hm.Role)
		if role != RoleUser && role != RoleAssistant {
			role = RoleAssistant
		}
		s.messages = append(s.messages, Message{
			ID:        hm.ID,
			Role:      role,
			Content:   hm.Content,
			Phase:     PhaseResolved,
			Timestamp: now,
		})
		if role == RoleAssistant {
			s.knownAssistantIDs[hm.ID] = struct{}{}
		}
	}

	s.flight = flightIdle
	logger.Debug(logger.SESSION, "Applied history snapshot with %d messages", len(msgs))
	s.notifyLocked()
}

// applyDelta appends a text fragment. The first delta for an id replaces the
// pending placeholder with a new streaming message; later deltas grow it.
func (s *Session) applyDelta(id, delta string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, known := s.knownAssistantIDs[id]; !known {
		s.removePendingLocked()
		s.messages = append(s.messages, Message{
			ID:        id,
			Role:      RoleAssistant,
			Content:   delta,
			Phase:     PhaseStreaming,
			Timestamp: time.Now(),
		})
		s.knownAssistantIDs[id] = struct{}{}
	} else if m := s.findLocked(id); m != nil {
		m.Content += delta
	}

	s.flight = flightAwaiting
	s.notifyLocked()
}

// applyToolCall records backend tool activity on the response, materializing
// the message if this is the first event for its id.
func (s *Session) applyToolCall(id, action string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	label := labelForAction(action)
	if _, known := s.knownAssistantIDs[id]; !known {
		s.removePendingLocked()
		s.messages = append(s.messages, Message{
			ID:        id,
			Role:      RoleAssistant,
			ToolCall:  label,
			Phase:     PhaseStreaming,
			Timestamp: time.Now(),
		})
		s.knownAssistantIDs[id] = struct{}{}
	} else if m := s.findLocked(id); m != nil {
		m.ToolCall = label
	}

	s.flight = flightAwaiting
	s.notifyLocked()
}

// applyCompletion resolves the response, replacing accumulated content with
// the final payload. A completion for an id never seen before (no delta or
// tool call arrived) is appended as a new resolved message, not dropped.
func (s *Session) applyCompletion(id, content string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.removePendingLocked()

	if m := s.findLocked(id); m != nil {
		m.Content = content
		m.ToolCall = ""
		m.Phase = PhaseResolved
	} else {
		logger.Debug(logger.SESSION, "Completion for unseen id %s, appending", id)
		s.messages = append(s.messages, Message{
			ID:        id,
			Role:      RoleAssistant,
			Content:   content,
			Phase:     PhaseResolved,
			Timestamp: time.Now(),
		})
		s.knownAssistantIDs[id] = struct{}{}
	}

	s.flight = flightIdle
	s.notifyLocked()
}

// applyError fails the response identified by id, or appends a new failed
// message when no prior event named the id (generating a local id if the
// server supplied none). Connection status and other messages are untouched.
func (s *Session) applyError(id, errText string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, known := s.knownAssistantIDs[id]; known {
		if m := s.findLocked(id); m != nil {
			m.Content = errText
			m.ToolCall = ""
			m.Phase = PhaseFailed
		}
	} else {
		s.removePendingLocked()
		if id == "" {
			id = uuid.New().String()
		}
		s.messages = append(s.messages, Message{
			ID:        id,
			Role:      RoleAssistant,
			Content:   errText,
			Phase:     PhaseFailed,
			Timestamp: time.Now(),
		})
	}

	s.flight = flightIdle
	s.notifyLocked()
}

// removePendingLocked drops the placeholder message, if present. At most one
// can exist because the send path only runs from the idle flight state.
func (s *Session) removePendingLocked() {
	for i, m := range s.messages {
		if m.Phase == PhasePending {
			s.messages = append(s.messages[:i], s.messages[i+1:]...)
			return
		}
	}
}

func (s *Session) findLocked(id string) *Message {
	for i := range s.messages {
		if s.messages[i].ID == id {
			return &s.messages[i]
		}
	}
	return nil
}

func (s *Session) setStatus(status channel.Status) {
	s.mu.Lock()
	s.status = status
	s.notifyLocked()
	s.mu.Unlock()
}

func (s *Session) notifyLocked() {
	if s.onChange != nil {
		go s.onChange()
	}
}

// Messages returns a snapshot of the ordered message list.
func (s *Session) Messages() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// IsStreaming reports whether an assistant response is currently in flight.
func (s *Session) IsStreaming() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flight == flightAwaiting
}

// Status returns the last observed connection status.
func (s *Session) Status() channel.Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}
