package session

import "time"

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Phase is the lifecycle of a single message. A user message is resolved at
// creation; an assistant message moves pending -> streaming -> resolved or
// failed as server events arrive. Encoding the lifecycle as a tag makes two
// simultaneous pending placeholders unrepresentable by construction.
type Phase int

const (
	// PhasePending marks the local placeholder shown after a send, before
	// the server has named a response id.
	PhasePending Phase = iota
	PhaseStreaming
	PhaseResolved
	PhaseFailed
)

// Message is one entry in the session's ordered sequence.
type Message struct {
	// ID is locally generated for user messages and placeholders, and
	// server-assigned for materialized assistant responses.
	ID      string
	Role    Role
	Content string
	// ToolCall is a human-readable label for backend tool activity tied to
	// an in-progress response; cleared when the response resolves.
	ToolCall string
	Phase    Phase
	// Timestamp is client-observed creation time, display-only.
	Timestamp time.Time
}

// IsStreaming reports whether the message is still awaiting resolution.
func (m Message) IsStreaming() bool {
	return m.Phase == PhasePending || m.Phase == PhaseStreaming
}

// IsThinking reports whether this is the uncorrelated placeholder.
func (m Message) IsThinking() bool {
	return m.Phase == PhasePending
}

const defaultToolCallLabel = "Processing request"

// toolCallLabels maps backend tool action codes to the label shown while the
// tool runs. Unrecognized codes fall back to defaultToolCallLabel.
var toolCallLabels = map[string]string{
	"LOOKUP_PATIENT":   "Checking patient records",
	"LOOKUP_ENCOUNTER": "Reviewing encounter notes",
	"LOOKUP_BILLING":   "Reviewing billing records",
	"LOOKUP_SCHEDULE":  "Checking the schedule",
	"SEARCH_KNOWLEDGE": "Searching clinical references",
	"DRAFT_NOTE":       "Drafting a note",
}

func labelForAction(action string) string {
	if label, ok := toolCallLabels[action]; ok {
		return label
	}
	return defaultToolCallLabel
}
