// Package agent produces the event stream for one assistant response in the
// reference backend: an optional tool-call annotation, a sequence of content
// deltas, and a completion. The scripted responder needs no external service;
// when an OpenAI key is configured the backend streams real completions
// instead.
package agent

import (
	"context"
	"strings"

	"github.com/lumenhealth/consult/internal/config"
	"github.com/lumenhealth/consult/internal/wire"
	"github.com/lumenhealth/consult/pkg/logger"
)

// Emit writes one event frame to the client. Implementations are supplied by
// the websocket handler.
type Emit func(ev wire.Event) error

// Responder streams the response to the latest user message in history,
// correlated under respID. It returns the final content for the server-side
// history, or an error the handler translates into an error event.
type Responder interface {
	Respond(ctx context.Context, history []wire.HistoryMessage, respID string, emit Emit) (string, error)
}

// NewResponder picks the OpenAI-backed responder when a key is configured
// and falls back to the scripted one otherwise.
func NewResponder() Responder {
	if svc := NewOpenAI(config.GetOpenAIKey()); svc != nil {
		logger.Info(logger.AGENT, "Using OpenAI responder")
		return svc
	}
	logger.Info(logger.AGENT, "OPENAI_KEY not set - using scripted responder")
	return Scripted{}
}

// Scripted is a deterministic responder for local development and tests.
type Scripted struct{}

// scriptedActions maps keywords in the user message to the tool action the
// response pretends to run.
var scriptedActions = []struct {
	keyword string
	action  string
	reply   string
}{
	{"patient", "LOOKUP_PATIENT", "The patient record is up to date and the latest vitals are within normal range."},
	{"bill", "LOOKUP_BILLING", "There are no outstanding balances on this account."},
	{"schedule", "LOOKUP_SCHEDULE", "The next available appointment slot is tomorrow at 9:30."},
	{"encounter", "LOOKUP_ENCOUNTER", "The most recent encounter note was signed and filed."},
}

const scriptedFallback = "I can help with patient records, billing, encounters and scheduling. What would you like to know?"

func (Scripted) Respond(ctx context.Context, history []wire.HistoryMessage, respID string, emit Emit) (string, error) {
	userText := lastUserMessage(history)

	action, reply := "", scriptedFallback
	lower := strings.ToLower(userText)
	for _, sa := range scriptedActions {
		if strings.Contains(lower, sa.keyword) {
			action, reply = sa.action, sa.reply
			break
		}
	}

	if action != "" {
		if err := emit(wire.Event{Type: wire.EventToolCall, ID: respID, Action: action}); err != nil {
			return "", err
		}
	}

	for _, word := range strings.SplitAfter(reply, " ") {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		if err := emit(wire.Event{Type: wire.EventDelta, ID: respID, Delta: word}); err != nil {
			return "", err
		}
	}

	if err := emit(wire.Event{Type: wire.EventCompleted, ID: respID, Content: reply}); err != nil {
		return "", err
	}
	return reply, nil
}

func lastUserMessage(history []wire.HistoryMessage) string {
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role == "user" {
			return history[i].Content
		}
	}
	return ""
}
