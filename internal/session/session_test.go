package session

import (
	"strings"
	"sync"
	"testing"

	"github.com/lumenhealth/consult/internal/wire"
)

// fakeTransport records outbound intents without a real channel.
type fakeTransport struct {
	mu          sync.Mutex
	sent        []string
	deactivated int
}

func (f *fakeTransport) SendMessage(text string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, text)
}

func (f *fakeTransport) DeactivateSession() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deactivated++
}

func (f *fakeTransport) sentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

func newTestSession() (*Session, *fakeTransport) {
	tr := &fakeTransport{}
	return New(tr), tr
}

func pendingCount(msgs []Message) int {
	count := 0
	for _, m := range msgs {
		if m.IsThinking() {
			count++
		}
	}
	return count
}

func TestSendMessage(t *testing.T) {
	t.Run("appends user message and placeholder", func(t *testing.T) {
		s, tr := newTestSession()

		s.SendMessage("Hello")

		msgs := s.Messages()
		if len(msgs) != 2 {
			t.Fatalf("got %d messages, want 2", len(msgs))
		}
		if msgs[0].Role != RoleUser || msgs[0].Content != "Hello" {
			t.Errorf("user message = %+v", msgs[0])
		}
		if msgs[0].IsStreaming() {
			t.Error("user message should not be streaming")
		}
		if !msgs[1].IsThinking() || msgs[1].Role != RoleAssistant {
			t.Errorf("placeholder = %+v", msgs[1])
		}
		if !s.IsStreaming() {
			t.Error("session should be streaming after accepted send")
		}
		if tr.sentCount() != 1 {
			t.Errorf("transport received %d sends, want 1", tr.sentCount())
		}
	})

	t.Run("empty and whitespace-only text is a no-op", func(t *testing.T) {
		s, tr := newTestSession()

		s.SendMessage("")
		s.SendMessage("   \t")

		if len(s.Messages()) != 0 {
			t.Errorf("got %d messages, want 0", len(s.Messages()))
		}
		if tr.sentCount() != 0 {
			t.Errorf("transport received %d sends, want 0", tr.sentCount())
		}
	})

	t.Run("single in-flight gate rejects until resolution", func(t *testing.T) {
		s, tr := newTestSession()

		s.SendMessage("first")
		s.SendMessage("second")
		s.SendMessage("third")

		if got := tr.sentCount(); got != 1 {
			t.Fatalf("transport received %d sends, want 1", got)
		}
		if got := len(s.Messages()); got != 2 {
			t.Fatalf("got %d messages, want 2", got)
		}

		s.applyCompletion("a1", "done")

		s.SendMessage("fourth")
		if got := tr.sentCount(); got != 2 {
			t.Errorf("transport received %d sends after completion, want 2", got)
		}
	})

	t.Run("error also releases the gate", func(t *testing.T) {
		s, tr := newTestSession()

		s.SendMessage("first")
		s.applyError("a1", "boom")

		if s.IsStreaming() {
			t.Error("session still streaming after error")
		}
		s.SendMessage("second")
		if got := tr.sentCount(); got != 2 {
			t.Errorf("transport received %d sends, want 2", got)
		}
	})

	t.Run("disconnected send still appends locally", func(t *testing.T) {
		// The gate is the in-flight flag, not connection status; the channel
		// drops the transmission silently when disconnected.
		s, _ := newTestSession()

		s.SendMessage("offline")

		if got := len(s.Messages()); got != 2 {
			t.Errorf("got %d messages, want 2", got)
		}
	})
}

func TestApplyHistory(t *testing.T) {
	t.Run("rebuilds messages and known ids", func(t *testing.T) {
		s, _ := newTestSession()

		s.applyHistory([]wire.HistoryMessage{
			{ID: "u1", Role: "user", Content: "Hi"},
			{ID: "a1", Role: "assistant", Content: "Hello!"},
		})

		msgs := s.Messages()
		if len(msgs) != 2 {
			t.Fatalf("got %d messages, want 2", len(msgs))
		}
		if msgs[0].Role != RoleUser || msgs[0].Content != "Hi" {
			t.Errorf("first = %+v", msgs[0])
		}
		if msgs[1].Role != RoleAssistant || msgs[1].Content != "Hello!" {
			t.Errorf("second = %+v", msgs[1])
		}
		if msgs[1].IsStreaming() {
			t.Error("history messages should not be streaming")
		}
		if s.IsStreaming() {
			t.Error("session should be idle after snapshot")
		}

		// a1 is known: a delta for it must mutate, not materialize.
		s.applyDelta("a1", " again")
		msgs = s.Messages()
		if len(msgs) != 2 {
			t.Fatalf("delta for known id appended a message, got %d", len(msgs))
		}
		if msgs[1].Content != "Hello! again" {
			t.Errorf("content = %q", msgs[1].Content)
		}
	})

	t.Run("snapshot replaces, never merges", func(t *testing.T) {
		s, _ := newTestSession()

		s.SendMessage("local state")
		s.applyDelta("a9", "stream")

		s.applyHistory([]wire.HistoryMessage{
			{ID: "a1", Role: "assistant", Content: "only me"},
		})

		msgs := s.Messages()
		if len(msgs) != 1 || msgs[0].ID != "a1" {
			t.Fatalf("residual state after snapshot: %+v", msgs)
		}

		// a9 must no longer be known: a new delta materializes a fresh message.
		s.applyDelta("a9", "back")
		msgs = s.Messages()
		if len(msgs) != 2 || msgs[1].Content != "back" {
			t.Errorf("a9 survived the snapshot: %+v", msgs)
		}
	})
}

func TestApplyDelta(t *testing.T) {
	t.Run("first delta replaces placeholder", func(t *testing.T) {
		s, _ := newTestSession()

		s.SendMessage("question")
		s.applyDelta("a1", "The answer ")

		msgs := s.Messages()
		if pendingCount(msgs) != 0 {
			t.Error("placeholder survived first delta")
		}
		if len(msgs) != 2 {
			t.Fatalf("got %d messages, want 2", len(msgs))
		}
		last := msgs[1]
		if last.ID != "a1" || last.Content != "The answer " || !last.IsStreaming() {
			t.Errorf("materialized message = %+v", last)
		}
	})

	t.Run("subsequent deltas accumulate", func(t *testing.T) {
		s, _ := newTestSession()

		s.applyDelta("a1", "one ")
		s.applyDelta("a1", "two ")
		s.applyDelta("a1", "three")

		msgs := s.Messages()
		if len(msgs) != 1 {
			t.Fatalf("got %d messages, want 1", len(msgs))
		}
		if msgs[0].Content != "one two three" {
			t.Errorf("content = %q", msgs[0].Content)
		}
		if !s.IsStreaming() {
			t.Error("session should be streaming while deltas arrive")
		}
	})
}

func TestApplyToolCall(t *testing.T) {
	t.Run("materializes with label on first event", func(t *testing.T) {
		s, _ := newTestSession()

		s.SendMessage("Status?")
		s.applyToolCall("a2", "LOOKUP_PATIENT")

		msgs := s.Messages()
		if pendingCount(msgs) != 0 {
			t.Error("placeholder survived tool call")
		}
		last := msgs[len(msgs)-1]
		if last.ID != "a2" || last.Content != "" || !last.IsStreaming() {
			t.Errorf("materialized message = %+v", last)
		}
		if last.ToolCall != "Checking patient records" {
			t.Errorf("tool call label = %q", last.ToolCall)
		}
	})

	t.Run("overwrites label on known id without touching content", func(t *testing.T) {
		s, _ := newTestSession()

		s.applyDelta("a2", "partial")
		s.applyToolCall("a2", "LOOKUP_BILLING")
		s.applyToolCall("a2", "LOOKUP_SCHEDULE")

		msgs := s.Messages()
		if len(msgs) != 1 {
			t.Fatalf("got %d messages, want 1", len(msgs))
		}
		if msgs[0].Content != "partial" {
			t.Errorf("content changed: %q", msgs[0].Content)
		}
		if msgs[0].ToolCall != "Checking the schedule" {
			t.Errorf("label = %q", msgs[0].ToolCall)
		}
	})

	t.Run("unknown action falls back to default label", func(t *testing.T) {
		s, _ := newTestSession()

		s.applyToolCall("a2", "SOMETHING_NEW")

		if got := s.Messages()[0].ToolCall; got != "Processing request" {
			t.Errorf("label = %q", got)
		}
	})
}

func TestApplyCompletion(t *testing.T) {
	t.Run("replaces content and clears tool call", func(t *testing.T) {
		s, _ := newTestSession()

		s.SendMessage("Status?")
		s.applyToolCall("a2", "LOOKUP_PATIENT")
		s.applyDelta("a2", "The patient is ")
		s.applyCompletion("a2", "The patient is stable.")

		msgs := s.Messages()
		last := msgs[len(msgs)-1]
		if last.Content != "The patient is stable." {
			t.Errorf("content = %q", last.Content)
		}
		if last.IsStreaming() {
			t.Error("message still streaming after completion")
		}
		if last.ToolCall != "" {
			t.Errorf("tool call not cleared: %q", last.ToolCall)
		}
		if s.IsStreaming() {
			t.Error("session still streaming after completion")
		}
	})

	t.Run("orphan completion is appended, not dropped", func(t *testing.T) {
		s, _ := newTestSession()

		s.applyCompletion("a7", "quiet answer")

		msgs := s.Messages()
		if len(msgs) != 1 {
			t.Fatalf("got %d messages, want 1", len(msgs))
		}
		if msgs[0].ID != "a7" || msgs[0].Content != "quiet answer" || msgs[0].IsStreaming() {
			t.Errorf("orphan completion = %+v", msgs[0])
		}
	})

	t.Run("delta-then-completion matches toolcall-delta-completion", func(t *testing.T) {
		a, _ := newTestSession()
		a.applyDelta("x", "partial")
		a.applyCompletion("x", "final")

		b, _ := newTestSession()
		b.applyToolCall("x", "LOOKUP_PATIENT")
		b.applyDelta("x", "partial")
		b.applyCompletion("x", "final")

		am, bm := a.Messages()[0], b.Messages()[0]
		if am.ID != bm.ID || am.Content != bm.Content || am.Phase != bm.Phase || am.ToolCall != bm.ToolCall {
			t.Errorf("merge not idempotent: %+v vs %+v", am, bm)
		}
	})
}

func TestApplyError(t *testing.T) {
	t.Run("fails a known message in place", func(t *testing.T) {
		s, _ := newTestSession()

		s.applyToolCall("a3", "LOOKUP_PATIENT")
		s.applyError("a3", "Upstream timeout")

		msgs := s.Messages()
		if len(msgs) != 1 {
			t.Fatalf("got %d messages, want 1", len(msgs))
		}
		if msgs[0].Content != "Upstream timeout" || msgs[0].IsStreaming() || msgs[0].ToolCall != "" {
			t.Errorf("failed message = %+v", msgs[0])
		}
	})

	t.Run("error for unseen id appends a failed message", func(t *testing.T) {
		s, _ := newTestSession()

		s.applyError("a3", "Upstream timeout")

		msgs := s.Messages()
		if len(msgs) != 1 {
			t.Fatalf("got %d messages, want 1", len(msgs))
		}
		if msgs[0].Content != "Upstream timeout" || msgs[0].IsStreaming() {
			t.Errorf("appended error = %+v", msgs[0])
		}
	})

	t.Run("error without id generates a local one", func(t *testing.T) {
		s, _ := newTestSession()

		s.SendMessage("hi")
		s.applyError("", "backend unavailable")

		msgs := s.Messages()
		if pendingCount(msgs) != 0 {
			t.Error("placeholder survived error")
		}
		last := msgs[len(msgs)-1]
		if last.ID == "" {
			t.Error("no local id generated")
		}
		if last.Content != "backend unavailable" {
			t.Errorf("content = %q", last.Content)
		}
	})
}

func TestClearMessages(t *testing.T) {
	s, tr := newTestSession()

	s.SendMessage("hello")
	s.applyDelta("a1", "answer")
	s.ClearMessages()

	if len(s.Messages()) != 0 {
		t.Errorf("messages not cleared: %+v", s.Messages())
	}
	if s.IsStreaming() {
		t.Error("session still streaming after clear")
	}
	if tr.deactivated != 1 {
		t.Errorf("deactivate signalled %d times, want 1", tr.deactivated)
	}

	// Events for the cleared id now hit an empty list: the completion takes
	// its orphan branch and appends. This sharp edge is deliberate.
	s.applyCompletion("a1", "stray")
	if got := len(s.Messages()); got != 1 {
		t.Errorf("stray completion after clear: got %d messages, want 1", got)
	}
}

func TestPlaceholderUniqueness(t *testing.T) {
	s, _ := newTestSession()

	events := []func(){
		func() { s.SendMessage("one") },
		func() { s.SendMessage("two") },
		func() { s.applyToolCall("a1", "LOOKUP_PATIENT") },
		func() { s.applyDelta("a1", "text") },
		func() { s.SendMessage("three") },
		func() { s.applyCompletion("a1", "done") },
		func() { s.SendMessage("four") },
		func() { s.applyDelta("a2", "more") },
	}

	for i, apply := range events {
		apply()
		if got := pendingCount(s.Messages()); got > 1 {
			t.Fatalf("after event %d: %d placeholders present", i, got)
		}
	}
}

func TestInterleavedResponses(t *testing.T) {
	// Events for different ids are handled independently via the id-keyed
	// lookup, even though the send gate keeps the client to one at a time.
	s, _ := newTestSession()

	s.applyDelta("a1", "first ")
	s.applyDelta("a2", "second ")
	s.applyDelta("a1", "response")
	s.applyCompletion("a2", "second done")

	msgs := s.Messages()
	if len(msgs) != 2 {
		t.Fatalf("got %d messages, want 2", len(msgs))
	}
	if msgs[0].Content != "first response" {
		t.Errorf("a1 content = %q", msgs[0].Content)
	}
	if msgs[1].Content != "second done" || msgs[1].IsStreaming() {
		t.Errorf("a2 = %+v", msgs[1])
	}
}

func TestLabelForAction(t *testing.T) {
	tests := []struct {
		action string
		want   string
	}{
		{"LOOKUP_PATIENT", "Checking patient records"},
		{"LOOKUP_BILLING", "Reviewing billing records"},
		{"UNKNOWN_ACTION", "Processing request"},
		{"", "Processing request"},
	}

	for _, tt := range tests {
		if got := labelForAction(tt.action); got != tt.want {
			t.Errorf("labelForAction(%q) = %q, want %q", tt.action, got, tt.want)
		}
	}
}

func TestMessageOrderPreserved(t *testing.T) {
	s, _ := newTestSession()

	s.applyHistory([]wire.HistoryMessage{
		{ID: "u1", Role: "user", Content: "Hi"},
		{ID: "a1", Role: "assistant", Content: "Hello!"},
	})
	s.SendMessage("Status?")
	s.applyToolCall("a2", "LOOKUP_PATIENT")
	s.applyCompletion("a2", "Stable.")

	var ids []string
	for _, m := range s.Messages() {
		ids = append(ids, m.ID)
	}
	// a2 replaced the placeholder at the tail; insertion order elsewhere is
	// untouched.
	want := []string{"u1", "a1"}
	for i, id := range want {
		if ids[i] != id {
			t.Fatalf("order = %v", ids)
		}
	}
	if got := strings.Join(ids[2:], ","); !strings.Contains(got, "a2") {
		t.Fatalf("tail = %v", ids)
	}
}
