package agent

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"

	"github.com/sashabaranov/go-openai"

	"github.com/lumenhealth/consult/internal/wire"
	"github.com/lumenhealth/consult/pkg/logger"
)

const systemPrompt = "You are a concise assistant for a clinical practice management system. " +
	"Answer questions about patients, encounters, billing and scheduling."

// OpenAI streams completions from the OpenAI API as delta events.
type OpenAI struct {
	mu     sync.RWMutex
	client *openai.Client
}

// NewOpenAI returns nil when no key is configured, matching the
// nil-when-unconfigured service convention.
func NewOpenAI(key string) *OpenAI {
	if key == "" {
		return nil
	}
	return &OpenAI{client: openai.NewClient(key)}
}

func (s *OpenAI) Respond(ctx context.Context, history []wire.HistoryMessage, respID string, emit Emit) (string, error) {
	s.mu.RLock()
	client := s.client
	s.mu.RUnlock()

	messages := make([]openai.ChatCompletionMessage, 0, len(history)+1)
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleSystem,
		Content: systemPrompt,
	})
	for _, hm := range history {
		role := openai.ChatMessageRoleUser
		if hm.Role == "assistant" {
			role = openai.ChatMessageRoleAssistant
		}
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    role,
			Content: hm.Content,
		})
	}

	stream, err := client.CreateChatCompletionStream(ctx, openai.ChatCompletionRequest{
		Model:    openai.GPT4Turbo,
		Messages: messages,
		Stream:   true,
	})
	if err != nil {
		logger.Error(logger.AGENT, "Failed to open completion stream: %v", err)
		return "", err
	}
	defer stream.Close()

	var content strings.Builder
	for {
		resp, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			logger.Error(logger.AGENT, "Completion stream failed: %v", err)
			return "", err
		}
		if len(resp.Choices) == 0 {
			continue
		}

		delta := resp.Choices[0].Delta.Content
		if delta == "" {
			continue
		}
		content.WriteString(delta)
		if err := emit(wire.Event{Type: wire.EventDelta, ID: respID, Delta: delta}); err != nil {
			return "", err
		}
	}

	final := content.String()
	if err := emit(wire.Event{Type: wire.EventCompleted, ID: respID, Content: final}); err != nil {
		return "", err
	}
	return final, nil
}
