package assistant

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ayurveda/clinic/internal/platform/apperr"
	"github.com/ayurveda/clinic/internal/platform/llm"
)

const DefaultMaxTurns = 20

// maxMessageLen bounds a single turn so one request cannot blow the model's
// context window.
const maxMessageLen = 4000

// Turn is one entry of the client-held conversation history.
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type Service struct {
	llm      llm.Client
	maxTurns int
}

func NewService(client llm.Client, maxTurns int) *Service {
	if maxTurns <= 0 {
		maxTurns = DefaultMaxTurns
	}
	return &Service{llm: client, maxTurns: maxTurns}
}

// Reply answers the last user turn of history. Client-supplied system turns
// are dropped and only the most recent maxTurns turns are sent.
func (s *Service) Reply(ctx context.Context, history []Turn) (string, error) {
	msgs, err := s.prompt(history)
	if err != nil {
		return "", err
	}
	if s.llm == nil {
		return "", llm.ErrUnavailable
	}
	reply, err := s.llm.Chat(ctx, msgs)
	if err != nil {
		return "", fmt.Errorf("assistant reply: %w", err)
	}
	return reply, nil
}

func (s *Service) prompt(history []Turn) ([]llm.Message, error) {
	turns := make([]Turn, 0, len(history))
	for i, t := range history {
		role := strings.ToLower(strings.TrimSpace(t.Role))
		content := strings.TrimSpace(t.Content)
		switch role {
		case "system":
			continue
		case "user", "assistant":
		default:
			return nil, apperr.Invalid(fmt.Sprintf("messages[%d].role", i), "role must be \"user\" or \"assistant\"")
		}
		if content == "" {
			return nil, apperr.Invalid(fmt.Sprintf("messages[%d].content", i), "content is required")
		}
		if len(content) > maxMessageLen {
			return nil, apperr.Invalid(fmt.Sprintf("messages[%d].content", i), "content exceeds %d characters", maxMessageLen)
		}
		turns = append(turns, Turn{Role: role, Content: content})
	}
	if len(turns) == 0 {
		return nil, apperr.Invalid("messages", "at least one message is required")
	}
	if turns[len(turns)-1].Role != "user" {
		return nil, apperr.Invalid("messages", "the last message must come from the user")
	}
	if len(turns) > s.maxTurns {
		turns = turns[len(turns)-s.maxTurns:]
	}

	msgs := make([]llm.Message, 0, len(turns)+1)
	msgs = append(msgs, llm.Message{Role: "system", Content: SystemPrompt})
	for _, t := range turns {
		msgs = append(msgs, llm.Message{Role: t.Role, Content: t.Content})
	}
	return msgs, nil
}

// IsUnavailable reports whether err means no model is configured.
func IsUnavailable(err error) bool {
	return errors.Is(err, llm.ErrUnavailable)
}
