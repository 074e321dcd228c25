// Package llm wraps the OpenAI chat completion API for the assistant and the
// feedback sentiment analyzer.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// ErrUnavailable is returned when no API key is configured.
var ErrUnavailable = errors.New("language model is not configured")

// Message is a single chat turn. Role is one of "system", "user", "assistant".
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Client is what the assistant and sentiment analyzer need from a model.
type Client interface {
	Chat(ctx context.Context, messages []Message) (string, error)
	Complete(ctx context.Context, system, prompt string) (string, error)
}

type Config struct {
	APIKey        string
	ChatModel     string
	ClassifyModel string
	// BaseURL overrides the API endpoint, for proxies and tests.
	BaseURL string
}

type OpenAIClient struct {
	client        *openai.Client
	chatModel     string
	classifyModel string
}

// NewOpenAIClient returns nil when cfg carries no API key, so callers can
// fall back to non-LLM behaviour.
func NewOpenAIClient(cfg Config) *OpenAIClient {
	if cfg.APIKey == "" {
		return nil
	}
	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = cfg.BaseURL
	}
	chatModel := cfg.ChatModel
	if chatModel == "" {
		chatModel = "gpt-4o-mini"
	}
	classifyModel := cfg.ClassifyModel
	if classifyModel == "" {
		classifyModel = chatModel
	}
	return &OpenAIClient{
		client:        openai.NewClientWithConfig(oc),
		chatModel:     chatModel,
		classifyModel: classifyModel,
	}
}

func (c *OpenAIClient) Chat(ctx context.Context, messages []Message) (string, error) {
	if c == nil || c.client == nil {
		return "", ErrUnavailable
	}

	oaMsgs := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, m := range messages {
		role := m.Role
		if role != openai.ChatMessageRoleSystem && role != openai.ChatMessageRoleUser && role != openai.ChatMessageRoleAssistant {
			role = openai.ChatMessageRoleUser
		}
		oaMsgs = append(oaMsgs, openai.ChatCompletionMessage{Role: role, Content: m.Content})
	}

	return c.create(ctx, openai.ChatCompletionRequest{
		Model:       c.chatModel,
		Messages:    oaMsgs,
		Temperature: 0.4,
	})
}

// Complete runs a single-shot, low-temperature prompt.
func (c *OpenAIClient) Complete(ctx context.Context, system, prompt string) (string, error) {
	if c == nil || c.client == nil {
		return "", ErrUnavailable
	}
	return c.create(ctx, openai.ChatCompletionRequest{
		Model: c.classifyModel,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Temperature: 0,
		MaxTokens:   16,
	})
}

func (c *OpenAIClient) create(ctx context.Context, req openai.ChatCompletionRequest) (string, error) {
	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("chat completion returned no choices")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}
