package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/kayz/stageprompt/internal/config"
)

// Provider is a chat-completion backend.
type Provider interface {
	Name() string
	Chat(ctx context.Context, req ChatRequest) (ChatResponse, error)
}

// Message is one turn of conversation history.
type Message struct {
	Role    string // "user" | "assistant"
	Content string
}

// ChatRequest is a provider-neutral completion request. SystemPrompt, when
// set, is used for this call instead of the provider's stored instruction.
type ChatRequest struct {
	Messages     []Message
	SystemPrompt string
	MaxTokens    int
}

// ChatResponse is a provider-neutral completion result.
type ChatResponse struct {
	Content      string
	FinishReason string
}

// NewProvider creates the provider named by cfg.Provider.
func NewProvider(cfg config.AIConfig) (Provider, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "", "openai":
		p, err := NewOpenAIProvider(OpenAIConfig{
			APIKey:  cfg.APIKey,
			BaseURL: cfg.BaseURL,
			Model:   cfg.Model,
		})
		if err != nil {
			return nil, err
		}
		return p, nil
	case "anthropic", "claude":
		p, err := NewAnthropicProvider(AnthropicConfig{
			APIKey:  cfg.APIKey,
			BaseURL: cfg.BaseURL,
			Model:   cfg.Model,
		})
		if err != nil {
			return nil, err
		}
		return p, nil
	case "deepseek", "qwen", "kimi":
		p, err := newCompatibleProvider(strings.ToLower(strings.TrimSpace(cfg.Provider)), OpenAIConfig{
			APIKey:  cfg.APIKey,
			BaseURL: cfg.BaseURL,
			Model:   cfg.Model,
		})
		if err != nil {
			return nil, err
		}
		return p, nil
	default:
		return nil, fmt.Errorf("unknown AI provider: %s", cfg.Provider)
	}
}
