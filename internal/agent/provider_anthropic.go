package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/liushuangls/go-anthropic/v2"
)

const defaultAnthropicModel = "claude-3-5-haiku-20241022"

// AnthropicProvider talks to the Anthropic Messages API. Its system
// instruction is changed through UpdateSystemInstruction, which validates the
// new value.
type AnthropicProvider struct {
	client *anthropic.Client
	model  string

	mu                sync.RWMutex
	systemInstruction string
}

type AnthropicConfig struct {
	APIKey  string
	BaseURL string
	Model   string
}

func NewAnthropicProvider(cfg AnthropicConfig) (*AnthropicProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("API key is required")
	}
	if cfg.Model == "" {
		cfg.Model = defaultAnthropicModel
	}

	var opts []anthropic.ClientOption
	if cfg.BaseURL != "" {
		opts = append(opts, anthropic.WithBaseURL(cfg.BaseURL))
	}

	return &AnthropicProvider{
		client: anthropic.NewClient(cfg.APIKey, opts...),
		model:  cfg.Model,
	}, nil
}

func (p *AnthropicProvider) Name() string {
	return "anthropic"
}

// ErrEmptyInstruction is returned when an update would clear the instruction.
var ErrEmptyInstruction = errors.New("system instruction is empty")

// UpdateSystemInstruction replaces the instruction sent with every later call.
func (p *AnthropicProvider) UpdateSystemInstruction(prompt string) error {
	if strings.TrimSpace(prompt) == "" {
		return ErrEmptyInstruction
	}
	p.mu.Lock()
	p.systemInstruction = prompt
	p.mu.Unlock()
	return nil
}

func (p *AnthropicProvider) SystemInstruction() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.systemInstruction
}

func (p *AnthropicProvider) Chat(ctx context.Context, req ChatRequest) (ChatResponse, error) {
	system := req.SystemPrompt
	if system == "" {
		system = p.SystemInstruction()
	}

	messages := make([]anthropic.Message, 0, len(req.Messages))
	for _, msg := range req.Messages {
		if msg.Role == "assistant" {
			messages = append(messages, anthropic.NewAssistantTextMessage(msg.Content))
			continue
		}
		messages = append(messages, anthropic.NewUserTextMessage(msg.Content))
	}

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 1024
	}

	resp, err := p.client.CreateMessages(ctx, anthropic.MessagesRequest{
		Model:     anthropic.Model(p.model),
		System:    system,
		Messages:  messages,
		MaxTokens: maxTokens,
	})
	if err != nil {
		return ChatResponse{}, fmt.Errorf("anthropic API error: %w", err)
	}

	return ChatResponse{
		Content:      resp.GetFirstContentText(),
		FinishReason: string(resp.StopReason),
	}, nil
}
