package agent

import (
	"context"
	"fmt"
	"sync"

	"github.com/sashabaranov/go-openai"
)

const defaultOpenAIModel = openai.GPT4oMini

// OpenAIProvider talks to any OpenAI-compatible chat completions API. Its
// system instruction is a plain field that can be replaced between turns.
type OpenAIProvider struct {
	name   string
	client *openai.Client
	model  string

	mu                sync.RWMutex
	systemInstruction string
}

// OpenAIConfig holds configuration for an OpenAI-compatible provider
type OpenAIConfig struct {
	// Name labels the backend in logs; defaults to "openai".
	Name    string
	APIKey  string
	BaseURL string
	Model   string
}

// NewOpenAIProvider creates a new OpenAI-compatible provider
func NewOpenAIProvider(cfg OpenAIConfig) (*OpenAIProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("API key is required")
	}
	if cfg.Model == "" {
		cfg.Model = defaultOpenAIModel
	}

	config := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		config.BaseURL = cfg.BaseURL
	}

	if cfg.Name == "" {
		cfg.Name = "openai"
	}

	return &OpenAIProvider{
		name:   cfg.Name,
		client: openai.NewClientWithConfig(config),
		model:  cfg.Model,
	}, nil
}

func (p *OpenAIProvider) Name() string {
	return p.name
}

// SetSystemInstruction replaces the instruction sent with every later call.
func (p *OpenAIProvider) SetSystemInstruction(prompt string) {
	p.mu.Lock()
	p.systemInstruction = prompt
	p.mu.Unlock()
}

// SystemInstruction returns the stored instruction.
func (p *OpenAIProvider) SystemInstruction() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.systemInstruction
}

// Chat sends messages and returns a response
func (p *OpenAIProvider) Chat(ctx context.Context, req ChatRequest) (ChatResponse, error) {
	system := req.SystemPrompt
	if system == "" {
		system = p.SystemInstruction()
	}

	messages := make([]openai.ChatCompletionMessage, 0, len(req.Messages)+1)
	if system != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: system,
		})
	}
	for _, msg := range req.Messages {
		role := openai.ChatMessageRoleUser
		if msg.Role == "assistant" {
			role = openai.ChatMessageRoleAssistant
		}
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    role,
			Content: msg.Content,
		})
	}

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 1024
	}

	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:     p.model,
		Messages:  messages,
		MaxTokens: maxTokens,
	})
	if err != nil {
		return ChatResponse{}, fmt.Errorf("openai API error: %w", err)
	}
	if len(resp.Choices) == 0 {
		return ChatResponse{}, nil
	}

	choice := resp.Choices[0]
	return ChatResponse{
		Content:      choice.Message.Content,
		FinishReason: string(choice.FinishReason),
	}, nil
}
