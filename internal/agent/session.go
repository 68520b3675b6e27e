package agent

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kayz/stageprompt/internal/instruction"
	"github.com/kayz/stageprompt/internal/logger"
	"github.com/kayz/stageprompt/internal/metrics"
	"github.com/kayz/stageprompt/internal/promptbuild"
)

// SessionConfig configures a Session.
type SessionConfig struct {
	Stage      promptbuild.Stage
	Guardrails string
	Location   *time.Location
	MaxTokens  int
	// MaxHistory caps the user/assistant turns replayed to the provider; 0
	// keeps all. One turn is two messages.
	MaxHistory int
	Now        func() time.Time
}

// Session is one conversation. Before every turn it refreshes the provider's
// system instruction for the current stage.
type Session struct {
	ID string

	provider Provider
	updater  *instruction.Updater
	cfg      SessionConfig
	// inline is set for providers that cannot take instruction updates.
	inline bool

	mu      sync.Mutex
	stage   promptbuild.Stage
	history []Message
}

func NewSession(provider Provider, updater *instruction.Updater, cfg SessionConfig) *Session {
	if cfg.Stage == "" {
		cfg.Stage = promptbuild.StageStartup
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	s := &Session{
		ID:       uuid.NewString(),
		provider: provider,
		updater:  updater,
		cfg:      cfg,
		stage:    cfg.Stage,
		inline:   instruction.CapabilityOf(provider) == instruction.NoSupport,
	}
	if s.inline {
		logger.Info("[Session %s] provider %s takes no instruction updates, sending prompt inline", s.ID, provider.Name())
	}
	return s
}

func (s *Session) Stage() promptbuild.Stage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stage
}

// SetStage moves the conversation to stage; the next turn uses its sections.
func (s *Session) SetStage(stage promptbuild.Stage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !stage.Known() {
		logger.Warn("[Session %s] stage %q has no stage-specific sections", s.ID, stage)
	}
	s.stage = stage
}

// Send runs one user turn and returns the assistant reply.
func (s *Session) Send(ctx context.Context, text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", fmt.Errorf("empty message")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	dt := promptbuild.NewDateTimeInfo(s.cfg.Now().In(s.cfg.Location))
	req := ChatRequest{
		Messages:  append(s.replayHistory(), Message{Role: "user", Content: text}),
		MaxTokens: s.cfg.MaxTokens,
	}
	if s.inline {
		req.SystemPrompt = s.updater.Prompt(s.stage, dt, s.cfg.Guardrails)
	} else if res := s.updater.Push(s.provider, s.stage, dt, s.cfg.Guardrails); !res.Updated {
		// Provider kept its old instruction; pass the fresh one per call.
		logger.Debug("[Session %s] instruction push failed (%v), sending prompt inline", s.ID, res.Err)
		req.SystemPrompt = res.Prompt
	}

	started := time.Now()
	resp, err := s.provider.Chat(ctx, req)
	metrics.ObserveChat(s.provider.Name(), started, err)
	if err != nil {
		return "", err
	}

	s.history = append(s.history,
		Message{Role: "user", Content: text},
		Message{Role: "assistant", Content: resp.Content},
	)
	logger.Trace("[Session %s] stage=%s history=%d", s.ID, s.stage, len(s.history))
	return resp.Content, nil
}

// replayHistory returns the last MaxHistory turns. The window always opens on
// a user message; providers reject a history that starts with the assistant.
func (s *Session) replayHistory() []Message {
	h := s.history
	if limit := 2 * s.cfg.MaxHistory; limit > 0 && len(h) > limit {
		h = h[len(h)-limit:]
	}
	for len(h) > 0 && h[0].Role != "user" {
		h = h[1:]
	}
	out := make([]Message, len(h), len(h)+1)
	copy(out, h)
	return out
}

// History returns a copy of the turns so far.
func (s *Session) History() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Message, len(s.history))
	copy(out, s.history)
	return out
}
