// Package instruction pushes freshly assembled prompts into language-model
// clients that accept instruction changes mid-conversation.
package instruction

import (
	"errors"
	"fmt"
	"reflect"
	"sync"

	"github.com/kayz/stageprompt/internal/logger"
	"github.com/kayz/stageprompt/internal/metrics"
	"github.com/kayz/stageprompt/internal/promptbuild"
)

// FieldSetter is implemented by clients whose system instruction is a plain
// mutable value. Assignment cannot fail.
type FieldSetter interface {
	SetSystemInstruction(prompt string)
}

// MethodUpdater is implemented by clients that apply a new system instruction
// through an operation that may fail.
type MethodUpdater interface {
	UpdateSystemInstruction(prompt string) error
}

// Capability is how a client accepts instruction updates.
type Capability int

const (
	NoSupport Capability = iota
	SettableField
	UpdateOperation
)

func (c Capability) String() string {
	switch c {
	case SettableField:
		return "settable_field"
	case UpdateOperation:
		return "update_operation"
	default:
		return "none"
	}
}

// capabilities caches the resolved Capability per concrete client type.
var capabilities sync.Map // reflect.Type -> Capability

// CapabilityOf reports how client accepts updates. A settable field wins over
// an update operation when a type offers both.
func CapabilityOf(client any) Capability {
	if client == nil {
		return NoSupport
	}
	t := reflect.TypeOf(client)
	if c, ok := capabilities.Load(t); ok {
		return c.(Capability)
	}

	c := NoSupport
	switch client.(type) {
	case FieldSetter:
		c = SettableField
	case MethodUpdater:
		c = UpdateOperation
	}
	capabilities.Store(t, c)
	return c
}

// Result reports the outcome of one Push.
type Result struct {
	Updated    bool
	Capability Capability
	Stage      promptbuild.Stage
	// Prompt is the assembled prompt, set even when the client was not updated.
	Prompt string
	Err    error
}

// ErrUnsupported is the Result error for clients without any capability.
var ErrUnsupported = errors.New("client does not support dynamic system instruction updates")

// Updater assembles prompts and hands them to clients.
type Updater struct {
	builder *promptbuild.Builder
}

func New(builder *promptbuild.Builder) *Updater {
	return &Updater{builder: builder}
}

// Prompt assembles the instruction Push would apply, without touching a client.
func (u *Updater) Prompt(stage promptbuild.Stage, dt *promptbuild.DateTimeInfo, guardrails string) string {
	return u.builder.Build(promptbuild.Request{
		Stage:      stage,
		DateTime:   dt,
		Guardrails: guardrails,
	})
}

// Push assembles the prompt for stage and applies it to client. It never
// returns a failure to the caller other than through Result, including a
// client that panics while being updated.
func (u *Updater) Push(client any, stage promptbuild.Stage, dt *promptbuild.DateTimeInfo, guardrails string) (res Result) {
	prompt := u.Prompt(stage, dt, guardrails)
	res = Result{Stage: stage, Prompt: prompt}

	defer func() {
		if r := recover(); r != nil {
			res.Updated = false
			res.Err = fmt.Errorf("update system instruction: panic: %v", r)
			logger.Error("Client %T panicked updating system instruction for stage %s: %v", client, stage, r)
		}
		outcome := "updated"
		if !res.Updated {
			outcome = "failed"
		}
		metrics.InstructionPushes.WithLabelValues(res.Capability.String(), outcome).Inc()
	}()

	res.Capability = CapabilityOf(client)
	switch res.Capability {
	case SettableField:
		client.(FieldSetter).SetSystemInstruction(prompt)
		res.Updated = true
		logger.Info("Updated system instruction for stage: %s", stage)
	case UpdateOperation:
		if err := client.(MethodUpdater).UpdateSystemInstruction(prompt); err != nil {
			res.Err = fmt.Errorf("update system instruction: %w", err)
			logger.Error("Error updating system instruction for stage %s: %v", stage, err)
			break
		}
		res.Updated = true
		logger.Info("Updated system instruction via method for stage: %s", stage)
	default:
		res.Err = ErrUnsupported
		logger.Warn("Client %T does not support dynamic system instruction updates", client)
	}
	return res
}
