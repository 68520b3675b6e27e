package promptbuild

import (
	"strings"
	"sync/atomic"

	"github.com/kayz/stageprompt/internal/logger"
	"github.com/kayz/stageprompt/internal/metrics"
	"github.com/kayz/stageprompt/internal/sections"
)

// alwaysIncluded opens every stage-derived selection.
var alwaysIncluded = []string{sections.CoreIdentity, sections.LanguageRules}

// stageSections are appended after alwaysIncluded, in order.
var stageSections = map[Stage][]string{
	StageStartup: {
		sections.StartupInstructions,
		sections.ConversationFlow,
		sections.ToneStyle,
		sections.ToolUsage,
	},
	StageMidConversation: {sections.MidConversation, sections.ToneStyle, sections.ToolUsage},
	StageActive:          {sections.MidConversation, sections.ToneStyle, sections.ToolUsage},
	StageClosing:         {sections.Closing, sections.ToneStyle},
}

var compactSections = []string{sections.CoreIdentity, sections.LanguageRules, sections.MidConversation}

// Block names for computed context in audit records.
const (
	blockDateTime   = "datetime"
	blockGuardrails = "guardrails"
)

// Builder assembles prompts from the section catalog. It holds no per-call
// state and is safe for concurrent use. The catalog it reads can be replaced
// wholesale with SetCatalog; each build sees exactly one catalog.
type Builder struct {
	catalog  atomic.Pointer[sections.Catalog]
	recorder Recorder
}

// NewBuilder creates a Builder over catalog.
func NewBuilder(catalog *sections.Catalog) *Builder {
	b := &Builder{}
	b.catalog.Store(catalog)
	return b
}

// WithRecorder returns a new Builder over the same catalog that reports every
// assembled prompt to r.
func (b *Builder) WithRecorder(r Recorder) *Builder {
	nb := &Builder{recorder: r}
	nb.catalog.Store(b.catalog.Load())
	return nb
}

// Catalog returns the catalog builds currently read from.
func (b *Builder) Catalog() *sections.Catalog {
	return b.catalog.Load()
}

// SetCatalog swaps the catalog for later builds.
func (b *Builder) SetCatalog(catalog *sections.Catalog) {
	b.catalog.Store(catalog)
}

// Plan returns the ordered section keys a request selects, before catalog
// lookup.
func (b *Builder) Plan(req Request) []string {
	var keys []string
	if req.Include != nil {
		keys = append(make([]string, 0, len(req.Include)), req.Include...)
	} else {
		keys = append(keys, alwaysIncluded...)
		keys = append(keys, stageSections[req.Stage]...)
	}

	if len(req.Exclude) == 0 {
		return keys
	}
	excluded := make(map[string]struct{}, len(req.Exclude))
	for _, k := range req.Exclude {
		excluded[k] = struct{}{}
	}
	kept := keys[:0]
	for _, k := range keys {
		if _, drop := excluded[k]; !drop {
			kept = append(kept, k)
		}
	}
	return kept
}

// Build assembles the prompt for req. It never fails: unknown keys and empty
// sections are skipped.
func (b *Builder) Build(req Request) string {
	keys := b.Plan(req)
	blocks := b.resolve(keys)

	if req.DateTime != nil {
		blocks = append(blocks, block{key: blockDateTime, content: formatDateTime(req.DateTime)})
	}
	if strings.TrimSpace(req.Guardrails) != "" {
		blocks = append(blocks, block{key: blockGuardrails, content: req.Guardrails})
	}

	out := renderBlocks(blocks)
	logger.Debug("Built prompt for stage %q with %d sections, total length: %d chars", req.Stage, len(keys), len(out))
	metrics.ObserveBuild(string(req.Stage), false, len(out))
	b.record(req, out, blocks, false)
	return out
}

// BuildCompact assembles the short reminder prompt: core identity, language
// rules and mid-conversation rules. The context argument is accepted but not
// consulted yet.
func (b *Builder) BuildCompact(_ map[string]any) string {
	blocks := b.resolve(compactSections)
	out := renderBlocks(blocks)
	metrics.ObserveBuild("", true, len(out))
	b.record(Request{Include: compactSections}, out, blocks, true)
	return out
}

type block struct {
	key     string
	content string
}

func (b *Builder) resolve(keys []string) []block {
	catalog := b.catalog.Load()
	blocks := make([]block, 0, len(keys)+2)
	for _, key := range keys {
		text, ok := catalog.Get(key)
		if !ok {
			logger.Warn("Unknown prompt section, skipping: %s", key)
			metrics.UnknownSections.Inc()
			continue
		}
		if strings.TrimSpace(text) == "" {
			continue
		}
		blocks = append(blocks, block{key: key, content: text})
	}
	return blocks
}

func renderBlocks(blocks []block) string {
	var out strings.Builder
	for i, blk := range blocks {
		if i > 0 {
			out.WriteString("\n\n")
		}
		out.WriteString(blk.content)
	}
	return out.String()
}

func (b *Builder) record(req Request, out string, blocks []block, compact bool) {
	if b.recorder == nil {
		return
	}
	rec := newAuditRecord(req, out, blockKeys(blocks), compact)
	if err := b.recorder.Record(rec); err != nil {
		logger.Warn("Record prompt build failed: %v", err)
	}
}

func blockKeys(blocks []block) []string {
	keys := make([]string, 0, len(blocks))
	for _, blk := range blocks {
		keys = append(keys, blk.key)
	}
	return keys
}
