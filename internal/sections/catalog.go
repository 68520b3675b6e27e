// Package sections owns the catalog of named instruction blocks that prompts
// are assembled from. The catalog is loaded once and is read-only afterwards.
package sections

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/kayz/stageprompt/internal/logger"
)

// Section keys. Every catalog holds exactly these.
const (
	CoreIdentity        = "core_identity"
	LanguageRules       = "language_rules"
	StartupInstructions = "startup_instructions"
	MidConversation     = "mid_conversation"
	ToolUsage           = "tool_usage"
	Closing             = "closing"
	FAQInfo             = "faq_info"
	ConversationFlow    = "conversation_flow"
	ToneStyle           = "tone_style"
)

// RequiredKeys lists every key a content source must provide.
var RequiredKeys = []string{
	CoreIdentity,
	LanguageRules,
	StartupInstructions,
	MidConversation,
	ToolUsage,
	Closing,
	FAQInfo,
	ConversationFlow,
	ToneStyle,
}

// ErrMissingSection is wrapped by load errors when a required key is absent.
var ErrMissingSection = errors.New("missing required section")

//go:embed content/*.md
var builtinContent embed.FS

// Catalog maps section keys to text.
type Catalog struct {
	sections map[string]string
}

// New builds a catalog from an in-memory map. Keys outside RequiredKeys are
// ignored.
func New(texts map[string]string) (*Catalog, error) {
	var missing []string
	sections := make(map[string]string, len(RequiredKeys))
	for _, key := range RequiredKeys {
		text, ok := texts[key]
		if !ok {
			missing = append(missing, key)
			continue
		}
		sections[key] = text
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrMissingSection, strings.Join(missing, ", "))
	}

	for key := range texts {
		if _, ok := sections[key]; !ok {
			logger.Warn("Ignoring unknown section in content source: %s", key)
		}
	}
	return &Catalog{sections: sections}, nil
}

// LoadFS reads <key>.md for every required key from fsys.
func LoadFS(fsys fs.FS) (*Catalog, error) {
	texts := make(map[string]string, len(RequiredKeys))
	for _, key := range RequiredKeys {
		data, err := fs.ReadFile(fsys, key+".md")
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return nil, fmt.Errorf("read section %s: %w", key, err)
		}
		texts[key] = strings.TrimSpace(string(data))
	}
	return New(texts)
}

// LoadDir reads section files from a directory on disk.
func LoadDir(dir string) (*Catalog, error) {
	cat, err := LoadFS(os.DirFS(dir))
	if err != nil {
		return nil, fmt.Errorf("load sections from %s: %w", dir, err)
	}
	return cat, nil
}

// LoadYAML reads a YAML document mapping section keys to text.
func LoadYAML(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read sections file %s: %w", path, err)
	}
	var texts map[string]string
	if err := yaml.Unmarshal(data, &texts); err != nil {
		return nil, fmt.Errorf("parse sections file %s: %w", path, err)
	}
	cat, err := New(texts)
	if err != nil {
		return nil, fmt.Errorf("load sections from %s: %w", path, err)
	}
	return cat, nil
}

// LoadBuiltin reads the section text compiled into the binary.
func LoadBuiltin() (*Catalog, error) {
	sub, err := fs.Sub(builtinContent, "content")
	if err != nil {
		return nil, err
	}
	return LoadFS(sub)
}

var (
	defaultOnce    sync.Once
	defaultCatalog *Catalog
	defaultErr     error
)

// Default returns the process-wide built-in catalog, loading it on first use.
// Concurrent first callers all observe the same result.
func Default() (*Catalog, error) {
	defaultOnce.Do(func() {
		defaultCatalog, defaultErr = LoadBuiltin()
	})
	return defaultCatalog, defaultErr
}

// Get returns the text for key.
func (c *Catalog) Get(key string) (string, bool) {
	text, ok := c.sections[key]
	return text, ok
}

// Keys returns the catalog keys in sorted order.
func (c *Catalog) Keys() []string {
	keys := make([]string, 0, len(c.sections))
	for k := range c.sections {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Len returns the number of sections in the catalog.
func (c *Catalog) Len() int {
	return len(c.sections)
}
