package cmd

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/kayz/stageprompt/internal/config"
	"github.com/kayz/stageprompt/internal/logger"
	"github.com/kayz/stageprompt/internal/persist"
	"github.com/kayz/stageprompt/internal/promptbuild"
	"github.com/kayz/stageprompt/internal/sections"
)

// runtime bundles what every command builds from config at startup.
type runtime struct {
	cfg        *config.Config
	catalog    *sections.Catalog
	builder    *promptbuild.Builder
	location   *time.Location
	guardrails string

	jsonl *promptbuild.JSONLRecorder
	store *persist.Store
}

func newRuntime(cfg *config.Config) (*runtime, error) {
	catalog, err := loadCatalog(cfg.Prompt)
	if err != nil {
		return nil, err
	}

	loc := time.Local
	if tz := strings.TrimSpace(cfg.Prompt.Timezone); tz != "" {
		loc, err = time.LoadLocation(tz)
		if err != nil {
			return nil, fmt.Errorf("load timezone %q: %w", tz, err)
		}
	}

	guardrails, err := readGuardrails(cfg.Prompt.GuardrailsFile)
	if err != nil {
		return nil, err
	}

	rt := &runtime{
		cfg:        cfg,
		catalog:    catalog,
		builder:    promptbuild.NewBuilder(catalog),
		location:   loc,
		guardrails: guardrails,
	}
	if err := rt.attachAudit(cfg.Prompt.Audit); err != nil {
		return nil, err
	}
	return rt, nil
}

// loadCatalog picks the section source: YAML file, then directory, then the
// built-in text.
func loadCatalog(cfg config.PromptConfig) (*sections.Catalog, error) {
	switch {
	case cfg.SectionsFile != "":
		logger.Debug("Loading sections from file %s", cfg.SectionsFile)
		return sections.LoadYAML(cfg.SectionsFile)
	case cfg.SectionsDir != "":
		logger.Debug("Loading sections from dir %s", cfg.SectionsDir)
		return sections.LoadDir(cfg.SectionsDir)
	default:
		return sections.Default()
	}
}

// watchSections reloads the configured section source into the builder when
// it changes. The built-in catalog cannot be watched.
func (rt *runtime) watchSections() (*sections.Watcher, error) {
	path := rt.cfg.Prompt.SectionsFile
	if path == "" {
		path = rt.cfg.Prompt.SectionsDir
	}
	if path == "" {
		return nil, fmt.Errorf("--watch needs prompt.sections_file or prompt.sections_dir")
	}
	return sections.NewWatcher(path,
		func() (*sections.Catalog, error) { return loadCatalog(rt.cfg.Prompt) },
		rt.builder.SetCatalog)
}

func readGuardrails(path string) (string, error) {
	if path == "" {
		return "", nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read guardrails file: %w", err)
	}
	return string(data), nil
}

func (rt *runtime) attachAudit(cfg config.AuditConfig) error {
	if !cfg.Enabled {
		return nil
	}
	switch cfg.Backend {
	case "sqlite":
		store, err := persist.NewStore(cfg.SQLitePath)
		if err != nil {
			return fmt.Errorf("open audit store: %w", err)
		}
		rt.store = store
		rt.builder = rt.builder.WithRecorder(store)
	case "", "jsonl":
		rt.jsonl = promptbuild.NewJSONLRecorder(cfg)
		rt.builder = rt.builder.WithRecorder(rt.jsonl)
	default:
		return fmt.Errorf("unknown audit backend: %s", cfg.Backend)
	}
	return nil
}

// cleanupAudit prunes audit records past the retention window.
func (rt *runtime) cleanupAudit() error {
	if rt.jsonl != nil {
		if err := rt.jsonl.Cleanup(); err != nil {
			return fmt.Errorf("cleanup audit files: %w", err)
		}
	}
	if rt.store != nil {
		days := rt.cfg.Prompt.Audit.RetentionDays
		n, err := rt.store.Cleanup(days)
		if err != nil {
			return fmt.Errorf("cleanup audit store: %w", err)
		}
		if n > 0 {
			logger.Info("Removed %d audit records older than %d days", n, days)
		}
	}
	return nil
}

func (rt *runtime) now() *promptbuild.DateTimeInfo {
	return promptbuild.NewDateTimeInfo(time.Now().In(rt.location))
}

func (rt *runtime) Close() {
	if rt.store != nil {
		_ = rt.store.Close()
	}
}
