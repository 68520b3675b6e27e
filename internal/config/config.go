package config

import (
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"
)

var (
	exeDirCache string
)

// getExecutableDir returns the directory where the executable is located
func getExecutableDir() string {
	if exeDirCache != "" {
		return exeDirCache
	}
	execPath, err := os.Executable()
	if err != nil {
		exeDirCache = "."
		return exeDirCache
	}
	execPath, err = filepath.EvalSymlinks(execPath)
	if err != nil {
		exeDirCache = "."
		return exeDirCache
	}
	exeDirCache = filepath.Dir(execPath)
	return exeDirCache
}

type Config struct {
	Logging LoggingConfig `yaml:"logging"`
	Prompt  PromptConfig  `yaml:"prompt"`
	AI      AIConfig      `yaml:"ai,omitempty"`
	Web     WebConfig     `yaml:"web,omitempty"`
}

// PromptConfig controls where section text comes from and how prompts are assembled.
type PromptConfig struct {
	// SectionsDir overrides the built-in section text with <key>.md files.
	SectionsDir string `yaml:"sections_dir,omitempty"`
	// SectionsFile overrides the built-in section text with a YAML key/text map.
	// Takes precedence over SectionsDir.
	SectionsFile string `yaml:"sections_file,omitempty"`
	// Timezone is an IANA zone name used for the date/time block.
	Timezone       string      `yaml:"timezone,omitempty"`
	GuardrailsFile string      `yaml:"guardrails_file,omitempty"`
	DefaultStage   string      `yaml:"default_stage,omitempty"`
	Audit          AuditConfig `yaml:"audit,omitempty"`
}

// AuditConfig records every assembled prompt.
type AuditConfig struct {
	Enabled bool `yaml:"enabled"`
	// Backend is "jsonl" (daily files under Dir) or "sqlite" (SQLitePath).
	Backend         string `yaml:"backend,omitempty"`
	RootDir         string `yaml:"root_dir,omitempty"`
	Dir             string `yaml:"dir,omitempty"`
	FilePrefix      string `yaml:"file_prefix,omitempty"`
	RetentionDays   int    `yaml:"retention_days,omitempty"`
	SQLitePath      string `yaml:"sqlite_path,omitempty"`
	CleanupSchedule string `yaml:"cleanup_schedule,omitempty"`
}

type AIConfig struct {
	Provider  string `yaml:"provider,omitempty"` // "openai" or "anthropic"
	APIKey    string `yaml:"api_key,omitempty"`
	BaseURL   string `yaml:"base_url,omitempty"`
	Model     string `yaml:"model,omitempty"`
	MaxTokens int    `yaml:"max_tokens,omitempty"`

	// MaxHistory caps the user/assistant turns replayed per call; 0 keeps all.
	MaxHistory int `yaml:"max_history,omitempty"`
}

type WebConfig struct {
	Port int `yaml:"port,omitempty"`
	// SessionIdleMinutes drops chat sessions unused this long; 0 keeps them.
	SessionIdleMinutes int `yaml:"session_idle_minutes,omitempty"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

func DefaultConfig() *Config {
	return &Config{
		Logging: LoggingConfig{
			Level: "info",
		},
		Prompt: PromptConfig{
			Timezone:     "Asia/Kolkata",
			DefaultStage: "startup",
			Audit: AuditConfig{
				Enabled:         false,
				Backend:         "jsonl",
				RootDir:         ".",
				Dir:             ".stageprompt/audit",
				FilePrefix:      "promptbuild",
				RetentionDays:   7,
				SQLitePath:      ".stageprompt/audit.db",
				CleanupSchedule: "@daily",
			},
		},
		AI: AIConfig{
			Provider:   "openai",
			MaxTokens:  1024,
			MaxHistory: 20,
		},
		Web: WebConfig{
			Port:               18080,
			SessionIdleMinutes: 30,
		},
	}
}

func ConfigDir() string {
	exeDir := getExecutableDir()
	return filepath.Join(exeDir, ".stageprompt")
}

func ConfigPath() string {
	exeDir := getExecutableDir()
	return filepath.Join(exeDir, ".stageprompt.yaml")
}

func Load() (*Config, error) {
	return LoadFromPath(ConfigPath())
}

// LoadFromPath reads a YAML config file on top of the defaults. A missing file
// yields the defaults. Environment overrides are applied last.
func LoadFromPath(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, err
		}
	} else if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	applyEnv(cfg)
	return cfg, nil
}

// applyEnv lets deployment environments override file settings.
func applyEnv(cfg *Config) {
	cfg.Logging.Level = envStr("STAGEPROMPT_LOG_LEVEL", cfg.Logging.Level)
	cfg.Prompt.SectionsDir = envStr("STAGEPROMPT_SECTIONS_DIR", cfg.Prompt.SectionsDir)
	cfg.Prompt.SectionsFile = envStr("STAGEPROMPT_SECTIONS_FILE", cfg.Prompt.SectionsFile)
	cfg.Prompt.Timezone = envStr("STAGEPROMPT_TIMEZONE", cfg.Prompt.Timezone)
	cfg.AI.Provider = envStr("STAGEPROMPT_AI_PROVIDER", cfg.AI.Provider)
	cfg.AI.Model = envStr("STAGEPROMPT_AI_MODEL", cfg.AI.Model)
	cfg.AI.BaseURL = envStr("STAGEPROMPT_AI_BASE_URL", cfg.AI.BaseURL)
	cfg.AI.MaxHistory = envInt("STAGEPROMPT_AI_MAX_HISTORY", cfg.AI.MaxHistory)
	cfg.Web.Port = envInt("STAGEPROMPT_WEB_PORT", cfg.Web.Port)
	cfg.Web.SessionIdleMinutes = envInt("STAGEPROMPT_WEB_SESSION_IDLE_MINUTES", cfg.Web.SessionIdleMinutes)

	if cfg.AI.APIKey == "" {
		switch cfg.AI.Provider {
		case "anthropic":
			cfg.AI.APIKey = os.Getenv("ANTHROPIC_API_KEY")
		default:
			cfg.AI.APIKey = os.Getenv("OPENAI_API_KEY")
		}
	}
}

func (c *Config) Save() error {
	dir := ConfigDir()
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}

	return os.WriteFile(ConfigPath(), data, 0600)
}

func envStr(key, fallback string) string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	return val
}

func envInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return n
}
