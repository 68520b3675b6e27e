package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/kayz/stageprompt/internal/config"
	"github.com/kayz/stageprompt/internal/logger"
)

var (
	logLevel   string
	configPath string
)

var rootCmd = &cobra.Command{
	Use:   "stageprompt",
	Short: "Stage-aware system prompt assembly for conversational agents",
	Long: `stageprompt assembles a voice agent's system prompt from named sections,
picking the sections that fit the current phase of the conversation.

Commands:
  stageprompt prompt     Assemble a prompt for a stage
  stageprompt sections   List the section catalog
  stageprompt audit      Inspect and prune prompt audit records
  stageprompt chat       Talk to the configured model, switching stages as you go
  stageprompt web        Serve prompt assembly over HTTP and websocket`,
	CompletionOptions: cobra.CompletionOptions{
		DisableDefaultCmd: true,
	},
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		levelName := cfg.Logging.Level
		if cmd.Flags().Changed("log") || levelName == "" {
			levelName = logLevel
		}
		level, err := logger.ParseLevel(levelName)
		if err != nil {
			return err
		}
		logger.Init(level, cfg.Logging.File)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log", "info",
		"Log level: trace, debug, info, warn, error, fatal, panic")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "",
		"Path to config file (default: .stageprompt.yaml next to the executable)")
}

// loadConfig reads the config file named by --config, or the default one.
func loadConfig() (*config.Config, error) {
	if configPath != "" {
		cfg, err := config.LoadFromPath(configPath)
		if err != nil {
			return nil, fmt.Errorf("load config %s: %w", configPath, err)
		}
		return cfg, nil
	}
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func Execute() {
	defer logger.Sync()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
