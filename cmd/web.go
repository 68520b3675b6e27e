package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/kayz/stageprompt/internal/agent"
	"github.com/kayz/stageprompt/internal/cron"
	"github.com/kayz/stageprompt/internal/instruction"
	"github.com/kayz/stageprompt/internal/logger"
	"github.com/kayz/stageprompt/internal/promptbuild"
	"github.com/kayz/stageprompt/internal/sections"
	"github.com/kayz/stageprompt/internal/webui"
)

var (
	webPort   int
	webNoChat bool
	webWatch  bool
)

var webCmd = &cobra.Command{
	Use:   "web",
	Short: "Serve prompt assembly over HTTP and websocket",
	Args:  cobra.NoArgs,
	RunE:  runWeb,
}

func init() {
	rootCmd.AddCommand(webCmd)
	webCmd.Flags().IntVar(&webPort, "port", 0, "Listen port (default from config)")
	webCmd.Flags().BoolVar(&webNoChat, "no-chat", false, "Disable /api/chat")
	webCmd.Flags().BoolVar(&webWatch, "watch", false, "Reload sections_file or sections_dir when it changes")
}

func runWeb(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	rt, err := newRuntime(cfg)
	if err != nil {
		return err
	}
	defer rt.Close()

	opts := webui.Options{
		Location:    rt.location,
		Guardrails:  rt.guardrails,
		SessionIdle: time.Duration(cfg.Web.SessionIdleMinutes) * time.Minute,
	}
	if !webNoChat && cfg.AI.APIKey != "" {
		opts.Sessions = sessionFactory(rt)
	} else if !webNoChat {
		logger.Warn("No AI API key configured, /api/chat is disabled")
	}

	scheduler := cron.NewScheduler()
	if cfg.Prompt.Audit.Enabled {
		if _, err := scheduler.Add("audit-cleanup", cfg.Prompt.Audit.CleanupSchedule, rt.cleanupAudit); err != nil {
			return fmt.Errorf("schedule audit cleanup: %w", err)
		}
	}

	var watcher *sections.Watcher
	if webWatch {
		watcher, err = rt.watchSections()
		if err != nil {
			return err
		}
	}

	port := cfg.Web.Port
	if cmd.Flags().Changed("port") {
		port = webPort
	}
	server := webui.NewServer(rt.builder, opts)
	if opts.Sessions != nil && opts.SessionIdle > 0 {
		if _, err := scheduler.Add("session-prune", "@every 1m", func() error {
			server.PruneSessions()
			return nil
		}); err != nil {
			return fmt.Errorf("schedule session pruning: %w", err)
		}
	}
	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           server.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	eg, egCtx := errgroup.WithContext(ctx)

	scheduler.Start()
	defer scheduler.Stop()

	eg.Go(func() error {
		logger.Info("Web UI listening on http://127.0.0.1:%d", port)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("web server: %w", err)
		}
		return nil
	})
	eg.Go(func() error {
		<-egCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})
	if watcher != nil {
		eg.Go(func() error { return watcher.Run(egCtx) })
	}
	return eg.Wait()
}

// sessionFactory creates chat sessions backed by the configured provider.
func sessionFactory(rt *runtime) webui.SessionFactory {
	updater := instruction.New(rt.builder)
	return func(stage promptbuild.Stage) (*agent.Session, error) {
		provider, err := agent.NewProvider(rt.cfg.AI)
		if err != nil {
			return nil, err
		}
		return agent.NewSession(provider, updater, agent.SessionConfig{
			Stage:      stage,
			Guardrails: rt.guardrails,
			Location:   rt.location,
			MaxTokens:  rt.cfg.AI.MaxTokens,
			MaxHistory: rt.cfg.AI.MaxHistory,
		}), nil
	}
}
