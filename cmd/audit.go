package cmd

import (
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(newAuditCommand())
}

func newAuditCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Inspect and prune prompt audit records",
	}

	var (
		stage string
		limit int
	)
	recent := &cobra.Command{
		Use:   "recent",
		Short: "List recent assembled prompts (sqlite backend)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := auditRuntime()
			if err != nil {
				return err
			}
			defer rt.Close()
			if rt.store == nil {
				return fmt.Errorf("audit recent needs the sqlite backend")
			}

			records, err := rt.store.Recent(stage, limit)
			if err != nil {
				return fmt.Errorf("query audit store: %w", err)
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "TIME\tSTAGE\tCHARS\tSECTIONS")
			for _, rec := range records {
				st := rec.Stage
				if rec.Compact {
					st = "compact"
				}
				fmt.Fprintf(w, "%s\t%s\t%d\t%s\n",
					rec.Timestamp.Local().Format(time.DateTime), st, len(rec.FinalPrompt), strings.Join(rec.Sections, ","))
			}
			return w.Flush()
		},
	}
	recent.Flags().StringVar(&stage, "stage", "", "Only show this stage")
	recent.Flags().IntVar(&limit, "limit", 20, "Maximum records to show")

	cleanup := &cobra.Command{
		Use:   "cleanup",
		Short: "Remove audit records past the retention window",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := auditRuntime()
			if err != nil {
				return err
			}
			defer rt.Close()
			if err := rt.cleanupAudit(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Audit cleanup done (retention %d days)\n", rt.cfg.Prompt.Audit.RetentionDays)
			return nil
		},
	}

	cmd.AddCommand(recent, cleanup)
	return cmd
}

func auditRuntime() (*runtime, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if !cfg.Prompt.Audit.Enabled {
		return nil, fmt.Errorf("prompt audit is disabled (prompt.audit.enabled)")
	}
	return newRuntime(cfg)
}
