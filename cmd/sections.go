package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(newSectionsCommand())
}

func newSectionsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sections",
		Short: "List the prompt section catalog",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			cat, err := loadCatalog(cfg.Prompt)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "KEY\tCHARS")
			for _, key := range cat.Keys() {
				text, _ := cat.Get(key)
				fmt.Fprintf(w, "%s\t%d\n", key, len(text))
			}
			return w.Flush()
		},
	}

	var render bool
	show := &cobra.Command{
		Use:   "show <key>",
		Short: "Print one section's text",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			cat, err := loadCatalog(cfg.Prompt)
			if err != nil {
				return err
			}
			text, ok := cat.Get(args[0])
			if !ok {
				return fmt.Errorf("unknown section: %s", args[0])
			}
			if render {
				rendered, err := renderMarkdown(text, 0)
				if err != nil {
					return err
				}
				fmt.Fprint(cmd.OutOrStdout(), rendered)
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), text)
			return nil
		},
	}
	show.Flags().BoolVar(&render, "render", false, "Render the text as styled markdown")
	cmd.AddCommand(show)
	return cmd
}
