package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kayz/stageprompt/internal/agent"
	"github.com/kayz/stageprompt/internal/promptbuild"
)

var chatStage string

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Talk to the configured model, switching stages as you go",
	Long: `Start an interactive conversation with the configured model. The system
instruction is rebuilt for the current stage before every turn.

Type "/stage <name>" to switch stage, "/prompt" to print the current prompt,
and "/quit" to leave.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		rt, err := newRuntime(cfg)
		if err != nil {
			return err
		}
		defer rt.Close()

		stage := cfg.Prompt.DefaultStage
		if cmd.Flags().Changed("stage") {
			stage = chatStage
		}
		sess, err := sessionFactory(rt)(promptbuild.ParseStage(stage))
		if err != nil {
			return err
		}
		return chatLoop(cmd, rt, sess, cmd.InOrStdin())
	},
}

func init() {
	rootCmd.AddCommand(chatCmd)
	chatCmd.Flags().StringVarP(&chatStage, "stage", "s", "", "Starting stage (default from config)")
}

func chatLoop(cmd *cobra.Command, rt *runtime, sess *agent.Session, in io.Reader) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	out := cmd.OutOrStdout()
	scanner := bufio.NewScanner(in)
	fmt.Fprintf(out, "[%s] > ", sess.Stage())
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
		case line == "/quit" || line == "/exit":
			return nil
		case strings.HasPrefix(line, "/stage"):
			name := strings.TrimSpace(strings.TrimPrefix(line, "/stage"))
			if name == "" {
				fmt.Fprintln(out, "usage: /stage <startup|mid_conversation|active|closing>")
				break
			}
			sess.SetStage(promptbuild.ParseStage(name))
		case line == "/prompt":
			fmt.Fprintln(out, rt.builder.Build(promptbuild.Request{
				Stage:      sess.Stage(),
				DateTime:   rt.now(),
				Guardrails: rt.guardrails,
			}))
		default:
			reply, err := sess.Send(ctx, line)
			if err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "error: %v\n", err)
				break
			}
			fmt.Fprintln(out, reply)
		}
		fmt.Fprintf(out, "[%s] > ", sess.Stage())
	}
	return scanner.Err()
}
