package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kayz/stageprompt/internal/promptbuild"
)

type promptOptions struct {
	stage          string
	include        []string
	exclude        []string
	withDateTime   bool
	timezone       string
	guardrails     string
	guardrailsFile string
	requestPath    string
	outputPath     string
	compact        bool
	explain        bool
	render         bool
}

func init() {
	rootCmd.AddCommand(newPromptCommand())
}

func newPromptCommand() *cobra.Command {
	opts := &promptOptions{}
	cmd := &cobra.Command{
		Use:   "prompt",
		Short: "Assemble the system prompt for a conversation stage",
		Long: `Assemble the system prompt for a conversation stage.

Without --include the selection is core_identity and language_rules followed
by the stage's sections. --include replaces that selection entirely; pass
--include= to select nothing. --exclude always wins.`,
		Example: `  stageprompt prompt --stage startup --datetime
  stageprompt prompt --stage closing --exclude tone_style
  stageprompt prompt --include faq_info,tone_style
  stageprompt prompt --request req.json --output prompt.txt`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPrompt(cmd, opts)
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&opts.stage, "stage", "s", "", "Conversation stage: startup, mid_conversation, active, closing (default from config)")
	flags.StringSliceVar(&opts.include, "include", nil, "Section keys to use instead of the stage selection")
	flags.StringSliceVar(&opts.exclude, "exclude", nil, "Section keys to drop")
	flags.BoolVar(&opts.withDateTime, "datetime", false, "Append the current date/time block")
	flags.StringVar(&opts.timezone, "timezone", "", "IANA timezone for --datetime (default from config)")
	flags.StringVar(&opts.guardrails, "guardrails", "", "Guardrails text appended last")
	flags.StringVar(&opts.guardrailsFile, "guardrails-file", "", "Read guardrails text from a file")
	flags.StringVar(&opts.requestPath, "request", "", "Path to a JSON assembly request")
	flags.StringVarP(&opts.outputPath, "output", "o", "", "Write output to file (default: stdout)")
	flags.BoolVar(&opts.compact, "compact", false, "Build the compact reminder prompt instead")
	flags.BoolVar(&opts.explain, "explain", false, "Print the selected section keys to stderr")
	flags.BoolVar(&opts.render, "render", false, "Render the prompt as styled markdown for the terminal")
	return cmd
}

func runPrompt(cmd *cobra.Command, opts *promptOptions) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	rt, err := newRuntime(cfg)
	if err != nil {
		return err
	}
	defer rt.Close()

	if opts.compact {
		return writePrompt(cmd, opts, rt.builder.BuildCompact(nil))
	}

	req, err := promptRequestFromFlags(cmd, opts, rt)
	if err != nil {
		return err
	}

	if opts.explain {
		fmt.Fprintf(cmd.ErrOrStderr(), "stage: %s\nsections: %s\n", req.Stage, strings.Join(rt.builder.Plan(req), ", "))
	}
	return writePrompt(cmd, opts, rt.builder.Build(req))
}

// promptRequestFromFlags starts from --request when given; explicit flags
// override its fields.
func promptRequestFromFlags(cmd *cobra.Command, opts *promptOptions, rt *runtime) (promptbuild.Request, error) {
	var req promptbuild.Request
	if opts.requestPath != "" {
		data, err := os.ReadFile(opts.requestPath)
		if err != nil {
			return req, fmt.Errorf("read request: %w", err)
		}
		if err := json.Unmarshal(data, &req); err != nil {
			return req, fmt.Errorf("parse request: %w", err)
		}
	}

	flags := cmd.Flags()
	switch {
	case flags.Changed("stage"):
		req.Stage = promptbuild.ParseStage(opts.stage)
	case req.Stage == "":
		req.Stage = promptbuild.ParseStage(rt.cfg.Prompt.DefaultStage)
	default:
		req.Stage = promptbuild.ParseStage(string(req.Stage))
	}
	if flags.Changed("include") {
		req.Include = append([]string{}, opts.include...)
	}
	if flags.Changed("exclude") {
		req.Exclude = opts.exclude
	}

	if opts.withDateTime {
		dt, err := dateTimeFor(opts.timezone, rt)
		if err != nil {
			return req, err
		}
		req.DateTime = dt
	}

	switch {
	case flags.Changed("guardrails"):
		req.Guardrails = opts.guardrails
	case opts.guardrailsFile != "":
		text, err := readGuardrails(opts.guardrailsFile)
		if err != nil {
			return req, err
		}
		req.Guardrails = text
	case req.Guardrails == "":
		req.Guardrails = rt.guardrails
	}
	return req, nil
}

func dateTimeFor(timezone string, rt *runtime) (*promptbuild.DateTimeInfo, error) {
	if timezone == "" {
		return rt.now(), nil
	}
	return promptbuild.DateTimeIn(timezone)
}

// writePrompt prints out, or writes it verbatim to --output. Rendering only
// applies to terminal output.
func writePrompt(cmd *cobra.Command, opts *promptOptions, out string) error {
	if opts.outputPath == "" {
		if opts.render {
			rendered, err := renderMarkdown(out, 0)
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), rendered)
			return nil
		}
		fmt.Fprintln(cmd.OutOrStdout(), out)
		return nil
	}
	if err := os.WriteFile(opts.outputPath, []byte(out), 0644); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	return nil
}
