package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/ChaitanyaYeole02/gmail-cleaner/internal/agent"
	"github.com/ChaitanyaYeole02/gmail-cleaner/internal/models"
	"github.com/ChaitanyaYeole02/gmail-cleaner/internal/rules"
	"github.com/spf13/cobra"
)

func newRulesCommand(opts *rootOptions) *cobra.Command {
	var out string

	cmd := &cobra.Command{
		Use:   "rules [prompt...]",
		Short: "Turn a plain English prompt into labeling rules",
		Long: `Rules converts a prompt into the JSON rule set a rules scan would use,
without touching the mailbox. Edit the output and pass it back with scan --rules-file.`,
		Example: `  resumescan rules "if the subject contains intern label as Internship" --out rules.json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			prompt := strings.TrimSpace(strings.Join(args, " "))
			if prompt == "" {
				var err error
				prompt, err = readCriteria(cmd.InOrStdin(), cmd.OutOrStdout(), models.ModeRules)
				if err != nil {
					return err
				}
			}

			scanner, cleanup := newScanner(ctx, opts.cfg, nil, scannerSetup{opts: agent.OptionsFromConfig(opts.cfg)})
			defer cleanup()

			ruleSet, err := scanner.Rules(ctx, prompt)
			if err != nil {
				return err
			}

			formatted, err := rules.FormatRules(ruleSet)
			if err != nil {
				return err
			}

			if out == "" {
				fmt.Fprintln(cmd.OutOrStdout(), formatted)
				return nil
			}
			if err := os.WriteFile(out, []byte(formatted+"\n"), 0644); err != nil {
				return fmt.Errorf("failed to write rules: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %d rule(s) to %s\n", len(ruleSet), out)
			return nil
		},
	}

	cmd.Flags().StringVarP(&out, "out", "o", "", "Write the rules to this file instead of stdout")

	return cmd
}
