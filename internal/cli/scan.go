package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/ChaitanyaYeole02/gmail-cleaner/internal/agent"
	"github.com/ChaitanyaYeole02/gmail-cleaner/internal/export"
	"github.com/ChaitanyaYeole02/gmail-cleaner/internal/gmail"
	"github.com/ChaitanyaYeole02/gmail-cleaner/internal/models"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var errEmptyCriteria = errors.New("search criteria cannot be empty")

type scanFlags struct {
	mode          string
	query         string
	max           int
	dryRun        bool
	rulesFile     string
	report        string
	skipProcessed bool
	saveDir       string
}

func newScanCommand(opts *rootOptions) *cobra.Command {
	flags := &scanFlags{}

	cmd := &cobra.Command{
		Use:   "scan [criteria...]",
		Short: "Scan the mailbox and label resume emails",
		Long: `Scan finds emails with PDF attachments and labels them.

In keyword mode the criteria are skills to look for, e.g. "java spring kafka".
Emails whose resume does not match enough keywords get the delete label.

In rules mode the criteria are rules in plain English, e.g.
"if the subject contains intern label as Internship".

When no criteria are given you are prompted for them.`,
		Example: `  resumescan scan golang kubernetes
  resumescan scan --mode rules "if the pdf contains python label as Python"
  resumescan scan --rules-file rules.json --dry-run --report results.xlsx`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScan(cmd, opts, flags, args)
		},
	}

	cmd.Flags().StringVarP(&flags.mode, "mode", "m", models.ModeKeyword, "Scan mode: keyword or rules")
	cmd.Flags().StringVar(&flags.query, "query", "", "Gmail search query (default from config)")
	cmd.Flags().IntVar(&flags.max, "max", -1, "Maximum emails to scan, 0 for no limit (default from config)")
	cmd.Flags().BoolVar(&flags.dryRun, "dry-run", false, "Evaluate emails without changing labels")
	cmd.Flags().StringVar(&flags.rulesFile, "rules-file", "", "JSON rules file, as written by the rules command (implies --mode rules)")
	cmd.Flags().StringVar(&flags.report, "report", "", "Write an Excel report to this path")
	cmd.Flags().BoolVar(&flags.skipProcessed, "skip-processed", false, "Skip emails already labeled by an earlier scan with the same criteria")
	cmd.Flags().StringVar(&flags.saveDir, "save-dir", "", "Save PDF attachments to this directory")

	return cmd
}

func runScan(cmd *cobra.Command, opts *rootOptions, flags *scanFlags, args []string) error {
	ctx := cmd.Context()
	cfg := opts.cfg

	var ruleSet []models.Rule
	if flags.rulesFile != "" {
		loaded, err := loadRulesFile(flags.rulesFile)
		if err != nil {
			return err
		}
		ruleSet = loaded
		flags.mode = models.ModeRules
	}

	if flags.mode != models.ModeKeyword && flags.mode != models.ModeRules {
		return fmt.Errorf("invalid mode %q: must be %q or %q", flags.mode, models.ModeKeyword, models.ModeRules)
	}

	criteria := strings.TrimSpace(strings.Join(args, " "))
	if criteria == "" && ruleSet == nil {
		var err error
		criteria, err = readCriteria(cmd.InOrStdin(), cmd.OutOrStdout(), flags.mode)
		if err != nil {
			return err
		}
	}

	if flags.query != "" {
		cfg.SearchQuery = flags.query
	}
	if flags.max >= 0 {
		cfg.MaxEmails = flags.max
	}
	if flags.saveDir != "" {
		cfg.SaveDir = flags.saveDir
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	client, err := gmail.NewFromConfig(ctx, cfg, cmd.InOrStdin(), cmd.OutOrStdout(), true)
	if err != nil {
		return fmt.Errorf("failed to connect to Gmail: %w", err)
	}

	scanOpts := agent.OptionsFromConfig(cfg)
	scanOpts.DryRun = flags.dryRun
	scanOpts.SkipProcessed = flags.skipProcessed

	scanner, cleanup := newScanner(ctx, cfg, client, scannerSetup{opts: scanOpts, useHistory: true})
	defer cleanup()

	log.Info().Str("mode", flags.mode).Str("query", cfg.SearchQuery).Bool("dry_run", flags.dryRun).Msg("Starting scan")

	var report *models.ScanReport
	if flags.mode == models.ModeRules {
		report, err = scanner.ScanRules(ctx, criteria, ruleSet)
	} else {
		report, err = scanner.ScanKeywords(ctx, criteria)
	}
	if report == nil {
		return err
	}
	// a cancelled scan still returns what it got through
	printSummary(cmd.OutOrStdout(), *report)
	if err != nil {
		return err
	}

	if flags.report != "" {
		path, err := export.ExportToExcel(*report, flags.report)
		if err != nil {
			return fmt.Errorf("failed to write report: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Report saved to %s\n", path)
	}

	return nil
}

// readCriteria prompts for one line of criteria
func readCriteria(in io.Reader, out io.Writer, mode string) (string, error) {
	if mode == models.ModeRules {
		fmt.Fprint(out, "Describe your labeling rules: ")
	} else {
		fmt.Fprint(out, "Enter the skills to search for: ")
	}

	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("failed to read criteria: %w", err)
	}

	criteria := strings.TrimSpace(line)
	if criteria == "" {
		return "", errEmptyCriteria
	}
	return criteria, nil
}
