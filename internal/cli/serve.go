package cli

import (
	"fmt"
	"os"

	"github.com/ChaitanyaYeole02/gmail-cleaner/internal/agent"
	"github.com/ChaitanyaYeole02/gmail-cleaner/internal/api"
	"github.com/ChaitanyaYeole02/gmail-cleaner/internal/gmail"
	"github.com/spf13/cobra"
)

func newServeCommand(opts *rootOptions) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Long: `Serve exposes scans over HTTP. Run the auth command first: the server
never prompts for OAuth consent.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg := opts.cfg

			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}

			client, err := gmail.NewFromConfig(ctx, cfg, cmd.InOrStdin(), cmd.OutOrStdout(), false)
			if err != nil {
				return fmt.Errorf("failed to connect to Gmail: %w", err)
			}

			scanner, cleanup := newScanner(ctx, cfg, client, scannerSetup{opts: agent.OptionsFromConfig(cfg), useHistory: true})
			defer cleanup()

			if addr == "" {
				addr = defaultAddr()
			}
			return api.NewServer(scanner).ListenAndServe(ctx, addr)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (default :$PORT or :8080)")

	return cmd
}

func defaultAddr() string {
	if port := os.Getenv("PORT"); port != "" {
		return ":" + port
	}
	return ":8080"
}
