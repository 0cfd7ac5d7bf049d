package cli

import (
	"fmt"

	"github.com/ChaitanyaYeole02/gmail-cleaner/internal/gmail"
	"github.com/spf13/cobra"
)

func newAuthCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "auth",
		Short: "Authorize Gmail access and save the OAuth token",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg := opts.cfg

			if err := cfg.ValidateGmail(); err != nil {
				return err
			}

			auth := &gmail.Authenticator{
				CredentialsPath: cfg.GmailCredentialsPath,
				TokenPath:       cfg.GmailTokenPath,
				In:              cmd.InOrStdin(),
				Out:             cmd.OutOrStdout(),
			}
			if err := auth.Authorize(ctx); err != nil {
				return fmt.Errorf("authorization failed: %w", err)
			}

			client, err := gmail.NewFromConfig(ctx, cfg, cmd.InOrStdin(), cmd.OutOrStdout(), false)
			if err != nil {
				return err
			}
			address, err := client.Profile(ctx)
			if err != nil {
				return fmt.Errorf("token saved but the Gmail API rejected it: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Authenticated as %s\n", address)
			return nil
		},
	}
}
