package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ericfisherdev/prmigrate/internal/adapter/driven/bitbucket"
	"github.com/ericfisherdev/prmigrate/internal/adapter/driven/github"
	"github.com/ericfisherdev/prmigrate/internal/retry"
)

// newCheckCommand validates credentials against both systems without
// fetching or writing anything beyond one probe call each.
func newCheckCommand(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Verify source and destination credentials",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(*configPath, false)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			invoker := retry.New(retry.WithMaxAttempts(2))
			out := cmd.OutOrStdout()

			var source *bitbucket.Client
			if cfg.Bitbucket.HasOAuth() {
				source = bitbucket.NewClient(cfg.Bitbucket.Workspace, cfg.Bitbucket.Repository,
					cfg.Bitbucket.OAuthKey, cfg.Bitbucket.OAuthSecret, invoker)
			} else {
				source = bitbucket.NewClientWithToken(cfg.Bitbucket.Workspace, cfg.Bitbucket.Repository,
					cfg.Bitbucket.Token, invoker)
			}
			if err := source.Probe(ctx); err != nil {
				return fmt.Errorf("bitbucket: %w", err)
			}
			fmt.Fprintf(out, "bitbucket: authenticated to %s/%s\n",
				cfg.Bitbucket.Workspace, cfg.Bitbucket.Repository)

			dest := github.NewClient(cfg.GitHub.Token, cfg.GitHub.Owner, cfg.GitHub.Repository, invoker)
			if err := dest.Probe(ctx); err != nil {
				return fmt.Errorf("github: %w", err)
			}
			fmt.Fprintf(out, "github: authenticated to %s/%s\n",
				cfg.GitHub.Owner, cfg.GitHub.Repository)

			fmt.Fprintln(out, "connection test passed")
			return nil
		},
	}
}
