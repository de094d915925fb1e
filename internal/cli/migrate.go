package cli

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/ericfisherdev/prmigrate/internal/adapter/driven/bitbucket"
	"github.com/ericfisherdev/prmigrate/internal/adapter/driven/github"
	"github.com/ericfisherdev/prmigrate/internal/application"
	"github.com/ericfisherdev/prmigrate/internal/assets"
	"github.com/ericfisherdev/prmigrate/internal/config"
	"github.com/ericfisherdev/prmigrate/internal/identity"
	"github.com/ericfisherdev/prmigrate/internal/ledger"
	"github.com/ericfisherdev/prmigrate/internal/markup"
	"github.com/ericfisherdev/prmigrate/internal/preview"
	"github.com/ericfisherdev/prmigrate/internal/retry"
)

const sourceHost = "bitbucket.org"

func newMigrateCommand(configPath *string) *cobra.Command {
	var (
		dryRun   bool
		testMode bool
		prIDs    []int
	)

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run the migration",
		Long: `Fetches every pull request from the configured Bitbucket repository and
processes each one: open PRs are recreated as GitHub pull requests, closed
PRs are archived and preserved as closed tracking issues.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(*configPath, testMode)
			if err != nil {
				return err
			}

			if dryRun {
				slog.Warn("DRY-RUN MODE: no changes will be made to the destination")
			}

			svc, err := buildService(cfg, dryRun, prIDs)
			if err != nil {
				return err
			}

			report, err := svc.Run(cmd.Context())
			if err != nil {
				return err
			}

			printSummary(cmd, cfg, report)
			return nil
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "simulate the migration without writing to the destination")
	cmd.Flags().BoolVar(&testMode, "test-mode", false, "redirect writes to the configured test repository")
	cmd.Flags().IntSliceVar(&prIDs, "pr", nil, "restrict the run to the given source PR ids (repeatable)")
	return cmd
}

func loadConfig(path string, testMode bool) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if testMode {
		if err := cfg.ApplyTestMode(); err != nil {
			return nil, err
		}
		slog.Warn("TEST MODE: writes redirected",
			"repo", cfg.GitHub.Owner+"/"+cfg.GitHub.Repository)
	}
	return cfg, nil
}

// buildService wires the adapters and services for one run.
func buildService(cfg *config.Config, dryRun bool, prIDs []int) (*application.MigrationService, error) {
	invoker := retry.New()

	var source *bitbucket.Client
	if cfg.Bitbucket.HasOAuth() {
		source = bitbucket.NewClient(cfg.Bitbucket.Workspace, cfg.Bitbucket.Repository,
			cfg.Bitbucket.OAuthKey, cfg.Bitbucket.OAuthSecret, invoker)
	} else {
		source = bitbucket.NewClientWithToken(cfg.Bitbucket.Workspace, cfg.Bitbucket.Repository,
			cfg.Bitbucket.Token, invoker)
	}

	dest := github.NewClient(cfg.GitHub.Token, cfg.GitHub.Owner, cfg.GitHub.Repository, invoker)

	table, err := identity.LoadTable(cfg.Migration.UserMapping)
	if err != nil {
		return nil, err
	}

	led, err := ledger.New(cfg.Logging.ClosedPRArchive, cfg.Logging.FailedPRs)
	if err != nil {
		return nil, err
	}

	var previewWriter *preview.Writer
	if dryRun {
		previewWriter, err = preview.NewWriter(cfg.Migration.PreviewDir)
		if err != nil {
			return nil, err
		}
	}

	return application.NewMigrationService(application.Params{
		Source:      source,
		Dest:        dest,
		Writer:      dest,
		Resolver:    identity.New(table),
		Transformer: markup.New(),
		Relocator:   assets.New(source, dest, sourceHost),
		Ledger:      led,
		Preview:     previewWriter,

		SourceWorkspace:  cfg.Bitbucket.Workspace,
		SourceRepository: cfg.Bitbucket.Repository,

		SkipCommitVerification:    cfg.Migration.SkipCommitVerification,
		SkipMissingSourceBranches: cfg.Migration.SkipMissingSourceBranches,
		DryRun:                    dryRun,
		OnlyPRs:                   prIDs,
	}), nil
}

func printSummary(cmd *cobra.Command, cfg *config.Config, report application.RunReport) {
	out := cmd.OutOrStdout()

	fmt.Fprintln(out)
	fmt.Fprintln(out, "MIGRATION SUMMARY")
	fmt.Fprintf(out, "Total PRs processed: %d\n", report.TotalPRs)
	fmt.Fprintln(out)
	fmt.Fprintf(out, "Open PRs: %d\n", report.OpenPRs)
	fmt.Fprintf(out, "  migrated: %d\n", report.Migrated)
	fmt.Fprintf(out, "  skipped:  %d\n", report.Skipped)
	fmt.Fprintf(out, "  failed:   %d\n", report.Failed)
	fmt.Fprintln(out)
	fmt.Fprintf(out, "Closed PRs (archived): %d\n", report.ClosedPRs)
	fmt.Fprintf(out, "  merged:     %d\n", report.Ledger.MergedCount)
	fmt.Fprintf(out, "  declined:   %d\n", report.Ledger.DeclinedCount)
	fmt.Fprintf(out, "  superseded: %d\n", report.Ledger.SupersededCount)
	fmt.Fprintf(out, "  tracking issues created: %d\n", report.TrackingIssues)
	fmt.Fprintln(out)
	fmt.Fprintf(out, "Archives: %s", cfg.Logging.ClosedPRArchive)
	if report.Failed > 0 {
		fmt.Fprintf(out, ", %s", cfg.Logging.FailedPRs)
	}
	fmt.Fprintln(out)
}
