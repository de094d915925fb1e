// Package cli provides the command-line interface for prmigrate.
package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

// NewRootCommand creates the root command with the shared flags and the
// migrate/check subcommands attached.
func NewRootCommand(version string) *cobra.Command {
	var (
		configPath string
		verbose    bool
	)

	root := &cobra.Command{
		Use:   "prmigrate",
		Short: "Migrate pull requests from Bitbucket to GitHub",
		Long: `prmigrate migrates pull requests from a Bitbucket Cloud repository to a
GitHub repository, preserving comments, reviewers, tasks, attachments, and
embedded images. Open PRs become real pull requests; closed PRs become
closed tracking issues and a durable JSON archive.`,
		Version: version,
		// Errors are printed by main with full context.
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(_ *cobra.Command, _ []string) {
			level := slog.LevelInfo
			if verbose {
				level = slog.LevelDebug
			}
			slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
				Level: level,
			})))
		},
	}

	root.PersistentFlags().StringVarP(&configPath, "config", "c", "config.yaml", "path to the configuration file")
	root.PersistentFlags().BoolVar(&verbose, "verbose", false, "enable debug logging")

	root.AddCommand(
		newMigrateCommand(&configPath),
		newCheckCommand(&configPath),
		newVersionCommand(version),
	)
	return root
}

func newVersionCommand(version string) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the prmigrate version",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "prmigrate %s\n", version)
		},
	}
}
