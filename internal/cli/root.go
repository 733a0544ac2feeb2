// Package cli implements the wqingest command line.
package cli

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"

	"github.com/cockroachdb/errors"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/JonMunkholm/wqingest/internal/config"
	"github.com/JonMunkholm/wqingest/internal/logging"
)

// app carries state shared by the subcommands after PersistentPreRunE.
type app struct {
	envFile  string
	cfg      *config.Config
	closeLog func() error
}

// NewRootCmd builds the command tree.
func NewRootCmd(version string) *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:   "wqingest",
		Short: "Watch a folder for WQ extracts and load them into PostgreSQL",
		Long: `wqingest watches an inbox folder for extract files, validates each one,
replaces the contents of the target table with the file's rows, optionally runs
a pgAgent job, and reports every outcome by log and e-mail.

Configuration comes from the environment, optionally seeded from a .env file.

Examples:
  wqingest run                   # Watch the inbox until interrupted
  wqingest check wq_ACME.csv     # Validate one file without touching anything
  wqingest load wq_ACME.csv      # Process one file through the full pipeline`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init()
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if a.closeLog != nil {
				return a.closeLog()
			}
			return nil
		},
	}

	root.PersistentFlags().StringVar(&a.envFile, "env-file", ".env", "dotenv file loaded over the environment (ignored if missing)")

	root.AddCommand(a.runCmd())
	root.AddCommand(a.checkCmd())
	root.AddCommand(a.loadCmd())
	root.AddCommand(versionCmd(version))

	return root
}

// Execute runs the CLI and returns the process exit code.
func Execute(ctx context.Context, version string) int {
	if err := NewRootCmd(version).ExecuteContext(ctx); err != nil {
		return 1
	}
	return 0
}

// init loads the .env overlay and configuration, then sets up logging.
func (a *app) init() error {
	// Overload so that the file wins over stale shell exports
	envErr := godotenv.Overload(a.envFile)
	if envErr != nil && !errors.Is(envErr, fs.ErrNotExist) {
		return errors.Wrapf(envErr, "read %s", a.envFile)
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	a.cfg = cfg

	closeLog, err := logging.Setup(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.File)
	a.closeLog = closeLog
	if err != nil {
		return err
	}

	if envErr != nil {
		slog.Debug("no .env file found, using environment variables", "path", a.envFile)
	} else {
		slog.Debug("loaded .env file (overwriting existing env vars)", "path", a.envFile)
	}
	slog.Debug("configuration loaded", "config", cfg.String())
	return nil
}

func versionCmd(version string) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		// No configuration needed
		PersistentPreRunE:  func(*cobra.Command, []string) error { return nil },
		PersistentPostRunE: func(*cobra.Command, []string) error { return nil },
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "wqingest "+version)
		},
	}
}
