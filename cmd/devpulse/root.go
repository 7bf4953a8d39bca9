package main

import (
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/ericfisherdev/devpulse/internal/config"
)

// globalFlags are shared by every subcommand.
type globalFlags struct {
	envDir string
}

func newRootCmd() *cobra.Command {
	flags := &globalFlags{}

	root := &cobra.Command{
		Use:   "devpulse",
		Short: "Engineering analytics backend for Azure DevOps and GitHub",
		Long: `devpulse mirrors pull requests, commits, reviews and comments from Azure
DevOps and GitHub into SQLite and serves KPI dashboards over a REST API.

Running devpulse without a subcommand starts the server.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), flags)
		},
	}
	root.PersistentFlags().StringVar(&flags.envDir, "env-dir", ".", "directory containing an optional .env file")

	root.AddCommand(
		newServeCmd(flags),
		newMigrateCmd(flags),
		newCreateAdminCmd(flags),
	)
	return root
}

// loadConfig loads configuration and installs the default logger it
// describes.
func loadConfig(flags *globalFlags, out io.Writer) (*config.Config, error) {
	cfg, err := config.Load(flags.envDir)
	if err != nil {
		return nil, err
	}
	slog.SetDefault(newLogger(out, cfg.LogFormat, cfg.SlogLevel))
	return cfg, nil
}

// newLogger builds the process logger. The level is held in a LevelVar so
// it can be changed without rebuilding the handler.
func newLogger(out io.Writer, format string, level slog.Level) *slog.Logger {
	lvl := new(slog.LevelVar)
	lvl.Set(level)
	opts := &slog.HandlerOptions{Level: lvl}

	if format == "text" {
		return slog.New(slog.NewTextHandler(out, opts))
	}
	return slog.New(slog.NewJSONHandler(out, opts))
}
