package main

import (
	"context"
	"log/slog"

	"github.com/spf13/cobra"

	sqliteadapter "github.com/ericfisherdev/devpulse/internal/adapter/driven/sqlite"
)

func newMigrateCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(flags, cmd.ErrOrStderr())
			if err != nil {
				return err
			}

			db, err := openDatabase(cmd.Context(), cfg.DBPath)
			if err != nil {
				return err
			}
			defer closeDatabase(db)

			slog.Info("migrations complete", "path", cfg.DBPath)
			return nil
		},
	}
}

// openDatabase opens SQLite and applies pending migrations on the writer
// connection.
func openDatabase(ctx context.Context, path string) (*sqliteadapter.DB, error) {
	db, err := sqliteadapter.NewDB(ctx, path)
	if err != nil {
		return nil, err
	}
	if err := sqliteadapter.RunMigrations(db.Writer); err != nil {
		closeDatabase(db)
		return nil, err
	}
	return db, nil
}

func closeDatabase(db *sqliteadapter.DB) {
	if err := db.Close(); err != nil {
		slog.Error("error closing database", "error", err)
	}
}
