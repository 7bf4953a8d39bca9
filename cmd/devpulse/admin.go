package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	sqliteadapter "github.com/ericfisherdev/devpulse/internal/adapter/driven/sqlite"
	"github.com/ericfisherdev/devpulse/internal/application"
)

const adminPasswordEnv = "DEVPULSE_ADMIN_PASSWORD"

func newCreateAdminCmd(flags *globalFlags) *cobra.Command {
	var email, name string

	cmd := &cobra.Command{
		Use:   "create-admin",
		Short: "Create or reset an administrator account",
		Long: `Create an active account holding the admin role. If the e-mail already
exists its password is reset and the account is reactivated.

The password is read from ` + adminPasswordEnv + ` so that it never appears in
shell history or process listings.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			password := os.Getenv(adminPasswordEnv)
			if len(password) < 8 {
				return errors.New(adminPasswordEnv + " must be set to at least 8 characters")
			}

			cfg, err := loadConfig(flags, cmd.ErrOrStderr())
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			db, err := openDatabase(ctx, cfg.DBPath)
			if err != nil {
				return err
			}
			defer closeDatabase(db)

			userStore := sqliteadapter.NewUserRepo(db)
			roleStore := sqliteadapter.NewAccessRoleRepo(db)
			developerStore := sqliteadapter.NewDeveloperRepo(db)
			auth := application.NewAuthService(
				userStore, roleStore, sqliteadapter.NewTokenRepo(db), developerStore, nil,
				application.DefaultAuthConfig(cfg.JWTSecret),
			)
			users := application.NewUserService(userStore, roleStore, developerStore, auth)

			user, err := users.EnsureAdmin(ctx, email, name, password)
			if err != nil {
				return fmt.Errorf("create admin: %w", err)
			}

			slog.Info("admin account ready", "user_id", user.ID, "email", user.Email)
			return nil
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "administrator e-mail (required)")
	cmd.Flags().StringVar(&name, "name", "Administrator", "display name")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}
