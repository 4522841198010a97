package main

import (
	"database/sql"
	"errors"
	"io"

	"github.com/spf13/cobra"

	"github.com/Oshkosh1922/edens-gates/internal/database"
	"github.com/Oshkosh1922/edens-gates/internal/platform/migrations"
)

func newReconcileCommand(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile",
		Short: "Settle journaled fees that were paid but not recorded",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := flags.application(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			res, err := a.Reconciler.RunOnce(cmd.Context())
			if err != nil {
				return err
			}
			return flags.print(cmd.OutOrStdout(), res, func(w io.Writer) {
				printf(w, "checked %d: recorded %d, dropped %d, abandoned %d, retrying %d\n",
					res.Checked, res.Recorded, res.Dropped, res.Abandoned, res.Retrying)
			})
		},
	}
}

func newMigrateCommand(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the Postgres vote schema",
	}

	run := func(name string, fn func(*sql.DB) error) *cobra.Command {
		return &cobra.Command{
			Use:   name,
			Short: "Migrate the schema " + name,
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				cfg, log, err := flags.load()
				if err != nil {
					return err
				}
				if cfg.Store.DatabaseURL == "" {
					return errors.New("DATABASE_URL is required for migrations")
				}
				db, err := database.OpenPostgres(cmd.Context(), cfg.Store.DatabaseURL)
				if err != nil {
					return err
				}
				defer db.Close()
				if err := fn(db.DB); err != nil {
					return err
				}
				version, dirty, err := migrations.Version(db.DB)
				if err != nil {
					return err
				}
				log.WithField("version", version).WithField("dirty", dirty).Info("schema migrated")
				return nil
			},
		}
	}

	cmd.AddCommand(
		run("up", migrations.Up),
		run("down", migrations.Down),
	)
	return cmd
}
