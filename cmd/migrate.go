package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	pgstore "github.com/JakeFAU/ncaa-match-pipeline/internal/storage/postgres"
)

func newMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manages the postgres match table schema",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Applies every pending migration",
			RunE: func(cmd *cobra.Command, _ []string) error {
				rt, err := resolveRuntime(cmd.Context())
				if err != nil {
					return err
				}
				version, err := pgstore.Migrate(rt.cfg.DB.DSN)
				if err != nil {
					return err
				}
				rt.logger.Info("migrations applied", zap.Uint("version", version))
				return nil
			},
		},
		&cobra.Command{
			Use:   "down",
			Short: "Rolls back the most recent migration",
			RunE: func(cmd *cobra.Command, _ []string) error {
				rt, err := resolveRuntime(cmd.Context())
				if err != nil {
					return err
				}
				version, err := pgstore.Rollback(rt.cfg.DB.DSN)
				if err != nil {
					return err
				}
				rt.logger.Info("migration rolled back", zap.Uint("version", version))
				return nil
			},
		},
		&cobra.Command{
			Use:   "version",
			Short: "Prints the applied schema version",
			RunE: func(cmd *cobra.Command, _ []string) error {
				rt, err := resolveRuntime(cmd.Context())
				if err != nil {
					return err
				}
				version, err := pgstore.Version(rt.cfg.DB.DSN)
				if err != nil {
					return err
				}
				_, err = fmt.Fprintln(cmd.OutOrStdout(), version)
				return err
			},
		},
	)
	return cmd
}
