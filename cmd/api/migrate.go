package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"library-backend/internal/config"
	"library-backend/internal/database"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:       "migrate [up|down]",
		Short:     "Apply or roll back database migrations",
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{string(database.Up), string(database.Down)},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}

			direction := database.Direction(args[0])
			if err := database.Migrate(cfg.DatabaseDriver, cfg.DatabaseURL, direction); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "migrations %s complete\n", direction)
			return nil
		},
	}
}
