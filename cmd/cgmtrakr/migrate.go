package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/GamerLionLeo/CGM-Trakr/internal/config"
	"github.com/GamerLionLeo/CGM-Trakr/internal/migrations"
)

func newMigrateCmd(logger *slog.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Read()
			if err != nil {
				return fmt.Errorf("reading config: %w", err)
			}

			ctx := cmd.Context()
			if err := migrations.Apply(ctx, cfg.Database.URL); err != nil {
				return err
			}

			logger.InfoContext(ctx, "migrations applied")
			return nil
		},
	}
}
