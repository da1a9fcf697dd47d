package cmd

import (
	"errors"

	"madangbot/internal/config"
	"madangbot/internal/infra/postgres"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply postgres migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.MustLoad()
			cfg.App.SetupLogger()
			if cfg.Postgres.DSN == "" {
				return errors.New("DATABASE_URL is not set")
			}

			pool, err := postgres.Connect(cmd.Context(), cfg.Postgres.DSN)
			if err != nil {
				return err
			}
			defer pool.Close()

			if err := postgres.Migrate(cmd.Context(), pool); err != nil {
				return err
			}
			log.Info().Msg("migrations applied")
			return nil
		},
	}
}
