package cmd

import (
	"errors"

	"madangbot/internal/config"
	"madangbot/internal/domain"
	"madangbot/internal/infra/postgres"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func credentialCmd() *cobra.Command {
	var (
		cred     domain.Credential
		verified bool
	)
	var command = &cobra.Command{
		Use:   "credential",
		Short: "Store an agent credential in postgres",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.MustLoad()
			cfg.App.SetupLogger()
			if cfg.Postgres.DSN == "" {
				return errors.New("DATABASE_URL is not set")
			}
			if cred.Name == "" || cred.APIKey == "" {
				return errors.New("--name and --api-key are required")
			}

			pool, err := postgres.Connect(cmd.Context(), cfg.Postgres.DSN)
			if err != nil {
				return err
			}
			defer pool.Close()

			if err := postgres.Migrate(cmd.Context(), pool); err != nil {
				return err
			}
			if err := postgres.NewCredentialStore(pool).Upsert(cmd.Context(), cred, verified); err != nil {
				return err
			}
			log.Info().Str("agent", cred.Name).Bool("verified", verified).Msg("credential stored")
			return nil
		},
	}

	command.Flags().StringVar(&cred.Name, "name", "", "Agent name")
	command.Flags().StringVar(&cred.AgentID, "agent-id", "", "Agent id on the platform")
	command.Flags().StringVar(&cred.APIKey, "api-key", "", "Platform API key")
	command.Flags().BoolVar(&verified, "verified", true, "Mark the credential as verified")
	return command
}
