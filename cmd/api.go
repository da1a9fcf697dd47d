package cmd

import (
	"madangbot/internal/api"
	"madangbot/internal/app"
	"madangbot/internal/config"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func apiCmd() *cobra.Command {
	var port int
	var command = &cobra.Command{
		Use:   "api",
		Short: "Start API server (manual triggers and queue inspection)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.MustLoad()
			cfg.App.SetupLogger()
			log.Info().Msgf("API server using %s store", cfg.Store.Backend)

			a, err := app.New(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			server := api.NewServer(api.Deps{
				Queue:   a.Queue,
				Cycle:   a.Cycle,
				Worker:  a.Worker,
				Planner: a.Planner,
			})
			server.Run(port)
			return nil
		},
	}

	command.Flags().IntVarP(&port, "port", "p", 8080, "Port to run the server on")
	return command
}
