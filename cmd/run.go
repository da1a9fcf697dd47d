package cmd

import (
	"encoding/json"

	"madangbot/internal/app"
	"madangbot/internal/config"

	"github.com/spf13/cobra"
)

func runCmd() *cobra.Command {
	var command = &cobra.Command{
		Use:   "run",
		Short: "Run one cycle now and print its report",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.MustLoad()
			cfg.App.SetupLogger()

			a, err := app.New(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			report, err := a.Cycle.Run(cmd.Context())
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(report)
		},
	}
	return command
}
