package cmd

import (
	"fmt"

	"madangbot/internal/app"
	"madangbot/internal/config"

	"github.com/spf13/cobra"
)

func draftCmd() *cobra.Command {
	var topic string
	var command = &cobra.Command{
		Use:   "draft",
		Short: "Generate a draft and queue it for publishing",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.MustLoad()
			cfg.App.SetupLogger()

			a, err := app.New(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			id, err := a.Planner.Plan(cmd.Context(), topic)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), id)
			return nil
		},
	}

	command.Flags().StringVarP(&topic, "topic", "t", "", "Topic to write about (random configured topic when empty)")
	return command
}
