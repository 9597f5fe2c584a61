package main

import (
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/metalagman/tm/internal/wizard"
)

func wizardCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "wizard",
		Short: "Create a task interactively",
		RunE: func(cmd *cobra.Command, args []string) error {
			orc, _, closeFn, err := openOrchestrator()
			if err != nil {
				return err
			}
			defer closeFn()

			created, ok, err := wizard.Run(cmd.Context(), orc)
			if err != nil {
				return err
			}
			if !ok {
				log.Info().Msg("cancelled")
				return nil
			}
			log.Info().Str("task_id", created.ID).Str("status", string(created.Status)).Msg("task added")
			return nil
		},
	}
}
