package main

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func watchCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Show unread notifications for this agent",
		Long:  "Print unblock notifications addressed to this agent (or broadcast), newest first, and mark them read.",
		RunE: func(cmd *cobra.Command, args []string) error {
			orc, cfg, closeFn, err := openOrchestrator()
			if err != nil {
				return err
			}
			defer closeFn()

			notes, err := orc.Watch(cmd.Context(), cfg.ResolveAgentID(), limit)
			if err != nil {
				return err
			}
			if len(notes) == 0 {
				log.Info().Msg("no new notifications")
				return nil
			}
			for _, n := range notes {
				fmt.Printf("%s  %s  %s\n", n.CreatedAt.Format("2006-01-02 15:04"), n.TaskID, n.Message)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 10, "maximum notifications to show")
	return cmd
}
