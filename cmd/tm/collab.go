package main

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func collabCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "collab",
		Short: "Coordinate with other agents on a task",
	}
	cmd.AddCommand(collabJoinCmd())
	cmd.AddCommand(collabShareCmd())
	cmd.AddCommand(collabDiscoverCmd())
	cmd.AddCommand(collabSyncCmd())
	cmd.AddCommand(collabContextCmd())
	return cmd
}

// requireTask resolves and checks the task exists before touching
// collaboration files, so streams never accumulate under bogus ids.
func requireTask(cmd *cobra.Command, id string) error {
	orc, _, closeFn, err := openOrchestrator()
	if err != nil {
		return err
	}
	defer closeFn()
	_, err = orc.Get(cmd.Context(), id)
	return err
}

func collabJoinCmd() *cobra.Command {
	var role string
	cmd := &cobra.Command{
		Use:   "join <id>",
		Short: "Announce that you are working on a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireTask(cmd, args[0]); err != nil {
				return err
			}
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if err := newSpace(cfg).Join(args[0], role); err != nil {
				return err
			}
			log.Info().Str("task_id", args[0]).Msg("joined task")
			return nil
		},
	}
	cmd.Flags().StringVar(&role, "role", "", "what part you are taking on")
	return cmd
}

func collabShareCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "share <id> <message>",
		Short: "Share a progress update",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireTask(cmd, args[0]); err != nil {
				return err
			}
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			return newSpace(cfg).Share(args[0], strings.Join(args[1:], " "))
		},
	}
}

func collabDiscoverCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "discover <id> <finding>",
		Short: "Record a finding other agents should see",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireTask(cmd, args[0]); err != nil {
				return err
			}
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			return newSpace(cfg).Discover(args[0], strings.Join(args[1:], " "))
		},
	}
}

func collabSyncCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sync <id> <message>",
		Short: "Mark a coordination checkpoint",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireTask(cmd, args[0]); err != nil {
				return err
			}
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			return newSpace(cfg).SyncPoint(args[0], strings.Join(args[1:], " "))
		},
	}
}

func collabContextCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "context <id>",
		Short: "Show the shared context stream for a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			events, err := newSpace(cfg).Context(args[0])
			if err != nil {
				return err
			}
			if len(events) == 0 {
				log.Info().Msg("no shared context yet")
				return nil
			}
			for _, ev := range events {
				fmt.Printf("%s  %-10s %-10s %s\n",
					ev.Timestamp.Format("2006-01-02 15:04"), ev.Type, ev.Agent, ev.Message)
			}
			return nil
		},
	}
}

func noteCmd() *cobra.Command {
	var show bool
	cmd := &cobra.Command{
		Use:   "note <id> [text]",
		Short: "Add or show your private notes on a task",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			space := newSpace(cfg)
			if show || len(args) == 1 {
				text, err := space.Notes(args[0])
				if err != nil {
					return err
				}
				if text == "" {
					log.Info().Msg("no notes yet")
					return nil
				}
				fmt.Print(text)
				return nil
			}
			if err := requireTask(cmd, args[0]); err != nil {
				return err
			}
			return space.Note(args[0], strings.Join(args[1:], " "))
		},
	}
	cmd.Flags().BoolVar(&show, "show", false, "print notes instead of appending")
	return cmd
}
