package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
)

var (
	pathStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("62"))
	arrowStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	scoreStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))
)

func criticalPathCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "critical-path",
		Short: "Show the longest chain of incomplete work",
		RunE: func(cmd *cobra.Command, args []string) error {
			orc, _, closeFn, err := openOrchestrator()
			if err != nil {
				return err
			}
			defer closeFn()

			path, length, err := orc.CriticalPath(cmd.Context())
			if err != nil {
				return err
			}
			if len(path) == 0 {
				fmt.Println("no incomplete tasks")
				return nil
			}

			parts := make([]string, 0, len(path))
			for _, id := range path {
				t, err := orc.Get(cmd.Context(), id)
				if err != nil {
					return err
				}
				parts = append(parts, fmt.Sprintf("%s (%s)", pathStyle.Render(t.ID), t.Title))
			}
			arrow := arrowStyle.Render(" -> ")
			fmt.Println(strings.Join(parts, arrow))
			fmt.Printf("total weight: %s\n", scoreStyle.Render(fmt.Sprintf("%.1f", length)))
			return nil
		},
	}
}

func blockersCmd() *cobra.Command {
	var top int
	cmd := &cobra.Command{
		Use:   "blockers",
		Short: "Rank tasks by how much downstream work they block",
		RunE: func(cmd *cobra.Command, args []string) error {
			orc, _, closeFn, err := openOrchestrator()
			if err != nil {
				return err
			}
			defer closeFn()

			scores, err := orc.TopBlockers(cmd.Context(), top)
			if err != nil {
				return err
			}
			if len(scores) == 0 {
				fmt.Println("nothing is blocked")
				return nil
			}
			for i, s := range scores {
				t, err := orc.Get(cmd.Context(), s.TaskID)
				if err != nil {
					return err
				}
				fmt.Printf("%2d. %s %s  %s\n",
					i+1,
					scoreStyle.Render(fmt.Sprintf("%6.1f", s.Score)),
					pathStyle.Render(s.TaskID),
					t.Title)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&top, "top", 5, "number of blockers to show")
	return cmd
}
