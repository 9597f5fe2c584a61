package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/metalagman/tm/internal/criteria"
	"github.com/metalagman/tm/internal/engine"
	"github.com/metalagman/tm/internal/task"
)

func addCmd() *cobra.Command {
	var (
		priority     string
		assignee     string
		estimate     float64
		deadline     string
		criteriaList []string
		criteriaJSON string
		dependsOn    []string
	)

	cmd := &cobra.Command{
		Use:   "add <title>",
		Short: "Add a task",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			orc, _, closeFn, err := openOrchestrator()
			if err != nil {
				return err
			}
			defer closeFn()

			draft := engine.Draft{
				Title:     strings.Join(args, " "),
				Priority:  task.Priority(priority),
				Assignee:  assignee,
				DependsOn: dependsOn,
			}
			if cmd.Flags().Changed("estimate") {
				draft.EstimatedHours = &estimate
			}
			if deadline != "" {
				draft.Deadline = &deadline
			}
			for _, c := range criteriaList {
				draft.SuccessCriteria = append(draft.SuccessCriteria, task.SuccessCriterion{Criterion: c})
			}
			if criteriaJSON != "" {
				parsed, err := criteria.Parse(criteriaJSON)
				if err != nil {
					return err
				}
				draft.SuccessCriteria = append(draft.SuccessCriteria, parsed...)
			}

			created, err := orc.Add(cmd.Context(), draft)
			if err != nil {
				return err
			}
			log.Info().Str("task_id", created.ID).Str("status", string(created.Status)).Msg("task added")
			fmt.Println(created.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&priority, "priority", "medium", "priority (low|medium|high)")
	cmd.Flags().StringVar(&assignee, "assignee", "", "assign on creation")
	cmd.Flags().Float64Var(&estimate, "estimate", 0, "estimated hours")
	cmd.Flags().StringVar(&deadline, "deadline", "", "deadline (RFC3339)")
	cmd.Flags().StringArrayVar(&criteriaList, "criteria", nil, "success criterion text (repeatable)")
	cmd.Flags().StringVar(&criteriaJSON, "criteria-json", "", `structured criteria, e.g. '[{"criterion":"tests pass","measurable":"passed == true"}]'`)
	cmd.Flags().StringSliceVar(&dependsOn, "depends-on", nil, "prerequisite task ids")
	return cmd
}

func listCmd() *cobra.Command {
	var (
		status   string
		assignee string
		hasDeps  bool
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			orc, _, closeFn, err := openOrchestrator()
			if err != nil {
				return err
			}
			defer closeFn()

			filter := task.Filter{Assignee: assignee, HasDeps: hasDeps}
			if status != "" {
				st := task.Status(status)
				if !st.Valid() || st == task.StatusDeleted {
					return fmt.Errorf("unknown status %q: %w", status, task.ErrValidation)
				}
				filter.Status = &st
			}
			items, err := orc.List(cmd.Context(), filter)
			if err != nil {
				return err
			}
			if len(items) == 0 {
				log.Info().Msg("no tasks")
				return nil
			}
			for _, item := range items {
				assigned := "-"
				if item.Assignee != "" {
					assigned = item.Assignee
				}
				_, _ = io.WriteString(os.Stdout, fmt.Sprintf("%s\t%s\t%s\t%s\t%s\n",
					item.ID, item.Status, item.Priority, assigned, item.Title))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "filter by status (pending|blocked|in_progress|completed)")
	cmd.Flags().StringVar(&assignee, "assignee", "", "filter by assignee")
	cmd.Flags().BoolVar(&hasDeps, "has-deps", false, "only tasks with prerequisites")
	return cmd
}

func showCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show one task with its dependencies",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			orc, _, closeFn, err := openOrchestrator()
			if err != nil {
				return err
			}
			defer closeFn()

			t, err := orc.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			prereqs, err := orc.Prerequisites(cmd.Context(), t.ID)
			if err != nil {
				return err
			}
			dependents, err := orc.Dependents(cmd.Context(), t.ID)
			if err != nil {
				return err
			}

			fmt.Printf("id:        %s\n", t.ID)
			fmt.Printf("title:     %s\n", t.Title)
			fmt.Printf("status:    %s\n", t.Status)
			fmt.Printf("priority:  %s\n", t.Priority)
			if t.Assignee != "" {
				fmt.Printf("assignee:  %s\n", t.Assignee)
			}
			if t.EstimatedHours != nil {
				fmt.Printf("estimate:  %gh\n", *t.EstimatedHours)
			}
			if t.ActualHours != nil {
				fmt.Printf("actual:    %gh\n", *t.ActualHours)
			}
			if t.Deadline != nil {
				fmt.Printf("deadline:  %s\n", t.Deadline.Format(time.RFC3339))
			}
			for _, c := range t.SuccessCriteria {
				fmt.Printf("criterion: %s\n", c.Criterion)
			}
			if t.CompletionSummary != "" {
				fmt.Printf("summary:   %s\n", t.CompletionSummary)
			}
			if len(prereqs) > 0 {
				fmt.Printf("depends:   %s\n", strings.Join(prereqs, ", "))
			}
			if len(dependents) > 0 {
				fmt.Printf("blocks:    %s\n", strings.Join(dependents, ", "))
			}
			fmt.Printf("created:   %s\n", t.CreatedAt.Format(time.RFC3339))
			fmt.Printf("updated:   %s\n", t.UpdatedAt.Format(time.RFC3339))
			return nil
		},
	}
}

func updateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "update <id> <status>",
		Short: "Update a task's status",
		Long:  "Move a task between pending and in_progress. Completion routes through the same path as tm complete; blocked is managed by the dependency graph and cannot be set directly.",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			orc, _, closeFn, err := openOrchestrator()
			if err != nil {
				return err
			}
			defer closeFn()

			if err := orc.UpdateStatus(cmd.Context(), args[0], task.Status(args[1])); err != nil {
				return err
			}
			log.Info().Str("task_id", args[0]).Str("status", args[1]).Msg("status updated")
			return nil
		},
	}
}

func assignCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "assign <id> <agent>",
		Short: "Assign a task to an agent",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			orc, _, closeFn, err := openOrchestrator()
			if err != nil {
				return err
			}
			defer closeFn()

			if err := orc.Assign(cmd.Context(), args[0], args[1]); err != nil {
				return err
			}
			log.Info().Str("task_id", args[0]).Str("assignee", args[1]).Msg("task assigned")
			return nil
		},
	}
}

func completeCmd() *cobra.Command {
	var (
		summary  string
		actual   float64
		validate bool
		force    bool
		ctxPairs []string
	)
	cmd := &cobra.Command{
		Use:   "complete <id>",
		Short: "Complete a task and unblock its dependents",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			orc, _, closeFn, err := openOrchestrator()
			if err != nil {
				return err
			}
			defer closeFn()

			opts := engine.CompleteOptions{
				Validate: validate,
				Force:    force,
				Summary:  summary,
			}
			if cmd.Flags().Changed("actual") {
				opts.ActualHours = &actual
			}
			if len(ctxPairs) > 0 {
				opts.Context = make(map[string]any, len(ctxPairs))
				for _, pair := range ctxPairs {
					k, v, ok := strings.Cut(pair, "=")
					if !ok {
						return fmt.Errorf("context value %q is not key=value: %w", pair, task.ErrValidation)
					}
					opts.Context[k] = v
				}
			}

			outcome, err := orc.Complete(cmd.Context(), args[0], opts)
			if err != nil {
				return err
			}
			if len(outcome.CriteriaResults) > 0 {
				fmt.Print(criteria.FormatReport(outcome.CriteriaResults))
			}
			if outcome.AlreadyCompleted {
				log.Info().Str("task_id", args[0]).Msg("task was already completed")
				return nil
			}
			log.Info().Str("task_id", args[0]).Int("unblocked", len(outcome.Unblocked)).Msg("task completed")
			for _, id := range outcome.Unblocked {
				fmt.Printf("unblocked %s\n", id)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&summary, "summary", "", "completion summary")
	cmd.Flags().Float64Var(&actual, "actual", 0, "actual hours spent")
	cmd.Flags().BoolVar(&validate, "validate", false, "evaluate success criteria before completing")
	cmd.Flags().BoolVar(&force, "force", false, "complete even with unmet criteria")
	cmd.Flags().StringArrayVar(&ctxPairs, "context", nil, "criteria context key=value (repeatable)")
	return cmd
}

func deleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a task and detach it from the graph",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			orc, _, closeFn, err := openOrchestrator()
			if err != nil {
				return err
			}
			defer closeFn()

			unblocked, err := orc.Delete(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			log.Info().Str("task_id", args[0]).Int("unblocked", len(unblocked)).Msg("task deleted")
			for _, id := range unblocked {
				fmt.Printf("unblocked %s\n", id)
			}
			return nil
		},
	}
}

func linkCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "link <id> <prerequisite>...",
		Short: "Add dependency edges to an existing task",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			orc, _, closeFn, err := openOrchestrator()
			if err != nil {
				return err
			}
			defer closeFn()

			status, err := orc.Link(cmd.Context(), args[0], args[1:])
			if err != nil {
				return err
			}
			log.Info().Str("task_id", args[0]).Str("status", string(status)).Msg("dependencies linked")
			return nil
		},
	}
}
