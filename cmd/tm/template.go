package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/metalagman/tm/internal/task"
	"github.com/metalagman/tm/internal/template"
)

func templateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "template",
		Short: "Create tasks in bulk from YAML templates",
	}
	cmd.AddCommand(templateApplyCmd())
	cmd.AddCommand(templateShowCmd())
	return cmd
}

func templateApplyCmd() *cobra.Command {
	var varPairs []string
	cmd := &cobra.Command{
		Use:   "apply <file>",
		Short: "Instantiate a template",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read template: %w", err)
			}
			tpl, err := template.Parse(data)
			if err != nil {
				return err
			}

			vars := make(map[string]string, len(varPairs))
			for _, pair := range varPairs {
				k, v, ok := strings.Cut(pair, "=")
				if !ok {
					return fmt.Errorf("variable %q is not key=value: %w", pair, task.ErrValidation)
				}
				vars[k] = v
			}

			orc, _, closeFn, err := openOrchestrator()
			if err != nil {
				return err
			}
			defer closeFn()

			created, err := template.Apply(cmd.Context(), orc, tpl, vars)
			if err != nil {
				return err
			}
			log.Info().Str("template", tpl.Name).Int("tasks", len(created)).Msg("template applied")
			for _, t := range created {
				fmt.Printf("%s\t%s\t%s\n", t.ID, t.Status, t.Title)
			}
			return nil
		},
	}
	cmd.Flags().StringArrayVar(&varPairs, "var", nil, "template variable key=value (repeatable)")
	return cmd
}

func templateShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <file>",
		Short: "Show a template's variables and tasks without creating anything",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read template: %w", err)
			}
			tpl, err := template.Parse(data)
			if err != nil {
				return err
			}
			fmt.Printf("template: %s\n", tpl.Name)
			if tpl.Description != "" {
				fmt.Printf("about:    %s\n", tpl.Description)
			}
			for _, v := range tpl.Variables {
				req := ""
				if v.Required {
					req = " (required)"
				} else if v.Default != "" {
					req = fmt.Sprintf(" (default %q)", v.Default)
				}
				fmt.Printf("var:      %s%s\n", v.Name, req)
			}
			for i, t := range tpl.Tasks {
				fmt.Printf("task %2d:  %s\n", i, t.Title)
			}
			return nil
		},
	}
}
