package main

import (
	"fmt"
	"os"

	"github.com/charmbracelet/glamour"
	"github.com/spf13/cobra"

	"github.com/metalagman/tm/internal/export"
	"github.com/metalagman/tm/internal/task"
)

func exportCmd() *cobra.Command {
	var (
		format string
		render bool
		output string
	)
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export all tasks as JSON or Markdown",
		RunE: func(cmd *cobra.Command, args []string) error {
			orc, _, closeFn, err := openOrchestrator()
			if err != nil {
				return err
			}
			defer closeFn()

			snap, err := orc.Export(cmd.Context())
			if err != nil {
				return err
			}

			var out []byte
			switch format {
			case "json":
				out, err = export.JSON(snap)
				if err != nil {
					return err
				}
			case "markdown":
				md := export.Markdown(snap)
				if render {
					rendered, err := glamour.Render(md, "auto")
					if err != nil {
						return fmt.Errorf("render markdown: %w", err)
					}
					md = rendered
				}
				out = []byte(md)
			default:
				return fmt.Errorf("unknown format %q (json|markdown): %w", format, task.ErrValidation)
			}

			if output != "" {
				return os.WriteFile(output, out, 0o644)
			}
			_, err = os.Stdout.Write(out)
			return err
		},
	}
	cmd.Flags().StringVar(&format, "format", "json", "output format (json|markdown)")
	cmd.Flags().BoolVar(&render, "render", false, "render markdown for the terminal")
	cmd.Flags().StringVarP(&output, "output", "o", "", "write to file instead of stdout")
	return cmd
}
