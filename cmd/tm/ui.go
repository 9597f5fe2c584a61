package main

import (
	"fmt"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/metalagman/tm/internal/web"
)

func uiCmd() *cobra.Command {
	var port int
	cmd := &cobra.Command{
		Use:   "ui",
		Short: "Start the task board web UI",
		RunE: func(_ *cobra.Command, _ []string) error {
			orc, _, closeFn, err := openOrchestrator()
			if err != nil {
				return err
			}
			defer closeFn()

			server, err := web.NewServer(orc)
			if err != nil {
				return err
			}

			addr := fmt.Sprintf(":%d", port)
			fmt.Printf("Starting task board on http://localhost%s\n", addr)
			return http.ListenAndServe(addr, server.Routes())
		},
	}
	cmd.Flags().IntVarP(&port, "port", "p", 8080, "Port to listen on")
	return cmd
}
