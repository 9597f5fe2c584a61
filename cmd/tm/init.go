package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/metalagman/tm/internal/config"
)

func initProjectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Initialize the task orchestrator in the current directory",
		Long:  "Create the state directory, install a default config, and bring the task database to the current schema.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			log.Info().Str("dir", cfg.StateDir).Msg("creating state directory")
			for _, sub := range []string{"locks", "backups", "contexts", "notes"} {
				if err := os.MkdirAll(filepath.Join(cfg.StateDir, sub), 0o755); err != nil {
					return fmt.Errorf("create %s dir: %w", sub, err)
				}
			}

			configPath := filepath.Join(cfg.StateDir, "config.json")
			if _, err := os.Stat(configPath); err == nil {
				log.Info().Msg("config.json already exists, skipping")
			} else {
				log.Info().Str("path", configPath).Msg("installing default config")
				data, err := json.MarshalIndent(config.Default(), "", "  ")
				if err != nil {
					return fmt.Errorf("encode default config: %w", err)
				}
				if err := os.WriteFile(configPath, append(data, '\n'), 0o644); err != nil {
					return fmt.Errorf("write default config: %w", err)
				}
			}

			res, err := newMigrator(cfg).Apply(cmd.Context())
			if err != nil {
				return err
			}
			if len(res.Applied) == 0 {
				log.Info().Msg("database already at current schema")
			} else {
				log.Info().Ints64("versions", res.Applied).Msg("database initialized")
			}
			return nil
		},
	}
}
