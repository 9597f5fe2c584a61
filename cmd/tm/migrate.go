package main

import (
	"fmt"
	"path/filepath"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/metalagman/tm/internal/telemetry"
)

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the task database schema",
	}
	cmd.AddCommand(migrateStatusCmd())
	cmd.AddCommand(migrateDryRunCmd())
	cmd.AddCommand(migrateApplyCmd())
	cmd.AddCommand(migrateRollbackCmd())
	cmd.AddCommand(migrateBackupCmd())
	return cmd
}

func migrateStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show applied and pending schema versions",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			report, err := newMigrator(cfg).Status(cmd.Context())
			if err != nil {
				return err
			}
			for _, m := range report.Applied {
				fmt.Printf("applied  %5d  %s\n", m.Version, m.Source)
			}
			for _, m := range report.Pending {
				fmt.Printf("pending  %5d  %s\n", m.Version, m.Source)
			}
			if len(report.Pending) == 0 {
				log.Info().Msg("schema is up to date")
			}
			return nil
		},
	}
}

func migrateDryRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "dry-run",
		Short: "Print the SQL pending migrations would run",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			changes, err := newMigrator(cfg).DryRun(cmd.Context())
			if err != nil {
				return err
			}
			if len(changes) == 0 {
				log.Info().Msg("nothing to apply")
				return nil
			}
			for _, c := range changes {
				fmt.Printf("-- %d %s\n%s\n", c.Version, c.Source, c.SQL)
			}
			return nil
		},
	}
}

func migrateApplyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "apply",
		Short: "Apply pending migrations (backup first)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			res, err := newMigrator(cfg).Apply(cmd.Context())
			if err != nil {
				return err
			}
			if len(res.Applied) == 0 {
				log.Info().Msg("schema is up to date")
				return nil
			}
			tel := telemetry.New(filepath.Join(cfg.StateDir, "telemetry"), cfg.ResolveAgentID(), cfg.Telemetry.Enabled)
			tel.MigrationApplied(res.Applied)
			fmt.Printf("backup: %s\n", res.BackupPath)
			return nil
		},
	}
}

func migrateRollbackCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rollback",
		Short: "Restore the most recent backup over the live database",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			restored, err := newMigrator(cfg).Rollback(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Printf("restored: %s\n", restored)
			return nil
		},
	}
}

func migrateBackupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "backup",
		Short: "Take a backup of the task database",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			path, err := newMigrator(cfg).Backup(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Println(path)
			return nil
		},
	}
}
