package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"

	"github.com/metalagman/tm/internal/collab"
	"github.com/metalagman/tm/internal/config"
	"github.com/metalagman/tm/internal/db"
	"github.com/metalagman/tm/internal/engine"
	"github.com/metalagman/tm/internal/migrate"
	"github.com/metalagman/tm/internal/task"
	"github.com/metalagman/tm/internal/telemetry"
)

func loadConfig() (config.Config, error) {
	cfg := config.Default()
	path := viper.GetString("config")
	if path == "" {
		path = filepath.Join(config.DefaultStateDirName, "config.json")
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("read config: %w", err)
	}
	var settings map[string]any
	if err := json.Unmarshal(raw, &settings); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	if err := config.ValidateSettings(settings); err != nil {
		return cfg, err
	}
	if err := viper.ReadInConfig(); err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := viper.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	if cfg.StateDir == "" {
		cfg.StateDir = config.DefaultStateDirName
	}
	return cfg, nil
}

func openOrchestrator() (*engine.Orchestrator, config.Config, func(), error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, cfg, nil, err
	}
	dbPath := cfg.DatabasePath()
	if _, err := os.Stat(dbPath); err != nil {
		if os.IsNotExist(err) {
			return nil, cfg, nil, fmt.Errorf("no task database at %s (run tm init first)", dbPath)
		}
		return nil, cfg, nil, fmt.Errorf("stat database: %w", err)
	}
	sqlDB, err := db.Open(dbPath)
	if err != nil {
		return nil, cfg, nil, err
	}
	tel := telemetry.New(filepath.Join(cfg.StateDir, "telemetry"), cfg.ResolveAgentID(), cfg.Telemetry.Enabled)
	orc := engine.New(task.NewStore(sqlDB), tel)
	return orc, cfg, func() { _ = sqlDB.Close() }, nil
}

func newMigrator(cfg config.Config) *migrate.Migrator {
	m := migrate.New(cfg.StateDir, cfg.DatabasePath())
	m.SetRetention(cfg.Retention.KeepLast, cfg.Retention.KeepDays)
	return m
}

func newSpace(cfg config.Config) *collab.Space {
	return collab.NewSpace(cfg.StateDir, cfg.ResolveAgentID())
}
