package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/metalagman/tm/internal/config"
	"github.com/metalagman/tm/internal/logging"
	"github.com/metalagman/tm/internal/task"
)

var (
	cfgFile string
	debug   bool
	quiet   bool
	rootCmd = &cobra.Command{
		Use:   "tm",
		Short: "tm is a dependency-aware task orchestrator",
		Long: "tm tracks tasks and their dependency graph in a local SQLite database,\n" +
			"unblocking work automatically as prerequisites complete. Safe for several\n" +
			"agent processes sharing one database.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
)

// Execute runs the root command.
func Execute() error {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", filepath.Join(config.DefaultStateDirName, "config.json"), "config file path")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "only log warnings and errors")
	if err := viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config")); err != nil {
		return fmt.Errorf("bind config flag: %w", err)
	}
	rootCmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		// .env may carry TM_DB_PATH / TM_AGENT_ID; absence is fine.
		_ = godotenv.Load()
		logging.Init(debug, quiet)
	}
	rootCmd.AddCommand(initProjectCmd())
	rootCmd.AddCommand(addCmd())
	rootCmd.AddCommand(listCmd())
	rootCmd.AddCommand(showCmd())
	rootCmd.AddCommand(updateCmd())
	rootCmd.AddCommand(assignCmd())
	rootCmd.AddCommand(completeCmd())
	rootCmd.AddCommand(deleteCmd())
	rootCmd.AddCommand(linkCmd())
	rootCmd.AddCommand(criticalPathCmd())
	rootCmd.AddCommand(blockersCmd())
	rootCmd.AddCommand(watchCmd())
	rootCmd.AddCommand(exportCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(templateCmd())
	rootCmd.AddCommand(collabCmd())
	rootCmd.AddCommand(noteCmd())
	rootCmd.AddCommand(wizardCmd())
	rootCmd.AddCommand(uiCmd())
	return rootCmd.Execute()
}

func initConfig() {
	path := cfgFile
	if path == "" {
		path = filepath.Join(config.DefaultStateDirName, "config.json")
	}
	viper.SetConfigFile(path)
	viper.SetConfigType("json")
}

// fatal prints the error with the failure class up front, so scripts and
// agents can distinguish "bad input" from "try again" without parsing
// free text.
func fatal(err error) {
	fmt.Fprintln(os.Stderr, "error: "+describe(err))
}

func describe(err error) string {
	switch {
	case errors.Is(err, task.ErrNotFound):
		return "not found: " + err.Error()
	case errors.Is(err, task.ErrCycleDetected):
		return "dependency cycle: " + err.Error()
	case errors.Is(err, task.ErrValidation):
		return "invalid input: " + err.Error()
	case errors.Is(err, task.ErrInvalidTransition):
		return "invalid transition: " + err.Error()
	case errors.Is(err, task.ErrCriteriaUnmet):
		return "criteria unmet: " + err.Error()
	case errors.Is(err, task.ErrStoreBusy):
		return "database busy, try again: " + err.Error()
	case errors.Is(err, task.ErrStoreCorrupt):
		return "database corrupt (use tm migrate rollback): " + err.Error()
	default:
		return err.Error()
	}
}
