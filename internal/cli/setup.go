package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/maccam912/smart-todo-sub000/internal/config"
	"github.com/maccam912/smart-todo-sub000/internal/logger"
	"github.com/maccam912/smart-todo-sub000/internal/store"
)

// loadRuntime loads the config honoring --config and brings up the logger.
// Every command calls it first; the returned config still reflects the file
// and gets command flags overlaid afterwards.
func loadRuntime(cmd *cobra.Command) (*config.Config, error) {
	path, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, err
	}
	if path == "" {
		path = config.GetConfigPath()
	}

	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load config %s: %w", path, err)
	}

	verbose, _ := cmd.Flags().GetBool("verbose")
	if err := initLogging(cfg, verbose); err != nil {
		return nil, err
	}
	return cfg, nil
}

func initLogging(cfg *config.Config, verbose bool) error {
	if cfg.Logging.Disabled && !verbose {
		return logger.Init(logger.LevelNone, "")
	}
	level := logger.ParseLevel(cfg.Logging.Level)
	if verbose {
		level = logger.LevelDebug
	}
	return logger.Init(level, cfg.Logging.Path)
}

// applyStoreFlags overlays the flags every task-touching command shares.
func applyStoreFlags(cmd *cobra.Command, cfg *config.Config) {
	if v, _ := cmd.Flags().GetString("scope"); v != "" {
		cfg.Scope = v
	}
	if v, _ := cmd.Flags().GetString("db"); v != "" {
		cfg.Store.Path = v
	}
}

func openTaskStore(cfg *config.Config) (*store.SQLite, error) {
	st, err := store.Open(cfg.Store.Path)
	if err != nil {
		return nil, fmt.Errorf("open task store %s: %w", cfg.Store.Path, err)
	}
	return st, nil
}
