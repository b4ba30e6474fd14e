package cli

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
)

const (
	// Version is the current version of galeview
	Version = "0.3.0"

	// ConfigDirEnvVar overrides the configuration directory
	ConfigDirEnvVar = "GALEVIEW_CONFIG_DIR"
)

// Config holds the global configuration for the galeview CLI
type Config struct {
	ConfigDir string
	Debug     bool

	// App is the loaded config.yaml, set before any command runs
	App    *AppConfig
	Logger *slog.Logger
}

// GlobalConfig is the shared configuration instance
var GlobalConfig = &Config{}

func (c *Config) logger() *slog.Logger {
	if c.Logger == nil {
		return slog.Default()
	}
	return c.Logger
}

// NewRootCommand creates the root cobra command for galeview
func NewRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "galeview",
		Short: "galeview - Execution flow viewer for agent brokers",
		Long: `galeview inspects the execution flows of an agent broker. It lists agents and
tasks, fetches the execution graph of a correlation id, computes a layered
layout of its agents and groups, and keeps snapshots for offline viewing.`,
		Version:      Version,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := initConfig(); err != nil {
				return fmt.Errorf("failed to initialize configuration: %w", err)
			}

			GlobalConfig.Logger = newLogger(cmd.ErrOrStderr(), GlobalConfig.App.LogLevel, GlobalConfig.Debug)
			slog.SetDefault(GlobalConfig.Logger)
			return nil
		},
	}

	// Persistent flags (available to all subcommands)
	cmd.PersistentFlags().BoolVar(&GlobalConfig.Debug, "debug", false, "Enable debug logging")
	cmd.PersistentFlags().StringVar(&GlobalConfig.ConfigDir, "config-dir", "", "Configuration directory (default: ~/.galeview)")

	cmd.AddCommand(NewAgentsCommand())
	cmd.AddCommand(NewAgentCommand())
	cmd.AddCommand(NewTasksCommand())
	cmd.AddCommand(NewTaskCommand())
	cmd.AddCommand(NewFlowCommand())
	cmd.AddCommand(NewLayoutCommand())
	cmd.AddCommand(NewFindCommand())
	cmd.AddCommand(NewLaunchCommand())
	cmd.AddCommand(NewPlaygroundCommand())
	cmd.AddCommand(NewValidateCommand())
	cmd.AddCommand(NewSnapshotsCommand())
	cmd.AddCommand(NewAuthCommand())
	cmd.AddCommand(NewServeCommand())

	return cmd
}

// initConfig creates the configuration directory and loads config.yaml,
// writing a default one first if it is missing.
func initConfig() error {
	GlobalConfig.ConfigDir = GetConfigDir()

	if err := os.MkdirAll(GlobalConfig.ConfigDir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := WriteDefaultConfig(filepath.Join(GlobalConfig.ConfigDir, ConfigFile)); err != nil {
		return err
	}

	app, err := LoadConfig(GlobalConfig.ConfigDir)
	if err != nil {
		return err
	}
	GlobalConfig.App = app
	return nil
}

// GetConfigDir returns the configuration directory path
// Priority order: 1) GALEVIEW_CONFIG_DIR env var, 2) --config-dir, 3) ~/.galeview
func GetConfigDir() string {
	if envDir := os.Getenv(ConfigDirEnvVar); envDir != "" {
		return envDir
	}
	if GlobalConfig.ConfigDir != "" {
		return GlobalConfig.ConfigDir
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return ".galeview"
	}
	return filepath.Join(homeDir, ".galeview")
}

// newLogger builds the text logger used by every command. --debug wins over
// the configured level.
func newLogger(w io.Writer, level string, debug bool) *slog.Logger {
	lvl := parseLevel(level)
	if debug {
		lvl = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl}))
}

// parseLevel converts a string log level to slog.Level
func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Execute runs the root command
func Execute() error {
	return NewRootCommand().Execute()
}
