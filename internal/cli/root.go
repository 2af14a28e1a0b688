// Package cli implements the agentward command line interface.
package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/agentward/agentward/internal/config"
)

func NewRoot(version string) *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:           "agentward",
		Short:         "agentward: guardrail engine for AI agent platforms",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.Version = version
	cmd.SetVersionTemplate("agentward {{.Version}}\n")

	cmd.PersistentFlags().StringVar(&configPath, "config",
		getenvDefault("AGENTWARD_CONFIG", ""), "path to config file (YAML)")

	cmd.AddCommand(newCheckCmd())
	cmd.AddCommand(newScanCmd())
	cmd.AddCommand(newRulesCmd())
	cmd.AddCommand(newAuditCmd())

	return cmd
}

// loadConfig reads the config named by --config, or the defaults when the
// flag is empty.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Root().PersistentFlags().GetString("config")
	if path == "" {
		return config.Default(), nil
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load config %s: %w", path, err)
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) *slog.Logger {
	var level slog.Level
	switch cfg.Logging.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Logging.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

func getenvDefault(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
