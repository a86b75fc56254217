package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/gyaneshwarpardhi/paynotify/internal/config"
)

var Version = "dev"

func main() {
	var cfgPath string

	rootCmd := &cobra.Command{
		Use:           "paynotify",
		Short:         "Payment notification delivery service",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", envOr("PAYNOTIFY_CONFIG", "configs/notifier.yaml"), "Path to notifier YAML config")

	rootCmd.AddCommand(serveCmd(&cfgPath))
	rootCmd.AddCommand(migrateCmd(&cfgPath))
	rootCmd.AddCommand(deliveriesCmd(&cfgPath))
	rootCmd.AddCommand(snippetCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// newLogger builds the process logger from the log section.
func newLogger(conf config.LogConf) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(conf.Level) {
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
	if conf.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}

// loadConfig reads and validates the config file once.
func loadConfig(path string) (*config.Config, error) {
	loader, err := config.NewLoader(path)
	if err != nil {
		return nil, err
	}
	return loader.Config(), nil
}
