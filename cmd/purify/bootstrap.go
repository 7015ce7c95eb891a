package main

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/jamesainslie/purify/pkg/purify/config"
	"github.com/jamesainslie/purify/pkg/purify/logging"
)

// initializeLogging is the PersistentPreRunE hook. It ensures the XDG
// directories exist and initializes the logging system from config.
func initializeLogging(_ *cobra.Command, _ []string) error {
	if err := config.EnsureConfigDir(); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := config.EnsureDataDir(); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}
	if err := config.EnsureStateDir(); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}
	if err := config.EnsureCacheDir(); err != nil {
		return fmt.Errorf("failed to create cache directory: %w", err)
	}

	cfg, err := config.Load()
	if err != nil {
		// Fall back to default logging rather than blocking the command.
		return logging.Init(logging.DefaultConfig())
	}

	logCfg := logging.Config{
		Level:      cfg.Logging.Level,
		Path:       cfg.Logging.Path,
		Rotation:   parseRotationConfig(cfg.Logging.Rotation),
		Components: cfg.Logging.Components,
	}
	if logCfg.Level == "" {
		logCfg.Level = "info"
	}
	if getVerbose() {
		logCfg.Level = "debug"
		logCfg.ConsoleLevel = "debug"
	}

	return logging.Init(logCfg)
}

// parseRotationConfig converts the config representation (human sizes,
// ages in days) into the logging package's representation.
func parseRotationConfig(rc config.RotationConfig) logging.RotationConfig {
	out := logging.DefaultRotationConfig()

	if rc.MaxSize != "" {
		if size, err := humanize.ParseBytes(rc.MaxSize); err == nil {
			out.MaxSize = int64(size)
		}
	}
	if rc.MaxAge > 0 {
		out.MaxAge = time.Duration(rc.MaxAge) * 24 * time.Hour
	}
	if rc.MaxBackups > 0 {
		out.MaxBackups = rc.MaxBackups
	}
	out.Daily = rc.Daily

	return out
}
