package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ghfetch/ghfetch/internal/config"
	"github.com/ghfetch/ghfetch/internal/lockfile"
	"github.com/ghfetch/ghfetch/internal/store"
	"github.com/ghfetch/ghfetch/internal/supervisor"
	"github.com/ghfetch/ghfetch/internal/update"
)

var (
	// Global flags
	cfgPath    string
	logLevel   string
	logFormat  string
	quiet      bool
	selfUpdate bool

	globalCfg *config.Config
	logger    *slog.Logger
)

// NewRootCmd creates and returns the root command
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ghfetch <output_file> <url>",
		Short: "Accelerated GitHub downloads through rotating mirror proxies",
		Long: `ghfetch wraps a segmented downloader (aria2c) and routes GitHub URLs
through a rotating set of mirror proxies. It supervises the transfer process,
kills and retries stalled or slow attempts through a different mirror, and
falls back to direct connections for hosts outside the mirror allowlist.`,
		Example: `  ghfetch kernel.tar.gz https://github.com/torvalds/linux/archive/refs/tags/v6.8.tar.gz
  ghfetch --self-update
  ghfetch mirrors --probe
  ghfetch history --limit 10`,
		Version: version,
		Args: func(cmd *cobra.Command, args []string) error {
			if selfUpdate {
				if len(args) != 0 {
					return fmt.Errorf("--self-update takes no arguments")
				}
				return nil
			}
			if len(args) != 2 {
				return fmt.Errorf("expected exactly two arguments: <output_file> <url>")
			}
			return nil
		},
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			setupLogging()

			if shouldSkipConfig(cmd.Name()) {
				return nil
			}

			if cfgPath == "" {
				var err error
				cfgPath, err = config.FindConfigFile()
				if err != nil {
					logger.Debug("config file not found, using defaults", "error", err)
				}
			}

			if cfgPath != "" {
				var err error
				globalCfg, err = config.Load(cfgPath)
				if err != nil {
					return fmt.Errorf("failed to load config: %w", err)
				}
			} else {
				globalCfg = config.DefaultConfig()
			}

			if !quiet {
				logger.Debug("config loaded", "path", cfgPath, "mirrors", len(globalCfg.Mirrors))
			}

			return nil
		},
		RunE: rootRun,
	}

	// Add persistent flags
	cmd.PersistentFlags().StringVar(&cfgPath, "config", "", "path to config file (auto-discovered if not specified)")
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	cmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "log format (text or json)")
	cmd.PersistentFlags().BoolVar(&quiet, "quiet", false, "suppress non-error output")
	cmd.Flags().BoolVar(&selfUpdate, "self-update", false, "check for a newer release and install it")

	// Add subcommands
	cmd.AddCommand(
		newHistoryCmd(),
		newMirrorsCmd(),
		newConfigCmd(),
	)

	return cmd
}

func rootRun(cmd *cobra.Command, args []string) error {
	// At most one supervisor per user. A concurrent invocation exits
	// immediately and silently.
	guard, acquired, err := lockfile.Acquire("ghfetch")
	if err != nil {
		return err
	}
	if !acquired {
		logger.Debug("another ghfetch instance is running, exiting")
		return nil
	}
	defer func() {
		if err := guard.Release(); err != nil {
			logger.Debug("failed to release instance lock", "error", err)
		}
	}()

	registry, err := globalCfg.Registry()
	if err != nil {
		return fmt.Errorf("invalid mirror configuration: %w", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	checker := update.NewChecker(update.Options{
		SourceURL:      globalCfg.Update.SourceURL,
		InstallPath:    globalCfg.Update.InstallPath,
		StateFile:      globalCfg.Update.StateFile,
		Cooldown:       globalCfg.UpdateCooldown(),
		LocalVersion:   version,
		ConnectTimeout: globalCfg.ConnectTimeout(),
	}, registry, nil, logger)

	if selfUpdate {
		logger.Debug("forced version check", "stamp", versionStamp)
		outcome, err := checker.CheckForced(ctx)
		if err != nil {
			return fmt.Errorf("self-update failed: %w", err)
		}
		if outcome == update.OutcomeUpdated {
			fmt.Println("ghfetch updated, re-run to use the new version")
		} else {
			fmt.Println("ghfetch is up to date")
		}
		return nil
	}

	// The passive check runs before any transfer process exists, so the
	// install path is never rewritten mid-flight.
	if checker.CheckPassive(ctx) == update.OutcomeUpdated {
		fmt.Println("ghfetch updated, re-run to use the new version")
		return nil
	}

	var history *store.Store
	if globalCfg.History.DBPath != "" {
		st, err := store.New(globalCfg.History.DBPath, logger)
		if err != nil {
			logger.Warn("history store unavailable, continuing without it", "error", err)
		} else {
			history = st
			defer history.Close()
		}
	}

	runner := supervisor.NewAria2Runner(
		globalCfg.Download.Aria2cBinary,
		globalCfg.Download.Connections,
		logger,
	)

	sup := supervisor.New(registry, runner, supervisor.Options{
		MaxRetries:    globalCfg.Download.MaxRetries,
		MinSpeedKB:    globalCfg.Download.MinSpeedKB,
		CheckInterval: globalCfg.CheckInterval(),
	}, history, logger)

	return sup.Run(ctx, supervisor.Request{
		OutputPath: args[0],
		URL:        args[1],
	})
}

// setupLogging initializes the slog logger based on flags
func setupLogging() {
	var level slog.Level
	switch strings.ToLower(logLevel) {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	if quiet {
		level = slog.LevelError
	}

	var handler slog.Handler
	if strings.ToLower(logFormat) == "json" {
		handler = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	} else {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	}

	logger = slog.New(handler)
	slog.SetDefault(logger)
}

// shouldSkipConfig checks if a command should skip config loading
func shouldSkipConfig(cmdName string) bool {
	skipConfigCmds := map[string]bool{
		"help":    true,
		"version": true,
	}
	return skipConfigCmds[cmdName]
}
