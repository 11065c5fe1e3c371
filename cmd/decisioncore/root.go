package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/kestrelrules/decisioncore/audit"
	"github.com/kestrelrules/decisioncore/internal/config"
	"github.com/kestrelrules/decisioncore/internal/telemetry"
)

// Build-time variables injected via -ldflags.
var (
	buildVersion = "dev"
	buildCommit  = "unknown"
)

// cliContextKey scopes the *appContext stashed on cobra's command
// context so subcommands can retrieve it without global state.
type cliContextKey struct{}

// appContext carries every collaborator a subcommand needs, built once
// in the root command's PersistentPreRunE.
type appContext struct {
	cfg     *config.Config
	logger  zerolog.Logger
	metrics telemetry.Metrics
}

// rootOptions holds the root command's persistent flags.
type rootOptions struct {
	configPath string
	logLevel   string
	production bool
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}
	var appCtx *appContext

	cmd := &cobra.Command{
		Use:           "decisioncore",
		Short:         "Decision-evaluation core: rules, FEEL expressions, scoring, versioning, A/B tests",
		Version:       fmt.Sprintf("%s (commit %s)", buildVersion, buildCommit),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(opts.configPath)
			if err != nil {
				return err
			}
			if opts.logLevel != "" {
				cfg.Logging.Level = opts.logLevel
			}
			if opts.production {
				cfg.Environment = "production"
			}
			level, err := zerolog.ParseLevel(cfg.Logging.Level)
			if err != nil {
				return fmt.Errorf("invalid --log-level %q: %w", cfg.Logging.Level, err)
			}
			var logger zerolog.Logger
			if cfg.Logging.Pretty {
				logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).With().Timestamp().Logger()
			} else {
				logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
			}
			logger = logger.Level(level)

			audit.ResetDefaultCache(cfg.HashCacheCapacity)

			var metrics telemetry.Metrics = telemetry.Noop{}
			if cfg.Metrics.Enabled {
				metrics = telemetry.NewPrometheus(nil)
			}

			appCtx = &appContext{cfg: cfg, logger: logger, metrics: metrics}
			cmd.SetContext(context.WithValue(cmd.Context(), cliContextKey{}, appCtx))
			return nil
		},
	}
	cmd.SetContext(context.Background())

	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "path to a YAML config file (optional; DECISIONCORE_* env vars always apply)")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "override logging.level (trace|debug|info|warn|error)")
	cmd.PersistentFlags().BoolVar(&opts.production, "production", false, "disable evaluation validation, as if environment=production")

	cmd.AddCommand(newDecideCommand())
	cmd.AddCommand(newVersionCommand())
	cmd.AddCommand(newABTestCommand())
	cmd.AddCommand(newServeCommand())
	return cmd
}

// getAppContext retrieves the appContext stashed by PersistentPreRunE.
func getAppContext(cmd *cobra.Command) *appContext {
	var ac *appContext
	if ctx := cmd.Context(); ctx != nil {
		ac, _ = ctx.Value(cliContextKey{}).(*appContext)
	}
	if ac == nil {
		// Subcommand invoked without going through root's PersistentPreRunE
		// (e.g. unit tests exercising a subcommand directly): fall back to
		// a conservative default rather than panicking.
		cfg := &config.Config{}
		config.ApplyDefaults(cfg)
		ac = &appContext{cfg: cfg, logger: zerolog.Nop(), metrics: telemetry.Noop{}}
	}
	return ac
}

func Execute() int {
	cmd := newRootCommand()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		return 1
	}
	return 0
}
