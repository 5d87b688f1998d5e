package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/discretionary-eng/discretionary-engine/internal/config"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	flagTestnet    bool
	flagNoConfirm  bool
	flagArtifacts  string
	flagConfigFile string
)

// NewRootCmd builds the full command tree: run, adjust-pos, nuke, submit,
// start, history — spec.md §6's CLI surface.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "discretionary-engine",
		Short:         "Discretionary trade-execution engine for crypto perpetual futures",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
			zerolog.SetGlobalLevel(zerolog.InfoLevel)
		},
	}

	root.PersistentFlags().BoolVar(&flagTestnet, "testnet", false, "use the venue's testnet endpoints")
	root.PersistentFlags().BoolVar(&flagNoConfirm, "noconfirm", false, "skip interactive confirmation prompts")
	root.PersistentFlags().StringVar(&flagArtifacts, "artifacts", "", "artifacts directory (default ~/.discretionary_engine)")
	root.PersistentFlags().StringVar(&flagConfigFile, "config", "", "path to a YAML config file")

	root.AddCommand(newRunCmd())
	root.AddCommand(newAdjustPosCmd())
	root.AddCommand(newNukeCmd())
	root.AddCommand(newSubmitCmd())
	root.AddCommand(newStartCmd())
	root.AddCommand(newHistoryCmd())

	return root
}

// loadConfig builds a *config.Config from the global flags, applying the
// --testnet/--artifacts overrides on top of whatever the file/env layer
// produced.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(flagConfigFile)
	if err != nil {
		return nil, fmt.Errorf("while loading config: %w", err)
	}
	if flagTestnet {
		cfg.Testnet = true
	}
	if flagArtifacts != "" {
		cfg.ArtifactsDir = flagArtifacts
	}
	return cfg, nil
}

// runStandalone boots a short-lived Engine for a single direct CLI action
// (run/adjust-pos/nuke invoked outside of `start`/`submit`), runs fn against
// it, then shuts it down. Long-running positions continue after fn returns;
// only the bootstrap goroutines this process started are this process's
// responsibility, matching the "one action, one process" model of a direct
// invocation.
func runStandalone(fn func(ctx context.Context, e *Engine) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("while validating config: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	e, err := Boot(ctx, cfg)
	if err != nil {
		return fmt.Errorf("while booting engine: %w", err)
	}

	if err := fn(ctx, e); err != nil {
		return err
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("cli: shutting down")
	e.Shutdown()
	return nil
}

// runOnce boots a short-lived Engine, runs fn to completion, then tears the
// Engine down immediately — used by one-shot actions like `nuke` that must
// not block on a shutdown signal.
func runOnce(fn func(ctx context.Context, e *Engine) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("while validating config: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	e, err := Boot(ctx, cfg)
	if err != nil {
		return fmt.Errorf("while booting engine: %w", err)
	}
	defer e.Shutdown()

	return fn(ctx, e)
}
