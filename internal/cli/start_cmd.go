package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/discretionary-eng/discretionary-engine/internal/bus"
	"github.com/discretionary-eng/discretionary-engine/internal/model"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

func newStartCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Run the listener loop: boot the engine once, then dispatch commands from the Redis bus",
		RunE: func(cmd *cobra.Command, args []string) error {
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

			hostname, _ := os.Hostname()
			b, err := bus.New(ctx, cfg.Redis.Addr, "start-"+hostname)
			if err != nil {
				return fmt.Errorf("while connecting to command bus: %w", err)
			}
			defer b.Close()

			quit := make(chan os.Signal, 1)
			signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

			log.Info().Msg("cli: listener loop started")
			for {
				select {
				case <-quit:
					log.Info().Msg("cli: shutting down")
					return nil
				case <-ctx.Done():
					return ctx.Err()
				default:
				}

				commands, err := b.Read(ctx)
				if err != nil {
					log.Error().Err(err).Msg("cli: command bus read failed")
					continue
				}
				for _, c := range commands {
					dispatchCommand(ctx, e, c.Fields["cmd"])
					if err := b.Ack(ctx, c.ID); err != nil {
						log.Warn().Err(err).Str("id", c.ID).Msg("cli: ack failed")
					}
				}
			}
		},
	}
	return cmd
}

// dispatchCommand runs a reconstructed argv string against the already-
// booted Engine, using the same flag shapes `run`/`adjust-pos`/`nuke`
// expose directly — so `submit`'s wire format and a terminal invocation
// mean the same thing. Errors are logged, never propagated: per spec.md
// §7, "the offending subcommand fails, the listener continues."
func dispatchCommand(ctx context.Context, e *Engine, argv string) {
	if argv == "" {
		return
	}
	fields := strings.Fields(argv)

	dispatch := newDispatchRootCmd(ctx, e)
	dispatch.SetArgs(fields)
	if err := dispatch.Execute(); err != nil {
		log.Error().Err(err).Str("cmd", argv).Msg("cli: dispatched command failed")
	}
}

// newDispatchRootCmd mirrors NewRootCmd's run/adjust-pos/nuke subcommands,
// but bound to an already-running Engine instead of booting a new one.
func newDispatchRootCmd(ctx context.Context, e *Engine) *cobra.Command {
	root := &cobra.Command{Use: "discretionary-engine"}

	var (
		sizeUSDT    float64
		coin        string
		acquisition []string
		followup    []string
	)
	runCmd := &cobra.Command{
		Use: "run",
		RunE: func(cmd *cobra.Command, args []string) error {
			spec, err := model.NewPositionSpecFromSignedSize(coin, decimal.NewFromFloat(sizeUSDT), 0)
			if err != nil {
				return err
			}
			return e.SubmitRun(ctx, spec, acquisition, followup)
		},
	}
	runCmd.Flags().Float64VarP(&sizeUSDT, "size", "s", 0, "")
	runCmd.Flags().StringVarP(&coin, "coin", "c", "", "")
	runCmd.Flags().StringP("timeframe", "t", "", "")
	runCmd.Flags().StringArrayVarP(&acquisition, "acquire", "a", nil, "")
	runCmd.Flags().StringArrayVarP(&followup, "follow", "f", nil, "")
	root.AddCommand(runCmd)

	var adjustSize float64
	var adjustCoin string
	adjustCmd := &cobra.Command{
		Use: "adjust-pos",
		RunE: func(cmd *cobra.Command, args []string) error {
			spec, err := model.NewPositionSpecFromSignedSize(adjustCoin, decimal.NewFromFloat(adjustSize), 0)
			if err != nil {
				return err
			}
			return e.SubmitRun(ctx, spec, []string{"dm"}, nil)
		},
	}
	adjustCmd.Flags().Float64VarP(&adjustSize, "size", "s", 0, "")
	adjustCmd.Flags().StringVarP(&adjustCoin, "coin", "c", "", "")
	adjustCmd.Flags().StringP("timeframe", "t", "", "")
	root.AddCommand(adjustCmd)

	var durationStr string
	nukeCmd := &cobra.Command{
		Use:  "nuke",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			coin, found := coinFromTicker(args[0])
			if !found {
				return fmt.Errorf("nuke: could not parse coin from ticker %q", args[0])
			}
			var duration *time.Duration
			if durationStr != "" {
				d, err := time.ParseDuration(durationStr)
				if err != nil {
					return err
				}
				duration = &d
			}
			e.Nuke(coin)
			return e.nukeFromExchange(ctx, coin, duration)
		},
	}
	nukeCmd.Flags().StringVarP(&durationStr, "duration", "d", "", "")
	root.AddCommand(nukeCmd)

	return root
}
