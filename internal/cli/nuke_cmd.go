package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/discretionary-eng/discretionary-engine/internal/chase"
	"github.com/discretionary-eng/discretionary-engine/internal/model"
	"github.com/spf13/cobra"
)

func newNukeCmd() *cobra.Command {
	var durationStr string

	cmd := &cobra.Command{
		Use:   "nuke <ticker>",
		Short: "Close a position to zero: chase-limit with -d, market IOC reduce-only without",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ticker := args[0]
			coin, found := coinFromTicker(ticker)
			if !found {
				return fmt.Errorf("nuke: could not parse coin from ticker %q", ticker)
			}

			var duration *time.Duration
			if durationStr != "" {
				d, err := time.ParseDuration(durationStr)
				if err != nil {
					return err
				}
				duration = &d
			}

			return runOnce(func(ctx context.Context, e *Engine) error {
				// A tracked in-process position (e.g. this nuke ran inside
				// `start`'s listener loop) gets its clean two-phase close;
				// a direct invocation always also flattens whatever is
				// actually live on the exchange, which is the source of
				// truth for "is there a position at all" (§8 scenario 6).
				e.Nuke(coin)
				return e.nukeFromExchange(ctx, coin, duration)
			})
		},
	}

	cmd.Flags().StringVarP(&durationStr, "duration", "d", "", "chase-limit duration, e.g. 3s; omit for an immediate market IOC close")
	return cmd
}

// nukeFromExchange is the Engine half of nuke: read the live position size
// off the exchange and flatten it, via the Chase-Limit Executor when a
// duration is given, or a single reduce-only market order otherwise.
func (e *Engine) nukeFromExchange(ctx context.Context, coin string, duration *time.Duration) error {
	symbol := model.Symbol{Base: coin, Quote: "USDT", Market: model.BinanceFutures}

	amt, err := e.binance.PositionAmt(ctx, symbol)
	if err != nil {
		return fmt.Errorf("while querying live position for %s: %w", symbol, err)
	}
	if amt.IsZero() {
		fmt.Println("No position to close")
		return nil
	}

	side := model.Sell
	if amt.IsNegative() {
		side = model.Buy
	}
	qty := amt.Abs()

	meta, ok := e.binance.InstrumentMeta(symbol)
	if !ok {
		return fmt.Errorf("nuke: no instrument metadata cached for %s", symbol)
	}

	if duration == nil {
		ref, err := e.binance.PlaceMarketIOC(ctx, symbol, side, qty, fmt.Sprintf("nuke-%s-%d", coin, time.Now().UnixNano()))
		if err != nil {
			return fmt.Errorf("while placing market close: %w", err)
		}
		fmt.Printf("✅ Position closed (order %s)\n", ref)
		return nil
	}

	executor := chase.New(e.binance)
	filled, err := executor.Run(ctx, chase.Params{
		Symbol:    symbol,
		Side:      side,
		TargetQty: qty,
		QtyStep:   meta.QtyStep,
		PriceTick: meta.PriceTick,
		Duration:  duration,
	})
	if err != nil {
		return fmt.Errorf("while chasing close: %w", err)
	}
	fmt.Printf("✅ Position closed (filled %s)\n", filled)
	return nil
}

// coinFromTicker strips known venue suffixes (".p", "USDT", "-PERP") to
// recover the base asset the rest of the CLI works with.
func coinFromTicker(ticker string) (string, bool) {
	t := ticker
	for _, suffix := range []string{".p", "USDT", "-PERP"} {
		if len(t) > len(suffix) && t[len(t)-len(suffix):] == suffix {
			t = t[:len(t)-len(suffix)]
		}
	}
	if t == "" {
		return "", false
	}
	return t, true
}
