package cli

import (
	"context"
	"time"

	"github.com/discretionary-eng/discretionary-engine/internal/model"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

func newRunCmd() *cobra.Command {
	var (
		sizeUSDT     float64
		coin         string
		timeframeStr string
		acquisition  []string
		followup     []string
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Enter a position: positive size buys, negative size sells",
		RunE: func(cmd *cobra.Command, args []string) error {
			var timeframe time.Duration
			if timeframeStr != "" {
				d, err := time.ParseDuration(timeframeStr)
				if err != nil {
					return err
				}
				timeframe = d
			}

			spec, err := model.NewPositionSpecFromSignedSize(coin, decimal.NewFromFloat(sizeUSDT), timeframe)
			if err != nil {
				return err
			}

			return runStandalone(func(ctx context.Context, e *Engine) error {
				return e.SubmitRun(ctx, spec, acquisition, followup)
			})
		},
	}

	cmd.Flags().Float64VarP(&sizeUSDT, "size", "s", 0, "signed USDT notional; positive buys, negative sells")
	cmd.Flags().StringVarP(&coin, "coin", "c", "", "base asset, e.g. BTC")
	cmd.Flags().StringVarP(&timeframeStr, "timeframe", "t", "", "optional timeframe, e.g. 1h")
	cmd.Flags().StringArrayVarP(&acquisition, "acquire", "a", nil, "acquisition-phase protocol spec, repeatable")
	cmd.Flags().StringArrayVarP(&followup, "follow", "f", nil, "followup-phase protocol spec, repeatable")
	_ = cmd.MarkFlagRequired("size")
	_ = cmd.MarkFlagRequired("coin")

	return cmd
}
