package cli

import (
	"context"
	"time"

	"github.com/discretionary-eng/discretionary-engine/internal/model"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

func newAdjustPosCmd() *cobra.Command {
	var (
		sizeUSDT     float64
		coin         string
		timeframeStr string
	)

	cmd := &cobra.Command{
		Use:   "adjust-pos",
		Short: "Apply a delta change to an existing or new position",
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
				return e.SubmitRun(ctx, spec, []string{"dm"}, nil)
			})
		},
	}

	cmd.Flags().Float64VarP(&sizeUSDT, "size", "s", 0, "signed USDT delta; positive buys, negative sells")
	cmd.Flags().StringVarP(&coin, "coin", "c", "", "base asset, e.g. BTC")
	cmd.Flags().StringVarP(&timeframeStr, "timeframe", "t", "", "optional timeframe, e.g. 1h")
	_ = cmd.MarkFlagRequired("size")
	_ = cmd.MarkFlagRequired("coin")

	return cmd
}
