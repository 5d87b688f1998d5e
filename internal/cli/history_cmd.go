package cli

import (
	"fmt"

	"github.com/discretionary-eng/discretionary-engine/internal/ledger"
	"github.com/spf13/cobra"
)

func newHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history <position_id>",
		Short: "Print the recorded phase-transition/fill/close events for a position",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			l, err := ledger.Open(cfg.ArtifactsDir)
			if err != nil {
				return fmt.Errorf("while opening ledger: %w", err)
			}
			defer l.Close()

			events, err := l.History(args[0])
			if err != nil {
				return err
			}
			if len(events) == 0 {
				fmt.Println("No recorded events for this position")
				return nil
			}

			for _, e := range events {
				fmt.Printf("%s  %-17s %-7s phase=%-11s notional=%-14s %s\n",
					e.At.Format("2006-01-02T15:04:05Z07:00"), e.PositionID, e.Kind, e.Phase, e.Notional.String(), e.Detail)
			}
			return nil
		},
	}
	return cmd
}
