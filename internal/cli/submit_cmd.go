package cli

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/discretionary-eng/discretionary-engine/internal/bus"
	"github.com/spf13/cobra"
)

func newSubmitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:                "submit -- <run|adjust-pos|nuke> [flags...]",
		Short:              "Publish a reconstructed command to the Redis command bus for the running listener",
		DisableFlagParsing: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return fmt.Errorf("submit: no command given")
			}
			argv := strings.Join(args, " ")

			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			ctx := context.Background()
			hostname, _ := os.Hostname()
			b, err := bus.New(ctx, cfg.Redis.Addr, "submit-"+hostname)
			if err != nil {
				return fmt.Errorf("while connecting to command bus: %w", err)
			}
			defer b.Close()

			id, err := b.Submit(ctx, map[string]interface{}{"cmd": argv})
			if err != nil {
				return fmt.Errorf("while submitting command: %w", err)
			}

			fmt.Printf("submitted %s as %s\n", argv, id)
			return nil
		},
	}
	return cmd
}
