package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"advisor-quorum/internal/app"
)

var (
	spendLimit       int
	spendPruneBefore string
)

var spendCmd = &cobra.Command{
	Use:   "spend",
	Short: "Display today's premium usage and recent premium calls",
	RunE: func(cmd *cobra.Command, args []string) error {
		if spendLimit <= 0 {
			return fmt.Errorf("--limit must be greater than zero")
		}

		opts := app.SpendOptions{
			Limit: spendLimit,
		}

		if spendPruneBefore != "" {
			before, err := time.Parse(time.RFC3339, spendPruneBefore)
			if err != nil {
				return fmt.Errorf("invalid --prune-before value: %w", err)
			}
			opts.PruneBefore = &before
		}

		return getApp().Spend(cmd.Context(), opts)
	},
}

func init() {
	spendCmd.Flags().IntVar(&spendLimit, "limit", 20, "Number of premium calls to display")
	spendCmd.Flags().StringVar(&spendPruneBefore, "prune-before", "", "Delete premium call records before this timestamp (RFC3339)")
}
