package main

import (
	"fmt"

	"hedgedesk/internal/core"
	"hedgedesk/internal/protocol"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

var symbolCmd = &cobra.Command{
	Use:     "symbol <call|put> <strike> <underlying> <expiry>",
	Short:   "Print the payoff-server symbol for a leg",
	Example: "  hedgedesk symbol call 97000 BTC 2025-02-22   # C-BTC-97000-220225",
	Args:    cobra.ExactArgs(4),
	RunE: func(cmd *cobra.Command, args []string) error {
		kind, err := core.ParseContractKind(args[0])
		if err != nil {
			return err
		}
		strike, err := decimal.NewFromString(args[1])
		if err != nil {
			return fmt.Errorf("invalid strike %q: %w", args[1], err)
		}
		sym, err := protocol.FormatSymbol(kind, strike, args[2], args[3])
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(cmd.OutOrStdout(), sym)
		return err
	},
}
