package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"hedgedesk/internal/core"
	"hedgedesk/internal/protocol"
	"hedgedesk/pkg/logging"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

var contractsCmd = &cobra.Command{
	Use:   "contracts",
	Short: "List the live option contracts for a coin and expiry",
	Example: `  hedgedesk contracts --coin BTCUSD --expiry 2025-02-22
  hedgedesk contracts --exchange "Delta Exchange" --coin ETHUSD --expiry 2025-01-05`,
	RunE: func(cmd *cobra.Command, args []string) error {
		exchangeName, _ := cmd.Flags().GetString("exchange")
		coin, _ := cmd.Flags().GetString("coin")
		expiry, _ := cmd.Flags().GetString("expiry")
		timeout, _ := cmd.Flags().GetDuration("timeout")

		cfg, logger, err := loadCLIConfig()
		if err != nil {
			return err
		}
		if exchangeName == "" {
			exchangeName = cfg.App.DefaultExchange
		}

		lookup, err := buildRegistry(cfg, logger).Lookup(exchangeName)
		if err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
		defer cancel()
		symbols, err := lookup.LookupContracts(ctx, coin, expiry)
		if err != nil {
			return err
		}

		return renderContracts(cmd.OutOrStdout(), symbols)
	},
}

func init() {
	contractsCmd.Flags().String("exchange", "", "Exchange name (defaults to app.default_exchange)")
	contractsCmd.Flags().String("coin", "BTCUSD", "Coin, e.g. BTCUSD")
	contractsCmd.Flags().String("expiry", "", "Expiry date (YYYY-MM-DD)")
	contractsCmd.Flags().Duration("timeout", 15*time.Second, "Lookup timeout")
	_ = contractsCmd.MarkFlagRequired("expiry")
}

// renderContracts prints one row per symbol; unparseable symbols are listed as-is
func renderContracts(w io.Writer, symbols []string) error {
	if len(symbols) == 0 {
		_, err := fmt.Fprintln(w, "No live contracts found.")
		return err
	}

	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Symbol", "Kind", "Underlying", "Strike", "Expiry"})
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetAutoFormatHeaders(false)

	for _, sym := range symbols {
		parsed, err := protocol.ParseSymbol(sym)
		if err != nil {
			table.Append([]string{sym, "?", "", "", ""})
			continue
		}
		kind, _ := parsed.Kind()
		table.Append([]string{sym, string(kind), parsed.Underlying, parsed.Strike.String(), parsed.ExpiryCode})
	}
	table.Render()
	_, err := fmt.Fprintf(w, "%d contracts\n", len(symbols))
	return err
}

func newCLILogger() (core.ILogger, error) {
	return logging.NewZapLoggerWithWriter("WARN", os.Stderr)
}
