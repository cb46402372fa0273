// Package cli provides the command-line interface for the premium scanner.
package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"premium-scanner/internal/export"
	"premium-scanner/internal/models"
)

func newChainCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chain [SYMBOL]",
		Short: "Fetch an NSE option chain",
		Long: `Fetch the option chain for an NSE index symbol and filter it to a
single expiry, optionally to one side (PE or CE).

Without --expiry, lists the available expiry dates for the symbol.
No authentication is required; quotes come from the public NSE API.`,
		Example: `  pscan chain BANKNIFTY
  pscan chain BANKNIFTY --expiry 2024-12-24
  pscan chain NIFTY --expiry 2024-12-26 --side PE
  pscan chain NIFTY --expiry 2024-12-26 --out chain.csv`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
			defer cancel()

			symbol := app.Config.Scanner.DefaultSymbol
			if len(args) > 0 {
				symbol = args[0]
			}
			if symbol == "" {
				output.Error("No symbol given and no default_symbol configured")
				return fmt.Errorf("symbol required")
			}

			expiryStr, _ := cmd.Flags().GetString("expiry")
			if expiryStr == "" {
				return listExpiries(ctx, app, output, symbol)
			}
			expiry, err := models.ParseDate(expiryStr)
			if err != nil {
				output.Error("%v", err)
				return err
			}

			side, err := sideFlag(cmd)
			if err != nil {
				output.Error("%v", err)
				return err
			}

			rows, err := app.NSE.FetchChain(ctx, symbol, expiry, side)
			if err != nil {
				output.Error("Failed to fetch option chain: %v", err)
				return err
			}

			if len(rows) == 0 {
				output.Warning("No contracts found for %s expiring %s", symbol, expiry)
				output.Info("Run 'pscan chain %s' to list available expiries", symbol)
				return nil
			}

			outPath, _ := cmd.Flags().GetString("out")
			if outPath != "" {
				if err := export.WriteChainCSVFile(outPath, rows); err != nil {
					output.Error("Failed to write CSV: %v", err)
					return err
				}
				output.Success("✓ Wrote %d rows to %s", len(rows), outPath)
				return nil
			}

			if output.IsJSON() {
				return output.JSON(rows)
			}

			renderChainTable(output, rows)
			output.Println()
			output.Dim("%d contracts", len(rows))
			return nil
		},
	}

	cmd.Flags().String("expiry", "", "Expiry date (YYYY-MM-DD)")
	cmd.Flags().String("side", "", "Option side: PE or CE (default both)")
	cmd.Flags().String("out", "", "Write rows to a CSV file instead of stdout")

	return cmd
}

// sideFlag parses the optional --side flag. Empty means both sides.
func sideFlag(cmd *cobra.Command) (models.OptionSide, error) {
	raw, _ := cmd.Flags().GetString("side")
	if raw == "" {
		return "", nil
	}
	return models.ParseSide(raw)
}

func listExpiries(ctx context.Context, app *App, output *Output, symbol string) error {
	expiries, err := app.NSE.Expiries(ctx, symbol)
	if err != nil {
		output.Error("Failed to fetch expiries: %v", err)
		return err
	}

	if output.IsJSON() {
		return output.JSON(map[string]interface{}{
			"symbol":   symbol,
			"expiries": expiries,
		})
	}

	output.Bold("Expiries for %s", symbol)
	for _, e := range expiries {
		output.Printf("  %s\n", e)
	}
	output.Println()
	output.Dim("Use --expiry YYYY-MM-DD to fetch the chain")
	return nil
}

func renderChainTable(output *Output, rows []models.OptionQuoteRow) {
	table := NewTable(output, "STRIKE", "SIDE", "EXPIRY", "PRICE", "OI", "VOLUME", "IV", "LTP")
	for _, row := range rows {
		table.AddRow(
			FormatStrike(row.StrikePrice),
			string(row.Side),
			FormatDate(row.ExpiryDate),
			FormatPrice(row.Price),
			FormatOI(row.OpenInterest),
			FormatVolume(row.TotalTradedVolume),
			FormatIV(row.ImpliedVolatility),
			FormatPrice(row.LastPrice),
		)
	}
	table.Render()
}
