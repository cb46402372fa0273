// Package cli provides the command-line interface for the premium scanner.
package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"premium-scanner/internal/errors"
	"premium-scanner/internal/export"
	"premium-scanner/internal/models"
	"premium-scanner/pkg/utils"
)

func newScanCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scan [SYMBOL]",
		Short: "Scan option premiums with margin requirements",
		Long: `Fetch the option chain for an expiry and enrich every contract with
its margin requirement and premium earned.

Margin is quoted for one lot: a buy for puts, a sell for calls, product
type delivery. Premium earned is the side-selected price times the lot
size. Margin quotes come from the Upstox API and require a valid login.

By default the scan aborts on the first row that fails to enrich. With
--partial, failed rows are dropped and reported while the rest of the
scan completes.`,
		Example: `  pscan scan BANKNIFTY --expiry 2024-12-24
  pscan scan NIFTY --expiry 2024-12-26 --side PE
  pscan scan NIFTY --expiry 2024-12-26 --workers 16 --partial
  pscan scan BANKNIFTY --expiry 2024-12-24 --out scan.csv`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
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
				output.Error("--expiry is required")
				output.Info("Run 'pscan chain %s' to list available expiries", symbol)
				return fmt.Errorf("expiry required")
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

			// Fail before the chain fetch if there is no usable token.
			if _, err := app.Auth.Token(); err != nil {
				if errors.Is(err, errors.ErrSessionExpired) {
					output.Error("Session expired. Run 'pscan login' to re-authenticate")
				} else {
					output.Error("Not authenticated. Run 'pscan login' first")
				}
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

			workers, _ := cmd.Flags().GetInt("workers")
			partial, _ := cmd.Flags().GetBool("partial")

			result, err := app.enricher(workers, partial).Enrich(ctx, rows)
			if err != nil {
				output.Error("Scan failed: %v", err)
				return err
			}

			for _, failure := range result.Failures {
				output.Warning("Skipped %s: %v", failure.Key, failure.Err)
			}

			if len(result.Rows) == 0 {
				output.Warning("All %d contracts failed to enrich", len(rows))
				return fmt.Errorf("no rows enriched")
			}

			outPath, _ := cmd.Flags().GetString("out")
			if outPath != "" {
				if err := export.WriteCSVFile(outPath, result.Rows); err != nil {
					output.Error("Failed to write CSV: %v", err)
					return err
				}
				output.Success("✓ Wrote %d rows to %s", len(result.Rows), outPath)
				return nil
			}

			if output.IsJSON() {
				return output.JSON(result.Rows)
			}

			renderScanTable(output, result.Rows)
			output.Println()
			output.Dim("%d contracts, %d skipped", len(result.Rows), len(result.Failures))
			return nil
		},
	}

	cmd.Flags().String("expiry", "", "Expiry date (YYYY-MM-DD)")
	cmd.Flags().String("side", "", "Option side: PE or CE (default both)")
	cmd.Flags().Int("workers", 0, "Concurrent margin calls (default from config)")
	cmd.Flags().Bool("partial", false, "Drop and report failed rows instead of aborting")
	cmd.Flags().String("out", "", "Write rows to a CSV file instead of stdout")

	return cmd
}

func renderScanTable(output *Output, rows []models.EnrichedRow) {
	table := NewTable(output, "STRIKE", "SIDE", "EXPIRY", "PRICE", "MARGIN", "PREMIUM", "YIELD")
	for _, row := range rows {
		table.AddRow(
			FormatStrike(row.StrikePrice),
			string(row.Side),
			FormatDate(row.ExpiryDate),
			FormatPrice(row.Price),
			utils.FormatIndianCurrency(row.MarginRequired),
			utils.FormatIndianCurrency(row.PremiumEarned),
			formatYield(row),
		)
	}
	table.Render()
}

// formatYield shows premium earned as a percentage of margin blocked.
func formatYield(row models.EnrichedRow) string {
	if row.MarginRequired <= 0 {
		return "-"
	}
	return fmt.Sprintf("%.2f%%", row.PremiumEarned/row.MarginRequired*100)
}
