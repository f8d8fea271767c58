package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/divergence-scanner/internal/app"
	"github.com/divergence-scanner/pkg/models"
	"github.com/spf13/cobra"
)

var (
	scanJSON bool
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Run one scan and print the results",
	Long: `Scan every configured symbol and timeframe once and print the results.

Examples:
  divergence-scanner scan           # Print a table
  divergence-scanner scan --json    # Print the same JSON as GET /divergences`,
	RunE: runScan,
}

func init() {
	scanCmd.Flags().BoolVar(&scanJSON, "json", false, "Print results as JSON")
	rootCmd.AddCommand(scanCmd)
}

func runScan(cmd *cobra.Command, args []string) error {
	cfg, log, err := setup()
	if err != nil {
		return err
	}

	// Keep stdout clean for the results
	log.SetOutput(os.Stderr)

	application := app.New(cfg, log)
	if err := application.Initialize(); err != nil {
		return fmt.Errorf("failed to initialize: %w", err)
	}
	defer application.Stop()

	ctx, cancel := context.WithTimeout(application.GetContext(), cfg.Scanner.Timeout)
	defer cancel()

	results, err := application.GetScanner().Scan(ctx)
	if err != nil {
		return fmt.Errorf("scan failed: %w", err)
	}

	if scanJSON {
		return writeJSON(os.Stdout, results)
	}
	writeTable(os.Stdout, results)
	return nil
}

func writeJSON(w io.Writer, results []models.DivergenceResult) error {
	if results == nil {
		results = []models.DivergenceResult{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(results)
}

func writeTable(w io.Writer, results []models.DivergenceResult) {
	fmt.Fprintf(w, "%-15s %-10s %-18s %s\n", "Symbol", "Timeframe", "Divergence", "Error")
	fmt.Fprintln(w, strings.Repeat("-", 75))

	found := 0
	for _, r := range results {
		div := "-"
		if r.Divergence != models.DivergenceNone {
			div = r.Divergence.String()
			found++
		}
		fmt.Fprintf(w, "%-15s %-10s %-18s %s\n", r.Symbol, r.Timeframe, div, r.Error)
	}

	fmt.Fprintln(w, strings.Repeat("-", 75))
	fmt.Fprintf(w, "%d pairs scanned, %d divergences\n", len(results), found)
}
