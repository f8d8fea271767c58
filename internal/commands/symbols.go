package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/divergence-scanner/internal/database"
	"github.com/divergence-scanner/internal/symbols"
	"github.com/divergence-scanner/pkg/config"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var symbolsCmd = &cobra.Command{
	Use:   "symbols",
	Short: "Inspect the scanned symbols",
	Long:  "Commands for viewing the symbols a scan covers",
}

var listSymbolsCmd = &cobra.Command{
	Use:   "list",
	Short: "List scanned symbols",
	Long:  "List the symbols resolved from SYMBOLS or the MySQL symbolsmap table",
	RunE: func(cmd *cobra.Command, args []string) error {
		list, err := resolveSymbols()
		if err != nil {
			return err
		}

		printColumns(os.Stdout, list, 5)
		return nil
	},
}

var searchSymbolsCmd = &cobra.Command{
	Use:   "search [pattern]",
	Short: "Search for symbols",
	Long:  "Search the scanned symbols for a substring",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		list, err := resolveSymbols()
		if err != nil {
			return err
		}

		pattern := args[0]
		results := filterSymbols(list, pattern)

		fmt.Printf("Found %d symbols matching '%s'\n", len(results), pattern)
		printColumns(os.Stdout, results, 5)
		return nil
	},
}

func init() {
	symbolsCmd.AddCommand(listSymbolsCmd)
	symbolsCmd.AddCommand(searchSymbolsCmd)
	rootCmd.AddCommand(symbolsCmd)
}

func resolveSymbols() ([]string, error) {
	cfg, log, err := setup()
	if err != nil {
		return nil, err
	}

	mgr, closeFn, err := newSymbolsManager(cfg, log)
	if err != nil {
		return nil, err
	}
	defer closeFn()

	return mgr.Resolve(context.Background())
}

func newSymbolsManager(cfg *config.Config, log *logrus.Logger) (*symbols.Manager, func(), error) {
	if cfg.Scanner.SymbolsSource != config.SourceMySQL {
		return symbols.NewStaticManager(cfg.Scanner.Symbols, log), func() {}, nil
	}

	mysqlClient, err := database.NewMySQLClient(&cfg.MySQL, log)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to MySQL: %w", err)
	}

	return symbols.NewStoreManager(mysqlClient, cfg.MySQL.Exchange, log), func() { mysqlClient.Close() }, nil
}

func filterSymbols(list []string, pattern string) []string {
	pattern = strings.ToUpper(strings.TrimSpace(pattern))

	var out []string
	for _, s := range list {
		if strings.Contains(s, pattern) {
			out = append(out, s)
		}
	}
	return out
}

func printColumns(w io.Writer, list []string, cols int) {
	fmt.Fprintf(w, "Symbols: %d\n", len(list))
	fmt.Fprintln(w, strings.Repeat("-", 75))

	for i := 0; i < len(list); i += cols {
		for j := 0; j < cols && i+j < len(list); j++ {
			fmt.Fprintf(w, "%-15s", list[i+j])
		}
		fmt.Fprintln(w)
	}
}
