package commands

import (
	"fmt"
	"os"

	"github.com/divergence-scanner/pkg/config"
	"github.com/divergence-scanner/pkg/logger"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	verbose bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "divergence-scanner",
	Short: "RSI divergence scanner for crypto markets",
	Long: `Scans a list of symbols across several timeframes for RSI divergences
and serves the latest results over HTTP.

Each symbol/timeframe pair is classified as Regular Bullish, Hidden Bullish,
Regular Bearish, Hidden Bearish or none, using RSI pivots compared against
price pivots. Results are cached for CACHE_TTL seconds.`,
	Version:      "1.0.0",
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}

// setup loads .env, the configuration and a logger shared by all commands
func setup() (*config.Config, *logrus.Logger, error) {
	if _, err := config.LoadDotEnv(); err != nil {
		// .env is optional
		fmt.Fprintf(os.Stderr, "Note: .env file not loaded: %v\n", err)
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	if verbose {
		cfg.Logging.Level = "debug"
	}

	log, err := logger.New(&cfg.Logging)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	return cfg, log, nil
}
