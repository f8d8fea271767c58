package commands

import (
	"context"
	"fmt"
	"strings"

	"github.com/divergence-scanner/internal/database"
	"github.com/divergence-scanner/internal/exchange"
	"github.com/divergence-scanner/pkg/config"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	backfillSymbol   string
	backfillInterval string
	backfillLimit    int
)

var validIntervals = []string{"1m", "3m", "5m", "15m", "30m", "1h", "2h", "4h", "6h", "8h", "12h", "1d", "3d", "1w", "1M"}

var backfillCmd = &cobra.Command{
	Use:   "backfill",
	Short: "Mirror Binance klines into InfluxDB",
	Long: `Fetch the latest klines from Binance and write them to InfluxDB so the
scanner can run with DATA_SOURCE=influx.

By default every scanned symbol and every configured timeframe is copied,
using the bar count of each timeframe.

Examples:
  # Mirror everything the scanner needs
  divergence-scanner backfill

  # Mirror 1000 hourly bars of BTCUSDT
  divergence-scanner backfill --symbol BTCUSDT --interval 1h --limit 1000`,
	RunE: runBackfill,
}

func init() {
	backfillCmd.Flags().StringVar(&backfillSymbol, "symbol", "", "Symbol to backfill (default: all scanned symbols)")
	backfillCmd.Flags().StringVar(&backfillInterval, "interval", "", "Kline interval (default: all configured timeframes)")
	backfillCmd.Flags().IntVar(&backfillLimit, "limit", 0, "Bars per symbol, at most 1000 (default: timeframe bar count)")

	rootCmd.AddCommand(backfillCmd)
}

func runBackfill(cmd *cobra.Command, args []string) error {
	if backfillInterval != "" && !isValidInterval(backfillInterval) {
		return fmt.Errorf("invalid interval: %s. Valid intervals: %s", backfillInterval, strings.Join(validIntervals, ", "))
	}
	if backfillLimit < 0 || backfillLimit > exchange.MaxKlinesLimit {
		return fmt.Errorf("limit must be between 1 and %d", exchange.MaxKlinesLimit)
	}

	cfg, log, err := setup()
	if err != nil {
		return err
	}

	ctx := context.Background()

	var symbolList []string
	if backfillSymbol != "" {
		symbolList = config.NormalizeSymbols([]string{backfillSymbol})
	} else {
		mgr, closeFn, err := newSymbolsManager(cfg, log)
		if err != nil {
			return err
		}
		symbolList, err = mgr.Resolve(ctx)
		closeFn()
		if err != nil {
			return fmt.Errorf("failed to resolve symbols: %w", err)
		}
	}

	timeframes := backfillTimeframes(cfg.Scanner.Timeframes, backfillInterval, backfillLimit)

	influxClient := database.NewInfluxClient(&cfg.InfluxDB, log)
	defer influxClient.Close()

	if err := influxClient.Health(ctx); err != nil {
		return fmt.Errorf("failed to connect to InfluxDB: %w", err)
	}

	fetcher := exchange.WithRetry(
		exchange.NewBinanceRESTClient(&cfg.Exchange, log),
		exchange.RetryPolicy{MaxRetries: cfg.Exchange.MaxRetries, Delay: cfg.Exchange.RetryDelay},
		log,
	)

	log.WithFields(logrus.Fields{
		"symbols":    len(symbolList),
		"timeframes": timeframes.String(),
	}).Info("Starting backfill")

	var failed int
	for _, symbol := range symbolList {
		for _, tf := range timeframes {
			entry := log.WithFields(logrus.Fields{"symbol": symbol, "timeframe": tf.Interval})

			bars, err := fetcher.FetchBars(ctx, symbol, tf.Interval, tf.Bars)
			if err != nil {
				entry.WithError(err).Error("Failed to fetch bars")
				failed++
				continue
			}

			if err := influxClient.WriteBars(ctx, bars, tf.Interval); err != nil {
				entry.WithError(err).Error("Failed to write bars")
				failed++
				continue
			}

			entry.WithField("bars", len(bars)).Info("Backfilled")
		}
	}

	if failed > 0 {
		return fmt.Errorf("backfill finished with %d failures", failed)
	}

	log.Info("Backfill completed successfully")
	return nil
}

func isValidInterval(interval string) bool {
	for _, v := range validIntervals {
		if v == interval {
			return true
		}
	}
	return false
}

// backfillTimeframes narrows the configured timeframes to the flags given
func backfillTimeframes(configured config.Timeframes, interval string, limit int) config.Timeframes {
	var out config.Timeframes
	if interval == "" {
		out = append(out, configured...)
	} else {
		bars := config.DefaultBars
		for _, tf := range configured {
			if tf.Interval == interval {
				bars = tf.Bars
			}
		}
		out = config.Timeframes{{Interval: interval, Bars: bars}}
	}

	for i := range out {
		if limit > 0 {
			out[i].Bars = limit
		}
		if out[i].Bars > exchange.MaxKlinesLimit {
			out[i].Bars = exchange.MaxKlinesLimit
		}
	}
	return out
}
