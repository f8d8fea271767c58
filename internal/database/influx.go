package database

import (
	"context"
	"fmt"

	"github.com/divergence-scanner/pkg/config"
	"github.com/divergence-scanner/pkg/models"
	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/sirupsen/logrus"
)

// InfluxClient handles InfluxDB time-series operations
type InfluxClient struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
	queryAPI api.QueryAPI
	logger   *logrus.Entry
	org      string
	bucket   string
}

// NewInfluxClient creates a new InfluxDB client
func NewInfluxClient(cfg *config.InfluxConfig, logger *logrus.Logger) *InfluxClient {
	client := influxdb2.NewClientWithOptions(
		cfg.URL,
		cfg.Token,
		influxdb2.DefaultOptions().
			SetHTTPRequestTimeout(uint(cfg.Timeout.Seconds())).
			SetLogLevel(0),
	)

	return &InfluxClient{
		client:   client,
		writeAPI: client.WriteAPIBlocking(cfg.Org, cfg.Bucket),
		queryAPI: client.QueryAPI(cfg.Org),
		logger:   logger.WithField("component", "influxdb"),
		org:      cfg.Org,
		bucket:   cfg.Bucket,
	}
}

// Close closes the InfluxDB client
func (ic *InfluxClient) Close() {
	ic.client.Close()
}

// Health checks InfluxDB health
func (ic *InfluxClient) Health(ctx context.Context) error {
	health, err := ic.client.Health(ctx)
	if err != nil {
		return fmt.Errorf("failed to check health: %w", err)
	}

	if health.Status != "pass" {
		msg := ""
		if health.Message != nil {
			msg = *health.Message
		}
		return fmt.Errorf("influxdb health check failed: %s", msg)
	}

	return nil
}

// Measurement returns the measurement holding bars of an interval.
// 1m bars live in "ohlcv", everything else in "ohlcv_<interval>".
func Measurement(interval string) string {
	if interval == "1m" || interval == "" {
		return "ohlcv"
	}
	return fmt.Sprintf("ohlcv_%s", interval)
}

// BarsQuery builds the Flux query returning the latest limit bars
func BarsQuery(bucket, symbol, interval string, limit int) string {
	return fmt.Sprintf(`
		from(bucket: "%s")
			|> range(start: 0)
			|> filter(fn: (r) => r._measurement == "%s")
			|> filter(fn: (r) => r.symbol == "%s")
			|> filter(fn: (r) => r._field == "open" or r._field == "high" or r._field == "low" or r._field == "close" or r._field == "volume")
			|> pivot(rowKey:["_time"], columnKey: ["_field"], valueColumn: "_value")
			|> sort(columns: ["_time"])
			|> tail(n: %d)
	`, bucket, Measurement(interval), symbol, limit)
}

// WriteBars writes OHLCV bars of one interval in a single batch
func (ic *InfluxClient) WriteBars(ctx context.Context, bars []*models.Bar, interval string) error {
	if len(bars) == 0 {
		return nil
	}

	measurement := Measurement(interval)
	points := make([]*write.Point, 0, len(bars))
	for _, bar := range bars {
		point := influxdb2.NewPoint(
			measurement,
			map[string]string{
				"exchange": "binance",
				"symbol":   bar.Symbol,
			},
			map[string]interface{}{
				"open":        bar.Open,
				"high":        bar.High,
				"low":         bar.Low,
				"close":       bar.Close,
				"volume":      bar.Volume,
				"trade_count": bar.TradeCount,
			},
			bar.Timestamp,
		)
		points = append(points, point)
	}

	if err := ic.writeAPI.WritePoint(ctx, points...); err != nil {
		return fmt.Errorf("failed to write bars batch (%d points): %w", len(points), err)
	}

	return nil
}

// FetchBars implements exchange.BarFetcher over bars mirrored into InfluxDB
func (ic *InfluxClient) FetchBars(ctx context.Context, symbol, interval string, limit int) ([]*models.Bar, error) {
	query := BarsQuery(ic.bucket, symbol, interval, limit)

	ic.logger.WithFields(logrus.Fields{
		"measurement": Measurement(interval),
		"symbol":      symbol,
		"limit":       limit,
	}).Debug("Executing InfluxDB query for bars")

	result, err := ic.queryAPI.Query(ctx, query)
	if err != nil {
		return nil, &models.FetchError{Symbol: symbol, Timeframe: interval, Err: fmt.Errorf("failed to query bars: %w", err)}
	}
	defer result.Close()

	bars := make([]*models.Bar, 0, limit)
	for result.Next() {
		record := result.Record()
		values := record.Values()

		bar := &models.Bar{
			Symbol:    symbol,
			Timestamp: record.Time(),
		}
		if v, ok := values["open"].(float64); ok {
			bar.Open = v
		}
		if v, ok := values["high"].(float64); ok {
			bar.High = v
		}
		if v, ok := values["low"].(float64); ok {
			bar.Low = v
		}
		if v, ok := values["close"].(float64); ok {
			bar.Close = v
		}
		if v, ok := values["volume"].(float64); ok {
			bar.Volume = v
		}

		bars = append(bars, bar)
	}

	if result.Err() != nil {
		return nil, &models.FetchError{Symbol: symbol, Timeframe: interval, Err: fmt.Errorf("query error: %w", result.Err())}
	}
	if len(bars) == 0 {
		return nil, &models.EmptyDataError{Symbol: symbol, Timeframe: interval}
	}

	return bars, nil
}
