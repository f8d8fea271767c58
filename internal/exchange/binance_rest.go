package exchange

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	binance "github.com/binance/binance-connector-go"
	"github.com/binance/binance-connector-go/handlers"
	"github.com/divergence-scanner/pkg/config"
	"github.com/divergence-scanner/pkg/models"
	"github.com/sirupsen/logrus"
)

// MaxKlinesLimit is the largest page the klines endpoint serves
const MaxKlinesLimit = 1000

// BinanceRESTClient fetches klines through the official Binance connector
type BinanceRESTClient struct {
	client *binance.Client
	logger *logrus.Entry
}

// NewBinanceRESTClient creates a new Binance REST API client
func NewBinanceRESTClient(cfg *config.ExchangeConfig, logger *logrus.Logger) *BinanceRESTClient {
	client := binance.NewClient(cfg.Binance.APIKey, cfg.Binance.SecretKey, cfg.Binance.APIURL)
	client.HTTPClient = &http.Client{
		Timeout: cfg.Timeout,
	}

	return &BinanceRESTClient{
		client: client,
		logger: logger.WithField("component", "binance-rest"),
	}
}

// FetchBars implements BarFetcher using GET /api/v3/klines
func (b *BinanceRESTClient) FetchBars(ctx context.Context, symbol, interval string, limit int) ([]*models.Bar, error) {
	if limit <= 0 || limit > MaxKlinesLimit {
		limit = MaxKlinesLimit
	}

	b.logger.WithFields(logrus.Fields{
		"symbol":   symbol,
		"interval": interval,
		"limit":    limit,
	}).Debug("Fetching klines")

	klines, err := b.client.NewKlinesService().
		Symbol(symbol).
		Interval(interval).
		Limit(limit).
		Do(ctx)
	if err != nil {
		return nil, &models.FetchError{Symbol: symbol, Timeframe: interval, Err: err, Permanent: isRequestRejected(err)}
	}

	if len(klines) == 0 {
		return nil, &models.EmptyDataError{Symbol: symbol, Timeframe: interval}
	}

	bars := make([]*models.Bar, 0, len(klines))
	for _, k := range klines {
		bar, err := klineToBar(symbol, k)
		if err != nil {
			return nil, &models.FetchError{Symbol: symbol, Timeframe: interval, Err: err, Permanent: true}
		}
		bars = append(bars, bar)
	}

	return bars, nil
}

// isRequestRejected reports whether Binance refused the request itself.
// Codes -1100 and below cover bad parameters such as -1121 invalid symbol;
// the -10xx range (server errors, -1003 rate limit) stays retryable.
func isRequestRejected(err error) bool {
	var apiErr *handlers.APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.Code <= -1100
}

func klineToBar(symbol string, k *binance.KlinesResponse) (*models.Bar, error) {
	bar := &models.Bar{
		Symbol:     symbol,
		Timestamp:  time.UnixMilli(int64(k.OpenTime)).UTC(),
		TradeCount: int64(k.NumberOfTrades),
	}

	fields := []struct {
		name string
		raw  string
		dst  *float64
	}{
		{"open", k.Open, &bar.Open},
		{"high", k.High, &bar.High},
		{"low", k.Low, &bar.Low},
		{"close", k.Close, &bar.Close},
		{"volume", k.Volume, &bar.Volume},
	}
	for _, f := range fields {
		v, err := strconv.ParseFloat(f.raw, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid %s %q: %w", f.name, f.raw, err)
		}
		*f.dst = v
	}

	return bar, nil
}
