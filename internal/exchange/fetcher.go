package exchange

import (
	"context"
	"errors"
	"time"

	"github.com/divergence-scanner/pkg/models"
	"github.com/sirupsen/logrus"
)

// BarFetcher retrieves an ascending OHLCV series for one symbol and interval.
// Implementations reject empty responses with models.EmptyDataError and wrap
// every other failure in models.FetchError.
type BarFetcher interface {
	FetchBars(ctx context.Context, symbol, interval string, limit int) ([]*models.Bar, error)
}

// FetchFunc adapts a plain function to BarFetcher
type FetchFunc func(ctx context.Context, symbol, interval string, limit int) ([]*models.Bar, error)

// FetchBars calls f
func (f FetchFunc) FetchBars(ctx context.Context, symbol, interval string, limit int) ([]*models.Bar, error) {
	return f(ctx, symbol, interval, limit)
}

// RetryPolicy bounds the attempts made for one fetch
type RetryPolicy struct {
	MaxRetries int
	Delay      time.Duration
}

// WithRetry wraps a fetcher so transient failures are retried with a linearly
// growing delay. Empty responses, permanent fetch errors and context errors
// are not retried.
func WithRetry(next BarFetcher, policy RetryPolicy, logger *logrus.Logger) BarFetcher {
	return &retryFetcher{
		next:   next,
		policy: policy,
		logger: logger.WithField("component", "fetch-retry"),
	}
}

type retryFetcher struct {
	next   BarFetcher
	policy RetryPolicy
	logger *logrus.Entry
}

func (r *retryFetcher) FetchBars(ctx context.Context, symbol, interval string, limit int) ([]*models.Bar, error) {
	var lastErr error

	for attempt := 0; attempt <= r.policy.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := r.policy.Delay * time.Duration(attempt)
			r.logger.WithFields(logrus.Fields{
				"symbol":   symbol,
				"interval": interval,
				"attempt":  attempt,
				"delay":    delay,
			}).WithError(lastErr).Debug("Retrying fetch")

			select {
			case <-ctx.Done():
				return nil, &models.FetchError{Symbol: symbol, Timeframe: interval, Err: ctx.Err()}
			case <-time.After(delay):
			}
		}

		bars, err := r.next.FetchBars(ctx, symbol, interval, limit)
		if err == nil {
			return bars, nil
		}
		lastErr = err

		if !retryable(err) || ctx.Err() != nil {
			return nil, err
		}
	}

	return nil, lastErr
}

func retryable(err error) bool {
	var empty *models.EmptyDataError
	if errors.As(err, &empty) {
		return false
	}

	var fetchErr *models.FetchError
	if errors.As(err, &fetchErr) && fetchErr.Permanent {
		return false
	}
	return true
}
