package scanner

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/divergence-scanner/internal/exchange"
	"github.com/divergence-scanner/internal/indicator/divergence"
	"github.com/divergence-scanner/pkg/config"
	"github.com/divergence-scanner/pkg/logger"
	"github.com/divergence-scanner/pkg/models"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// SymbolResolver supplies the instrument list for a scan
type SymbolResolver interface {
	Resolve(ctx context.Context) ([]string, error)
}

// Job is one (symbol, timeframe) cell of the scan matrix
type Job struct {
	Index     int
	Symbol    string
	Timeframe config.Timeframe
}

// Options tunes scan concurrency
type Options struct {
	Workers         int
	RequestInterval time.Duration
}

// Scanner evaluates every configured (symbol, timeframe) pair
type Scanner struct {
	fetcher    exchange.BarFetcher
	detector   *divergence.Detector
	symbols    SymbolResolver
	timeframes config.Timeframes
	workers    int
	limiter    *rate.Limiter
	logger     *logrus.Entry
}

// New creates a new scanner
func New(
	fetcher exchange.BarFetcher,
	detector *divergence.Detector,
	symbols SymbolResolver,
	timeframes config.Timeframes,
	opts Options,
	log *logrus.Logger,
) *Scanner {
	limit := rate.Inf
	if opts.RequestInterval > 0 {
		limit = rate.Every(opts.RequestInterval)
	}

	return &Scanner{
		fetcher:    fetcher,
		detector:   detector,
		symbols:    symbols,
		timeframes: timeframes,
		workers:    opts.Workers,
		limiter:    rate.NewLimiter(limit, 1),
		logger:     logger.WithComponent(log, "scanner"),
	}
}

// Jobs expands symbols into the ordered job list: symbol-major, timeframe-minor
func (s *Scanner) Jobs(symbols []string) []Job {
	jobs := make([]Job, 0, len(symbols)*len(s.timeframes))
	for _, sym := range symbols {
		for _, tf := range s.timeframes {
			jobs = append(jobs, Job{Index: len(jobs), Symbol: sym, Timeframe: tf})
		}
	}
	return jobs
}

// Scan runs the whole matrix. Per-pair failures are reported in the result's
// Error field. An error is returned only when the scan itself could not run
// to completion, in which case no partial results are returned.
func (s *Scanner) Scan(ctx context.Context) ([]models.DivergenceResult, error) {
	start := time.Now()

	symbols, err := s.symbols.Resolve(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve symbols: %w", err)
	}

	jobs := s.Jobs(symbols)
	results := make([]models.DivergenceResult, len(jobs))

	// A limiter refusal means the budget ran out; the scan stops as a whole
	scanCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		abortOnce sync.Once
		abortErr  error
	)
	pool := newWorkerPool(s.workers, func(id int, job Job) {
		result, err := s.evaluate(scanCtx, job)
		if err != nil {
			abortOnce.Do(func() {
				abortErr = err
				cancel()
			})
			return
		}
		results[job.Index] = result
	})
	pool.Start()
	for _, job := range jobs {
		if scanCtx.Err() != nil {
			break
		}
		pool.AddJob(job)
	}
	pool.Wait()

	if abortErr != nil {
		return nil, fmt.Errorf("scan aborted: %w", abortErr)
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("scan aborted: %w", err)
	}

	var signals, failures int
	for _, r := range results {
		if r.Error != "" {
			failures++
		} else if r.Divergence != models.DivergenceNone {
			signals++
		}
	}
	s.logger.WithFields(logrus.Fields{
		"pairs":    len(results),
		"signals":  signals,
		"failures": failures,
		"duration": time.Since(start).String(),
	}).Info("Scan complete")

	return results, nil
}

// evaluate returns the pair's result. A non-nil error aborts the whole scan.
func (s *Scanner) evaluate(ctx context.Context, job Job) (result models.DivergenceResult, abort error) {
	result = models.DivergenceResult{
		Symbol:    job.Symbol,
		Timeframe: job.Timeframe.Interval,
	}
	log := logger.WithJob(s.logger, job.Symbol, job.Timeframe.Interval)

	defer func() {
		if r := recover(); r != nil {
			log.WithField("panic", r).Error("Panic while evaluating pair")
			result.Divergence = models.DivergenceNone
			result.Error = fmt.Sprintf("internal error: %v", r)
		}
	}()

	if err := s.limiter.Wait(ctx); err != nil {
		return result, fmt.Errorf("rate limiter: %w", err)
	}

	bars, err := s.fetcher.FetchBars(ctx, job.Symbol, job.Timeframe.Interval, job.Timeframe.Bars)
	if err != nil {
		log.WithError(err).Warn("Fetch failed")
		result.Error = err.Error()
		return result, nil
	}

	div, err := s.detector.Detect(bars)
	if err != nil {
		log.WithError(err).Warn("Detection skipped")
		result.Error = err.Error()
		return result, nil
	}

	result.Divergence = div
	if div != models.DivergenceNone {
		log.WithField("divergence", div.String()).Debug("Divergence detected")
	}
	return result, nil
}
