package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/divergence-scanner/internal/api"
	"github.com/divergence-scanner/internal/cache"
	"github.com/divergence-scanner/internal/database"
	"github.com/divergence-scanner/internal/exchange"
	"github.com/divergence-scanner/internal/indicator/divergence"
	"github.com/divergence-scanner/internal/scanner"
	"github.com/divergence-scanner/internal/scheduler"
	"github.com/divergence-scanner/internal/symbols"
	"github.com/divergence-scanner/pkg/config"
	"github.com/sirupsen/logrus"
)

// App represents the main application
type App struct {
	cfg    *config.Config
	logger *logrus.Logger
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// Connections
	influxDB   *database.InfluxClient
	mysqlDB    *database.MySQLClient
	redisStore *cache.RedisStore

	// Core components
	fetcher     exchange.BarFetcher
	symbolsMgr  *symbols.Manager
	detector    *divergence.Detector
	scanner     *scanner.Scanner
	resultCache *cache.ResultCache
	scheduler   *scheduler.Scheduler
	apiServer   *api.Server
}

// New creates a new application instance
func New(cfg *config.Config, logger *logrus.Logger) *App {
	ctx, cancel := context.WithCancel(context.Background())

	return &App{
		cfg:    cfg,
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Initialize initializes all application components
func (a *App) Initialize() error {
	if err := a.initializeDatabase(); err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}

	if err := a.initializeSymbols(); err != nil {
		return fmt.Errorf("failed to initialize symbols: %w", err)
	}

	a.initializeFetcher()
	a.initializeScanner()

	if err := a.initializeCache(); err != nil {
		return fmt.Errorf("failed to initialize cache: %w", err)
	}

	if err := a.initializeScheduler(); err != nil {
		return fmt.Errorf("failed to initialize scheduler: %w", err)
	}

	a.apiServer = api.NewServer(a.cfg, a.logger, a.resultCache)

	a.logger.WithFields(logrus.Fields{
		"symbols_source": a.cfg.Scanner.SymbolsSource,
		"data_source":    a.cfg.Scanner.DataSource,
		"timeframes":     a.cfg.Scanner.Timeframes.String(),
		"cache_ttl":      a.cfg.Cache.TTL.String(),
	}).Info("Application initialized")

	return nil
}

// Start starts the application
func (a *App) Start() error {
	if a.scheduler != nil {
		a.scheduler.Start()

		// Warm the cache before the first request arrives
		a.wg.Add(1)
		go func() {
			defer a.wg.Done()
			a.scheduler.RunNow()
		}()
	}

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		if err := a.apiServer.Start(); err != nil {
			a.logger.WithError(err).Error("API server error")
		}
	}()

	return nil
}

// Stop gracefully stops the application
func (a *App) Stop() error {
	a.logger.Info("Stopping application...")

	a.cancel()

	a.stopServicesWithTimeout()

	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		a.logger.Info("All goroutines stopped")
	case <-time.After(3 * time.Second):
		a.logger.Warn("Timeout waiting for goroutines to finish")
	}

	if err := a.closeConnections(); err != nil {
		a.logger.WithError(err).Error("Error closing connections")
	}

	a.logger.Info("Application stopped successfully")
	return nil
}

// stopServicesWithTimeout stops each service with a timeout
func (a *App) stopServicesWithTimeout() {
	if a.apiServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		if err := a.apiServer.Stop(ctx); err != nil {
			a.logger.WithError(err).Error("Error stopping API server")
		}
		cancel()
	}

	if a.scheduler != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		a.scheduler.Stop(ctx)
		cancel()
	}
}

// GetContext returns the application context
func (a *App) GetContext() context.Context {
	return a.ctx
}

// GetConfig returns the application configuration
func (a *App) GetConfig() *config.Config {
	return a.cfg
}

// GetSymbolsManager returns the symbols manager
func (a *App) GetSymbolsManager() *symbols.Manager {
	return a.symbolsMgr
}

// GetScanner returns the scan orchestrator
func (a *App) GetScanner() *scanner.Scanner {
	return a.scanner
}

// GetResultCache returns the result cache
func (a *App) GetResultCache() *cache.ResultCache {
	return a.resultCache
}

// Private initialization methods

func (a *App) initializeDatabase() error {
	sc := a.cfg.Scanner

	if sc.SymbolsSource == config.SourceMySQL {
		mysqlClient, err := database.NewMySQLClient(&a.cfg.MySQL, a.logger)
		if err != nil {
			return fmt.Errorf("failed to connect to MySQL: %w", err)
		}
		a.mysqlDB = mysqlClient
	}

	if sc.DataSource == config.SourceInflux {
		a.influxDB = database.NewInfluxClient(&a.cfg.InfluxDB, a.logger)

		if err := a.influxDB.Health(a.ctx); err != nil {
			return fmt.Errorf("failed to connect to InfluxDB: %w", err)
		}
	}

	return nil
}

func (a *App) initializeSymbols() error {
	if a.mysqlDB != nil {
		a.symbolsMgr = symbols.NewStoreManager(a.mysqlDB, a.cfg.MySQL.Exchange, a.logger)
	} else {
		a.symbolsMgr = symbols.NewStaticManager(a.cfg.Scanner.Symbols, a.logger)
	}

	if err := a.symbolsMgr.Load(a.ctx); err != nil {
		return fmt.Errorf("failed to load symbols: %w", err)
	}

	a.logger.WithField("total", a.symbolsMgr.Count()).Info("Symbols manager initialized")
	return nil
}

func (a *App) initializeFetcher() {
	if a.influxDB != nil {
		a.fetcher = a.influxDB
		return
	}

	a.fetcher = exchange.WithRetry(
		exchange.NewBinanceRESTClient(&a.cfg.Exchange, a.logger),
		exchange.RetryPolicy{
			MaxRetries: a.cfg.Exchange.MaxRetries,
			Delay:      a.cfg.Exchange.RetryDelay,
		},
		a.logger,
	)
}

func (a *App) initializeScanner() {
	sc := a.cfg.Scanner

	a.detector = divergence.NewDetector(divergence.Params{
		RSIPeriod:  sc.RSIPeriod,
		Lookback:   sc.Lookback,
		Lookahead:  sc.Lookahead,
		RangeLower: sc.RangeLower,
		RangeUpper: sc.RangeUpper,
	}, a.logger)

	minBars := a.cfg.MinBars()
	for _, tf := range sc.Timeframes {
		if tf.Bars < minBars {
			a.logger.WithFields(logrus.Fields{
				"timeframe": tf.Interval,
				"bars":      tf.Bars,
				"min_bars":  minBars,
			}).Warn("Timeframe requests fewer bars than the detector needs")
		}
	}

	a.scanner = scanner.New(a.fetcher, a.detector, a.symbolsMgr, sc.Timeframes, scanner.Options{
		Workers:         sc.Workers,
		RequestInterval: sc.RequestInterval,
	}, a.logger)
}

func (a *App) initializeCache() error {
	a.resultCache = cache.NewResultCache(a.scanner, a.cfg.Cache.TTL.Duration(), a.cfg.Scanner.Timeout, a.logger)

	if !a.cfg.Redis.Enabled {
		return nil
	}

	store, err := cache.NewRedisStore(&a.cfg.Redis, a.logger)
	if err != nil {
		return fmt.Errorf("failed to connect to Redis: %w", err)
	}
	a.redisStore = store
	a.resultCache.SetSharedStore(store)

	return nil
}

func (a *App) initializeScheduler() error {
	if a.cfg.Cache.RefreshCron == "" {
		return nil
	}

	s, err := scheduler.New(a.cfg.Cache.RefreshCron, a.resultCache, a.cfg.Scanner.Timeout, a.logger)
	if err != nil {
		return err
	}
	a.scheduler = s

	return nil
}

func (a *App) closeConnections() error {
	var errs []error

	if a.mysqlDB != nil {
		if err := a.mysqlDB.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close MySQL: %w", err))
		}
	}

	if a.influxDB != nil {
		a.influxDB.Close()
	}

	if a.redisStore != nil {
		if err := a.redisStore.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close Redis: %w", err))
		}
	}

	return errors.Join(errs...)
}
