package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/divergence-scanner/internal/cache"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// Refresher recomputes the cached scan
type Refresher interface {
	Refresh(ctx context.Context) (*cache.Snapshot, error)
}

// Scheduler keeps the result cache warm on a cron schedule
type Scheduler struct {
	cron      *cron.Cron
	spec      string
	refresher Refresher
	timeout   time.Duration
	logger    *logrus.Entry
}

// parser accepts 5-field specs, an optional leading seconds field and descriptors such as @every 30s
var parser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// New validates spec and registers the refresh job
func New(spec string, refresher Refresher, timeout time.Duration, logger *logrus.Logger) (*Scheduler, error) {
	entry := logger.WithField("component", "scheduler")

	s := &Scheduler{
		cron: cron.New(
			cron.WithParser(parser),
			cron.WithLogger(cron.PrintfLogger(entry)),
			cron.WithChain(cron.Recover(cron.PrintfLogger(entry)), cron.SkipIfStillRunning(cron.DiscardLogger)),
		),
		spec:      spec,
		refresher: refresher,
		timeout:   timeout,
		logger:    entry,
	}

	if _, err := s.cron.AddFunc(spec, s.RunNow); err != nil {
		return nil, fmt.Errorf("register refresh %q: %w", spec, err)
	}

	return s, nil
}

// Start starts the cron scheduler
func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.WithField("schedule", s.spec).Info("Scheduler started")
}

// Stop stops the scheduler and waits for a running refresh
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
		s.logger.Warn("Timeout waiting for scheduled refresh to finish")
	}
	s.logger.Info("Scheduler stopped")
}

// RunNow refreshes the cache once
func (s *Scheduler) RunNow() {
	ctx := context.Background()
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	snap, err := s.refresher.Refresh(ctx)
	if err != nil {
		s.logger.WithError(err).Error("Scheduled refresh failed")
		return
	}

	s.logger.WithFields(logrus.Fields{
		"results":  len(snap.Results),
		"snapshot": snap.Timestamp,
	}).Debug("Scheduled refresh complete")
}
