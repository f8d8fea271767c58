package cache

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/divergence-scanner/pkg/models"
	"github.com/sirupsen/logrus"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

type fakeScanner struct {
	calls int32
	delay time.Duration
	err   error
}

func (f *fakeScanner) Scan(ctx context.Context) ([]models.DivergenceResult, error) {
	n := atomic.AddInt32(&f.calls, 1)
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if f.err != nil {
		return nil, f.err
	}

	div := models.DivergenceNone
	if n%2 == 0 {
		div = models.DivergenceHiddenBearish
	}
	return []models.DivergenceResult{
		{Symbol: "BTCUSDT", Timeframe: "1h", Divergence: div},
	}, nil
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestCache(scanner Scanner, ttl time.Duration) (*ResultCache, *clock) {
	clk := &clock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	c := NewResultCache(scanner, ttl, time.Minute, testLogger())
	c.now = clk.Now
	return c, clk
}

func encode(t *testing.T, snap *Snapshot) []byte {
	t.Helper()
	data, err := json.Marshal(snap.Results)
	if err != nil {
		t.Fatalf("failed to encode: %v", err)
	}
	return data
}

func TestResultCache_ServesWithinTTL(t *testing.T) {
	scanner := &fakeScanner{}
	c, clk := newTestCache(scanner, 30*time.Second)

	first, err := c.Get(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	clk.Advance(29 * time.Second)
	second, err := c.Get(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !bytes.Equal(encode(t, first), encode(t, second)) {
		t.Error("expected identical results within TTL")
	}
	if scanner.calls != 1 {
		t.Errorf("expected one scan, got %d", scanner.calls)
	}
}

func TestResultCache_RefreshesAfterTTL(t *testing.T) {
	scanner := &fakeScanner{}
	c, clk := newTestCache(scanner, 30*time.Second)

	if _, err := c.Get(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	clk.Advance(30 * time.Second)
	snap, err := c.Get(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if scanner.calls != 2 {
		t.Errorf("expected exactly one refresh after TTL, got %d scans", scanner.calls)
	}
	if snap.Results[0].Divergence != models.DivergenceHiddenBearish {
		t.Errorf("expected fresh results, got %+v", snap.Results)
	}
	if !snap.Timestamp.Equal(clk.Now()) {
		t.Errorf("unexpected snapshot timestamp %s", snap.Timestamp)
	}

	if _, err := c.Get(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if scanner.calls != 2 {
		t.Errorf("expected cached result after refresh, got %d scans", scanner.calls)
	}
}

func TestResultCache_ConcurrentReadersShareRefresh(t *testing.T) {
	scanner := &fakeScanner{delay: 50 * time.Millisecond}
	c, _ := newTestCache(scanner, time.Minute)

	var wg sync.WaitGroup
	snaps := make([]*Snapshot, 10)
	for i := range snaps {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			snap, err := c.Get(context.Background())
			if err != nil {
				t.Errorf("unexpected error: %v", err)
				return
			}
			snaps[i] = snap
		}(i)
	}
	wg.Wait()

	if scanner.calls != 1 {
		t.Errorf("expected a single scan, got %d", scanner.calls)
	}
	for i, snap := range snaps {
		if snap != snaps[0] {
			t.Errorf("reader %d saw a different snapshot", i)
		}
	}
}

func TestResultCache_FailedRefreshKeepsSnapshot(t *testing.T) {
	scanner := &fakeScanner{}
	c, clk := newTestCache(scanner, 30*time.Second)

	good, err := c.Get(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	scanner.err = errors.New("upstream timeout")
	clk.Advance(time.Minute)

	if _, err := c.Refresh(context.Background()); err == nil {
		t.Fatal("expected refresh error")
	}
	if c.Snapshot() != good {
		t.Error("failed refresh replaced the snapshot")
	}

	served, err := c.Get(context.Background())
	if err != nil {
		t.Fatalf("expected stale snapshot to be served, got %v", err)
	}
	if served != good {
		t.Error("expected last good snapshot")
	}
	if c.Refreshes() != 1 {
		t.Errorf("expected 1 successful refresh, got %d", c.Refreshes())
	}
}

func TestResultCache_FailureWithoutSnapshot(t *testing.T) {
	c, _ := newTestCache(&fakeScanner{err: errors.New("boom")}, time.Minute)

	if _, err := c.Get(context.Background()); err == nil {
		t.Fatal("expected error when no snapshot exists")
	}
	if c.Snapshot() != nil {
		t.Error("expected empty cache")
	}
}

func TestResultCache_CallerCancelDoesNotAbortScan(t *testing.T) {
	scanner := &fakeScanner{delay: 50 * time.Millisecond}
	c, _ := newTestCache(scanner, time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
	defer cancel()

	if _, err := c.Get(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline error, got %v", err)
	}

	// The scan keeps running and lands in the cache
	snap, err := c.Get(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if snap == nil || scanner.calls != 1 {
		t.Errorf("expected the in-flight scan to be reused, got %d scans", scanner.calls)
	}
}

type fakeStore struct {
	mu     sync.Mutex
	snap   *Snapshot
	stored int
	err    error
}

func (f *fakeStore) Load(ctx context.Context) (*Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snap, f.err
}

func (f *fakeStore) Store(ctx context.Context, snap *Snapshot, ttl time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snap = snap
	f.stored++
	return nil
}

func TestResultCache_AdoptsFreshSharedSnapshot(t *testing.T) {
	scanner := &fakeScanner{}
	c, clk := newTestCache(scanner, 30*time.Second)

	shared := &Snapshot{
		Timestamp: clk.Now().Add(-10 * time.Second),
		Results:   []models.DivergenceResult{{Symbol: "ETHUSDT", Timeframe: "4h", Divergence: models.DivergenceRegularBullish}},
	}
	store := &fakeStore{snap: shared}
	c.SetSharedStore(store)

	snap, err := c.Get(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if snap != shared || scanner.calls != 0 {
		t.Errorf("expected shared snapshot without scanning, got %d scans", scanner.calls)
	}

	// Expires relative to its own timestamp
	clk.Advance(25 * time.Second)
	if _, err := c.Get(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if scanner.calls != 1 || store.stored != 1 {
		t.Errorf("expected scan and publish after shared snapshot expired, got scans=%d stored=%d", scanner.calls, store.stored)
	}
}

func TestResultCache_SharedStoreErrorFallsBackToScan(t *testing.T) {
	scanner := &fakeScanner{}
	c, _ := newTestCache(scanner, 30*time.Second)
	c.SetSharedStore(&fakeStore{err: errors.New("redis down")})

	if _, err := c.Get(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if scanner.calls != 1 {
		t.Errorf("expected local scan, got %d", scanner.calls)
	}
}

type scanFunc func(ctx context.Context) ([]models.DivergenceResult, error)

func (f scanFunc) Scan(ctx context.Context) ([]models.DivergenceResult, error) {
	return f(ctx)
}

func TestResultCache_SlowScanStaysFreshForTTL(t *testing.T) {
	var calls int32
	var clk *clock
	slow := scanFunc(func(ctx context.Context) ([]models.DivergenceResult, error) {
		atomic.AddInt32(&calls, 1)
		clk.Advance(35 * time.Second)
		return []models.DivergenceResult{{Symbol: "BTCUSDT", Timeframe: "1h"}}, nil
	})

	c, clk := newTestCache(slow, 30*time.Second)

	first, err := c.Get(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !first.Timestamp.Equal(clk.Now()) {
		t.Errorf("expected snapshot stamped at scan completion, got %s", first.Timestamp)
	}

	second, err := c.Get(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if second != first || atomic.LoadInt32(&calls) != 1 {
		t.Errorf("expected the slow scan to be served from cache, got %d scans", calls)
	}
}

type deadlineStore struct {
	mu        sync.Mutex
	remaining time.Duration
	ctxErr    error
}

func (d *deadlineStore) Load(ctx context.Context) (*Snapshot, error) {
	return nil, nil
}

func (d *deadlineStore) Store(ctx context.Context, snap *Snapshot, ttl time.Duration) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.ctxErr = ctx.Err()
	if deadline, ok := ctx.Deadline(); ok {
		d.remaining = time.Until(deadline)
	}
	return nil
}

func TestResultCache_PublishOutlivesScanBudget(t *testing.T) {
	scanner := &fakeScanner{delay: 60 * time.Millisecond}
	c := NewResultCache(scanner, time.Minute, 80*time.Millisecond, testLogger())
	store := &deadlineStore{}
	c.SetSharedStore(store)

	if _, err := c.Refresh(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	store.mu.Lock()
	defer store.mu.Unlock()
	if store.ctxErr != nil {
		t.Fatalf("publish context already done: %v", store.ctxErr)
	}
	if store.remaining < time.Second {
		t.Errorf("expected a fresh publish deadline, had %s left", store.remaining)
	}
}
