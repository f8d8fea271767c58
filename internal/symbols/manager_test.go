package symbols

import (
	"context"
	"errors"
	"io"
	"reflect"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

type fakeStore struct {
	symbols []string
	err     error
	calls   int
}

func (f *fakeStore) GetActiveSymbols(ctx context.Context, exchange string) ([]string, error) {
	f.calls++
	if exchange != "binance" {
		return nil, errors.New("unexpected exchange " + exchange)
	}
	return f.symbols, f.err
}

func TestStaticManager(t *testing.T) {
	m := NewStaticManager([]string{" btcusdt", "ETHUSDT ", ""}, testLogger())

	got, err := m.Resolve(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if want := []string{"BTCUSDT", "ETHUSDT"}; !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestStoreManager_CachesUntilStale(t *testing.T) {
	store := &fakeStore{symbols: []string{"adausdt", "BTCUSDT"}}
	m := NewStoreManager(store, "binance", testLogger())

	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		got, err := m.Resolve(context.Background())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if want := []string{"ADAUSDT", "BTCUSDT"}; !reflect.DeepEqual(got, want) {
			t.Errorf("got %v, want %v", got, want)
		}
	}
	if store.calls != 1 {
		t.Errorf("expected one store call, got %d", store.calls)
	}

	now = now.Add(6 * time.Minute)
	if _, err := m.Resolve(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if store.calls != 2 {
		t.Errorf("expected reload after refresh interval, got %d calls", store.calls)
	}
}

func TestStoreManager_KeepsPreviousOnFailure(t *testing.T) {
	store := &fakeStore{symbols: []string{"BTCUSDT"}}
	m := NewStoreManager(store, "binance", testLogger())
	m.SetRefreshInterval(0)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	m.now = func() time.Time {
		now = now.Add(time.Second)
		return now
	}

	if _, err := m.Resolve(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	store.err = errors.New("connection refused")
	got, err := m.Resolve(context.Background())
	if err != nil {
		t.Fatalf("expected previous list to be served, got %v", err)
	}
	if !reflect.DeepEqual(got, []string{"BTCUSDT"}) {
		t.Errorf("got %v", got)
	}
}

func TestStoreManager_FailsWithoutList(t *testing.T) {
	store := &fakeStore{err: errors.New("connection refused")}
	m := NewStoreManager(store, "binance", testLogger())

	if _, err := m.Resolve(context.Background()); err == nil {
		t.Fatal("expected error when nothing was ever loaded")
	}
}

func TestStoreManager_EmptyListIsError(t *testing.T) {
	m := NewStoreManager(&fakeStore{}, "binance", testLogger())

	if err := m.Load(context.Background()); err == nil {
		t.Fatal("expected error for empty symbol list")
	}
}
