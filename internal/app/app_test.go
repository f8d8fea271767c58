package app

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/divergence-scanner/pkg/config"
	"github.com/sethvargo/go-envconfig"
	"github.com/sirupsen/logrus"
)

func klines(n int) string {
	rows := make([]string, n)
	start := int64(1704067200000)
	for i := 0; i < n; i++ {
		c := 100 + 10*math.Sin(float64(i)/4)
		open := start + int64(i)*3600000
		rows[i] = fmt.Sprintf(`[%d,"%.4f","%.4f","%.4f","%.4f","10.0",%d,"0",100,"0","0","0"]`,
			open, c, c+1, c-1, c, open+3599999)
	}
	return "[" + strings.Join(rows, ",") + "]"
}

func TestApp_ServesCachedScan(t *testing.T) {
	var hits int32
	body := klines(120)
	exchange := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, body)
	}))
	defer exchange.Close()

	cfg, err := config.LoadWith(context.Background(), envconfig.MapLookuper(map[string]string{
		"SYMBOLS":                  "btcusdt, ethusdt",
		"TIMEFRAMES":               "1h:120",
		"SCAN_REQUEST_INTERVAL":    "0s",
		"EXCHANGE_BINANCE_API_URL": exchange.URL,
		"EXCHANGE_MAX_RETRIES":     "0",
	}))
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	a := New(cfg, logger)
	if err := a.Initialize(); err != nil {
		t.Fatalf("failed to initialize: %v", err)
	}
	defer a.closeConnections()

	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		a.apiServer.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/divergences", nil))

		if rec.Code != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d: %s", i, rec.Code, rec.Body.String())
		}

		var results []map[string]interface{}
		if err := json.Unmarshal(rec.Body.Bytes(), &results); err != nil {
			t.Fatalf("invalid JSON: %v", err)
		}
		if len(results) != 2 {
			t.Fatalf("expected 2 results, got %d", len(results))
		}
		if results[0]["symbol"] != "BTCUSDT" || results[1]["symbol"] != "ETHUSDT" {
			t.Errorf("unexpected order: %v", results)
		}
		for _, r := range results {
			if r["timeframe"] != "1h" {
				t.Errorf("unexpected timeframe in %v", r)
			}
			if _, ok := r["error"]; ok {
				t.Errorf("unexpected item error in %v", r)
			}
		}
	}

	if got := atomic.LoadInt32(&hits); got != 2 {
		t.Errorf("expected one fetch per symbol across both requests, got %d", got)
	}
}
