package divergence

import (
	"reflect"
	"testing"
)

func TestFindPivots_Monotonic(t *testing.T) {
	up := make([]float64, 100)
	down := make([]float64, 100)
	for i := range up {
		up[i] = float64(i)
		down[i] = float64(100 - i)
	}

	if p := FindPivotLows(up, 5, 5); len(p) != 0 {
		t.Errorf("expected no low pivots on rising series, got %v", p)
	}
	if p := FindPivotHighs(down, 5, 5); len(p) != 0 {
		t.Errorf("expected no high pivots on falling series, got %v", p)
	}
}

func TestFindPivots_Bounds(t *testing.T) {
	prices := sineSeries(300)
	for _, w := range []struct{ left, right int }{{1, 1}, {5, 5}, {3, 8}, {10, 2}} {
		for _, pivots := range [][]int{
			FindPivotLows(prices, w.left, w.right),
			FindPivotHighs(prices, w.left, w.right),
		} {
			if len(pivots) == 0 {
				t.Fatalf("L=%d R=%d: expected pivots on a sine wave", w.left, w.right)
			}
			for j, i := range pivots {
				if i < w.left || i >= len(prices)-w.right {
					t.Errorf("L=%d R=%d: pivot %d outside eligible range", w.left, w.right, i)
				}
				if j > 0 && pivots[j-1] >= i {
					t.Errorf("L=%d R=%d: pivots not ascending: %v", w.left, w.right, pivots)
				}
			}
		}
	}
}

func TestFindPivotLows_Plateau(t *testing.T) {
	lows := []float64{5, 5, 5, 1, 1, 5, 5, 5}
	got := FindPivotLows(lows, 2, 2)
	if !reflect.DeepEqual(got, []int{3}) {
		t.Errorf("expected single pivot at earliest plateau bar, got %v", got)
	}
}

func TestFindPivotHighs_Plateau(t *testing.T) {
	highs := []float64{1, 1, 1, 9, 9, 1, 1, 1}
	got := FindPivotHighs(highs, 2, 2)
	if !reflect.DeepEqual(got, []int{3}) {
		t.Errorf("expected single pivot at earliest plateau bar, got %v", got)
	}
}

func TestFindPivots_InvalidWindows(t *testing.T) {
	prices := sineSeries(50)
	if p := FindPivotLows(prices, 0, 5); p != nil {
		t.Errorf("expected nil for zero lookback, got %v", p)
	}
	if p := FindPivotHighs(prices, 5, 0); p != nil {
		t.Errorf("expected nil for zero lookahead, got %v", p)
	}
	if p := FindPivotLows(prices[:10], 5, 5); p != nil {
		t.Errorf("expected nil for series shorter than window, got %v", p)
	}
}

func TestLastTwoWithinRange(t *testing.T) {
	tests := []struct {
		name    string
		pivots  []int
		wantOK  bool
		wantGap int
	}{
		{"fewer than two", []int{3}, false, 0},
		{"lower bound inclusive", []int{10, 15}, true, 5},
		{"upper bound inclusive", []int{10, 70}, true, 60},
		{"below lower bound", []int{10, 14}, false, 0},
		{"above upper bound", []int{10, 71}, false, 0},
		{"only last two count", []int{0, 10, 100}, false, 0},
		{"older pivots ignored", []int{0, 90, 100}, true, 10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pair, ok := LastTwoWithinRange(tt.pivots, 5, 60)
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if ok && pair.Distance() != tt.wantGap {
				t.Errorf("distance = %d, want %d", pair.Distance(), tt.wantGap)
			}
		})
	}
}
