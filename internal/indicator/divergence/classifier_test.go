package divergence

import (
	"errors"
	"testing"

	"github.com/divergence-scanner/pkg/models"
)

// fixture builds flat highs/lows/RSI of length n that callers then shape
func fixture(n int) Series {
	s := Series{
		Highs: make([]float64, n),
		Lows:  make([]float64, n),
		RSI:   make([]float64, n),
	}
	for i := 0; i < n; i++ {
		s.Highs[i] = 300
		s.Lows[i] = 200
		s.RSI[i] = 50
	}
	return s
}

func classifyDetected(t *testing.T, s Series) models.Divergence {
	t.Helper()
	got, err := Classify(s, FindPivotLows(s.Lows, 5, 5), FindPivotHighs(s.Highs, 5, 5), 5, 60)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return got
}

func TestClassify_RegularBullish(t *testing.T) {
	s := fixture(40)
	s.Lows[10], s.RSI[10] = 100, 28
	s.Lows[20], s.RSI[20] = 95, 35

	if got := classifyDetected(t, s); got != models.DivergenceRegularBullish {
		t.Errorf("expected %s, got %s", models.DivergenceRegularBullish, got)
	}
}

func TestClassify_HiddenBullish(t *testing.T) {
	s := fixture(40)
	s.Lows[10], s.RSI[10] = 100, 28
	s.Lows[20], s.RSI[20] = 105, 25

	if got := classifyDetected(t, s); got != models.DivergenceHiddenBullish {
		t.Errorf("expected %s, got %s", models.DivergenceHiddenBullish, got)
	}
}

func TestClassify_RegularBearish(t *testing.T) {
	s := fixture(40)
	s.Highs[10], s.RSI[10] = 400, 72
	s.Highs[20], s.RSI[20] = 410, 65

	if got := classifyDetected(t, s); got != models.DivergenceRegularBearish {
		t.Errorf("expected %s, got %s", models.DivergenceRegularBearish, got)
	}
}

func TestClassify_HiddenBearish(t *testing.T) {
	s := fixture(40)
	s.Highs[10], s.RSI[10] = 400, 60
	s.Highs[20], s.RSI[20] = 390, 68

	if got := classifyDetected(t, s); got != models.DivergenceHiddenBearish {
		t.Errorf("expected %s, got %s", models.DivergenceHiddenBearish, got)
	}
}

func TestClassify_BullishTakesPrecedence(t *testing.T) {
	s := fixture(40)
	s.Lows[10], s.RSI[10] = 100, 28
	s.Lows[20], s.RSI[20] = 95, 35
	s.Highs[12], s.RSI[12] = 400, 70
	s.Highs[22], s.RSI[22] = 410, 60

	lows, highs := []int{10, 20}, []int{12, 22}

	got, err := Classify(s, lows, highs, 5, 60)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != models.DivergenceRegularBullish {
		t.Errorf("expected bullish precedence, got %s", got)
	}

	// Same highs without the low pair must be bearish
	got, err = Classify(s, nil, highs, 5, 60)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != models.DivergenceRegularBearish {
		t.Errorf("expected %s, got %s", models.DivergenceRegularBearish, got)
	}
}

func TestClassify_LowPairWithoutSignalFallsThrough(t *testing.T) {
	s := fixture(40)
	// Lower low with lower RSI: no bullish signal
	s.Lows[10], s.RSI[10] = 100, 35
	s.Lows[20], s.RSI[20] = 95, 28
	s.Highs[12], s.RSI[12] = 400, 70
	s.Highs[22], s.RSI[22] = 410, 60

	got, err := Classify(s, []int{10, 20}, []int{12, 22}, 5, 60)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != models.DivergenceRegularBearish {
		t.Errorf("expected highs to be evaluated, got %s", got)
	}
}

func TestClassify_EqualPricesNoSignal(t *testing.T) {
	s := fixture(40)
	s.Lows[10], s.RSI[10] = 100, 28
	s.Lows[20], s.RSI[20] = 100, 35

	if got := classifyDetected(t, s); got != models.DivergenceNone {
		t.Errorf("expected no divergence, got %s", got)
	}
}

func TestClassify_PairOutOfRange(t *testing.T) {
	s := fixture(100)
	s.Lows[10], s.RSI[10] = 100, 28
	s.Lows[80], s.RSI[80] = 95, 35

	if got := classifyDetected(t, s); got != models.DivergenceNone {
		t.Errorf("expected distance 70 to be rejected, got %s", got)
	}
}

func TestClassify_LengthMismatch(t *testing.T) {
	s := fixture(40)
	s.RSI = s.RSI[:30]

	_, err := Classify(s, []int{10, 20}, nil, 5, 60)
	var compErr *models.ComputationError
	if !errors.As(err, &compErr) {
		t.Fatalf("expected ComputationError, got %v", err)
	}
}

func TestClassify_PivotOutsideSeries(t *testing.T) {
	s := fixture(40)

	_, err := Classify(s, []int{10, 45}, nil, 5, 60)
	var compErr *models.ComputationError
	if !errors.As(err, &compErr) {
		t.Fatalf("expected ComputationError, got %v", err)
	}
}
