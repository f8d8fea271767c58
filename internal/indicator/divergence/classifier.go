package divergence

import (
	"fmt"

	"github.com/divergence-scanner/pkg/models"
)

// Series holds the index-aligned inputs of the classifier
type Series struct {
	Highs []float64
	Lows  []float64
	RSI   []float64
}

func (s Series) validate() error {
	if len(s.Highs) != len(s.Lows) || len(s.Lows) != len(s.RSI) {
		return &models.ComputationError{
			Op:  "classify",
			Err: fmt.Errorf("length mismatch: highs=%d lows=%d rsi=%d", len(s.Highs), len(s.Lows), len(s.RSI)),
		}
	}
	return nil
}

func (s Series) checkPair(pair PivotPair) error {
	if pair.First < 0 || pair.Second >= len(s.RSI) {
		return &models.ComputationError{
			Op:  "classify",
			Err: fmt.Errorf("pivot pair (%d, %d) outside series of %d", pair.First, pair.Second, len(s.RSI)),
		}
	}
	return nil
}

// Classify inspects the latest low pair, then the latest high pair, and
// returns the first divergence found. A bullish result wins over a bearish
// one; highs are still checked when the low pair produced no signal.
func Classify(s Series, lowPivots, highPivots []int, lower, upper int) (models.Divergence, error) {
	if err := s.validate(); err != nil {
		return models.DivergenceNone, err
	}

	if pair, ok := LastTwoWithinRange(lowPivots, lower, upper); ok {
		if err := s.checkPair(pair); err != nil {
			return models.DivergenceNone, err
		}

		p1, p2 := s.Lows[pair.First], s.Lows[pair.Second]
		r1, r2 := s.RSI[pair.First], s.RSI[pair.Second]
		switch {
		case p2 < p1 && r2 > r1:
			return models.DivergenceRegularBullish, nil
		case p2 > p1 && r2 < r1:
			return models.DivergenceHiddenBullish, nil
		}
	}

	if pair, ok := LastTwoWithinRange(highPivots, lower, upper); ok {
		if err := s.checkPair(pair); err != nil {
			return models.DivergenceNone, err
		}

		p1, p2 := s.Highs[pair.First], s.Highs[pair.Second]
		r1, r2 := s.RSI[pair.First], s.RSI[pair.Second]
		switch {
		case p2 > p1 && r2 < r1:
			return models.DivergenceRegularBearish, nil
		case p2 < p1 && r2 > r1:
			return models.DivergenceHiddenBearish, nil
		}
	}

	return models.DivergenceNone, nil
}
