package divergence

import (
	"fmt"

	"github.com/divergence-scanner/pkg/models"
)

// NeutralRSI fills indices where the average is undefined or nothing moved
const NeutralRSI = 50.0

// CalculateRSI computes a simple-moving-average RSI of closes.
//
// The first delta is zero because there is no prior bar. Gains and losses are
// averaged over a trailing window of period deltas, so the first defined value
// sits at index period-1. The output always has len(closes) elements.
func CalculateRSI(closes []float64, period int) ([]float64, error) {
	n := len(closes)
	if n == 0 {
		return nil, &models.InsufficientDataError{Have: 0, Need: 1}
	}
	if period < 1 {
		return nil, &models.ComputationError{Op: "rsi", Err: fmt.Errorf("invalid period %d", period)}
	}

	gains := make([]float64, n)
	losses := make([]float64, n)
	for i := 1; i < n; i++ {
		delta := closes[i] - closes[i-1]
		if delta > 0 {
			gains[i] = delta
		} else if delta < 0 {
			losses[i] = -delta
		}
	}

	rsi := make([]float64, n)
	p := float64(period)
	for i := 0; i < n; i++ {
		if i < period-1 {
			rsi[i] = NeutralRSI
			continue
		}

		// Sums are recomputed per window so a flat stretch yields exact zeros
		var sumGain, sumLoss float64
		for j := i - period + 1; j <= i; j++ {
			sumGain += gains[j]
			sumLoss += losses[j]
		}
		rsi[i] = rsiFromAverages(sumGain/p, sumLoss/p)
	}

	return rsi, nil
}

func rsiFromAverages(avgGain, avgLoss float64) float64 {
	switch {
	case avgLoss == 0 && avgGain == 0:
		return NeutralRSI
	case avgLoss == 0:
		return 100
	}
	return 100 - 100/(1+avgGain/avgLoss)
}
