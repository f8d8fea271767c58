package divergence

import (
	"errors"
	"fmt"

	"github.com/divergence-scanner/pkg/models"
	"github.com/sirupsen/logrus"
)

// Params configures the detection pipeline
type Params struct {
	RSIPeriod  int
	Lookback   int
	Lookahead  int
	RangeLower int
	RangeUpper int
}

// MinBars is the shortest series the pipeline will evaluate
func (p Params) MinBars() int {
	return p.RSIPeriod + p.Lookback + p.Lookahead
}

// Analysis is the intermediate state of one detection run
type Analysis struct {
	RSI        []float64
	LowPivots  []int
	HighPivots []int
	Divergence models.Divergence
}

// Detector runs RSI, pivot detection and classification over a bar series
type Detector struct {
	params Params
	logger *logrus.Entry
}

// NewDetector creates a new divergence detector
func NewDetector(params Params, logger *logrus.Logger) *Detector {
	return &Detector{
		params: params,
		logger: logger.WithField("component", "divergence"),
	}
}

// Params returns the detector configuration
func (d *Detector) Params() Params {
	return d.params
}

// Analyze runs the full pipeline and returns every intermediate series.
// Errors are returned as-is, including ComputationError.
func (d *Detector) Analyze(bars []*models.Bar) (analysis *Analysis, err error) {
	if need := d.params.MinBars(); len(bars) < need || len(bars) == 0 {
		return nil, &models.InsufficientDataError{Have: len(bars), Need: max(need, 1)}
	}

	defer func() {
		if r := recover(); r != nil {
			analysis = nil
			err = &models.ComputationError{Op: "analyze", Err: fmt.Errorf("panic: %v", r)}
		}
	}()

	highs := models.Highs(bars)
	lows := models.Lows(bars)

	rsi, err := CalculateRSI(models.Closes(bars), d.params.RSIPeriod)
	if err != nil {
		return nil, err
	}

	analysis = &Analysis{
		RSI:        rsi,
		LowPivots:  FindPivotLows(lows, d.params.Lookback, d.params.Lookahead),
		HighPivots: FindPivotHighs(highs, d.params.Lookback, d.params.Lookahead),
	}

	analysis.Divergence, err = Classify(
		Series{Highs: highs, Lows: lows, RSI: rsi},
		analysis.LowPivots,
		analysis.HighPivots,
		d.params.RangeLower,
		d.params.RangeUpper,
	)
	if err != nil {
		return nil, err
	}

	return analysis, nil
}

// Detect classifies the latest divergence of bars.
// A short series yields InsufficientDataError. Computation failures are
// logged and reported as no divergence.
func (d *Detector) Detect(bars []*models.Bar) (models.Divergence, error) {
	analysis, err := d.Analyze(bars)
	if err == nil {
		return analysis.Divergence, nil
	}

	var compErr *models.ComputationError
	if errors.As(err, &compErr) {
		entry := d.logger.WithError(err)
		if len(bars) > 0 && bars[0] != nil {
			entry = entry.WithField("symbol", bars[0].Symbol)
		}
		entry.Warn("Divergence computation failed")
		return models.DivergenceNone, nil
	}

	return models.DivergenceNone, err
}
