package models

import (
	"encoding/json"
	"fmt"
)

// Divergence is the classification of the latest pivot pair of a series.
// The zero value means no divergence was found.
type Divergence string

const (
	DivergenceNone           Divergence = ""
	DivergenceRegularBullish Divergence = "Regular Bullish"
	DivergenceHiddenBullish  Divergence = "Hidden Bullish"
	DivergenceRegularBearish Divergence = "Regular Bearish"
	DivergenceHiddenBearish  Divergence = "Hidden Bearish"
)

// IsBullish reports whether d comes from a low pivot pair
func (d Divergence) IsBullish() bool {
	return d == DivergenceRegularBullish || d == DivergenceHiddenBullish
}

// IsBearish reports whether d comes from a high pivot pair
func (d Divergence) IsBearish() bool {
	return d == DivergenceRegularBearish || d == DivergenceHiddenBearish
}

// String returns the label, or "None"
func (d Divergence) String() string {
	if d == DivergenceNone {
		return "None"
	}
	return string(d)
}

// MarshalJSON encodes DivergenceNone as null
func (d Divergence) MarshalJSON() ([]byte, error) {
	if d == DivergenceNone {
		return []byte("null"), nil
	}
	return json.Marshal(string(d))
}

// UnmarshalJSON accepts null or one of the known labels
func (d *Divergence) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*d = DivergenceNone
		return nil
	}

	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}

	switch v := Divergence(s); v {
	case DivergenceNone, DivergenceRegularBullish, DivergenceHiddenBullish,
		DivergenceRegularBearish, DivergenceHiddenBearish:
		*d = v
		return nil
	}
	return fmt.Errorf("unknown divergence %q", s)
}

// DivergenceResult is one row of a scan: an (instrument, timeframe) pair and
// either its classification or the error that prevented it.
type DivergenceResult struct {
	Symbol     string     `json:"symbol"`
	Timeframe  string     `json:"timeframe"`
	Divergence Divergence `json:"divergence"`
	Error      string     `json:"error,omitempty"`
}
