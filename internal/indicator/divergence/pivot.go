package divergence

// FindPivotLows returns the ascending indices of confirmed swing lows.
// Index i qualifies when lows[i] is strictly below the left window and not
// above the right window. Only [left, len-right-1] is eligible.
func FindPivotLows(lows []float64, left, right int) []int {
	if !windowsFit(len(lows), left, right) {
		return nil
	}

	var pivots []int
	for i := left; i < len(lows)-right; i++ {
		if lows[i] < minOf(lows[i-left:i]) && lows[i] <= minOf(lows[i+1:i+1+right]) {
			pivots = append(pivots, i)
		}
	}
	return pivots
}

// FindPivotHighs is the mirror of FindPivotLows for swing highs
func FindPivotHighs(highs []float64, left, right int) []int {
	if !windowsFit(len(highs), left, right) {
		return nil
	}

	var pivots []int
	for i := left; i < len(highs)-right; i++ {
		if highs[i] > maxOf(highs[i-left:i]) && highs[i] >= maxOf(highs[i+1:i+1+right]) {
			pivots = append(pivots, i)
		}
	}
	return pivots
}

// PivotPair is two pivots of the same kind, First < Second
type PivotPair struct {
	First  int
	Second int
}

// Distance returns the bar count between the two pivots
func (p PivotPair) Distance() int {
	return p.Second - p.First
}

// LastTwoWithinRange pairs the two most recent pivots if their distance
// lies in [lower, upper]. Older pivots are never considered.
func LastTwoWithinRange(pivots []int, lower, upper int) (PivotPair, bool) {
	if len(pivots) < 2 {
		return PivotPair{}, false
	}

	pair := PivotPair{
		First:  pivots[len(pivots)-2],
		Second: pivots[len(pivots)-1],
	}
	if d := pair.Distance(); d < lower || d > upper {
		return PivotPair{}, false
	}
	return pair, true
}

func windowsFit(n, left, right int) bool {
	return left >= 1 && right >= 1 && n >= left+right+1
}

func minOf(values []float64) float64 {
	m := values[0]
	for _, v := range values[1:] {
		if v < m {
			m = v
		}
	}
	return m
}

func maxOf(values []float64) float64 {
	m := values[0]
	for _, v := range values[1:] {
		if v > m {
			m = v
		}
	}
	return m
}
