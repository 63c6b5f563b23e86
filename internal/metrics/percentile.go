package metrics

import "math"

// Percentile computes the p-th percentile (0-100) of sorted using linear
// interpolation between closest ranks: k = (N-1)*p/100, interpolating between
// floor(k) and ceil(k). This matches the values the platform's historical
// benchmark reports were produced with; nearest-rank or R-7 style definitions
// diverge materially at small sample counts.
//
// sorted must be in ascending order. An empty input yields 0.
func Percentile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if n == 1 {
		return sorted[0]
	}

	k := float64(n-1) * p / 100
	f := math.Floor(k)
	c := math.Ceil(k)
	if f == c {
		return sorted[int(k)]
	}
	return sorted[int(f)]*(c-k) + sorted[int(c)]*(k-f)
}
