// Package smoothing implements the triangular weighted moving average and the
// adaptive window selector that picks its half-width per point.
package smoothing

import (
	"math"

	"gonum.org/v1/gonum/floats"

	"loadcell/pkg/contracts/domain"
)

// Weights returns the 2h+1 triangular weights for offsets -h..h.
// The weight falls linearly from center at offset 0 to side at offset ±h.
func Weights(h int, center, side float64) []float64 {
	if h <= 0 {
		return []float64{center}
	}
	w := make([]float64, 2*h+1)
	for d := -h; d <= h; d++ {
		frac := math.Abs(float64(d)) / float64(h)
		w[d+h] = center - frac*(center-side)
	}
	return w
}

// limits are the missing-data cutoffs of a window
type limits struct {
	maxCount  *int
	maxWeight *float64
}

func limitsOf(cfg domain.SmoothingConfig) limits {
	return limits{maxCount: cfg.MaxMissingCount, maxWeight: cfg.MaxMissingWeight}
}

// WeightedMean computes the weighted average around index i with half-width
// len(w)/2. Offsets that fall outside values count as missing. ok is false when
// the missing cutoffs are exceeded or nothing in the window is present.
func WeightedMean(values []float64, i int, w []float64, lim limits) (mean float64, ok bool) {
	h := len(w) / 2
	total := floats.Sum(w)

	var sum, present, missing float64
	missingCount := 0
	for d := -h; d <= h; d++ {
		j := i + d
		weight := w[d+h]
		if j < 0 || j >= len(values) || math.IsNaN(values[j]) {
			missing += weight
			missingCount++
			continue
		}
		sum += weight * values[j]
		present += weight
	}

	if lim.maxCount != nil && missingCount > *lim.maxCount {
		return math.NaN(), false
	}
	if lim.maxWeight != nil && total > 0 && missing/total > *lim.maxWeight {
		return math.NaN(), false
	}
	if present <= 0 {
		return math.NaN(), false
	}
	return sum / present, true
}
