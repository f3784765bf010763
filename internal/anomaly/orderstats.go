package anomaly

import (
	"math"
	"sort"
)

// madScale makes the median absolute deviation a consistent estimator of the
// standard deviation for normally distributed data
const madScale = 1.4826

// orderStats is a sorted multiset of window values supporting insertion,
// removal and order statistics without re-sorting the whole window
type orderStats struct {
	vals []float64
}

func newOrderStats(capacity int) *orderStats {
	return &orderStats{vals: make([]float64, 0, capacity)}
}

func (o *orderStats) Len() int {
	return len(o.vals)
}

func (o *orderStats) Insert(v float64) {
	i := sort.SearchFloat64s(o.vals, v)
	o.vals = append(o.vals, 0)
	copy(o.vals[i+1:], o.vals[i:])
	o.vals[i] = v
}

// Remove deletes one occurrence of v; it reports false if v is not present
func (o *orderStats) Remove(v float64) bool {
	i := sort.SearchFloat64s(o.vals, v)
	if i >= len(o.vals) || o.vals[i] != v {
		return false
	}
	o.vals = append(o.vals[:i], o.vals[i+1:]...)
	return true
}

// Quantile uses the R-7 definition: linear interpolation between order
// statistics at h = (n-1)p
func (o *orderStats) Quantile(p float64) float64 {
	return quantileSorted(o.vals, p)
}

func (o *orderStats) Median() float64 {
	return quantileSorted(o.vals, 0.5)
}

// MAD returns the median absolute deviation around center.
// The deviations of a sorted set from any center form two sorted runs, one
// walking left and one walking right from the split point, so the median is
// found by merging them rather than sorting.
func (o *orderStats) MAD(center float64) float64 {
	n := len(o.vals)
	if n == 0 {
		return math.NaN()
	}
	split := sort.SearchFloat64s(o.vals, center)
	left, right := split-1, split

	next := func() float64 {
		var d float64
		if left >= 0 && (right >= n || center-o.vals[left] <= o.vals[right]-center) {
			d = center - o.vals[left]
			left--
		} else {
			d = o.vals[right] - center
			right++
		}
		return d
	}

	// R-7 median of the merged deviations
	h := float64(n-1) * 0.5
	lo := int(math.Floor(h))
	var a float64
	for k := 0; k <= lo; k++ {
		a = next()
	}
	if frac := h - float64(lo); frac > 0 {
		b := next()
		return a + frac*(b-a)
	}
	return a
}

func quantileSorted(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 0 {
		return math.NaN()
	}
	if n == 1 {
		return sorted[0]
	}
	h := float64(n-1) * p
	lo := int(math.Floor(h))
	if lo >= n-1 {
		return sorted[n-1]
	}
	return sorted[lo] + (h-float64(lo))*(sorted[lo+1]-sorted[lo])
}

// robustScale returns median and scaled MAD of the present values in xs
func robustScale(xs []float64) (median, scale float64, n int) {
	vals := make([]float64, 0, len(xs))
	for _, x := range xs {
		if !math.IsNaN(x) {
			vals = append(vals, x)
		}
	}
	if len(vals) == 0 {
		return math.NaN(), math.NaN(), 0
	}
	sort.Float64s(vals)
	o := &orderStats{vals: vals}
	median = o.Median()
	return median, madScale * o.MAD(median), len(vals)
}
