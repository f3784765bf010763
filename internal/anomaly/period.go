package anomaly

import (
	"math"

	"loadcell/pkg/contracts/domain"
)

// DetectPeriods flags sustained excursions from the local level.
//
// A centred window of `window` samples slides along the series, clipped at
// both ends. A present sample is a candidate when it falls outside the IQR
// fences or the MAD band of its window. Runs of at least minRun consecutive
// candidates become periods; a missing sample ends a run.
func DetectPeriods(series domain.Series, window int, k float64, minRun int) domain.Anomalies {
	n := series.Len()
	if n == 0 {
		return nil
	}
	half := window / 2
	minPresent := max(minDataIQR, window/2)

	stats := newOrderStats(window)
	add := func(i int) {
		if i >= 0 && i < n && !series.Samples[i].Missing() {
			stats.Insert(series.Samples[i].Value)
		}
	}
	drop := func(i int) {
		if i >= 0 && i < n && !series.Samples[i].Missing() {
			stats.Remove(series.Samples[i].Value)
		}
	}

	for i := 0; i < half && i < n; i++ {
		add(i)
	}

	var periods domain.Anomalies
	runStart := -1
	runPeak := 0.0

	closeRun := func(end int) {
		if runStart >= 0 && end-runStart+1 >= minRun {
			periods = append(periods, domain.Anomaly{
				Kind: domain.AnomalyPeriod,
				Interval: domain.Interval{
					Start: series.Samples[runStart].Timestamp,
					End:   series.Samples[end].Timestamp,
				},
				Metric:     runPeak,
				StartIndex: runStart,
				EndIndex:   end,
			})
		}
		runStart = -1
		runPeak = 0
	}

	for i := 0; i < n; i++ {
		add(i + half)
		drop(i - half - 1)

		sample := series.Samples[i]
		if sample.Missing() || stats.Len() < minPresent {
			closeRun(i - 1)
			continue
		}

		deviation, outlier := classify(stats, sample.Value, k)
		if !outlier {
			closeRun(i - 1)
			continue
		}
		if runStart < 0 {
			runStart = i
		}
		runPeak = math.Max(runPeak, deviation)
	}
	closeRun(n - 1)

	return periods
}

// classify reports the distance of v from the window median and whether v lies
// outside either the IQR fences or the MAD band
func classify(stats *orderStats, v, k float64) (float64, bool) {
	median := stats.Median()
	floor := scaleFloor(median)

	q1, q3 := stats.Quantile(0.25), stats.Quantile(0.75)
	iqr := math.Max(q3-q1, floor)
	outsideFences := v < q1-k*iqr || v > q3+k*iqr

	mad := math.Max(madScale*stats.MAD(median), floor)
	outsideBand := math.Abs(v-median) > k*mad

	return math.Abs(v - median), outsideFences || outsideBand
}
