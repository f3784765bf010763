package anomaly

import (
	"math"

	"loadcell/pkg/contracts/domain"
)

// DetectEvents flags every index whose step from the previous present sample
// exceeds threshold. The return leg of a one-sample excursion is not flagged,
// so an isolated spike yields exactly one event at the spike itself.
func DetectEvents(series domain.Series, threshold float64) domain.Anomalies {
	var events domain.Anomalies
	prevFlagged := false
	prevSign := 0.0

	for i := 1; i < series.Len(); i++ {
		cur, prev := series.Samples[i], series.Samples[i-1]
		if cur.Missing() || prev.Missing() {
			prevFlagged = false
			continue
		}

		delta := cur.Value - prev.Value
		sign := math.Copysign(1, delta)
		if math.Abs(delta) <= threshold {
			prevFlagged = false
			continue
		}
		if prevFlagged && sign != prevSign {
			prevFlagged = false
			continue
		}

		events = append(events, domain.Anomaly{
			Kind:       domain.AnomalyEvent,
			Interval:   domain.Interval{Start: cur.Timestamp, End: cur.Timestamp},
			Metric:     math.Abs(delta),
			StartIndex: i,
			EndIndex:   i,
		})
		prevFlagged = true
		prevSign = sign
	}
	return events
}
