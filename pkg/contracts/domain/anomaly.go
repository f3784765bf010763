package domain

import "sort"

// AnomalyKind distinguishes single-step jumps from sustained departures
type AnomalyKind string

const (
	AnomalyEvent  AnomalyKind = "event"
	AnomalyPeriod AnomalyKind = "period"
)

// Anomaly describes a flagged segment of the series.
// Anomalies are reported alongside the data and never alter sample values.
type Anomaly struct {
	Kind       AnomalyKind `json:"kind"`
	Interval   Interval    `json:"interval"`
	Metric     float64     `json:"metric"`
	StartIndex int         `json:"start_index"`
	EndIndex   int         `json:"end_index"`
}

// Anomalies is a list of anomalies ordered by start time
type Anomalies []Anomaly

// Sort orders anomalies by start index, events before periods on ties
func (a Anomalies) Sort() {
	sort.SliceStable(a, func(i, j int) bool {
		if a[i].StartIndex != a[j].StartIndex {
			return a[i].StartIndex < a[j].StartIndex
		}
		return a[i].Kind == AnomalyEvent && a[j].Kind != AnomalyEvent
	})
}

// CountKind returns how many anomalies have the given kind
func (a Anomalies) CountKind(kind AnomalyKind) int {
	n := 0
	for _, anomaly := range a {
		if anomaly.Kind == kind {
			n++
		}
	}
	return n
}

// KindsAt returns, for a series of length n, the anomaly kind covering each index.
// Periods take precedence over events when both cover an index.
func (a Anomalies) KindsAt(n int) []AnomalyKind {
	kinds := make([]AnomalyKind, n)
	for _, anomaly := range a {
		for i := anomaly.StartIndex; i <= anomaly.EndIndex && i < n; i++ {
			if i < 0 {
				continue
			}
			if kinds[i] == "" || anomaly.Kind == AnomalyPeriod {
				kinds[i] = anomaly.Kind
			}
		}
	}
	return kinds
}
