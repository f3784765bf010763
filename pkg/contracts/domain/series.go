package domain

import "time"

// Series is an ordered sequence of samples with unique timestamps.
// Step is zero until the series has been placed on a regular grid.
type Series struct {
	Samples []Sample      `json:"samples"`
	Step    time.Duration `json:"step"`
}

// Len returns the number of samples
func (s Series) Len() int {
	return len(s.Samples)
}

// Regular reports whether the series carries a grid step
func (s Series) Regular() bool {
	return s.Step > 0
}

// Clone returns a deep copy so a stage can modify samples without touching its input
func (s Series) Clone() Series {
	samples := make([]Sample, len(s.Samples))
	copy(samples, s.Samples)
	return Series{Samples: samples, Step: s.Step}
}

// Values returns the sample values in order
func (s Series) Values() []float64 {
	values := make([]float64, len(s.Samples))
	for i, sample := range s.Samples {
		values[i] = sample.Value
	}
	return values
}

// WithValues returns a copy of the series with values replaced index by index
func (s Series) WithValues(values []float64) Series {
	out := s.Clone()
	for i := range out.Samples {
		if i < len(values) {
			out.Samples[i].Value = values[i]
		}
	}
	return out
}

// MissingCount returns the number of samples without a value
func (s Series) MissingCount() int {
	n := 0
	for _, sample := range s.Samples {
		if sample.Missing() {
			n++
		}
	}
	return n
}

// Span returns the first and last timestamps. ok is false for an empty series.
func (s Series) Span() (first, last time.Time, ok bool) {
	if len(s.Samples) == 0 {
		return time.Time{}, time.Time{}, false
	}
	return s.Samples[0].Timestamp, s.Samples[len(s.Samples)-1].Timestamp, true
}
