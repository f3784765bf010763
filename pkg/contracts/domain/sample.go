package domain

import (
	"math"
	"time"
)

// MaskSource records which masking rule removed a value
type MaskSource string

const (
	MaskNone   MaskSource = ""
	MaskError  MaskSource = "error"
	MaskManual MaskSource = "manual"
	MaskDaily  MaskSource = "daily"
	MaskRange  MaskSource = "range"
)

// Origin records whether a sample was read from the device or inserted by the resampler
type Origin string

const (
	OriginObserved Origin = "observed"
	OriginGap      Origin = "gap"
)

// Sample is one reading of the load cell.
// A missing value is represented by NaN. RawText is the device string as logged
// and is carried through every stage untouched.
type Sample struct {
	Timestamp time.Time  `json:"timestamp"`
	Value     float64    `json:"value"`
	RawText   string     `json:"raw_text"`
	Mask      MaskSource `json:"mask,omitempty"`
	Origin    Origin     `json:"origin"`
}

// Missing reports whether the sample carries no usable value
func (s Sample) Missing() bool {
	return math.IsNaN(s.Value)
}

// Masked returns a copy of the sample with its value removed.
// The first mask source to hit a sample is kept.
func (s Sample) Masked(source MaskSource) Sample {
	s.Value = math.NaN()
	if s.Mask == MaskNone {
		s.Mask = source
	}
	return s
}

// NaN is a short alias used by callers building missing samples
func NaN() float64 {
	return math.NaN()
}
