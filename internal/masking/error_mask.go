// Package masking removes values known to be bad while keeping their raw text.
package masking

import (
	"fmt"
	"regexp"
	"strings"

	apperrors "loadcell/internal/errors"
	"loadcell/pkg/contracts/domain"
)

// ErrorMasker removes device error sentinel readings
type ErrorMasker struct {
	patterns  []*regexp.Regexp
	threshold float64
}

// NewErrorMasker compiles the sentinel patterns. A zero threshold disables
// the value check; otherwise values strictly above it are treated as sentinels.
func NewErrorMasker(patterns []string, threshold float64) (*ErrorMasker, error) {
	m := &ErrorMasker{threshold: threshold}
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, apperrors.NewConfigError(fmt.Sprintf("invalid error pattern %q", p), err)
		}
		m.patterns = append(m.patterns, re)
	}
	return m, nil
}

// Apply returns a copy of the series with sentinel readings missing and the
// number of samples masked
func (m *ErrorMasker) Apply(series domain.Series) (domain.Series, int) {
	out := series.Clone()
	masked := 0
	for i, s := range out.Samples {
		if m.matches(s) {
			out.Samples[i] = s.Masked(domain.MaskError)
			masked++
		}
	}
	return out, masked
}

func (m *ErrorMasker) matches(s domain.Sample) bool {
	if m.threshold > 0 && !s.Missing() && s.Value > m.threshold {
		return true
	}
	raw := strings.TrimSpace(s.RawText)
	if raw == "" {
		return false
	}
	for _, re := range m.patterns {
		if re.MatchString(raw) {
			return true
		}
	}
	return false
}

// RangeMasker removes values outside a plausible load range
type RangeMasker struct {
	min *float64
	max *float64
}

// NewRangeMasker creates a range masker, nil bounds are open
func NewRangeMasker(min, max *float64) *RangeMasker {
	return &RangeMasker{min: min, max: max}
}

// Apply returns a copy of the series with out-of-range values missing
func (m *RangeMasker) Apply(series domain.Series) (domain.Series, int) {
	out := series.Clone()
	masked := 0
	for i, s := range out.Samples {
		if s.Missing() {
			continue
		}
		if (m.min != nil && s.Value < *m.min) || (m.max != nil && s.Value > *m.max) {
			out.Samples[i] = s.Masked(domain.MaskRange)
			masked++
		}
	}
	return out, masked
}
