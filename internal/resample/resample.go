// Package resample places an irregular series onto a regular time grid.
package resample

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"time"

	apperrors "loadcell/internal/errors"
	"loadcell/pkg/contracts/domain"
)

// SnapPolicy selects how the observed minimum gap is mapped onto an allowed step
type SnapPolicy string

const (
	// SnapFloor picks the largest allowed step not exceeding the gap
	SnapFloor SnapPolicy = "floor"
	// SnapNearest picks the closest allowed step, the smaller one on ties
	SnapNearest SnapPolicy = "nearest"
)

// AllowedSteps are the divisors of a day a logger may sample at, ascending
var AllowedSteps = []time.Duration{
	1 * time.Minute,
	2 * time.Minute,
	3 * time.Minute,
	5 * time.Minute,
	10 * time.Minute,
	15 * time.Minute,
	20 * time.Minute,
	30 * time.Minute,
	1 * time.Hour,
	2 * time.Hour,
	3 * time.Hour,
	6 * time.Hour,
	12 * time.Hour,
	24 * time.Hour,
}

// Resampler rebuilds a series on a regular grid
type Resampler struct {
	policy SnapPolicy
}

// New creates a resampler. An empty policy means SnapFloor.
func New(policy SnapPolicy) *Resampler {
	if policy == "" {
		policy = SnapFloor
	}
	return &Resampler{policy: policy}
}

// Resample sorts the series, drops duplicate timestamps keeping the first
// occurrence, infers the grid step and fills every empty slot with a missing
// sample. Observed samples that fall between grid slots are dropped and counted.
func (r *Resampler) Resample(ctx context.Context, series domain.Series) (domain.Series, domain.Diagnostics, error) {
	var diag domain.Diagnostics

	samples, duplicates := dedupe(series.Samples)
	diag.DuplicatesDropped = duplicates

	if len(samples) < 2 {
		return domain.Series{}, diag, apperrors.NewGridError(
			fmt.Sprintf("need at least two distinct timestamps to infer a grid, got %d", len(samples)))
	}

	gap := minPositiveGap(samples)
	step, err := Snap(gap, r.policy)
	if err != nil {
		return domain.Series{}, diag, err
	}

	first := samples[0].Timestamp
	last := samples[len(samples)-1].Timestamp
	slots := int(last.Sub(first)/step) + 1

	out := make([]domain.Sample, slots)
	for i := range out {
		out[i] = domain.Sample{
			Timestamp: first.Add(time.Duration(i) * step),
			Value:     math.NaN(),
			Origin:    domain.OriginGap,
		}
	}

	for _, s := range samples {
		offset := s.Timestamp.Sub(first)
		if offset%step != 0 {
			diag.OffGridDropped++
			continue
		}
		idx := int(offset / step)
		sample := s
		// keep the slot's wall-clock representation
		sample.Timestamp = out[idx].Timestamp
		out[idx] = sample
	}

	if diag.OffGridDropped > 0 {
		diag.Messages = append(diag.Messages,
			fmt.Sprintf("%d samples off the %s grid were dropped", diag.OffGridDropped, step))
		slog.WarnContext(ctx, "samples off grid dropped",
			slog.Int("count", diag.OffGridDropped),
			slog.Duration("step", step))
	}
	if duplicates > 0 {
		diag.Messages = append(diag.Messages,
			fmt.Sprintf("%d duplicate timestamps were dropped", duplicates))
	}

	slog.InfoContext(ctx, "series resampled",
		slog.Duration("observed_gap", gap),
		slog.Duration("step", step),
		slog.Int("input", series.Len()),
		slog.Int("output", slots),
		slog.Int("inserted", slots-len(samples)+diag.OffGridDropped))

	return domain.Series{Samples: out, Step: step}, diag, nil
}

// Snap maps an observed gap onto an allowed step
func Snap(gap time.Duration, policy SnapPolicy) (time.Duration, error) {
	if gap <= 0 {
		return 0, apperrors.NewGridError(fmt.Sprintf("observed gap %s is not positive", gap))
	}

	switch policy {
	case SnapNearest:
		best := AllowedSteps[0]
		bestDist := absDuration(gap - best)
		for _, step := range AllowedSteps[1:] {
			if d := absDuration(gap - step); d < bestDist {
				best, bestDist = step, d
			}
		}
		return best, nil
	case SnapFloor, "":
		idx := sort.Search(len(AllowedSteps), func(i int) bool { return AllowedSteps[i] > gap })
		if idx == 0 {
			return 0, apperrors.NewGridError(
				fmt.Sprintf("observed gap %s is below the smallest allowed step %s", gap, AllowedSteps[0]))
		}
		return AllowedSteps[idx-1], nil
	default:
		return 0, apperrors.NewConfigError(fmt.Sprintf("unknown snap policy %q", policy), nil)
	}
}

// dedupe sorts a copy of the samples by time and drops exact duplicates.
// The stable sort keeps input order among equal timestamps, so the first
// occurrence survives.
func dedupe(in []domain.Sample) ([]domain.Sample, int) {
	samples := make([]domain.Sample, len(in))
	copy(samples, in)
	sort.SliceStable(samples, func(i, j int) bool {
		return samples[i].Timestamp.Before(samples[j].Timestamp)
	})

	out := samples[:0]
	dropped := 0
	for i, s := range samples {
		if i > 0 && s.Timestamp.Equal(out[len(out)-1].Timestamp) {
			dropped++
			continue
		}
		out = append(out, s)
	}
	return out, dropped
}

func minPositiveGap(sorted []domain.Sample) time.Duration {
	var gap time.Duration
	for i := 1; i < len(sorted); i++ {
		d := sorted[i].Timestamp.Sub(sorted[i-1].Timestamp)
		if d > 0 && (gap == 0 || d < gap) {
			gap = d
		}
	}
	return gap
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
