// Package normalize rewrites series timestamps into a single fixed-offset zone.
package normalize

import (
	"context"
	"log/slog"
	"time"

	"loadcell/pkg/contracts/domain"
)

// Normalizer converts every timestamp of a series into one target location
type Normalizer struct {
	loc *time.Location
}

// New creates a normalizer for the given location
func New(loc *time.Location) *Normalizer {
	if loc == nil {
		loc = time.UTC
	}
	return &Normalizer{loc: loc}
}

// Location returns the target location
func (n *Normalizer) Location() *time.Location {
	return n.loc
}

// Normalize returns a copy of the series with timestamps expressed in the target zone.
// Instants are preserved; only the wall-clock representation changes.
func (n *Normalizer) Normalize(ctx context.Context, series domain.Series) domain.Series {
	out := series.Clone()
	shifted := 0
	for i := range out.Samples {
		ts := out.Samples[i].Timestamp
		_, before := ts.Zone()
		out.Samples[i].Timestamp = ts.In(n.loc)
		if _, after := out.Samples[i].Timestamp.Zone(); after != before {
			shifted++
		}
	}

	slog.DebugContext(ctx, "timestamps normalized",
		slog.String("zone", n.loc.String()),
		slog.Int("samples", out.Len()),
		slog.Int("shifted", shifted))

	return out
}
