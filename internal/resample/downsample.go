package resample

import (
	"fmt"
	"math"
	"time"

	"gonum.org/v1/gonum/stat"

	apperrors "loadcell/internal/errors"
	"loadcell/pkg/contracts/domain"
)

// Downsample averages a regular series into coarser buckets aligned to local
// midnight. A bucket with any missing member is missing. Raw text is not
// carried, since a bucket has no single device reading.
func Downsample(series domain.Series, step time.Duration) (domain.Series, error) {
	if !series.Regular() {
		return domain.Series{}, apperrors.NewGridError("downsampling needs a regular series")
	}
	if step < series.Step || step%series.Step != 0 {
		return domain.Series{}, apperrors.NewConfigError(
			fmt.Sprintf("bucket %s is not a multiple of the series step %s", step, series.Step), nil)
	}
	if (24*time.Hour)%step != 0 {
		return domain.Series{}, apperrors.NewConfigError(
			fmt.Sprintf("bucket %s does not divide a day", step), nil)
	}

	var (
		out     []domain.Sample
		values  []float64
		current time.Time
		missing bool
	)

	flush := func() {
		if len(values) == 0 {
			return
		}
		value := math.NaN()
		if !missing {
			value = stat.Mean(values, nil)
		}
		origin := domain.OriginObserved
		if missing {
			origin = domain.OriginGap
		}
		out = append(out, domain.Sample{Timestamp: current, Value: value, Origin: origin})
	}

	for _, s := range series.Samples {
		bucket := bucketStart(s.Timestamp, step)
		if len(values) > 0 && !bucket.Equal(current) {
			flush()
			values = values[:0]
			missing = false
		}
		current = bucket
		values = append(values, s.Value)
		if s.Missing() {
			missing = true
		}
	}
	flush()

	return domain.Series{Samples: out, Step: step}, nil
}

// bucketStart truncates t to a multiple of step counted from its local midnight
func bucketStart(t time.Time, step time.Duration) time.Time {
	midnight := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	since := t.Sub(midnight)
	return midnight.Add(since - since%step)
}
