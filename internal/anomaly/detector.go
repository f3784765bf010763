// Package anomaly flags suspicious segments of a regular series for operator
// review. Detection reads values and never modifies them.
package anomaly

import (
	"context"
	"log/slog"
	"math"
	"sort"

	"loadcell/pkg/contracts/domain"
)

// minDataIQR is the smallest number of present samples a window needs before
// its quartiles are trusted
const minDataIQR = 6

// Config controls event and period detection
type Config struct {
	// EventThreshold is the absolute jump that flags an event; zero derives it from the data
	EventThreshold float64
	// EventK scales the robust spread of first differences when deriving the threshold
	EventK float64
	// Window is the number of samples in the centred rolling window
	Window int
	// K scales both the IQR fences and the MAD band
	K float64
	// MinRun is the number of consecutive candidates needed to report a period
	MinRun int
}

// DefaultConfig returns settings suited to minute data from the field loggers
func DefaultConfig() Config {
	return Config{EventK: 8, Window: 81, K: 3, MinRun: 5}
}

// Detector finds event and period anomalies
type Detector struct {
	cfg Config
}

// NewDetector creates a detector, filling unset fields from DefaultConfig
func NewDetector(cfg Config) *Detector {
	def := DefaultConfig()
	if cfg.EventK <= 0 {
		cfg.EventK = def.EventK
	}
	if cfg.Window < 3 {
		cfg.Window = def.Window
	}
	if cfg.K <= 0 {
		cfg.K = def.K
	}
	if cfg.MinRun < 1 {
		cfg.MinRun = def.MinRun
	}
	return &Detector{cfg: cfg}
}

// Detect returns events and periods ordered by start
func (d *Detector) Detect(ctx context.Context, series domain.Series) (domain.Anomalies, error) {
	values := series.Values()

	threshold := d.cfg.EventThreshold
	if threshold <= 0 {
		threshold = DeriveEventThreshold(values, d.cfg.EventK)
	}
	events := DetectEvents(series, threshold)

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	periods := DetectPeriods(series, d.cfg.Window, d.cfg.K, d.cfg.MinRun)

	anomalies := make(domain.Anomalies, 0, len(events)+len(periods))
	anomalies = append(anomalies, events...)
	anomalies = append(anomalies, periods...)
	anomalies.Sort()

	slog.InfoContext(ctx, "anomaly detection complete",
		slog.Float64("event_threshold", threshold),
		slog.Int("events", len(events)),
		slog.Int("periods", len(periods)))

	return anomalies, nil
}

// scaleFloor keeps thresholds positive on perfectly flat data
func scaleFloor(level float64) float64 {
	return 1e-9 * (1 + math.Abs(level))
}

// DeriveEventThreshold returns |median(Δ)| + k·1.4826·MAD(Δ) over the first
// differences of consecutive present values. A logger that reports in fixed
// quanta and holds steady has mostly zero differences and a MAD of zero; the
// spread then comes from the nonzero deviations alone.
func DeriveEventThreshold(values []float64, k float64) float64 {
	diffs := make([]float64, 0, len(values))
	for i := 1; i < len(values); i++ {
		if math.IsNaN(values[i]) || math.IsNaN(values[i-1]) {
			continue
		}
		diffs = append(diffs, values[i]-values[i-1])
	}
	median, scale, n := robustScale(diffs)
	if n == 0 {
		return math.Inf(1)
	}
	if scale == 0 {
		scale = nonzeroSpread(diffs, median)
	}
	return math.Abs(median) + k*math.Max(scale, scaleFloor(median))
}

// nonzeroSpread returns the scaled median of the deviations from center that
// are not zero, or zero when every value equals center
func nonzeroSpread(xs []float64, center float64) float64 {
	devs := make([]float64, 0, len(xs))
	for _, x := range xs {
		if d := math.Abs(x - center); d > 0 {
			devs = append(devs, d)
		}
	}
	if len(devs) == 0 {
		return 0
	}
	sort.Float64s(devs)
	return madScale * quantileSorted(devs, 0.5)
}
