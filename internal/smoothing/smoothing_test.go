package smoothing

import (
	"context"
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "loadcell/internal/errors"
	"loadcell/pkg/contracts/domain"
)

func seriesOf(values []float64) domain.Series {
	start := time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC)
	s := domain.Series{Step: time.Minute}
	for i, v := range values {
		s.Samples = append(s.Samples, domain.Sample{
			Timestamp: start.Add(time.Duration(i) * time.Minute),
			Value:     v,
			RawText:   "+ raw",
			Origin:    domain.OriginObserved,
		})
	}
	return s
}

func noisePattern(n int, seed int64) []float64 {
	rng := rand.New(rand.NewSource(seed))
	out := make([]float64, n)
	for i := range out {
		out[i] = rng.NormFloat64()
	}
	return out
}

func TestWeights(t *testing.T) {
	assert.Equal(t, []float64{1, 3, 5, 3, 1}, Weights(2, 5, 1))
	assert.Equal(t, []float64{2}, Weights(0, 2, 1))
	assert.Equal(t, []float64{1, 1, 1}, Weights(1, 1, 1))
}

func TestWeightedMean(t *testing.T) {
	values := []float64{1, 2, math.NaN(), 4, 5}
	w := Weights(2, 5, 1)

	mean, ok := WeightedMean(values, 2, w, limits{})
	require.True(t, ok)
	assert.InDelta(t, 3.0, mean, 1e-12)
}

func TestWeightedMeanMissingCutoffs(t *testing.T) {
	w := Weights(2, 5, 1) // total weight 13
	maxWeight := limits{maxWeight: domain.FloatPtr(0.3)}

	tests := []struct {
		name   string
		values []float64
		lim    limits
		wantOK bool
	}{
		{"one edge missing is 1/13", []float64{math.NaN(), 2, 3, 4, 5}, maxWeight, true},
		{"centre and edge missing is 6/13", []float64{math.NaN(), 2, math.NaN(), 4, 5}, maxWeight, false},
		{"count within limit", []float64{math.NaN(), 2, 3, 4, math.NaN()}, limits{maxCount: domain.IntPtr(2)}, true},
		{"count over limit", []float64{math.NaN(), 2, 3, math.NaN(), math.NaN()}, limits{maxCount: domain.IntPtr(2)}, false},
		{"everything missing", []float64{math.NaN(), math.NaN(), math.NaN(), math.NaN(), math.NaN()}, limits{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mean, ok := WeightedMean(tt.values, 2, w, tt.lim)
			assert.Equal(t, tt.wantOK, ok)
			if !ok {
				assert.True(t, math.IsNaN(mean))
			}
		})
	}
}

func TestSmoothIdentity(t *testing.T) {
	values := []float64{3, math.NaN(), 7, 1}
	result, err := New(domain.SmoothingConfig{CenterWeight: 1, SideWeight: 1}).Smooth(context.Background(), seriesOf(values))
	require.NoError(t, err)

	assert.False(t, New(domain.SmoothingConfig{}).Enabled())
	assert.Equal(t, 3.0, result.Series.Samples[0].Value)
	assert.True(t, result.Series.Samples[1].Missing())
	assert.Equal(t, 0, result.UnresolvedCount())
}

func TestSmoothEdgesAndFill(t *testing.T) {
	// weights 1, 1.5, 2, 1.5, 1 with total 7
	cfg := domain.SmoothingConfig{HalfWidth: 2, CenterWeight: 2, SideWeight: 1, MaxMissingWeight: domain.FloatPtr(0.3)}
	input := seriesOf([]float64{10, 10, math.NaN(), 10, 10, 10})

	result, err := New(cfg, WithWorkers(2)).Smooth(context.Background(), input)
	require.NoError(t, err)

	// index 0 misses offsets -2 and -1: 2.5/7 of the weight
	assert.True(t, result.Unresolved[0])
	assert.True(t, result.Series.Samples[0].Missing())

	// the gap at index 2 is filled since only the centre weight 2/7 is missing
	assert.False(t, result.Unresolved[2])
	assert.InDelta(t, 10.0, result.Series.Samples[2].Value, 1e-12)

	assert.True(t, input.Samples[2].Missing(), "input must not change")
	assert.Equal(t, "+ raw", result.Series.Samples[2].RawText)
	assert.Equal(t, []int{2, 2, 2, 2, 2, 2}, result.HalfWidths)
}

func TestSmoothIndependentOfWorkerCount(t *testing.T) {
	values := noisePattern(997, 3)
	for i := 0; i < len(values); i += 13 {
		values[i] = math.NaN()
	}
	cfg := domain.SmoothingConfig{HalfWidth: 7, CenterWeight: 3, SideWeight: 1, MaxMissingWeight: domain.FloatPtr(0.25)}
	series := seriesOf(values)

	reference, err := New(cfg, WithWorkers(1)).Smooth(context.Background(), series)
	require.NoError(t, err)

	for _, workers := range []int{2, 5, 16} {
		result, err := New(cfg, WithWorkers(workers)).Smooth(context.Background(), series)
		require.NoError(t, err)
		assert.Equal(t, reference.Unresolved, result.Unresolved, "workers=%d", workers)
		for i := range values {
			a, b := reference.Series.Samples[i].Value, result.Series.Samples[i].Value
			if math.IsNaN(a) {
				assert.True(t, math.IsNaN(b))
				continue
			}
			assert.Equal(t, a, b, "workers=%d index=%d", workers, i)
		}
	}
}

func TestSmoothCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	cfg := domain.SmoothingConfig{HalfWidth: 1, CenterWeight: 1, SideWeight: 1}
	_, err := New(cfg).Smooth(ctx, seriesOf(noisePattern(100, 1)))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCriterionByName(t *testing.T) {
	c, err := CriterionByName("")
	require.NoError(t, err)
	assert.Equal(t, "aicc", c.Name())

	c, err = CriterionByName("AIC")
	require.NoError(t, err)
	assert.Equal(t, "aic", c.Name())

	_, err = CriterionByName("bic")
	assert.True(t, apperrors.IsType(err, apperrors.ErrTypeConfig))
}

func TestAICcPenalty(t *testing.T) {
	assert.True(t, math.IsInf(AICc{}.Score(-1, 4, 3), 1))
	assert.Greater(t, AICc{}.Score(-10, 10, 3), AIC{}.Score(-10, 10, 3))
	assert.Equal(t, 26.0, AIC{}.Score(-10, 10, 3))
}

func TestNewSelectorValidation(t *testing.T) {
	_, err := NewSelector(domain.AdaptiveConfig{HalfWidthMin: 5, HalfWidthMax: 3})
	assert.True(t, apperrors.IsType(err, apperrors.ErrTypeConfig))

	_, err = NewSelector(domain.AdaptiveConfig{HalfWidthMin: 2, HalfWidthMax: 3, Criterion: "nope"})
	assert.Error(t, err)
}

func TestSelectorHalfWidthGrowsWithNoise(t *testing.T) {
	sel, err := NewSelector(domain.AdaptiveConfig{Enabled: true, HalfWidthMin: 2, HalfWidthMax: 30, PolynomialDegree: 1})
	require.NoError(t, err)

	noise := noisePattern(201, 11)
	previous := 0
	for _, amplitude := range []float64{0.05, 0.5, 5} {
		values := make([]float64, len(noise))
		for i := range values {
			values[i] = 100 + amplitude*noise[i]
		}
		h, err := sel.Select(values, 100)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, h, previous, "amplitude %v", amplitude)
		previous = h
	}
}

func TestSelectorPrefersNarrowWindowOnCurvature(t *testing.T) {
	sel, err := NewSelector(domain.AdaptiveConfig{Enabled: true, HalfWidthMin: 2, HalfWidthMax: 30, PolynomialDegree: 1})
	require.NoError(t, err)

	noise := noisePattern(211, 5)
	flat := make([]float64, len(noise))
	curved := make([]float64, len(noise))
	for i := range noise {
		flat[i] = 0.1 * noise[i]
		curved[i] = 10*math.Sin(2*math.Pi*float64(i)/20) + 0.1*noise[i]
	}

	// index 105 sits on a crest of the sine
	hFlat, err := sel.Select(flat, 105)
	require.NoError(t, err)
	hCurved, err := sel.Select(curved, 105)
	require.NoError(t, err)
	assert.Less(t, hCurved, hFlat)
}

func TestAdaptiveSmoothInsufficientData(t *testing.T) {
	sel, err := NewSelector(domain.AdaptiveConfig{Enabled: true, HalfWidthMin: 1, HalfWidthMax: 2, PolynomialDegree: 1})
	require.NoError(t, err)

	values := []float64{math.NaN(), math.NaN(), 5, math.NaN(), math.NaN(), math.NaN()}
	cfg := domain.SmoothingConfig{CenterWeight: 1, SideWeight: 1}

	result, err := New(cfg, WithSelector(sel), WithWorkers(3)).Smooth(context.Background(), seriesOf(values))
	require.NoError(t, err)

	assert.Equal(t, len(values), result.Diagnostics.InsufficientData)
	assert.Equal(t, len(values), result.UnresolvedCount())
	assert.NotEmpty(t, result.Diagnostics.Messages)
	for _, s := range result.Series.Samples {
		assert.True(t, s.Missing())
	}
}

func TestAdaptiveSmoothRecordsWidths(t *testing.T) {
	sel, err := NewSelector(domain.AdaptiveConfig{Enabled: true, HalfWidthMin: 2, HalfWidthMax: 8, PolynomialDegree: 1, Criterion: "aicc"})
	require.NoError(t, err)

	values := noisePattern(120, 9)
	for i := range values {
		values[i] = 50 + values[i]
	}
	cfg := domain.SmoothingConfig{CenterWeight: 2, SideWeight: 1}
	result, err := New(cfg, WithSelector(sel)).Smooth(context.Background(), seriesOf(values))
	require.NoError(t, err)

	for i, h := range result.HalfWidths {
		assert.GreaterOrEqual(t, h, 2, "index %d", i)
		assert.LessOrEqual(t, h, 8, "index %d", i)
	}
	assert.Equal(t, 0, result.UnresolvedCount())
	assert.InDelta(t, 50, result.Series.Samples[60].Value, 2)
}
