package resample

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "loadcell/internal/errors"
	"loadcell/pkg/contracts/domain"
)

var t0 = time.Date(2023, 6, 1, 0, 0, 0, 0, time.FixedZone("UTC-08:00", -8*3600))

func sample(offset time.Duration, value float64, raw string) domain.Sample {
	return domain.Sample{Timestamp: t0.Add(offset), Value: value, RawText: raw, Origin: domain.OriginObserved}
}

func TestSnap(t *testing.T) {
	tests := []struct {
		name    string
		gap     time.Duration
		policy  SnapPolicy
		want    time.Duration
		wantErr bool
	}{
		{"exact minute", time.Minute, SnapFloor, time.Minute, false},
		{"floor between", 7 * time.Minute, SnapFloor, 5 * time.Minute, false},
		{"floor jitter", 59*time.Second + 30*time.Minute, SnapFloor, 30 * time.Minute, false},
		{"floor above a day", 30 * time.Hour, SnapFloor, 24 * time.Hour, false},
		{"floor below minimum", 30 * time.Second, SnapFloor, 0, true},
		{"nearest rounds up", 9 * time.Minute, SnapNearest, 10 * time.Minute, false},
		{"nearest tie goes to smaller", 4 * time.Minute, SnapNearest, 3 * time.Minute, false},
		{"nearest below minimum", 30 * time.Second, SnapNearest, time.Minute, false},
		{"unknown policy", time.Minute, SnapPolicy("ceil"), 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Snap(tt.gap, tt.policy)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResampleFillsGaps(t *testing.T) {
	series := domain.Series{Samples: []domain.Sample{
		sample(3*time.Minute, 4, "+ 4"),
		sample(0, 1, "+ 1"),
		sample(time.Minute, 2, "+ 2"),
		sample(time.Minute, 99, "+ 99"), // duplicate, dropped
		sample(5*time.Minute, 6, "+ 6"),
	}}

	out, diag, err := New(SnapFloor).Resample(context.Background(), series)
	require.NoError(t, err)

	assert.Equal(t, time.Minute, out.Step)
	require.Equal(t, 6, out.Len())
	assert.Equal(t, 1, diag.DuplicatesDropped)

	for i, s := range out.Samples {
		assert.True(t, s.Timestamp.Equal(t0.Add(time.Duration(i)*time.Minute)), "slot %d", i)
	}
	assert.Equal(t, 2.0, out.Samples[1].Value, "first occurrence kept")
	assert.Equal(t, "+ 2", out.Samples[1].RawText)

	assert.True(t, out.Samples[2].Missing())
	assert.Equal(t, "", out.Samples[2].RawText)
	assert.Equal(t, domain.OriginGap, out.Samples[2].Origin)
	assert.Equal(t, domain.OriginObserved, out.Samples[3].Origin)

	// input snapshot untouched
	assert.Equal(t, 4.0, series.Samples[0].Value)
}

func TestResampleIsIdempotent(t *testing.T) {
	series := domain.Series{Samples: []domain.Sample{
		sample(0, 1, "+ 1"),
		sample(10*time.Minute, 2, "+ 2"),
		sample(40*time.Minute, math.NaN(), "E+999999."),
		sample(50*time.Minute, 3, "+ 3"),
	}}

	r := New(SnapFloor)
	once, _, err := r.Resample(context.Background(), series)
	require.NoError(t, err)
	twice, diag, err := r.Resample(context.Background(), once)
	require.NoError(t, err)

	assert.Equal(t, 0, diag.DuplicatesDropped)
	assert.Equal(t, 0, diag.OffGridDropped)
	require.Equal(t, once.Len(), twice.Len())
	assert.Equal(t, once.Step, twice.Step)
	for i := range once.Samples {
		a, b := once.Samples[i], twice.Samples[i]
		assert.True(t, a.Timestamp.Equal(b.Timestamp))
		assert.Equal(t, a.RawText, b.RawText)
		assert.Equal(t, a.Origin, b.Origin)
		assert.Equal(t, a.Missing(), b.Missing())
		if !a.Missing() {
			assert.Equal(t, a.Value, b.Value)
		}
	}
}

func TestResampleOffGrid(t *testing.T) {
	series := domain.Series{Samples: []domain.Sample{
		sample(0, 1, "+ 1"),
		sample(5*time.Minute, 2, "+ 2"),
		sample(12*time.Minute, 3, "+ 3"), // smallest gap is 3m, so the 5m reading falls between slots
		sample(15*time.Minute, 4, "+ 4"),
	}}

	out, diag, err := New(SnapFloor).Resample(context.Background(), series)
	require.NoError(t, err)
	assert.Equal(t, 3*time.Minute, out.Step)
	assert.Equal(t, 1, diag.OffGridDropped)
	assert.Equal(t, 6, out.Len())
}

func TestResampleErrors(t *testing.T) {
	tests := []struct {
		name   string
		series domain.Series
	}{
		{"empty", domain.Series{}},
		{"single timestamp", domain.Series{Samples: []domain.Sample{sample(0, 1, ""), sample(0, 2, "")}}},
		{"gap below minimum", domain.Series{Samples: []domain.Sample{sample(0, 1, ""), sample(20*time.Second, 2, "")}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := New("").Resample(context.Background(), tt.series)
			require.Error(t, err)
			assert.True(t, apperrors.IsType(err, apperrors.ErrTypeGrid))
		})
	}
}

func TestDownsample(t *testing.T) {
	var samples []domain.Sample
	for i := 0; i < 180; i++ {
		samples = append(samples, sample(time.Duration(i)*time.Minute, float64(i), ""))
	}
	samples[150].Value = math.NaN()
	series := domain.Series{Samples: samples, Step: time.Minute}

	hourly, err := Downsample(series, time.Hour)
	require.NoError(t, err)
	require.Equal(t, 3, hourly.Len())
	assert.InDelta(t, 29.5, hourly.Samples[0].Value, 1e-9)
	assert.InDelta(t, 89.5, hourly.Samples[1].Value, 1e-9)
	assert.True(t, hourly.Samples[2].Missing())
	assert.True(t, hourly.Samples[1].Timestamp.Equal(t0.Add(time.Hour)))

	_, err = Downsample(series, 90*time.Second)
	assert.Error(t, err)
	_, err = Downsample(domain.Series{Samples: samples}, time.Hour)
	assert.Error(t, err)
}
