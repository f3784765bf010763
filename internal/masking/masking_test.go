package masking

import (
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "loadcell/internal/errors"
	"loadcell/pkg/contracts/domain"
)

var pst = time.FixedZone("UTC-08:00", -8*3600)

func gridSeries(start time.Time, step time.Duration, n int) domain.Series {
	s := domain.Series{Step: step}
	for i := 0; i < n; i++ {
		s.Samples = append(s.Samples, domain.Sample{
			Timestamp: start.Add(time.Duration(i) * step),
			Value:     15000 + float64(i),
			RawText:   "+ reading",
			Origin:    domain.OriginObserved,
		})
	}
	return s
}

func TestErrorMasker(t *testing.T) {
	m, err := NewErrorMasker([]string{`^E\+9999\d\d\.?$`}, 999994)
	require.NoError(t, err)

	series := domain.Series{Samples: []domain.Sample{
		{Value: 15000, RawText: "+ 15000.0"},
		{Value: math.NaN(), RawText: "E+999999."},
		{Value: math.NaN(), RawText: " E+999995 "},
		{Value: 999996, RawText: "??"},
		{Value: 15001, RawText: "E+12"},
	}}

	out, masked := m.Apply(series)
	assert.Equal(t, 3, masked)
	assert.False(t, out.Samples[0].Missing())
	assert.Equal(t, domain.MaskError, out.Samples[1].Mask)
	assert.Equal(t, "E+999999.", out.Samples[1].RawText)
	assert.Equal(t, domain.MaskError, out.Samples[2].Mask)
	assert.True(t, out.Samples[3].Missing())
	assert.Equal(t, domain.MaskNone, out.Samples[4].Mask)

	// input untouched
	assert.Equal(t, 999996.0, series.Samples[3].Value)
}

func TestErrorMaskerInvalidPattern(t *testing.T) {
	_, err := NewErrorMasker([]string{"("}, 0)
	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrTypeConfig))
}

func TestRangeMasker(t *testing.T) {
	series := domain.Series{Samples: []domain.Sample{{Value: 12000}, {Value: 15000}, {Value: 18000}, {Value: math.NaN()}}}
	out, masked := NewRangeMasker(domain.FloatPtr(13000), domain.FloatPtr(17000)).Apply(series)
	assert.Equal(t, 2, masked)
	assert.Equal(t, domain.MaskRange, out.Samples[0].Mask)
	assert.Equal(t, domain.MaskNone, out.Samples[1].Mask)
	assert.Equal(t, domain.MaskRange, out.Samples[2].Mask)
	assert.Equal(t, domain.MaskNone, out.Samples[3].Mask)

	_, masked = NewRangeMasker(nil, nil).Apply(series)
	assert.Equal(t, 0, masked)
}

func TestParseIntervals(t *testing.T) {
	input := `# maintenance
2023-06-01T03:00:00-08:00,2023-06-01T03:10:00-08:00

2023-06-01T01:00:00-08:00
2023-06-01 05:00:00, 2023-06-01 05:02:00
2023-06-01T16:00:00Z 2023-06-01T16:05:00Z
`
	intervals, err := ParseIntervals(strings.NewReader(input), pst)
	require.NoError(t, err)
	require.Len(t, intervals, 4)

	// sorted by start
	assert.True(t, intervals[0].Start.Equal(intervals[0].End), "single timestamp is a zero-width interval")
	assert.Equal(t, 1, intervals[0].Start.In(pst).Hour())
	assert.Equal(t, 3, intervals[1].Start.In(pst).Hour())
	assert.Equal(t, 5, intervals[2].Start.In(pst).Hour())
	_, offset := intervals[2].Start.Zone()
	assert.Equal(t, -8*3600, offset)
}

func TestParseIntervalsErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"start after end", "2023-06-01T03:10:00Z,2023-06-01T03:00:00Z\n"},
		{"garbage", "yesterday\n"},
		{"three fields", "2023-06-01T03:00:00Z,2023-06-01T03:10:00Z,2023-06-01T03:20:00Z\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseIntervals(strings.NewReader(tt.input), time.UTC)
			assert.Error(t, err)
		})
	}
}

func TestLoadIntervals(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.txt")
	require.NoError(t, os.WriteFile(path, []byte("2023-06-01T00:02:00-08:00\n"), 0644))

	intervals, err := LoadIntervals(path, pst)
	require.NoError(t, err)
	assert.Len(t, intervals, 1)

	require.NoError(t, os.WriteFile(path, []byte("not a time\n"), 0644))
	_, err = LoadIntervals(path, pst)
	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrTypeConfig))

	_, err = LoadIntervals(filepath.Join(dir, "absent.txt"), pst)
	assert.True(t, apperrors.IsType(err, apperrors.ErrTypeConfig))
}

func TestIntervalMasker(t *testing.T) {
	start := time.Date(2023, 6, 1, 0, 0, 0, 0, pst)
	series := gridSeries(start, time.Minute, 20)
	intervals := []domain.Interval{
		{Start: start.Add(10 * time.Minute), End: start.Add(12 * time.Minute)},
		{Start: start.Add(2 * time.Minute), End: start.Add(2 * time.Minute)},
		{Start: start.Add(time.Hour), End: start.Add(2 * time.Hour)},
	}

	out, masked := NewIntervalMasker(intervals).Apply(series)
	assert.Equal(t, 4, masked)
	for i, s := range out.Samples {
		want := i == 2 || (i >= 10 && i <= 12)
		assert.Equal(t, want, s.Missing(), "index %d", i)
		if want {
			assert.Equal(t, domain.MaskManual, s.Mask)
			assert.Equal(t, "+ reading", s.RawText)
		}
	}
}

func TestDailyMaskerWrapsMidnight(t *testing.T) {
	start := time.Date(2023, 6, 1, 22, 0, 0, 0, pst)
	series := gridSeries(start, 30*time.Minute, 96) // two midnight crossings
	mask := domain.DailyMask{Start: domain.TimeOfDay{Hour: 23}, End: domain.TimeOfDay{Hour: 1}}

	out, masked := NewDailyMasker(mask, pst).Apply(series)

	count := 0
	for _, s := range out.Samples {
		local := s.Timestamp.In(pst)
		minute := local.Hour()*60 + local.Minute()
		want := minute >= 23*60 || minute <= 60
		assert.Equal(t, want, s.Missing(), "at %s", local.Format(time.RFC3339))
		if want {
			count++
			assert.Equal(t, domain.MaskDaily, s.Mask)
		}
	}
	assert.Equal(t, count, masked)
	// 23:00, 23:30, 00:00, 00:30, 01:00 on each crossing
	assert.Equal(t, 10, masked)
}

func TestDailyMaskerUsesTargetZone(t *testing.T) {
	utcStart := time.Date(2023, 6, 1, 7, 0, 0, 0, time.UTC) // 23:00 in UTC-8
	series := gridSeries(utcStart, time.Hour, 3)
	mask := domain.DailyMask{Start: domain.TimeOfDay{Hour: 23}, End: domain.TimeOfDay{Hour: 23}}

	out, masked := NewDailyMasker(mask, pst).Apply(series)
	assert.Equal(t, 1, masked)
	assert.True(t, out.Samples[0].Missing())
}
