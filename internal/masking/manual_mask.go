package masking

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	apperrors "loadcell/internal/errors"
	"loadcell/pkg/contracts/domain"
)

// LoadIntervals reads a bad-datetimes file.
//
// Each non-blank line holds one timestamp, or a start and end separated by a
// comma or whitespace. Lines starting with # are comments. Timestamps without
// an offset are read in loc.
func LoadIntervals(path string, loc *time.Location) ([]domain.Interval, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, apperrors.NewConfigError("cannot open bad datetimes file", err).WithContext("path", path)
	}
	defer file.Close()

	intervals, err := ParseIntervals(file, loc)
	if err != nil {
		return nil, apperrors.NewConfigError("malformed bad datetimes file", err).WithContext("path", path)
	}
	return intervals, nil
}

// ParseIntervals reads interval declarations from r, sorted by start
func ParseIntervals(r io.Reader, loc *time.Location) ([]domain.Interval, error) {
	if loc == nil {
		loc = time.UTC
	}

	var intervals []domain.Interval
	scanner := bufio.NewScanner(r)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}

		interval, err := parseIntervalLine(text, loc)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if !interval.Valid() {
			return nil, fmt.Errorf("line %d: start %s is after end %s", line,
				interval.Start.Format(time.RFC3339), interval.End.Format(time.RFC3339))
		}
		intervals = append(intervals, interval)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	sort.SliceStable(intervals, func(i, j int) bool {
		return intervals[i].Start.Before(intervals[j].Start)
	})
	return intervals, nil
}

func parseIntervalLine(text string, loc *time.Location) (domain.Interval, error) {
	if strings.Contains(text, ",") {
		parts := strings.Split(text, ",")
		if len(parts) != 2 {
			return domain.Interval{}, fmt.Errorf("expected start,end but got %d fields", len(parts))
		}
		return parsePair(strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1]), loc)
	}

	if ts, err := parseTimestamp(text, loc); err == nil {
		return domain.Interval{Start: ts, End: ts}, nil
	}

	fields := strings.Fields(text)
	if len(fields) != 2 {
		return domain.Interval{}, fmt.Errorf("cannot parse %q as a timestamp or interval", text)
	}
	return parsePair(fields[0], fields[1], loc)
}

func parsePair(start, end string, loc *time.Location) (domain.Interval, error) {
	s, err := parseTimestamp(start, loc)
	if err != nil {
		return domain.Interval{}, err
	}
	e, err := parseTimestamp(end, loc)
	if err != nil {
		return domain.Interval{}, err
	}
	return domain.Interval{Start: s, End: e}, nil
}

var intervalLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04",
}

func parseTimestamp(s string, loc *time.Location) (time.Time, error) {
	if ts, err := time.Parse(intervalLayouts[0], s); err == nil {
		return ts, nil
	}
	for _, layout := range intervalLayouts[1:] {
		if ts, err := time.ParseInLocation(layout, s, loc); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, fmt.Errorf("unable to parse timestamp %q", s)
}

// IntervalMasker removes every sample inside any declared interval
type IntervalMasker struct {
	intervals []domain.Interval
}

// NewIntervalMasker creates a masker for the given intervals
func NewIntervalMasker(intervals []domain.Interval) *IntervalMasker {
	sorted := make([]domain.Interval, len(intervals))
	copy(sorted, intervals)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Start.Before(sorted[j].Start)
	})
	return &IntervalMasker{intervals: sorted}
}

// Apply returns a copy of the series with masked samples missing.
// Both the series and the intervals are time-ordered, so one merge pass suffices.
func (m *IntervalMasker) Apply(series domain.Series) (domain.Series, int) {
	out := series.Clone()
	masked := 0
	j := 0
	for i, s := range out.Samples {
		for j < len(m.intervals) && m.intervals[j].End.Before(s.Timestamp) {
			j++
		}
		for k := j; k < len(m.intervals) && !m.intervals[k].Start.After(s.Timestamp); k++ {
			if m.intervals[k].Contains(s.Timestamp) {
				out.Samples[i] = s.Masked(domain.MaskManual)
				masked++
				break
			}
		}
	}
	return out, masked
}

// DailyMasker removes the same time-of-day window from every day
type DailyMasker struct {
	mask domain.DailyMask
	loc  *time.Location
}

// NewDailyMasker creates a daily masker evaluated in loc
func NewDailyMasker(mask domain.DailyMask, loc *time.Location) *DailyMasker {
	if loc == nil {
		loc = time.UTC
	}
	return &DailyMasker{mask: mask, loc: loc}
}

// Apply returns a copy of the series with masked samples missing
func (m *DailyMasker) Apply(series domain.Series) (domain.Series, int) {
	out := series.Clone()
	masked := 0
	for i, s := range out.Samples {
		if m.mask.Contains(s.Timestamp.In(m.loc)) {
			out.Samples[i] = s.Masked(domain.MaskDaily)
			masked++
		}
	}
	return out, masked
}
