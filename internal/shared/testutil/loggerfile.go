package testutil

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// Reading is one row of a logger file. An empty Value with a Raw device
// string reproduces how the logger writes sentinel codes.
type Reading struct {
	Time  time.Time
	Value string
	Raw   string
}

// Minutes produces n readings one minute apart. fn may return ok=false to drop a row.
func Minutes(start time.Time, n int, fn func(i int) (value, raw string, ok bool)) []Reading {
	out := make([]Reading, 0, n)
	for i := 0; i < n; i++ {
		value, raw, ok := fn(i)
		if !ok {
			continue
		}
		out = append(out, Reading{Time: start.Add(time.Duration(i) * time.Minute), Value: value, Raw: raw})
	}
	return out
}

// Steady returns a reading function for a constant load
func Steady(v float64) func(int) (string, string, bool) {
	return func(int) (string, string, bool) {
		return Load(v)
	}
}

// Load formats v the way the device logs it
func Load(v float64) (string, string, bool) {
	s := fmt.Sprintf("%g", v)
	return s, "+ " + s, true
}

// WriteLoggerCSV writes readings under dir in the datetime,load_kg,raw_reading layout
func WriteLoggerCSV(t *testing.T, dir, name string, readings []Reading) string {
	t.Helper()
	var b strings.Builder
	b.WriteString("datetime,load_kg,raw_reading\n")
	for _, r := range readings {
		fmt.Fprintf(&b, "%s,%s,%s\n", r.Time.Format(time.RFC3339), r.Value, r.Raw)
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(b.String()), 0644); err != nil {
		t.Fatalf("write logger file: %v", err)
	}
	return path
}
