package exporter

import (
	"math"
	"strconv"
	"time"
)

// formatFloat writes the shortest representation that parses back to the same value.
// Missing values become empty cells.
func formatFloat(f float64) string {
	if math.IsNaN(f) {
		return ""
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// formatTime writes RFC 3339 with the offset of the series location
func formatTime(t time.Time) string {
	return t.Format(time.RFC3339)
}

// parseFloat reads a cell written by formatFloat
func parseFloat(s string) (float64, error) {
	if s == "" {
		return math.NaN(), nil
	}
	return strconv.ParseFloat(s, 64)
}
