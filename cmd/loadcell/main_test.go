package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"loadcell/internal/exporter"
	"loadcell/internal/shared/testutil"
	"loadcell/pkg/contracts"
	"loadcell/pkg/contracts/domain"
)

func writeInput(t *testing.T, dir string) string {
	t.Helper()
	start := time.Date(2023, 6, 1, 0, 0, 0, 0, time.FixedZone("", -8*3600))
	readings := testutil.Minutes(start, 120, func(i int) (string, string, bool) {
		if i == 70 {
			return "", "E+999999.", true
		}
		return testutil.Load(float64(100 + i%3))
	})
	return testutil.WriteLoggerCSV(t, dir, "site3.csv", readings)
}

func run(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	root := newRootCmd()
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	root.SetArgs(args)
	err := root.Execute()
	return stdout.String(), stderr.String(), err
}

func TestProcessCommand(t *testing.T) {
	dir := t.TempDir()
	input := writeInput(t, dir)
	outDir := filepath.Join(dir, "out")

	stdout, _, err := run(t, "process", input, "--output-dir", outDir, "--hourly", "--json")
	require.NoError(t, err)

	var summary domain.RunSummary
	require.NoError(t, json.Unmarshal([]byte(stdout), &summary))
	assert.Equal(t, 120, summary.Samples)
	assert.Equal(t, 1, summary.Missing)
	assert.Equal(t, time.Minute, summary.Step)
	assert.Equal(t, filepath.Join(outDir, "site3_processed.csv"), summary.Output)

	records, err := exporter.ReadRecordsFile(summary.Output)
	require.NoError(t, err)
	require.Len(t, records, 120)
	assert.Equal(t, domain.MaskError, records[70].Mask)
	assert.Equal(t, "E+999999.", records[70].RawText)

	assert.FileExists(t, filepath.Join(outDir, "site3_hourly.csv"))
}

func TestProcessCommandWithConfigFile(t *testing.T) {
	dir := t.TempDir()
	input := writeInput(t, dir)
	cfgPath := filepath.Join(dir, "loadcell.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(`
processing:
  timezone: "-8"
  max_load: 101.5
  anomaly:
    enabled: false
`), 0644))

	stdout, _, err := run(t, "--config", cfgPath, "process", input)
	require.NoError(t, err)
	assert.Contains(t, stdout, "site3_processed.csv")
	assert.Contains(t, stdout, "anomalies:  0 events, 0 periods")

	records, err := exporter.ReadRecordsFile(filepath.Join(dir, "site3_processed.csv"))
	require.NoError(t, err)
	// every third reading is 102 and falls above the configured maximum
	assert.Equal(t, domain.MaskRange, records[2].Mask)
	assert.True(t, records[2].Missing())
	assert.NoFileExists(t, filepath.Join(dir, "site3_anomalies.csv"))
}

func TestProcessCommandKeepSnapshots(t *testing.T) {
	dir := t.TempDir()
	input := writeInput(t, dir)

	stdout, _, err := run(t, "process", input, "--keep-snapshots")
	require.NoError(t, err)
	assert.Contains(t, stdout, "stages:")
	assert.Contains(t, stdout, "load         120 samples")
	assert.Contains(t, stdout, "error_mask   120 samples, 1 missing")

	stdout, _, err = run(t, "process", input)
	require.NoError(t, err)
	assert.NotContains(t, stdout, "stages:")
}

func TestProcessCommandErrors(t *testing.T) {
	dir := t.TempDir()

	_, stderr, err := run(t, "process", filepath.Join(dir, "absent.csv"))
	require.Error(t, err)
	assert.Contains(t, stderr, "failed at stage load")

	_, _, err = run(t, "process")
	assert.Error(t, err)

	badCfg := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(badCfg, []byte("processing:\n  snap_policy: sideways\n"), 0644))
	_, stderr, err = run(t, "--config", badCfg, "process", writeInput(t, dir))
	require.Error(t, err)
	assert.Contains(t, stderr, "error:")
}

func TestHourlyCommand(t *testing.T) {
	dir := t.TempDir()
	input := writeInput(t, dir)

	_, _, err := run(t, "process", input)
	require.NoError(t, err)

	processed := filepath.Join(dir, "site3_processed.csv")
	stdout, _, err := run(t, "hourly", processed)
	require.NoError(t, err)
	assert.Contains(t, stdout, "(2 hours)")

	data, err := os.ReadFile(filepath.Join(dir, "site3_hourly.csv"))
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 3)
	// the second hour holds the masked reading
	assert.True(t, strings.HasSuffix(lines[2], ","), lines[2])
}

func TestSeriesFromRecords(t *testing.T) {
	start := time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC)
	records := []domain.OutputRecord{
		{Timestamp: start, Value: 1},
		{Timestamp: start.Add(time.Minute), Value: 2},
		{Timestamp: start.Add(3 * time.Minute), Value: 3},
	}
	_, err := seriesFromRecords(records)
	assert.Error(t, err)

	series, err := seriesFromRecords(records[:2])
	require.NoError(t, err)
	assert.Equal(t, time.Minute, series.Step)
	assert.Equal(t, 2, series.Len())

	_, err = seriesFromRecords(records[:1])
	assert.Error(t, err)
}

func TestVersionFlag(t *testing.T) {
	stdout, _, err := run(t, "--version")
	require.NoError(t, err)
	assert.Contains(t, stdout, "loadcell version "+contracts.Version)
}
