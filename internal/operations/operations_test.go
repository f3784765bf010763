package operations

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"loadcell/internal/config"
	apperrors "loadcell/internal/errors"
	"loadcell/internal/exporter"
	"loadcell/internal/shared/testutil"
	"loadcell/pkg/contracts/domain"
)

// writeLoggerFile writes thirty minutes of flat readings with a spike at
// minute 10, a device error at minute 20 and no row for minute 25
func writeLoggerFile(t *testing.T) string {
	t.Helper()
	start := time.Date(2023, 6, 1, 0, 0, 0, 0, time.FixedZone("", -8*3600))
	readings := testutil.Minutes(start, 30, func(i int) (string, string, bool) {
		switch i {
		case 25:
			return "", "", false
		case 20:
			return "", "E+999996.", true
		case 10:
			return testutil.Load(500)
		default:
			return testutil.Load(100)
		}
	})
	return testutil.WriteLoggerCSV(t, t.TempDir(), "logger.csv", readings)
}

func TestBuildRegistryStageOrder(t *testing.T) {
	cfg := config.Default()
	registry, err := BuildRegistry(cfg, BuildOptions{}, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{
		StageIDLoad, StageIDNormalize, StageIDResample, StageIDErrorMask, StageIDAnomaly, StageIDWrite,
	}, registry.ListIDs())

	cfg.Processing.Smoothing.HalfWidth = 3
	cfg.Processing.DailyMask = config.DailyMaskConfig{Start: "23:00", End: "01:00"}
	registry, err = BuildRegistry(cfg, BuildOptions{Hourly: true}, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{
		StageIDLoad, StageIDNormalize, StageIDResample, StageIDErrorMask, StageIDMask,
		StageIDAnomaly, StageIDSmooth, StageIDHourly, StageIDWrite,
	}, registry.ListIDs())
}

func TestBuildRegistryRejectsBadConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Processing.Timezone = "Mars/Olympus"
	_, err := BuildRegistry(cfg, BuildOptions{}, nil)
	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrTypeConfig))

	cfg = config.Default()
	cfg.Processing.BadDatetimesFile = filepath.Join(t.TempDir(), "absent.txt")
	_, err = BuildRegistry(cfg, BuildOptions{}, nil)
	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrTypeConfig))
}

func TestPipelineProcess(t *testing.T) {
	input := writeLoggerFile(t)
	outDir := filepath.Join(t.TempDir(), "out")

	logger, logs := testutil.NewTestLogger(t)
	manager, err := NewPipeline(config.Default(), BuildOptions{}, nil, logger)
	require.NoError(t, err)

	resp, err := manager.Process(context.Background(), input, outDir)
	require.NoError(t, err)
	assert.Equal(t, OperationStatusCompleted, resp.Status)

	loaded := testutil.AssertLogged(t, logs, "Logger file loaded")
	assert.Equal(t, StageIDLoad, loaded.Attrs["stage"])
	assert.Equal(t, int64(29), loaded.Attrs["samples"])
	testutil.AssertLogged(t, logs, "Output written")
	assert.Zero(t, logs.Count(slog.LevelError))
	assert.Empty(t, resp.Error)

	summary := resp.Summary
	require.NotNil(t, summary)
	assert.Equal(t, 30, summary.Samples)
	assert.Equal(t, 2, summary.Missing)
	assert.Equal(t, 1, summary.Events)
	assert.Equal(t, 0, summary.Periods)
	assert.Equal(t, time.Minute, summary.Step)
	assert.Equal(t, filepath.Join(outDir, "logger_processed.csv"), summary.Output)

	for _, id := range []string{StageIDLoad, StageIDResample, StageIDWrite} {
		assert.Equal(t, StepStatusCompleted, resp.Steps[id].GetStatus(), id)
	}

	records, err := exporter.ReadRecordsFile(summary.Output)
	require.NoError(t, err)
	require.Len(t, records, 30)
	assert.Equal(t, domain.QualityObserved, records[0].Quality)
	assert.Equal(t, domain.AnomalyEvent, records[10].Anomaly)
	assert.Equal(t, 500.0, records[10].Value)
	assert.Equal(t, domain.MaskError, records[20].Mask)
	assert.Equal(t, "E+999996.", records[20].RawText)
	assert.True(t, records[25].Missing())
	assert.Equal(t, domain.QualityMissing, records[25].Quality)

	_, err = os.Stat(filepath.Join(outDir, "logger_anomalies.csv"))
	assert.NoError(t, err)
}

func TestPipelineSmoothingAndHourly(t *testing.T) {
	input := writeLoggerFile(t)
	outDir := t.TempDir()

	cfg := config.Default()
	cfg.Processing.Anomaly.Enabled = false
	cfg.Processing.Smoothing = config.SmoothingConfig{
		HalfWidth:        2,
		CenterWeight:     2,
		SideWeight:       1,
		MaxMissingWeight: domain.FloatPtr(0.3),
	}

	manager, err := NewPipeline(cfg, BuildOptions{Hourly: true}, nil, nil)
	require.NoError(t, err)

	resp, err := manager.Process(context.Background(), input, outDir)
	require.NoError(t, err)

	records, err := exporter.ReadRecordsFile(resp.Summary.Output)
	require.NoError(t, err)
	require.Len(t, records, 30)

	// the window at the first index reaches past the start of the series
	assert.Equal(t, domain.QualityUnresolved, records[0].Quality)
	assert.Equal(t, domain.QualitySmoothed, records[5].Quality)
	assert.Equal(t, domain.QualityFilled, records[25].Quality)
	assert.InDelta(t, 100.0, records[25].Value, 1e-9)
	assert.Equal(t, 2, resp.Summary.Unresolved)

	_, err = os.Stat(filepath.Join(outDir, "logger_anomalies.csv"))
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(filepath.Join(outDir, "logger_hourly.csv"))
	assert.NoError(t, err)
}

func TestPipelineHourlySkippedOnCoarseGrid(t *testing.T) {
	start := time.Date(2023, 6, 1, 0, 0, 0, 0, time.FixedZone("", -8*3600))
	var readings []testutil.Reading
	for i := 0; i < 12; i++ {
		value, raw, _ := testutil.Load(100)
		readings = append(readings, testutil.Reading{Time: start.Add(time.Duration(i) * 2 * time.Hour), Value: value, Raw: raw})
	}
	input := testutil.WriteLoggerCSV(t, t.TempDir(), "logger.csv", readings)
	outDir := t.TempDir()

	logger, logs := testutil.NewTestLogger(t)
	manager, err := NewPipeline(config.Default(), BuildOptions{Hourly: true}, nil, logger)
	require.NoError(t, err)

	resp, err := manager.Process(context.Background(), input, outDir)
	require.NoError(t, err)
	assert.Equal(t, 2*time.Hour, resp.Summary.Step)
	assert.Contains(t, strings.Join(resp.Summary.Diagnostics.Messages, "\n"), "hourly output skipped")
	testutil.AssertLogged(t, logs, "Hourly output skipped")

	assert.ElementsMatch(t, []string{"logger_anomalies.csv", "logger_processed.csv"}, dirNames(t, outDir))
}

func TestPipelineFailedWriteCommitsNothing(t *testing.T) {
	input := writeLoggerFile(t)
	outDir := t.TempDir()
	// a directory squatting on the anomaly file name makes the commit fail
	require.NoError(t, os.MkdirAll(filepath.Join(outDir, "logger_anomalies.csv", "keep"), 0755))

	manager, err := NewPipeline(config.Default(), BuildOptions{Hourly: true}, nil, nil)
	require.NoError(t, err)

	resp, err := manager.Process(context.Background(), input, outDir)
	require.Error(t, err)
	assert.Equal(t, StageIDWrite, FailedStep(err))
	assert.True(t, apperrors.IsType(err, apperrors.ErrTypeIO))
	assert.Empty(t, resp.Summary.Output)

	assert.Equal(t, []string{"logger_anomalies.csv"}, dirNames(t, outDir))
}

func TestPipelineKeepSnapshots(t *testing.T) {
	input := writeLoggerFile(t)

	manager, err := NewPipeline(config.Default(), BuildOptions{}, nil, nil)
	require.NoError(t, err)
	manager.GetConfig().KeepSnapshots = true

	resp, err := manager.Process(context.Background(), input, t.TempDir())
	require.NoError(t, err)
	require.NotEmpty(t, resp.Snapshots)
	assert.Equal(t, StageIDLoad, resp.Snapshots[0].Stage)
	last := resp.Snapshots[len(resp.Snapshots)-1]
	assert.Equal(t, 30, last.Series.Len())
	assert.Equal(t, 2, last.Missing)

	manager.GetConfig().KeepSnapshots = false
	resp, err = manager.Process(context.Background(), input, t.TempDir())
	require.NoError(t, err)
	assert.Empty(t, resp.Snapshots)
}

func dirNames(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func TestPipelineMissingInput(t *testing.T) {
	manager, err := NewPipeline(config.Default(), BuildOptions{}, nil, nil)
	require.NoError(t, err)

	resp, err := manager.Process(context.Background(), filepath.Join(t.TempDir(), "absent.csv"), "")
	require.Error(t, err)
	assert.Equal(t, StageIDLoad, FailedStep(err))
	assert.True(t, apperrors.IsType(err, apperrors.ErrTypeIO))
	assert.Equal(t, OperationStatusFailed, resp.Status)
	assert.Equal(t, StepStatusSkipped, resp.Steps[StageIDWrite].GetStatus())
}

func TestPipelineCancelledWritesNothing(t *testing.T) {
	input := writeLoggerFile(t)
	outDir := filepath.Join(t.TempDir(), "out")

	manager, err := NewPipeline(config.Default(), BuildOptions{}, nil, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	resp, err := manager.Process(ctx, input, outDir)
	require.Error(t, err)
	assert.Equal(t, ErrorTypeCancellation, GetErrorType(err))
	assert.Equal(t, OperationStatusCancelled, resp.Status)

	_, statErr := os.Stat(outDir)
	assert.True(t, os.IsNotExist(statErr))
}

// funcStage adapts a function into a Step for manager tests
type funcStage struct {
	BaseStage
	run func(ctx context.Context, state *OperationState) error
}

func newFuncStage(id string, run func(ctx context.Context, state *OperationState) error) *funcStage {
	return &funcStage{BaseStage: NewBaseStage(id, id), run: run}
}

func (s *funcStage) Validate(state *OperationState) error { return nil }

func (s *funcStage) Execute(ctx context.Context, state *OperationState) error {
	return s.run(ctx, state)
}

func TestManagerCallerCancellation(t *testing.T) {
	started := make(chan struct{})
	registry := NewRegistry()
	require.NoError(t, registry.Register(newFuncStage("slow", func(ctx context.Context, state *OperationState) error {
		close(started)
		<-ctx.Done()
		return ctx.Err()
	})))
	require.NoError(t, registry.Register(newFuncStage("after", func(ctx context.Context, state *OperationState) error {
		return nil
	})))
	manager := NewManager(registry, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-started
		cancel()
	}()

	resp, err := manager.Execute(ctx, OperationRequest{Input: "in.csv", OutputDir: t.TempDir()})
	require.Error(t, err)
	assert.Equal(t, ErrorTypeCancellation, GetErrorType(err))
	assert.Equal(t, "slow", FailedStep(err))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StepStatusFailed, resp.Steps["slow"].GetStatus())
	assert.Equal(t, StepStatusSkipped, resp.Steps["after"].GetStatus())
}

func TestManagerLongStageRunsToCompletion(t *testing.T) {
	registry := NewRegistry()
	require.NoError(t, registry.Register(newFuncStage("long", func(ctx context.Context, state *OperationState) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(50 * time.Millisecond):
		}
		_, hasDeadline := ctx.Deadline()
		assert.False(t, hasDeadline)
		return nil
	})))
	manager := NewManager(registry, nil, nil)

	resp, err := manager.Execute(context.Background(), OperationRequest{Input: "in.csv", OutputDir: t.TempDir()})
	require.NoError(t, err)
	assert.Equal(t, StepStatusCompleted, resp.Steps["long"].GetStatus())
}

func TestManagerWrapsStageErrors(t *testing.T) {
	cause := apperrors.NewGridError("too few timestamps")
	registry := NewRegistry()
	require.NoError(t, registry.Register(newFuncStage(StageIDResample, func(ctx context.Context, state *OperationState) error {
		return cause
	})))
	manager := NewManager(registry, nil, nil)

	_, err := manager.Execute(context.Background(), OperationRequest{ID: "run-1", Input: "in.csv", OutputDir: t.TempDir()})
	require.Error(t, err)

	var opErr *OperationError
	require.True(t, errors.As(err, &opErr))
	assert.Equal(t, StageIDResample, opErr.Step)
	assert.Equal(t, "GRID", opErr.Context["error_type"])
	assert.True(t, errors.Is(err, cause))
	assert.Contains(t, err.Error(), "too few timestamps")
}

func TestManagerNoStages(t *testing.T) {
	manager := NewManager(nil, nil, nil)
	_, err := manager.Execute(context.Background(), OperationRequest{Input: "in.csv"})
	require.Error(t, err)
	assert.Equal(t, ErrorTypeFatal, GetErrorType(err))
}

func TestRegistry(t *testing.T) {
	registry := NewRegistry()
	require.NoError(t, registry.Register(newFuncStage("a", nil)))
	require.NoError(t, registry.Register(newFuncStage("b", nil)))

	assert.Error(t, registry.Register(newFuncStage("a", nil)))
	assert.Error(t, registry.Register(nil))
	assert.Error(t, registry.Register(newFuncStage("", nil)))

	assert.True(t, registry.Has("b"))
	assert.False(t, registry.Has("c"))
	assert.Equal(t, 2, registry.Count())
	assert.Equal(t, []string{"a", "b"}, registry.ListIDs())

	_, err := registry.Get("c")
	assert.Error(t, err)
}

func TestStepStateTransitions(t *testing.T) {
	state := NewStepState("load", "Load")
	assert.Equal(t, StepStatusPending, state.GetStatus())
	assert.Zero(t, state.Duration())

	state.Start()
	assert.Equal(t, StepStatusActive, state.GetStatus())

	state.Complete("done")
	assert.Equal(t, StepStatusCompleted, state.GetStatus())
	assert.Equal(t, "done", state.Message)

	failed := NewStepState("write", "Write")
	failed.Start()
	failed.Fail(errors.New("disk full"))
	assert.Equal(t, StepStatusFailed, failed.GetStatus())
	assert.Equal(t, "disk full", failed.Message)
}

func TestOperationStateSnapshots(t *testing.T) {
	state := NewOperationState("run")
	state.EnableSnapshots()

	series := domain.Series{Samples: []domain.Sample{{Value: 1}, {Value: domain.NaN()}}, Step: time.Minute}
	state.SetSeries(StageIDLoad, series)
	state.SetSmoothed(series.WithValues([]float64{1, 1}), []bool{false, false})

	snaps := state.Snapshots()
	require.Len(t, snaps, 2)
	assert.Equal(t, StageIDLoad, snaps[0].Stage)
	assert.Equal(t, 1, snaps[0].Missing)
	assert.Equal(t, StageIDSmooth, snaps[1].Stage)
	assert.Equal(t, 0, snaps[1].Missing)

	// smoothing keeps the earlier series as base
	assert.Equal(t, 1, state.Base().MissingCount())
	records := state.Records()
	assert.Equal(t, domain.QualitySmoothed, records[0].Quality)
	assert.Equal(t, domain.QualityFilled, records[1].Quality)
}

func TestOperationErrorFormatting(t *testing.T) {
	err := NewExecutionError(StageIDWrite, errors.New("disk full"))
	assert.Equal(t, "[execution] write: step execution failed: disk full", err.Error())

	wrapped := WrapError(err, StageIDSmooth, "")
	assert.Same(t, err, wrapped)
	assert.Equal(t, StageIDWrite, wrapped.Step)

	assert.Nil(t, WrapError(nil, StageIDLoad, "x"))
	assert.Equal(t, ErrorType(""), GetErrorType(nil))
	assert.Equal(t, ErrorTypeExecution, GetErrorType(errors.New("plain")))
}
