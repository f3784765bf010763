package operations

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"loadcell/internal/anomaly"
	apperrors "loadcell/internal/errors"
	"loadcell/internal/exporter"
	"loadcell/internal/ingest"
	"loadcell/internal/masking"
	"loadcell/internal/normalize"
	"loadcell/internal/resample"
	"loadcell/internal/smoothing"
	"loadcell/pkg/contracts/domain"
)

// stageLogger scopes a logger to one stage, falling back to the default logger
func stageLogger(logger *slog.Logger, stageID string) *slog.Logger {
	if logger == nil {
		logger = slog.Default()
	}
	return logger.With(slog.String("stage", stageID))
}

// LoadStage reads the logger file named by the run
type LoadStage struct {
	BaseStage
	loader *ingest.Loader
	logger *slog.Logger
}

// NewLoadStage creates a new load Step
func NewLoadStage(loader *ingest.Loader, logger *slog.Logger) *LoadStage {
	return &LoadStage{
		BaseStage: NewBaseStage(StageIDLoad, StageNameLoad),
		loader:    loader,
		logger:    stageLogger(logger, StageIDLoad),
	}
}

// Validate requires an input file instead of a loaded series
func (s *LoadStage) Validate(state *OperationState) error {
	if state == nil || state.Input == "" {
		return fmt.Errorf("input file is required")
	}
	return nil
}

// Execute loads the input and records recoverable parse problems
func (s *LoadStage) Execute(ctx context.Context, state *OperationState) error {
	result, err := s.loader.LoadFile(ctx, state.Input)
	if err != nil {
		return err
	}

	state.SetSeries(s.ID(), result.Series)
	state.AddDiagnostics(result.Diagnostics)

	s.logger.InfoContext(ctx, "Logger file loaded",
		slog.String("input", state.Input),
		slog.Int("samples", result.Series.Len()),
		slog.Int("parse_errors", result.Diagnostics.ParseErrors),
		slog.Int("skipped_rows", result.Diagnostics.SkippedRows))
	return nil
}

// NormalizeStage expresses every timestamp in the configured zone
type NormalizeStage struct {
	BaseStage
	normalizer *normalize.Normalizer
}

// NewNormalizeStage creates a new normalize Step
func NewNormalizeStage(normalizer *normalize.Normalizer) *NormalizeStage {
	return &NormalizeStage{
		BaseStage:  NewBaseStage(StageIDNormalize, StageNameNormalize),
		normalizer: normalizer,
	}
}

// Execute converts the series to the target location
func (s *NormalizeStage) Execute(ctx context.Context, state *OperationState) error {
	state.SetSeries(s.ID(), s.normalizer.Normalize(ctx, state.Series()))
	return nil
}

// ResampleStage places the series on a regular grid
type ResampleStage struct {
	BaseStage
	resampler *resample.Resampler
	logger    *slog.Logger
}

// NewResampleStage creates a new resample Step
func NewResampleStage(resampler *resample.Resampler, logger *slog.Logger) *ResampleStage {
	return &ResampleStage{
		BaseStage: NewBaseStage(StageIDResample, StageNameResample),
		resampler: resampler,
		logger:    stageLogger(logger, StageIDResample),
	}
}

// Execute resamples and records dropped samples
func (s *ResampleStage) Execute(ctx context.Context, state *OperationState) error {
	series, diag, err := s.resampler.Resample(ctx, state.Series())
	if err != nil {
		return err
	}
	state.SetSeries(s.ID(), series)
	state.AddDiagnostics(diag)

	s.logger.InfoContext(ctx, "Series resampled",
		slog.Duration("step", series.Step),
		slog.Int("grid_points", series.Len()),
		slog.Int("missing", series.MissingCount()))
	return nil
}

// SeriesMasker is implemented by every masking rule
type SeriesMasker interface {
	Apply(series domain.Series) (domain.Series, int)
}

// MaskStage applies a list of masking rules in order
type MaskStage struct {
	BaseStage
	maskers []SeriesMasker
	logger  *slog.Logger
}

// NewErrorMaskStage creates the Step that removes device error readings
func NewErrorMaskStage(masker *masking.ErrorMasker, logger *slog.Logger) *MaskStage {
	return &MaskStage{
		BaseStage: NewBaseStage(StageIDErrorMask, StageNameErrorMask),
		maskers:   []SeriesMasker{masker},
		logger:    stageLogger(logger, StageIDErrorMask),
	}
}

// NewMaskStage creates the Step that applies range, manual and daily masks
func NewMaskStage(maskers []SeriesMasker, logger *slog.Logger) *MaskStage {
	return &MaskStage{
		BaseStage: NewBaseStage(StageIDMask, StageNameMask),
		maskers:   maskers,
		logger:    stageLogger(logger, StageIDMask),
	}
}

// Execute runs every masker on the output of the one before
func (s *MaskStage) Execute(ctx context.Context, state *OperationState) error {
	series := state.Series()
	total := 0
	for _, masker := range s.maskers {
		if err := ctx.Err(); err != nil {
			return err
		}
		var n int
		series, n = masker.Apply(series)
		total += n
	}
	state.SetSeries(s.ID(), series)

	s.logger.InfoContext(ctx, "Masks applied",
		slog.Int("rules", len(s.maskers)),
		slog.Int("masked", total))
	return nil
}

// AnomalyStage records events and periods without touching values
type AnomalyStage struct {
	BaseStage
	detector *anomaly.Detector
}

// NewAnomalyStage creates a new anomaly Step
func NewAnomalyStage(detector *anomaly.Detector) *AnomalyStage {
	return &AnomalyStage{
		BaseStage: NewBaseStage(StageIDAnomaly, StageNameAnomaly),
		detector:  detector,
	}
}

// Validate requires a gridded series
func (s *AnomalyStage) Validate(state *OperationState) error {
	if err := s.BaseStage.Validate(state); err != nil {
		return err
	}
	if !state.Series().Regular() {
		return fmt.Errorf("anomaly detection needs a resampled series")
	}
	return nil
}

// Execute detects anomalies on the masked series
func (s *AnomalyStage) Execute(ctx context.Context, state *OperationState) error {
	anomalies, err := s.detector.Detect(ctx, state.Series())
	if err != nil {
		return err
	}
	state.SetAnomalies(anomalies)
	return nil
}

// SmoothStage runs the weighted moving average
type SmoothStage struct {
	BaseStage
	smoother *smoothing.Smoother
}

// NewSmoothStage creates a new smoothing Step
func NewSmoothStage(smoother *smoothing.Smoother) *SmoothStage {
	return &SmoothStage{
		BaseStage: NewBaseStage(StageIDSmooth, StageNameSmooth),
		smoother:  smoother,
	}
}

// Validate requires a gridded series
func (s *SmoothStage) Validate(state *OperationState) error {
	if err := s.BaseStage.Validate(state); err != nil {
		return err
	}
	if !state.Series().Regular() {
		return fmt.Errorf("smoothing needs a resampled series")
	}
	return nil
}

// Execute smooths the series and keeps the unsmoothed one as base
func (s *SmoothStage) Execute(ctx context.Context, state *OperationState) error {
	result, err := s.smoother.Smooth(ctx, state.Series())
	if err != nil {
		return err
	}
	state.SetSmoothed(result.Series, result.Unresolved)
	state.AddDiagnostics(result.Diagnostics)
	return nil
}

// WriteStage writes the processed file and, when enabled, the anomaly list
// and the hourly series. All files are staged first and committed together.
type WriteStage struct {
	BaseStage
	exporter       *exporter.SeriesExporter
	writeAnomalies bool
	logger         *slog.Logger
}

// NewWriteStage creates a new write Step
func NewWriteStage(exp *exporter.SeriesExporter, writeAnomalies bool, logger *slog.Logger) *WriteStage {
	return &WriteStage{
		BaseStage:      NewBaseStage(StageIDWrite, StageNameWrite),
		exporter:       exp,
		writeAnomalies: writeAnomalies,
		logger:         stageLogger(logger, StageIDWrite),
	}
}

// Validate requires output paths
func (s *WriteStage) Validate(state *OperationState) error {
	if err := s.BaseStage.Validate(state); err != nil {
		return err
	}
	if state.Paths == nil {
		return fmt.Errorf("output paths are not set")
	}
	return nil
}

// Execute writes the output files. Nothing is written once the run is
// cancelled, and a failed write leaves none of the outputs behind.
func (s *WriteStage) Execute(ctx context.Context, state *OperationState) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := state.Paths.EnsureDirectories(); err != nil {
		return err
	}

	batch := exporter.NewBatch()
	defer batch.Abort()

	records := state.Records()
	tmp, err := batch.Stage(state.Paths.Processed)
	if err != nil {
		return apperrors.NewIOError("cannot stage output file", err)
	}
	if err := s.exporter.Write(ctx, tmp, records); err != nil {
		return err
	}

	if s.writeAnomalies {
		tmp, err := batch.Stage(state.Paths.Anomalies)
		if err != nil {
			return apperrors.NewIOError("cannot stage anomaly file", err)
		}
		if err := s.exporter.WriteAnomalies(tmp, state.Anomalies()); err != nil {
			return err
		}
	}

	if hourly, ok := state.Hourly(); ok {
		tmp, err := batch.Stage(state.Paths.Hourly)
		if err != nil {
			return apperrors.NewIOError("cannot stage hourly file", err)
		}
		if err := s.exporter.WriteHourly(tmp, hourly); err != nil {
			return err
		}
	}

	if err := ctx.Err(); err != nil {
		return err
	}
	if err := batch.Commit(); err != nil {
		return apperrors.NewIOError("failed to commit outputs", err).WithContext("output_dir", state.Paths.OutputDir)
	}
	state.SetOutput(state.Paths.Processed)

	s.logger.InfoContext(ctx, "Output written",
		slog.String("output", state.Paths.Processed),
		slog.Int("rows", len(records)),
		slog.Int("files", batch.Len()))
	return nil
}

// HourlyStage averages the processed series into hourly buckets for the
// writer. A grid coarser than the bucket, or one that does not divide it,
// cannot be averaged; the stage then reports a diagnostic and writes nothing.
type HourlyStage struct {
	BaseStage
	bucket time.Duration
	logger *slog.Logger
}

// NewHourlyStage creates a new hourly Step
func NewHourlyStage(logger *slog.Logger) *HourlyStage {
	return &HourlyStage{
		BaseStage: NewBaseStage(StageIDHourly, StageNameHourly),
		bucket:    time.Hour,
		logger:    stageLogger(logger, StageIDHourly),
	}
}

// Execute downsamples the current series
func (s *HourlyStage) Execute(ctx context.Context, state *OperationState) error {
	series := state.Series()
	if series.Step <= 0 || series.Step > s.bucket || s.bucket%series.Step != 0 {
		msg := fmt.Sprintf("hourly output skipped: step %s does not divide %s", series.Step, s.bucket)
		state.AddDiagnostics(domain.Diagnostics{Messages: []string{msg}})
		s.logger.WarnContext(ctx, "Hourly output skipped",
			slog.Duration("step", series.Step),
			slog.Duration("bucket", s.bucket))
		return nil
	}

	hourly, err := resample.Downsample(series, s.bucket)
	if err != nil {
		return err
	}
	state.SetHourly(hourly)
	return nil
}
