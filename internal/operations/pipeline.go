package operations

import (
	"context"
	"log/slog"

	"loadcell/internal/anomaly"
	"loadcell/internal/config"
	apperrors "loadcell/internal/errors"
	"loadcell/internal/exporter"
	"loadcell/internal/ingest"
	"loadcell/internal/masking"
	"loadcell/internal/normalize"
	"loadcell/internal/resample"
	"loadcell/internal/smoothing"
)

// BuildOptions selects optional stages
type BuildOptions struct {
	// Hourly adds the hourly downsample; its file is committed with the others
	Hourly bool
}

// BuildRegistry registers the stages a configuration asks for, in run order:
// load, normalize, resample, error mask, mask, anomaly, smooth, hourly, write.
// Every configuration problem is reported here, before any stage runs.
func BuildRegistry(cfg *config.Config, opts BuildOptions, logger *slog.Logger) (*Registry, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	p := cfg.Processing

	loc, err := normalize.ParseTimezone(p.Timezone)
	if err != nil {
		return nil, apperrors.NewConfigError("invalid timezone", err)
	}

	errorMasker, err := masking.NewErrorMasker(p.ErrorPatterns, p.ErrorValueThreshold)
	if err != nil {
		return nil, err
	}

	var maskers []SeriesMasker
	if p.MinLoad != nil || p.MaxLoad != nil {
		maskers = append(maskers, masking.NewRangeMasker(p.MinLoad, p.MaxLoad))
	}
	if p.BadDatetimesFile != "" {
		intervals, err := masking.LoadIntervals(p.BadDatetimesFile, loc)
		if err != nil {
			return nil, err
		}
		maskers = append(maskers, masking.NewIntervalMasker(intervals))
	}
	daily, ok, err := p.DailyMask.Parse()
	if err != nil {
		return nil, err
	}
	if ok {
		maskers = append(maskers, masking.NewDailyMasker(daily, loc))
	}

	smoothOpts := []smoothing.Option{smoothing.WithWorkers(p.Workers)}
	if p.Adaptive.Enabled {
		selector, err := smoothing.NewSelector(p.Adaptive.Domain())
		if err != nil {
			return nil, err
		}
		smoothOpts = append(smoothOpts, smoothing.WithSelector(selector))
	}
	smoother := smoothing.New(p.Smoothing.Domain(), smoothOpts...)

	exp := exporter.NewSeriesExporter()
	steps := []Step{
		NewLoadStage(ingest.NewLoader(ingest.Options{Location: loc}), logger),
		NewNormalizeStage(normalize.New(loc)),
		NewResampleStage(resample.New(resample.SnapPolicy(p.SnapPolicy)), logger),
		NewErrorMaskStage(errorMasker, logger),
	}
	if len(maskers) > 0 {
		steps = append(steps, NewMaskStage(maskers, logger))
	}
	if p.Anomaly.Enabled {
		steps = append(steps, NewAnomalyStage(anomaly.NewDetector(anomaly.Config{
			EventThreshold: p.Anomaly.EventThreshold,
			EventK:         p.Anomaly.EventK,
			Window:         p.Anomaly.Window,
			K:              p.Anomaly.K,
			MinRun:         p.Anomaly.MinRun,
		})))
	}
	if smoother.Enabled() {
		steps = append(steps, NewSmoothStage(smoother))
	}
	if opts.Hourly {
		steps = append(steps, NewHourlyStage(logger))
	}
	steps = append(steps, NewWriteStage(exp, p.Anomaly.Enabled, logger))

	registry := NewRegistry()
	for _, step := range steps {
		if err := registry.Register(step); err != nil {
			return nil, err
		}
	}
	return registry, nil
}

// NewPipeline builds a manager ready to process files with the given configuration
func NewPipeline(cfg *config.Config, opts BuildOptions, tracer *OperationTracer, logger *slog.Logger) (*Manager, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	registry, err := BuildRegistry(cfg, opts, logger)
	if err != nil {
		return nil, err
	}

	opCfg := NewConfig()
	opCfg.OutputFormat = cfg.Processing.OutputFormat
	return NewManager(registry, opCfg, tracer), nil
}

// Process runs one file through the manager and returns the run summary.
// The summary is returned with the error so callers can report partial results.
func (m *Manager) Process(ctx context.Context, input, outputDir string) (*OperationResponse, error) {
	return m.Execute(ctx, OperationRequest{Input: input, OutputDir: outputDir})
}
