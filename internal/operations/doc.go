// Package operations runs a logger file through the processing stages.
//
// A run is a fixed sequence of steps:
//
//	load -> normalize -> resample -> error_mask -> mask -> anomaly -> smooth -> write [-> hourly]
//
// Each Step reads the series left in the OperationState by the step before and
// replaces it with a new one; no stage edits samples in place. Anomalies are
// kept beside the series and never change values.
//
// Manager executes the registered steps in order, applies per-stage timeouts,
// opens a span per stage through OperationTracer and wraps any failure in an
// OperationError naming the stage. Recoverable problems found by stages are
// collected into domain.Diagnostics and returned in the run summary.
//
// Example usage:
//
//	cfg, err := config.Load("loadcell.yaml")
//	manager, err := operations.NewPipeline(cfg, operations.BuildOptions{}, nil, slog.Default())
//	resp, err := manager.Process(ctx, "logger.csv", "out")
package operations
