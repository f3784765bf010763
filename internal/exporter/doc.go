// Package exporter writes processed load-cell series.
//
// This package contains three main components:
//
// CSVWriter: Core CSV writing with streaming and atomic replacement, so a
// reader never sees a partially written file.
//
// SeriesExporter: Writes one row per grid index with the mask, anomaly and
// quality columns, as CSV or as an Excel workbook.
//
// Anomaly export: Writes the anomaly side channel as kind,start,end,metric
// rows whose start,end pair can be pasted into a bad-datetimes file.
//
// Example usage:
//
//	exp := exporter.NewSeriesExporter()
//	err := exp.WriteSeries(ctx, "out/site_processed.csv", records)
//	err = exp.WriteAnomalies("out/site_anomalies.csv", anomalies)
package exporter
