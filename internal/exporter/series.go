package exporter

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	apperrors "loadcell/internal/errors"
	"loadcell/pkg/contracts/domain"
)

// SeriesHeaders are the columns of a processed file
var SeriesHeaders = []string{"datetime", "load_kg", "raw_reading", "mask", "anomaly", "quality"}

// AnomalyHeaders are the columns of the anomaly side file
var AnomalyHeaders = []string{"kind", "start", "end", "metric"}

// SheetName is the worksheet used for Excel output
const SheetName = "load"

// SeriesExporter writes processed series and anomalies
type SeriesExporter struct {
	csv *CSVWriter
}

// NewSeriesExporter creates an exporter backed by a CSVWriter
func NewSeriesExporter() *SeriesExporter {
	return &SeriesExporter{csv: NewCSVWriter()}
}

func recordRow(r domain.OutputRecord) []string {
	return []string{
		formatTime(r.Timestamp),
		formatFloat(r.Value),
		r.RawText,
		string(r.Mask),
		string(r.Anomaly),
		string(r.Quality),
	}
}

// Write dispatches on the file extension
func (e *SeriesExporter) Write(ctx context.Context, path string, records []domain.OutputRecord) error {
	if strings.EqualFold(filepath.Ext(path), ".xlsx") {
		return e.WriteXLSX(ctx, path, records)
	}
	return e.WriteSeries(ctx, path, records)
}

// WriteSeries streams records to a CSV file.
// A cancelled context discards the partial file.
func (e *SeriesExporter) WriteSeries(ctx context.Context, path string, records []domain.OutputRecord) error {
	stream, err := e.csv.CreateStreamWriter(path, SeriesHeaders)
	if err != nil {
		return apperrors.NewIOError("cannot create output file", err).WithContext("path", path)
	}

	for i, r := range records {
		if i%4096 == 0 {
			if err := ctx.Err(); err != nil {
				stream.Abort()
				return err
			}
		}
		if err := stream.WriteRecord(recordRow(r)); err != nil {
			stream.Abort()
			return apperrors.NewIOError(fmt.Sprintf("failed to write row %d", i), err).WithContext("path", path)
		}
	}

	if err := stream.Close(); err != nil {
		return apperrors.NewIOError("failed to finish output file", err).WithContext("path", path)
	}

	slog.InfoContext(ctx, "Wrote processed series",
		slog.String("path", path),
		slog.Int("rows", len(records)))
	return nil
}

// WriteXLSX writes records to a single worksheet workbook
func (e *SeriesExporter) WriteXLSX(ctx context.Context, path string, records []domain.OutputRecord) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SheetName); err != nil {
		return apperrors.NewIOError("cannot prepare workbook", err)
	}
	sw, err := f.NewStreamWriter(SheetName)
	if err != nil {
		return apperrors.NewIOError("cannot prepare workbook", err)
	}

	header := make([]interface{}, len(SeriesHeaders))
	for i, h := range SeriesHeaders {
		header[i] = h
	}
	if err := sw.SetRow("A1", header); err != nil {
		return apperrors.NewIOError("failed to write header", err)
	}

	for i, r := range records {
		if i%4096 == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		row := make([]interface{}, len(SeriesHeaders))
		for j, v := range recordRow(r) {
			row[j] = v
		}
		if !r.Missing() {
			row[1] = r.Value
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return apperrors.NewIOError("row out of range", err)
		}
		if err := sw.SetRow(cell, row); err != nil {
			return apperrors.NewIOError(fmt.Sprintf("failed to write row %d", i), err)
		}
	}
	if err := sw.Flush(); err != nil {
		return apperrors.NewIOError("failed to flush workbook", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return apperrors.NewIOError("cannot create output directory", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return apperrors.NewIOError("cannot create output file", err).WithContext("path", path)
	}
	if err := f.Write(tmp); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return apperrors.NewIOError("failed to write workbook", err).WithContext("path", path)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return apperrors.NewIOError("failed to write workbook", err).WithContext("path", path)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return apperrors.NewIOError("failed to move workbook into place", err).WithContext("path", path)
	}

	slog.InfoContext(ctx, "Wrote processed workbook",
		slog.String("path", path),
		slog.Int("rows", len(records)))
	return nil
}

// WriteAnomalies writes the anomaly list in start order
func (e *SeriesExporter) WriteAnomalies(path string, anomalies domain.Anomalies) error {
	rows := make([][]string, 0, len(anomalies))
	for _, a := range anomalies {
		rows = append(rows, []string{
			string(a.Kind),
			formatTime(a.Interval.Start),
			formatTime(a.Interval.End),
			formatFloat(a.Metric),
		})
	}
	if err := e.csv.WriteCSV(path, WriteOptions{Headers: AnomalyHeaders, Records: rows}); err != nil {
		return apperrors.NewIOError("failed to write anomalies", err).WithContext("path", path)
	}
	return nil
}

// WriteHourly writes a downsampled series with only time and value columns
func (e *SeriesExporter) WriteHourly(path string, series domain.Series) error {
	rows := make([][]string, 0, series.Len())
	for _, s := range series.Samples {
		rows = append(rows, []string{formatTime(s.Timestamp), formatFloat(s.Value)})
	}
	if err := e.csv.WriteCSV(path, WriteOptions{Headers: SeriesHeaders[:2], Records: rows}); err != nil {
		return apperrors.NewIOError("failed to write hourly series", err).WithContext("path", path)
	}
	return nil
}

// ReadRecordsFile reads a processed CSV file
func ReadRecordsFile(path string) ([]domain.OutputRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, apperrors.NewNotFoundError(filepath.Base(path))
		}
		return nil, apperrors.NewIOError("cannot open processed file", err).WithContext("path", path)
	}
	defer f.Close()
	return ReadRecords(f)
}

// ReadRecords parses rows written by WriteSeries
func ReadRecords(r io.Reader) ([]domain.OutputRecord, error) {
	reader := csv.NewReader(r)
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, apperrors.NewParsingError("malformed processed file", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	rows[0][0] = strings.TrimPrefix(rows[0][0], string(utf8BOM))
	if rows[0][0] != SeriesHeaders[0] {
		return nil, apperrors.NewParsingError(fmt.Sprintf("unexpected header %q", rows[0][0]), nil)
	}

	records := make([]domain.OutputRecord, 0, len(rows)-1)
	for i, row := range rows[1:] {
		if len(row) < len(SeriesHeaders) {
			return nil, apperrors.NewParsingError(fmt.Sprintf("row %d has %d columns", i+2, len(row)), nil)
		}
		ts, err := time.Parse(time.RFC3339, row[0])
		if err != nil {
			return nil, apperrors.NewParsingError(fmt.Sprintf("row %d", i+2), err)
		}
		value, err := parseFloat(row[1])
		if err != nil {
			return nil, apperrors.NewParsingError(fmt.Sprintf("row %d", i+2), err)
		}
		records = append(records, domain.OutputRecord{
			Timestamp: ts,
			Value:     value,
			RawText:   row[2],
			Mask:      domain.MaskSource(row[3]),
			Anomaly:   domain.AnomalyKind(row[4]),
			Quality:   domain.Quality(row[5]),
		})
	}
	return records, nil
}
