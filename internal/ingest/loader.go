// Package ingest reads logger output files into a series.
package ingest

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	apperrors "loadcell/internal/errors"
	"loadcell/pkg/contracts/domain"
)

// Column names written by the logging component
const (
	ColumnDatetime = "datetime"
	ColumnValue    = "load_kg"
	ColumnRaw      = "raw_reading"
)

// rawTagLength is the number of leading characters of a raw device string
// that carry the reading tag rather than the number itself
const rawTagLength = 2

// timestampLayouts lists accepted timestamp formats, zoned layouts first
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04",
}

// Options controls how logger files are read
type Options struct {
	// Location is applied to timestamps that carry no offset
	Location *time.Location
}

// Result is the outcome of loading one file
type Result struct {
	Series      domain.Series
	Diagnostics domain.Diagnostics
}

// Loader reads logger CSV files
type Loader struct {
	opts Options
}

// NewLoader creates a loader
func NewLoader(opts Options) *Loader {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	return &Loader{opts: opts}
}

// LoadFile reads a logger CSV file, or the first sheet of an .xlsx workbook.
// An unreadable file is an IO error. Malformed values are recovered as missing
// samples and counted in the diagnostics.
func (l *Loader) LoadFile(ctx context.Context, path string) (*Result, error) {
	var (
		result *Result
		err    error
	)
	if strings.EqualFold(filepath.Ext(path), ".xlsx") {
		result, err = l.loadWorkbook(ctx, path)
	} else {
		var file *os.File
		file, err = os.Open(path)
		if err != nil {
			return nil, apperrors.NewIOError("open input file", err).WithContext("path", path)
		}
		defer file.Close()
		result, err = l.Load(ctx, file)
	}
	if err != nil {
		var appErr *apperrors.AppError
		if errors.As(err, &appErr) {
			return nil, appErr.WithContext("path", path)
		}
		return nil, err
	}

	slog.InfoContext(ctx, "input loaded",
		slog.String("file", filepath.Base(path)),
		slog.Int("samples", result.Series.Len()),
		slog.Int("parse_errors", result.Diagnostics.ParseErrors),
		slog.Int("skipped_rows", result.Diagnostics.SkippedRows))

	return result, nil
}

// recordReader yields one row of cells at a time
type recordReader interface {
	Read() ([]string, error)
}

// Load reads logger CSV records from r
func (l *Loader) Load(ctx context.Context, r io.Reader) (*Result, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	return l.load(ctx, reader)
}

func (l *Loader) loadWorkbook(ctx context.Context, path string) (*Result, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, apperrors.NewIOError("open input workbook", err).WithContext("path", path)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, apperrors.NewParsingError("workbook has no sheets", nil).WithContext("path", path)
	}
	rows, err := f.Rows(sheets[0])
	if err != nil {
		return nil, apperrors.NewIOError("read input workbook", err).WithContext("path", path)
	}
	defer rows.Close()
	return l.load(ctx, &sheetReader{rows: rows})
}

// sheetReader streams worksheet rows so large workbooks are not held in memory
type sheetReader struct {
	rows *excelize.Rows
}

func (r *sheetReader) Read() ([]string, error) {
	if !r.rows.Next() {
		if err := r.rows.Error(); err != nil {
			return nil, err
		}
		return nil, io.EOF
	}
	return r.rows.Columns()
}

func (l *Loader) load(ctx context.Context, reader recordReader) (*Result, error) {
	result := &Result{}
	cols := columns{datetime: 0, value: 1, raw: 2}
	line := 0

	for {
		if line%4096 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}

		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, apperrors.NewIOError("read CSV record", err).WithContext("line", line)
		}

		if line == 1 && isHeaderRow(record) {
			cols = mapColumns(record)
			continue
		}

		sample, perr := l.parseRecord(record, cols, line)
		if perr != nil {
			if perr.skip {
				result.Diagnostics.SkippedRows++
				slog.WarnContext(ctx, "skipping CSV record",
					slog.Int("line", line),
					slog.String("error", perr.err.Error()))
			} else {
				result.Diagnostics.ParseErrors++
				slog.DebugContext(ctx, "unparseable value recovered as missing",
					slog.Int("line", line),
					slog.String("raw", sample.RawText))
			}
			result.Diagnostics.Messages = append(result.Diagnostics.Messages, perr.err.Error())
			if perr.skip {
				continue
			}
		}

		result.Series.Samples = append(result.Series.Samples, sample)
	}

	return result, nil
}

type columns struct {
	datetime int
	value    int
	raw      int
}

type parseFailure struct {
	err  error
	skip bool
}

// parseRecord converts one CSV record into a sample.
// A failure with skip set means the row carried no usable timestamp.
func (l *Loader) parseRecord(record []string, cols columns, line int) (domain.Sample, *parseFailure) {
	if len(record) <= cols.datetime || len(record) <= cols.value {
		return domain.Sample{}, &parseFailure{
			err:  apperrors.NewParsingError(fmt.Sprintf("line %d: expected at least %d columns, got %d", line, max(cols.datetime, cols.value)+1, len(record)), nil),
			skip: true,
		}
	}

	ts, err := l.ParseTimestamp(record[cols.datetime])
	if err != nil {
		return domain.Sample{}, &parseFailure{
			err:  apperrors.NewParsingError(fmt.Sprintf("line %d: bad datetime", line), err),
			skip: true,
		}
	}

	valueText := record[cols.value]
	raw := valueText
	if cols.raw >= 0 && cols.raw < len(record) {
		raw = record[cols.raw]
	}

	sample := domain.Sample{
		Timestamp: ts,
		RawText:   raw,
		Origin:    domain.OriginObserved,
	}

	value, err := ParseValue(valueText, raw)
	if err != nil {
		sample.Value = math.NaN()
		return sample, &parseFailure{
			err: apperrors.NewParsingError(fmt.Sprintf("line %d: bad load value %q", line, valueText), err),
		}
	}
	sample.Value = value
	return sample, nil
}

// ParseTimestamp accepts RFC 3339 and a few plain layouts.
// Timestamps without an offset are read in the loader's location.
func (l *Loader) ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for i, layout := range timestampLayouts {
		var (
			ts  time.Time
			err error
		)
		if i < 2 {
			ts, err = time.Parse(layout, s)
		} else {
			ts, err = time.ParseInLocation(layout, s, l.opts.Location)
		}
		if err == nil {
			return ts, nil
		}
	}
	return time.Time{}, fmt.Errorf("unable to parse timestamp: %q", s)
}

// ParseValue reads the load from the value column, falling back to the raw
// device string with its tag removed
func ParseValue(valueText, raw string) (float64, error) {
	value, err := parseFloat(valueText)
	if err == nil {
		return value, nil
	}

	if len(raw) > rawTagLength {
		if fromRaw, rawErr := parseFloat(raw[rawTagLength:]); rawErr == nil {
			return fromRaw, nil
		}
	}
	return math.NaN(), err
}

// parseFloat trims Unicode whitespace before parsing
func parseFloat(str string) (float64, error) {
	str = strings.TrimSpace(str)
	if str == "" {
		return 0, fmt.Errorf("empty value")
	}
	return strconv.ParseFloat(str, 64)
}

// isHeaderRow checks if the first row names the logger columns
func isHeaderRow(record []string) bool {
	for _, cell := range record {
		switch strings.ToLower(strings.TrimSpace(cell)) {
		case ColumnDatetime, ColumnValue, ColumnRaw:
			return true
		}
	}
	return false
}

func mapColumns(header []string) columns {
	cols := columns{datetime: -1, value: -1, raw: -1}
	for i, cell := range header {
		switch strings.ToLower(strings.TrimSpace(cell)) {
		case ColumnDatetime:
			cols.datetime = i
		case ColumnValue:
			cols.value = i
		case ColumnRaw:
			cols.raw = i
		}
	}
	// positional fallback for columns the header does not name
	if cols.datetime < 0 {
		cols.datetime = 0
	}
	if cols.value < 0 {
		cols.value = 1
	}
	return cols
}
