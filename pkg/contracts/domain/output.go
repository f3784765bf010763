package domain

import (
	"math"
	"time"
)

// Quality summarizes how the value in an output row came to be
type Quality string

const (
	QualityObserved   Quality = "observed"
	QualitySmoothed   Quality = "smoothed"
	QualityFilled     Quality = "filled"
	QualityUnresolved Quality = "unresolved"
	QualityMissing    Quality = "missing"
)

// OutputRecord is one row of the processed file, one per grid index
type OutputRecord struct {
	Timestamp time.Time   `json:"timestamp"`
	Value     float64     `json:"value"`
	RawText   string      `json:"raw_text"`
	Mask      MaskSource  `json:"mask,omitempty"`
	Anomaly   AnomalyKind `json:"anomaly,omitempty"`
	Quality   Quality     `json:"quality"`
}

// Missing reports whether the row has no value
func (r OutputRecord) Missing() bool {
	return math.IsNaN(r.Value)
}

// BuildRecords combines the processed series with the anomaly list and the
// unresolved flags produced by the smoother. base is the series as it stood
// before smoothing and decides whether a value was observed or filled in.
func BuildRecords(base, processed Series, anomalies Anomalies, unresolved []bool, smoothed bool) []OutputRecord {
	kinds := anomalies.KindsAt(processed.Len())
	records := make([]OutputRecord, processed.Len())
	for i, sample := range processed.Samples {
		record := OutputRecord{
			Timestamp: sample.Timestamp,
			Value:     sample.Value,
			RawText:   sample.RawText,
			Mask:      sample.Mask,
			Anomaly:   kinds[i],
		}
		baseMissing := i < base.Len() && math.IsNaN(base.Samples[i].Value)
		switch {
		case i < len(unresolved) && unresolved[i]:
			record.Quality = QualityUnresolved
		case sample.Missing():
			record.Quality = QualityMissing
		case baseMissing:
			record.Quality = QualityFilled
		case smoothed:
			record.Quality = QualitySmoothed
		default:
			record.Quality = QualityObserved
		}
		records[i] = record
	}
	return records
}

// Diagnostics collects recoverable problems found during a run
type Diagnostics struct {
	ParseErrors       int      `json:"parse_errors"`
	SkippedRows       int      `json:"skipped_rows"`
	DuplicatesDropped int      `json:"duplicates_dropped"`
	OffGridDropped    int      `json:"off_grid_dropped"`
	InsufficientData  int      `json:"insufficient_data"`
	Messages          []string `json:"messages,omitempty"`
}

// Merge adds the counts of other to d
func (d Diagnostics) Merge(other Diagnostics) Diagnostics {
	d.ParseErrors += other.ParseErrors
	d.SkippedRows += other.SkippedRows
	d.DuplicatesDropped += other.DuplicatesDropped
	d.OffGridDropped += other.OffGridDropped
	d.InsufficientData += other.InsufficientData
	d.Messages = append(append([]string(nil), d.Messages...), other.Messages...)
	return d
}

// RunSummary is reported at the end of a processing run
type RunSummary struct {
	RunID       string        `json:"run_id"`
	Input       string        `json:"input"`
	Output      string        `json:"output"`
	Samples     int           `json:"samples"`
	Missing     int           `json:"missing"`
	Unresolved  int           `json:"unresolved"`
	Events      int           `json:"events"`
	Periods     int           `json:"periods"`
	Step        time.Duration `json:"step"`
	Duration    time.Duration `json:"duration"`
	Diagnostics Diagnostics   `json:"diagnostics"`
}
