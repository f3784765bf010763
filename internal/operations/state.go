package operations

import (
	"sync"
	"time"

	"loadcell/internal/config"
	"loadcell/pkg/contracts/domain"
)

// OperationStatusValue represents the overall operation status enum
type OperationStatusValue string

const (
	OperationStatusPending   OperationStatusValue = "pending"
	OperationStatusRunning   OperationStatusValue = "running"
	OperationStatusCompleted OperationStatusValue = "completed"
	OperationStatusFailed    OperationStatusValue = "failed"
	OperationStatusCancelled OperationStatusValue = "cancelled"
)

// Snapshot is the series as one stage left it
type Snapshot struct {
	Stage   string        `json:"stage"`
	Series  domain.Series `json:"-"`
	Missing int           `json:"missing"`
}

// OperationState is the data handed from stage to stage plus the bookkeeping
// of one run. Stages read the current series and replace it with a new one.
type OperationState struct {
	mu sync.RWMutex

	ID        string                `json:"id"`
	Status    OperationStatusValue  `json:"status"`
	StartTime time.Time             `json:"start_time"`
	EndTime   *time.Time            `json:"end_time,omitempty"`
	Steps     map[string]*StepState `json:"steps"`
	Error     error                 `json:"-"`

	// Input is the logger file being processed
	Input string
	// Paths are the files this run writes
	Paths *config.Paths

	series domain.Series
	loaded bool
	// base is the masked series before smoothing
	base       domain.Series
	anomalies  domain.Anomalies
	unresolved []bool
	smoothed   bool
	diag       domain.Diagnostics
	output     string
	hourly     *domain.Series

	keepSnapshots bool
	snapshots     []Snapshot
}

// NewOperationState creates a new operation state
func NewOperationState(id string) *OperationState {
	return &OperationState{
		ID:        id,
		Status:    OperationStatusPending,
		StartTime: time.Now(),
		Steps:     make(map[string]*StepState),
	}
}

// Start marks the operation as running
func (p *OperationState) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Status = OperationStatusRunning
	p.StartTime = time.Now()
}

// Complete marks the operation as completed
func (p *OperationState) Complete() {
	p.mu.Lock()
	defer p.mu.Unlock()
	now := time.Now()
	p.EndTime = &now
	p.Status = OperationStatusCompleted
}

// Fail marks the operation as failed
func (p *OperationState) Fail(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	now := time.Now()
	p.EndTime = &now
	p.Status = OperationStatusFailed
	if GetErrorType(err) == ErrorTypeCancellation {
		p.Status = OperationStatusCancelled
	}
	p.Error = err
}

// Duration returns the elapsed run time
func (p *OperationState) Duration() time.Duration {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.EndTime != nil {
		return p.EndTime.Sub(p.StartTime)
	}
	return time.Since(p.StartTime)
}

// SetStage registers the runtime state of a stage
func (p *OperationState) SetStage(id string, state *StepState) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Steps[id] = state
}

// GetStage returns the runtime state of a stage
func (p *OperationState) GetStage(id string) *StepState {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.Steps[id]
}

// Series returns the current series
func (p *OperationState) Series() domain.Series {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.series
}

// Loaded reports whether a stage has produced a series yet
func (p *OperationState) Loaded() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.loaded
}

// SetSeries replaces the current series
func (p *OperationState) SetSeries(stage string, series domain.Series) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.series = series
	p.loaded = true
	if p.keepSnapshots {
		p.snapshots = append(p.snapshots, Snapshot{Stage: stage, Series: series, Missing: series.MissingCount()})
	}
}

// EnableSnapshots keeps the series produced by every following stage
func (p *OperationState) EnableSnapshots() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.keepSnapshots = true
}

// Snapshots returns the series recorded after each stage when enabled
func (p *OperationState) Snapshots() []Snapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]Snapshot(nil), p.snapshots...)
}

// Base returns the series as it stood before smoothing
func (p *OperationState) Base() domain.Series {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if !p.smoothed {
		return p.series
	}
	return p.base
}

// SetSmoothed stores the smoother output and keeps the previous series as base
func (p *OperationState) SetSmoothed(series domain.Series, unresolved []bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.base = p.series
	p.series = series
	p.unresolved = unresolved
	p.smoothed = true
	if p.keepSnapshots {
		p.snapshots = append(p.snapshots, Snapshot{Stage: StageIDSmooth, Series: series, Missing: series.MissingCount()})
	}
}

// Unresolved returns the per-index unresolved flags of the smoother
func (p *OperationState) Unresolved() []bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.unresolved
}

// Smoothed reports whether the smoother ran
func (p *OperationState) Smoothed() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.smoothed
}

// Anomalies returns the anomaly side channel
func (p *OperationState) Anomalies() domain.Anomalies {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.anomalies
}

// SetAnomalies stores detected anomalies
func (p *OperationState) SetAnomalies(anomalies domain.Anomalies) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.anomalies = anomalies
}

// AddDiagnostics merges recoverable problems reported by a stage
func (p *OperationState) AddDiagnostics(d domain.Diagnostics) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.diag = p.diag.Merge(d)
}

// Diagnostics returns the accumulated diagnostics
func (p *OperationState) Diagnostics() domain.Diagnostics {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.diag
}

// SetOutput records the path the writer produced
func (p *OperationState) SetOutput(path string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.output = path
}

// Output returns the written file, empty until the writer ran
func (p *OperationState) Output() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.output
}

// SetHourly stores the downsampled series
func (p *OperationState) SetHourly(series domain.Series) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.hourly = &series
}

// Hourly returns the downsampled series and whether one was produced
func (p *OperationState) Hourly() (domain.Series, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.hourly == nil {
		return domain.Series{}, false
	}
	return *p.hourly, true
}

// Records assembles the output rows from the current state
func (p *OperationState) Records() []domain.OutputRecord {
	p.mu.RLock()
	defer p.mu.RUnlock()
	base := p.series
	if p.smoothed {
		base = p.base
	}
	return domain.BuildRecords(base, p.series, p.anomalies, p.unresolved, p.smoothed)
}

// Summary reports what the run produced
func (p *OperationState) Summary() *domain.RunSummary {
	p.mu.RLock()
	defer p.mu.RUnlock()

	unresolved := 0
	for _, u := range p.unresolved {
		if u {
			unresolved++
		}
	}
	duration := time.Since(p.StartTime)
	if p.EndTime != nil {
		duration = p.EndTime.Sub(p.StartTime)
	}
	return &domain.RunSummary{
		RunID:       p.ID,
		Input:       p.Input,
		Output:      p.output,
		Samples:     p.series.Len(),
		Missing:     p.series.MissingCount(),
		Unresolved:  unresolved,
		Events:      p.anomalies.CountKind(domain.AnomalyEvent),
		Periods:     p.anomalies.CountKind(domain.AnomalyPeriod),
		Step:        p.series.Step,
		Duration:    duration,
		Diagnostics: p.diag,
	}
}
