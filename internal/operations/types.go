package operations

import (
	"time"

	"loadcell/pkg/contracts/domain"
)

// Pipeline stage identifiers
const (
	StageIDLoad      = "load"
	StageIDNormalize = "normalize"
	StageIDResample  = "resample"
	StageIDErrorMask = "error_mask"
	StageIDMask      = "mask"
	StageIDAnomaly   = "anomaly"
	StageIDSmooth    = "smooth"
	StageIDWrite     = "write"
	StageIDHourly    = "hourly"
)

// Pipeline stage names
const (
	StageNameLoad      = "Load Logger File"
	StageNameNormalize = "Normalize Timezone"
	StageNameResample  = "Resample To Grid"
	StageNameErrorMask = "Mask Error Readings"
	StageNameMask      = "Apply Manual Masks"
	StageNameAnomaly   = "Detect Anomalies"
	StageNameSmooth    = "Smooth Series"
	StageNameWrite     = "Write Output"
	StageNameHourly    = "Hourly Downsample"
)

// OperationRequest represents a request to process one logger file
type OperationRequest struct {
	ID        string `json:"id"`
	Input     string `json:"input"`
	OutputDir string `json:"output_dir,omitempty"`
}

// OperationResponse represents the response from a operation execution
type OperationResponse struct {
	ID       string                `json:"id"`
	Status   OperationStatusValue  `json:"status"`
	Duration time.Duration         `json:"duration"`
	Steps    map[string]*StepState `json:"steps"`
	Summary  *domain.RunSummary    `json:"summary,omitempty"`
	Error    string                `json:"error,omitempty"`

	// Snapshots holds the series after each stage when the manager keeps them
	Snapshots []Snapshot `json:"snapshots,omitempty"`
}
