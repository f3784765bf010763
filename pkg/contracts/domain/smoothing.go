package domain

// SmoothingConfig describes a fixed-width triangular weighted moving average.
// Weights fall linearly from CenterWeight at offset 0 to SideWeight at offset HalfWidth.
type SmoothingConfig struct {
	HalfWidth    int     `json:"half_width" yaml:"half_width" validate:"min=0"`
	CenterWeight float64 `json:"center_weight" yaml:"center_weight" validate:"gt=0"`
	SideWeight   float64 `json:"side_weight" yaml:"side_weight" validate:"gte=0"`
	// MaxMissingCount is the largest number of missing window members tolerated, nil for no limit
	MaxMissingCount *int `json:"max_missing_count,omitempty" yaml:"max_missing_count"`
	// MaxMissingWeight is the largest fraction of total window weight that may be missing, nil for no limit
	MaxMissingWeight *float64 `json:"max_missing_weight,omitempty" yaml:"max_missing_weight"`
}

// AdaptiveConfig bounds the per-point half-width search
type AdaptiveConfig struct {
	Enabled          bool   `json:"enabled" yaml:"enabled"`
	HalfWidthMin     int    `json:"half_width_min" yaml:"half_width_min" validate:"min=1"`
	HalfWidthMax     int    `json:"half_width_max" yaml:"half_width_max" validate:"min=1"`
	PolynomialDegree int    `json:"polynomial_degree" yaml:"polynomial_degree" validate:"min=0,max=5"`
	Criterion        string `json:"criterion" yaml:"criterion" validate:"omitempty,oneof=aic aicc"`
}

// IntPtr is a helper for optional integer settings
func IntPtr(v int) *int {
	return &v
}

// FloatPtr is a helper for optional float settings
func FloatPtr(v float64) *float64 {
	return &v
}
