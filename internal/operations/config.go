package operations

// Config represents the operation execution configuration
type Config struct {
	// Whether to keep a copy of the series after every stage
	KeepSnapshots bool `json:"keep_snapshots"`

	// OutputFormat selects the processed file extension, csv or xlsx
	OutputFormat string `json:"output_format"`
}

// NewConfig returns the default operation configuration
func NewConfig() *Config {
	return &Config{
		OutputFormat: "csv",
	}
}
