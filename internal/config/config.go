package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"

	apperrors "loadcell/internal/errors"
	"loadcell/internal/normalize"
	"loadcell/pkg/contracts/domain"
)

// Config represents the complete application configuration
type Config struct {
	Logging    LoggingConfig    `yaml:"logging" envconfig:"LOGGING"`
	Processing ProcessingConfig `yaml:"processing" envconfig:"PROCESSING"`
	Telemetry  TelemetryConfig  `yaml:"telemetry" envconfig:"TELEMETRY"`
	Server     ServerConfig     `yaml:"server" envconfig:"SERVER"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level    string `yaml:"level" envconfig:"LEVEL" validate:"oneof=debug info warn warning error"`
	Format   string `yaml:"format" envconfig:"FORMAT" validate:"oneof=json"`
	Output   string `yaml:"output" envconfig:"OUTPUT" validate:"oneof=console file both"`
	FilePath string `yaml:"file_path" envconfig:"FILE_PATH"`
}

// ProcessingConfig drives every stage of a run
type ProcessingConfig struct {
	// Timezone is the offset of the logger clock: hours ("-8"), "+05:30", "UTC" or an IANA name
	Timezone   string `yaml:"timezone" envconfig:"TIMEZONE" validate:"required"`
	SnapPolicy string `yaml:"snap_policy" envconfig:"SNAP_POLICY" validate:"oneof=floor nearest"`

	ErrorPatterns       []string `yaml:"error_patterns" envconfig:"ERROR_PATTERNS"`
	ErrorValueThreshold float64  `yaml:"error_value_threshold" envconfig:"ERROR_VALUE_THRESHOLD" validate:"gte=0"`

	MinLoad *float64 `yaml:"min_load" envconfig:"MIN_LOAD"`
	MaxLoad *float64 `yaml:"max_load" envconfig:"MAX_LOAD"`

	BadDatetimesFile string          `yaml:"bad_datetimes_file" envconfig:"BAD_DATETIMES_FILE"`
	DailyMask        DailyMaskConfig `yaml:"daily_mask" envconfig:"DAILY_MASK"`

	Smoothing SmoothingConfig `yaml:"smoothing" envconfig:"SMOOTHING"`
	Adaptive  AdaptiveConfig  `yaml:"adaptive" envconfig:"ADAPTIVE"`
	Anomaly   AnomalyConfig   `yaml:"anomaly" envconfig:"ANOMALY"`

	Workers      int    `yaml:"workers" envconfig:"WORKERS" validate:"min=1,max=256"`
	OutputFormat string `yaml:"output_format" envconfig:"OUTPUT_FORMAT" validate:"oneof=csv xlsx"`
}

// DailyMaskConfig holds the HH:MM bounds of the recurring mask, both empty to disable
type DailyMaskConfig struct {
	Start string `yaml:"start" envconfig:"START"`
	End   string `yaml:"end" envconfig:"END"`
}

// SmoothingConfig configures the fixed-width weighted moving average
type SmoothingConfig struct {
	HalfWidth        int      `yaml:"half_width" envconfig:"HALF_WIDTH" validate:"min=0"`
	CenterWeight     float64  `yaml:"center_weight" envconfig:"CENTER_WEIGHT" validate:"gt=0"`
	SideWeight       float64  `yaml:"side_weight" envconfig:"SIDE_WEIGHT" validate:"gte=0"`
	MaxMissingCount  *int     `yaml:"max_missing_count" envconfig:"MAX_MISSING_COUNT"`
	MaxMissingWeight *float64 `yaml:"max_missing_weight" envconfig:"MAX_MISSING_WEIGHT"`
}

// AdaptiveConfig configures the per-point half-width selection
type AdaptiveConfig struct {
	Enabled          bool   `yaml:"enabled" envconfig:"ENABLED"`
	HalfWidthMin     int    `yaml:"half_width_min" envconfig:"HALF_WIDTH_MIN" validate:"min=1"`
	HalfWidthMax     int    `yaml:"half_width_max" envconfig:"HALF_WIDTH_MAX" validate:"min=1"`
	PolynomialDegree int    `yaml:"polynomial_degree" envconfig:"POLYNOMIAL_DEGREE" validate:"min=0,max=5"`
	Criterion        string `yaml:"criterion" envconfig:"CRITERION" validate:"oneof=aic aicc"`
}

// AnomalyConfig configures event and period detection
type AnomalyConfig struct {
	Enabled bool `yaml:"enabled" envconfig:"ENABLED"`
	// EventThreshold is the absolute jump size; zero derives it from the data
	EventThreshold float64 `yaml:"event_threshold" envconfig:"EVENT_THRESHOLD" validate:"gte=0"`
	EventK         float64 `yaml:"event_k" envconfig:"EVENT_K" validate:"gt=0"`
	Window         int     `yaml:"window" envconfig:"WINDOW" validate:"min=3"`
	K              float64 `yaml:"k" envconfig:"K" validate:"gt=0"`
	MinRun         int     `yaml:"min_run" envconfig:"MIN_RUN" validate:"min=1"`
}

// TelemetryConfig controls tracing and metrics export
type TelemetryConfig struct {
	Enabled        bool    `yaml:"enabled" envconfig:"ENABLED"`
	TraceExporter  string  `yaml:"trace_exporter" envconfig:"TRACE_EXPORTER" validate:"oneof=stdout none"`
	MetricExporter string  `yaml:"metric_exporter" envconfig:"METRIC_EXPORTER" validate:"oneof=prometheus none"`
	SampleRatio    float64 `yaml:"sample_ratio" envconfig:"SAMPLE_RATIO" validate:"gte=0,lte=1"`
	// MetricsFile receives a Prometheus text dump at the end of a run when set
	MetricsFile string `yaml:"metrics_file" envconfig:"METRICS_FILE"`
}

// ServerConfig contains the read-only HTTP server configuration
type ServerConfig struct {
	Port            int           `yaml:"port" envconfig:"PORT" validate:"min=1,max=65535"`
	DataDir         string        `yaml:"data_dir" envconfig:"DATA_DIR"`
	ReadTimeout     time.Duration `yaml:"read_timeout" envconfig:"READ_TIMEOUT" validate:"gt=0"`
	WriteTimeout    time.Duration `yaml:"write_timeout" envconfig:"WRITE_TIMEOUT" validate:"gt=0"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" envconfig:"SHUTDOWN_TIMEOUT" validate:"gt=0"`
	RateLimitRPS    float64       `yaml:"rate_limit_rps" envconfig:"RATE_LIMIT_RPS" validate:"gt=0"`
	RateLimitBurst  int           `yaml:"rate_limit_burst" envconfig:"RATE_LIMIT_BURST" validate:"min=1"`
}

// Load builds the configuration from defaults, an optional YAML file and the environment.
// The environment wins over the file, the file wins over defaults.
func Load(configFile string) (*Config, error) {
	cfg := Default()

	if configFile == "" {
		configFile = getConfigFilePath()
	}
	if configFile != "" {
		if err := loadFromFile(configFile, cfg); err != nil {
			return nil, apperrors.NewConfigError("failed to load config from file", err).
				WithContext("path", configFile)
		}
	}

	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, apperrors.NewConfigError("failed to load config from env", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// loadFromFile overlays YAML settings onto cfg
func loadFromFile(filePath string, cfg *Config) error {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return err
	}

	return yaml.UnmarshalStrict(data, cfg)
}

var validate = validator.New()

// Validate checks field ranges and the rules that span several fields.
// All failures are returned as CONFIG errors.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return apperrors.NewConfigError("invalid configuration", err)
	}

	p := c.Processing
	if _, err := normalize.ParseTimezone(p.Timezone); err != nil {
		return apperrors.NewConfigError("invalid timezone", err).WithContext("timezone", p.Timezone)
	}

	for _, pattern := range p.ErrorPatterns {
		if _, err := regexp.Compile(pattern); err != nil {
			return apperrors.NewConfigError("invalid error pattern", err).WithContext("pattern", pattern)
		}
	}

	if p.MinLoad != nil && p.MaxLoad != nil && *p.MinLoad >= *p.MaxLoad {
		return apperrors.NewConfigError(fmt.Sprintf("min_load %g must be below max_load %g", *p.MinLoad, *p.MaxLoad), nil)
	}

	if _, _, err := p.DailyMask.Parse(); err != nil {
		return err
	}

	s := p.Smoothing
	if s.MaxMissingCount != nil && *s.MaxMissingCount < 0 {
		return apperrors.NewConfigError("max_missing_count must not be negative", nil)
	}
	if s.MaxMissingWeight != nil && (*s.MaxMissingWeight < 0 || *s.MaxMissingWeight > 1) {
		return apperrors.NewConfigError("max_missing_weight must be a fraction between 0 and 1", nil)
	}

	a := p.Adaptive
	if a.Enabled {
		if a.HalfWidthMin > a.HalfWidthMax {
			return apperrors.NewConfigError(fmt.Sprintf("half_width_min %d exceeds half_width_max %d", a.HalfWidthMin, a.HalfWidthMax), nil)
		}
		if 2*a.HalfWidthMin+1 < a.PolynomialDegree+3 {
			return apperrors.NewConfigError("half_width_min leaves no residual degrees of freedom for the polynomial fit", nil)
		}
	}

	if (c.Telemetry.MetricExporter == "none") && c.Telemetry.MetricsFile != "" {
		return apperrors.NewConfigError("metrics_file requires the prometheus metric exporter", nil)
	}

	return nil
}

// Parse returns the daily mask, ok is false when no mask is configured
func (d DailyMaskConfig) Parse() (mask domain.DailyMask, ok bool, err error) {
	if d.Start == "" && d.End == "" {
		return domain.DailyMask{}, false, nil
	}
	if d.Start == "" || d.End == "" {
		return domain.DailyMask{}, false, apperrors.NewConfigError("daily mask needs both start and end", nil)
	}
	start, err := domain.ParseTimeOfDay(d.Start)
	if err != nil {
		return domain.DailyMask{}, false, apperrors.NewConfigError("invalid daily mask start", err)
	}
	end, err := domain.ParseTimeOfDay(d.End)
	if err != nil {
		return domain.DailyMask{}, false, apperrors.NewConfigError("invalid daily mask end", err)
	}
	return domain.DailyMask{Start: start, End: end}, true, nil
}

// Domain converts the smoothing settings into the form used by the smoother
func (s SmoothingConfig) Domain() domain.SmoothingConfig {
	return domain.SmoothingConfig{
		HalfWidth:        s.HalfWidth,
		CenterWeight:     s.CenterWeight,
		SideWeight:       s.SideWeight,
		MaxMissingCount:  s.MaxMissingCount,
		MaxMissingWeight: s.MaxMissingWeight,
	}
}

// Domain converts the adaptive settings into the form used by the selector
func (a AdaptiveConfig) Domain() domain.AdaptiveConfig {
	return domain.AdaptiveConfig{
		Enabled:          a.Enabled,
		HalfWidthMin:     a.HalfWidthMin,
		HalfWidthMax:     a.HalfWidthMax,
		PolynomialDegree: a.PolynomialDegree,
		Criterion:        a.Criterion,
	}
}

// getConfigFilePath returns the path to the config file
func getConfigFilePath() string {
	// Check for config file in common locations
	locations := []string{
		"loadcell.yaml",
		"configs/loadcell.yaml",
	}

	for _, location := range locations {
		if _, err := os.Stat(location); err == nil {
			return location
		}
	}

	return "" // No config file found, use env vars only
}

// Default returns default configuration
func Default() *Config {
	return &Config{
		Logging: LoggingConfig{
			Level:    "info",
			Format:   "json",
			Output:   "console",
			FilePath: DefaultLogFile,
		},
		Processing: ProcessingConfig{
			Timezone:            DefaultTimezone,
			SnapPolicy:          "floor",
			ErrorPatterns:       []string{DefaultErrorPattern},
			ErrorValueThreshold: DefaultErrorValueThreshold,
			Smoothing: SmoothingConfig{
				HalfWidth:        DefaultHalfWidth,
				CenterWeight:     1,
				SideWeight:       1,
				MaxMissingWeight: domain.FloatPtr(DefaultMaxMissingWeight),
			},
			Adaptive: AdaptiveConfig{
				Enabled:          false,
				HalfWidthMin:     2,
				HalfWidthMax:     30,
				PolynomialDegree: 1,
				Criterion:        "aicc",
			},
			Anomaly: AnomalyConfig{
				Enabled: true,
				EventK:  8,
				Window:  DefaultAnomalyWindow,
				K:       3,
				MinRun:  DefaultAnomalyMinRun,
			},
			Workers:      4,
			OutputFormat: "csv",
		},
		Telemetry: TelemetryConfig{
			Enabled:        false,
			TraceExporter:  "none",
			MetricExporter: "prometheus",
			SampleRatio:    1.0,
		},
		Server: ServerConfig{
			Port:            8080,
			DataDir:         "data",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			ShutdownTimeout: 30 * time.Second,
			RateLimitRPS:    DefaultRateLimit,
			RateLimitBurst:  DefaultBurstSize,
		},
	}
}
