package config

import "loadcell/pkg/contracts"

// Application constants
const (
	// Application Info
	AppName    = "loadcell"
	AppVersion = contracts.Version

	// EnvPrefix namespaces every environment variable, e.g. LOADCELL_PROCESSING_TIMEZONE
	EnvPrefix = "LOADCELL"

	DefaultLogFile = "logs/loadcell.log"

	// Logger clock offset used by the field installation
	DefaultTimezone = "-8"

	// Device sentinels are written as E+999995. through E+999999.
	DefaultErrorPattern        = `^E\+9999\d\d\.?$`
	DefaultErrorValueThreshold = 999994.0

	// Smoothing
	DefaultHalfWidth        = 0
	DefaultMaxMissingWeight = 0.3

	// Anomaly detection
	DefaultAnomalyWindow = 81
	DefaultAnomalyMinRun = 5

	// Rate Limiting
	DefaultRateLimit = 20 // requests per second
	DefaultBurstSize = 40

	// Output naming
	ProcessedSuffix = "_processed"
	AnomaliesSuffix = "_anomalies"
	HourlySuffix    = "_hourly"
)
