package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// Paths contains the files touched by one processing run.
// This is the single source of truth for output naming.
type Paths struct {
	Input     string
	OutputDir string
	Processed string
	Anomalies string
	Hourly    string
}

// PathsFor derives output locations from the input file.
// An empty outputDir places results next to the input.
func PathsFor(input, outputDir, format string) (*Paths, error) {
	if input == "" {
		return nil, fmt.Errorf("input path is required")
	}
	abs, err := filepath.Abs(input)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve input path: %v", err)
	}

	if outputDir == "" {
		outputDir = filepath.Dir(abs)
	}

	base := strings.TrimSuffix(filepath.Base(abs), filepath.Ext(abs))
	ext := ".csv"
	if format == "xlsx" {
		ext = ".xlsx"
	}

	return &Paths{
		Input:     abs,
		OutputDir: outputDir,
		Processed: filepath.Join(outputDir, base+ProcessedSuffix+ext),
		Anomalies: filepath.Join(outputDir, base+AnomaliesSuffix+".csv"),
		Hourly:    filepath.Join(outputDir, base+HourlySuffix+".csv"),
	}, nil
}

// EnsureDirectories creates the output directory if it doesn't exist
func (p *Paths) EnsureDirectories() error {
	if err := os.MkdirAll(p.OutputDir, 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %v", p.OutputDir, err)
	}

	slog.Debug("Ensured directory exists",
		slog.String("directory", p.OutputDir))

	return nil
}

// FileExists checks if a file exists
func FileExists(path string) bool {
	_, err := os.Stat(path)
	return !os.IsNotExist(err)
}
