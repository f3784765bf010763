// Package config provides centralized configuration management for loadcell.
// It loads settings from multiple sources, validates them before any data is
// touched, and exposes a type-safe view to the processing stages.
//
// # Configuration Sources
//
// Configuration is loaded from the following sources in order of precedence:
//
//  1. Environment variables (highest priority)
//  2. A YAML configuration file
//  3. Default values (lowest priority)
//
// # Environment Variables
//
// All environment variables follow the pattern LOADCELL_* for namespacing:
//
//	LOADCELL_PROCESSING_TIMEZONE=-8
//	LOADCELL_PROCESSING_SMOOTHING_HALF_WIDTH=5
//	LOADCELL_PROCESSING_ADAPTIVE_ENABLED=true
//	LOADCELL_LOGGING_LEVEL=debug
//
// # Validation
//
// Every problem found at load time is returned as a CONFIG error:
//
//   - field ranges (validator tags)
//   - timezone, daily mask bounds and error patterns must parse
//   - adaptive bounds must be ordered and leave room for the fit
//   - min_load must be below max_load
//
// # Usage
//
//	cfg, err := config.Load("loadcell.yaml")
//	if err != nil {
//	    return err
//	}
//	paths, err := config.PathsFor(input, "", cfg.Processing.OutputFormat)
package config
