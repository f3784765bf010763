// Package shared holds helpers used by more than one package's tests.
//
// The testutil subpackage provides a capturing slog handler, so tests can
// assert on the events a stage emits, and a builder for logger files in the
// column layout the loader reads.
package shared
