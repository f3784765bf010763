// Package http serves processed load series to the plotter.
//
// The surface is read-only. Handlers resolve file names inside the configured
// data directory, read them with the exporter package and render JSON with
// go-chi/render. Missing values are rendered as null.
//
// Routes:
//
//	GET /healthz                     liveness
//	GET /api/v1/files                processed files in the data directory
//	GET /api/v1/series?file=&from=&to=  one processed file, optionally windowed
//
// Errors are rendered as errors.APIError with the status derived from the
// application error type.
package http
