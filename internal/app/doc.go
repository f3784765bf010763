// Package app wires the read-only series server.
//
// New builds the chi router with the middleware chain, the health and series
// handlers and, when telemetry is enabled, the Prometheus /metrics endpoint.
// Run listens on the configured port until the context is cancelled and then
// shuts the server down gracefully.
//
//	application, err := app.New(cfg, logger, providers)
//	if err != nil {
//	    return err
//	}
//	return application.Run(ctx)
package app
