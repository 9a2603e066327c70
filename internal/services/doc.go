// Package services defines shared utilities consumed by the pipeline stages
// and the generator integration.
//
// Key responsibilities:
//   - Context helpers that stamp run IDs, stage names, attempt numbers, and
//     correlation identifiers for logging and tracing.
//   - Structured error markers plus the Wrap helper. The markers drive retry
//     classification at both the transport and the stage layer.
//
// Use these helpers when wiring new stage logic so error handling and
// observability stay uniform across the pipeline.
package services
