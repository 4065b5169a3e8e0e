// Package services defines shared utilities consumed by the pipeline, the
// workflow manager, and external integrations.
//
// Key responsibilities:
//   - Context helpers that stamp fingerprints, stage names, centers, lanes, and
//     correlation identifiers for logging.
//   - Structured error markers plus the Wrap helper so failures carry a
//     consistent classification from the stage runner up to the HTTP API.
//
// Use these helpers when wiring new stage logic so operational behaviour (error
// handling, observability) stays uniform across the pipeline.
package services
