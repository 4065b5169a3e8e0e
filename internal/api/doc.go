// Package api defines the wire-format types of the daemon HTTP API and the
// client the CLI uses to reach it.
//
// # Key Types
//
// Job: transport representation of a job record with its request and final
// response passed through as raw JSON.
//
// SubmitResponse: outcome of POST /api/requests, including whether the
// submission converged on an existing job.
//
// DaemonStatus: daemon runtime information, workflow lanes and queue stats.
//
// # Converters
//
// FromJob: queue.Job -> Job. Subscriber handles are reduced to a count so
// channel ids never leave the daemon.
//
// FromStatusSummary: workflow.StatusSummary -> WorkflowStatus.
//
// DTOs use snake_case JSON tags to match the request and response bodies.
// Timestamps use RFC3339 with milliseconds.
package api
