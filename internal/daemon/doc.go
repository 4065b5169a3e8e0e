// Package daemon coordinates the long-running fsoi process.
//
// It wires configuration, the job database, the status store, the websocket
// hub and the workflow manager into a single lifecycle with flock-based
// locking to prevent multiple instances. Requests arrive over the HTTP API,
// are validated and fingerprinted at the boundary, and converge on an existing
// job when an identical request is already pending or running.
//
// Keep orchestration logic here: pipeline stages live in their own packages
// while the daemon focuses on startup, shutdown and the request surface.
package daemon
