// Package daemonctl starts and stops a background fsoi daemon from the CLI.
//
// Liveness is judged through the HTTP status endpoint. Stopping sends SIGTERM
// to the pid recorded in the log directory and escalates to SIGKILL when the
// daemon outlives the grace period.
package daemonctl
