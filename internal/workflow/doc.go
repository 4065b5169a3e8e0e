// Package workflow drains the job queue on behalf of the daemon.
//
// The Manager runs a configurable number of worker lanes. Each lane claims the
// oldest PENDING job (moving it to RUNNING), executes it in
// <work_root>/<fingerprint> through the pipeline, heartbeats while it runs,
// and stores the terminal response. The first lane also reclaims jobs whose
// heartbeat went stale, failing them and notifying subscribers.
//
// At start-up the manager fails jobs left RUNNING by a previous process and
// sweeps workspaces that outlived workflow.stale_workspace_hours.
package workflow
