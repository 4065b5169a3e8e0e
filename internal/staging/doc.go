// Package staging owns per-job workspaces: the fixed directory tree a
// pipeline run writes into, its removal afterwards, and sweeping of
// workspaces left behind by crashed runs.
package staging
