// Package preflight provides readiness checks for the filesystem, external
// commands and services fsoi depends on.
//
// The daemon runs RunAll at startup and logs every failed check; the CLI
// "fsoi status" command renders the same results as a table. Checks never
// mutate state: buckets are probed, not created.
package preflight
