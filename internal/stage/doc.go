// Package stage defines the computation stages of an FSOI request and the
// runner that invokes them.
//
// Each stage takes a typed parameter record instead of a process-wide argument
// vector. CommandRunner maps the records onto command-line flags for the
// configured external tools and runs them under a per-stage timeout, so the
// stages can be exercised independently and concurrently across requests.
package stage
