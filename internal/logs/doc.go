// Package logs tails the daemon log for the CLI.
//
// Reads are bounded: a negative offset returns the last N matching lines, a
// non-negative offset resumes from a byte position, and follow mode polls
// until new lines arrive or the wait expires. Lines can be restricted to a
// single request fingerprint.
package logs
