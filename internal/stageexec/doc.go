// Package stageexec runs a single pipeline stage under a guard that logs its
// lifecycle and converts failures into client-facing error strings.
package stageexec
