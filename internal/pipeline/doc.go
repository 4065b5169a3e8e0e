// Package pipeline executes an FSOI request end to end: it fetches the input
// objects, runs the per-center stages and the comparison stage, caches the
// resulting plots, releases the workspace and reports a terminal status.
//
// All mutable state of a run lives in a per-invocation value, so concurrent
// requests never share accumulators or center lists. Stage failures are
// recorded as client-facing error strings; once any error is recorded the
// executor skips every remaining stage of the request. Failures outside the
// structured flow are converted to a generic failure at progress 0.
package pipeline
