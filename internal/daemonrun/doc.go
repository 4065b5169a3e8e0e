// Package daemonrun assembles the fsoi runtime: logging, the job database,
// the status store, notification transports, the pipeline executor and the
// daemon itself. The CLI reuses BuildServices for one-shot runs so both paths
// execute requests through identical wiring.
package daemonrun
