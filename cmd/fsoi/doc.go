// Command fsoi processes FSOI plot requests in-process, runs the request
// daemon, and inspects or submits jobs to a running daemon over its HTTP API.
//
// Job inspection commands talk to the daemon when it answers and fall back to
// opening the job database directly otherwise.
package main
