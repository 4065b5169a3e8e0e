// Package request defines the typed request and response records exchanged
// with clients, validates requests once at the boundary, and derives the
// fingerprint that keys status records, cache objects, and subscriber sets.
package request
