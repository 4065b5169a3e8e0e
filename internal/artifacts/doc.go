// Package artifacts resolves the plots a request is expected to produce and
// uploads the ones that exist to the cache bucket under the request fingerprint.
package artifacts
