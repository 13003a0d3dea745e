// Package fetch implements the rate-governed fetch engine: a token-bucket
// admission limiter, jittered exponential backoff, a bounded concurrency
// gate, and a client that combines them with browser-identity headers and
// rate-limit detection to retrieve pages from a hostile site.
package fetch
