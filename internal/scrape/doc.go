// Package scrape turns the governed fetch engine into the two operations
// callers use: resolving a search into item URLs (with pagination) and
// fetching those items into listing records. It owns search URL
// construction, pagination planning, and the batch scheduler that fans
// work out under the concurrency gate.
package scrape
