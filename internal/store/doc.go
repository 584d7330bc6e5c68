// Package store holds the latest compute.Result of every scenario in memory,
// keyed by scenario id. Entries that are not refreshed within the TTL are
// hidden from List and evicted by the background Run loop.
package store
