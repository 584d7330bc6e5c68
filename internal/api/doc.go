// Package api implements the REST surface of the partyield server.
//
// Stateless calculation endpoints (calculate, density, curve, regions) run
// the numeric core on request parameters; scenario endpoints read the latest
// results from the store, run history from SQLite and alerts from the alert
// engine. /metrics exposes the same results in Prometheus text format.
package api
