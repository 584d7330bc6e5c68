// Package ws pushes live scenario results to browser clients over
// WebSocket. A client gets the current snapshot on connect and an update
// whenever a scenario result or alert changes. Connecting with
// ?scenario=a,b narrows both to the listed scenarios.
package ws
