// Package auth provides API key authentication for the partyield server.
//
// APIKeyInterceptor and APIKeyStreamInterceptor guard the gRPC health
// service; Middleware guards the HTTP API. All of them pass every call
// through when mode != "apikey" or the key is empty, which is useful for
// local development with auth disabled.
package auth
