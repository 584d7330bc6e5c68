// Package grpchealth publishes scenario quality through the standard
// grpc.health.v1 service, so load balancers and probes can gate on a
// production line's yield. Each scenario id is a service name; the empty
// service name reports the server itself.
package grpchealth
