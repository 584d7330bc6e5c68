package grpchealth

import (
	"log/slog"
	"sync"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/obsidianstack/partyield/internal/auth"
	"github.com/obsidianstack/partyield/internal/compute"
	"github.com/obsidianstack/partyield/internal/config"
)

// Reporter maps scenario results onto health serving statuses.
//
// Reporter is safe for concurrent use.
type Reporter struct {
	srv *health.Server

	mu    sync.Mutex
	known map[string]healthpb.HealthCheckResponse_ServingStatus
}

// New returns a Reporter whose overall ("") status is SERVING.
func New() *Reporter {
	return &Reporter{
		srv:   health.NewServer(),
		known: make(map[string]healthpb.HealthCheckResponse_ServingStatus),
	}
}

// StatusFor maps a scenario state to a serving status: capable and marginal
// lines serve, incapable or unknown ones do not.
func StatusFor(state string) healthpb.HealthCheckResponse_ServingStatus {
	switch state {
	case compute.StateCapable, compute.StateMarginal:
		return healthpb.HealthCheckResponse_SERVING
	default:
		return healthpb.HealthCheckResponse_NOT_SERVING
	}
}

// Update sets the serving status of res.ScenarioID from its state.
func (r *Reporter) Update(res *compute.Result) {
	st := StatusFor(res.State())

	r.mu.Lock()
	prev, seen := r.known[res.ScenarioID]
	r.known[res.ScenarioID] = st
	r.mu.Unlock()

	if seen && prev != st {
		slog.Info("grpchealth: status changed",
			"scenario", res.ScenarioID,
			"from", prev.String(),
			"to", st.String(),
		)
	}
	r.srv.SetServingStatus(res.ScenarioID, st)
}

// Remove marks a scenario that is no longer configured as SERVICE_UNKNOWN.
func (r *Reporter) Remove(id string) {
	r.mu.Lock()
	delete(r.known, id)
	r.mu.Unlock()
	r.srv.SetServingStatus(id, healthpb.HealthCheckResponse_SERVICE_UNKNOWN)
}

// Shutdown sets every service to NOT_SERVING and ignores later updates.
func (r *Reporter) Shutdown() { r.srv.Shutdown() }

// Register attaches the health service to s.
func (r *Reporter) Register(s *grpc.Server) {
	healthpb.RegisterHealthServer(s, r.srv)
}

// NewServer builds a gRPC server guarded by the configured API key and with
// the Reporter's health service registered.
func (r *Reporter) NewServer(a config.ServerAuthConfig) *grpc.Server {
	header, key := a.EffectiveHeader(), a.Key()
	s := grpc.NewServer(
		grpc.UnaryInterceptor(auth.APIKeyInterceptor(a.Mode, header, key)),
		grpc.StreamInterceptor(auth.APIKeyStreamInterceptor(a.Mode, header, key)),
	)
	r.Register(s)
	return s
}
