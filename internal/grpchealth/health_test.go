package grpchealth_test

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/obsidianstack/partyield/internal/compute"
	"github.com/obsidianstack/partyield/internal/config"
	"github.com/obsidianstack/partyield/internal/grpchealth"
	"github.com/obsidianstack/partyield/pkg/types"
)

// startServer serves rep on a random TCP port and returns a connected client.
func startServer(t *testing.T, rep *grpchealth.Reporter, a config.ServerAuthConfig) healthpb.HealthClient {
	t.Helper()

	srv := rep.NewServer(a)
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	go srv.Serve(lis) //nolint:errcheck
	t.Cleanup(func() {
		srv.Stop()
		lis.Close()
	})

	conn, err := grpc.Dial(lis.Addr().String(),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	) //nolint:staticcheck
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return healthpb.NewHealthClient(conn)
}

func process(id string, p types.Params, err error) *compute.Result {
	return compute.NewEngine().Process(compute.Evaluation{
		ScenarioID: id,
		Params:     p,
		Resolution: 1000,
		Err:        err,
	}, time.Now())
}

func check(t *testing.T, c healthpb.HealthClient, ctx context.Context, service string) (healthpb.HealthCheckResponse_ServingStatus, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	resp, err := c.Check(ctx, &healthpb.HealthCheckRequest{Service: service})
	if err != nil {
		return healthpb.HealthCheckResponse_UNKNOWN, err
	}
	return resp.Status, nil
}

func TestStatusFor(t *testing.T) {
	tests := map[string]healthpb.HealthCheckResponse_ServingStatus{
		compute.StateCapable:   healthpb.HealthCheckResponse_SERVING,
		compute.StateMarginal:  healthpb.HealthCheckResponse_SERVING,
		compute.StateIncapable: healthpb.HealthCheckResponse_NOT_SERVING,
		compute.StateUnknown:   healthpb.HealthCheckResponse_NOT_SERVING,
	}
	for state, want := range tests {
		if got := grpchealth.StatusFor(state); got != want {
			t.Errorf("StatusFor(%q) = %v, want %v", state, got, want)
		}
	}
}

func TestCheck_PerScenario(t *testing.T) {
	rep := grpchealth.New()
	c := startServer(t, rep, config.ServerAuthConfig{})
	ctx := context.Background()

	rep.Update(process("wide", types.Params{EI: -4, ES: 4, NX: 0, O: 1}, nil))
	rep.Update(process("narrow", types.Params{EI: 0.006, ES: 0.055, NX: 0.026, O: 0.012}, nil))
	rep.Update(process("down", types.Params{}, errors.New("unreachable")))

	cases := map[string]healthpb.HealthCheckResponse_ServingStatus{
		"":       healthpb.HealthCheckResponse_SERVING,
		"wide":   healthpb.HealthCheckResponse_SERVING,
		"narrow": healthpb.HealthCheckResponse_NOT_SERVING,
		"down":   healthpb.HealthCheckResponse_NOT_SERVING,
	}
	for svc, want := range cases {
		got, err := check(t, c, ctx, svc)
		if err != nil {
			t.Fatalf("Check(%q): %v", svc, err)
		}
		if got != want {
			t.Errorf("Check(%q) = %v, want %v", svc, got, want)
		}
	}

	if _, err := check(t, c, ctx, "never-configured"); status.Code(err) != codes.NotFound {
		t.Errorf("unknown service: got %v, want NotFound", err)
	}
}

func TestRemoveAndShutdown(t *testing.T) {
	rep := grpchealth.New()
	c := startServer(t, rep, config.ServerAuthConfig{})
	ctx := context.Background()

	rep.Update(process("wide", types.Params{EI: -4, ES: 4, NX: 0, O: 1}, nil))
	rep.Remove("wide")
	if got, err := check(t, c, ctx, "wide"); err != nil || got != healthpb.HealthCheckResponse_SERVICE_UNKNOWN {
		t.Errorf("after Remove: got %v, %v", got, err)
	}

	rep.Shutdown()
	if got, _ := check(t, c, ctx, ""); got != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Errorf("overall after Shutdown: got %v, want NOT_SERVING", got)
	}
}

func TestCheck_RequiresAPIKey(t *testing.T) {
	t.Setenv("TEST_HEALTH_KEY", "s3cret")
	rep := grpchealth.New()
	c := startServer(t, rep, config.ServerAuthConfig{Mode: "apikey", KeyEnv: "TEST_HEALTH_KEY"})

	if _, err := check(t, c, context.Background(), ""); status.Code(err) != codes.Unauthenticated {
		t.Fatalf("no key: got %v, want Unauthenticated", err)
	}

	ctx := metadata.AppendToOutgoingContext(context.Background(), "x-api-key", "s3cret")
	if got, err := check(t, c, ctx, ""); err != nil || got != healthpb.HealthCheckResponse_SERVING {
		t.Errorf("with key: got %v, %v", got, err)
	}
}
