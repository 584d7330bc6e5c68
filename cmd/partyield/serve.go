package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	"github.com/obsidianstack/partyield/internal/alerts"
	"github.com/obsidianstack/partyield/internal/api"
	"github.com/obsidianstack/partyield/internal/auth"
	"github.com/obsidianstack/partyield/internal/config"
	"github.com/obsidianstack/partyield/internal/evaluator"
	"github.com/obsidianstack/partyield/internal/grpchealth"
	"github.com/obsidianstack/partyield/internal/history"
	"github.com/obsidianstack/partyield/internal/store"
	"github.com/obsidianstack/partyield/internal/ws"
)

const (
	shutdownTimeout   = 10 * time.Second
	retentionInterval = time.Hour
)

func newServeCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP, WebSocket and gRPC health service",
		Long: `Run the long-lived service: configured scenarios are evaluated every
server.evaluate_interval, results are served over the REST API, /metrics,
the /ws/stream WebSocket and the grpc.health.v1 service, and optionally
recorded to SQLite. The config file is watched and reloaded on change.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.loadConfig()
			if err != nil {
				return err
			}
			return serve(cmd.Context(), cfg, g.configPath)
		},
	}
}

// server holds the wired service components.
type server struct {
	store     *store.Store
	alerts    *alerts.Engine
	history   *history.Store
	health    *grpchealth.Reporter
	evaluator *evaluator.Evaluator
	api       *api.Handler
	hub       *ws.Hub
	cfg       config.Config
}

// newServer wires every component from cfg. The caller must call close.
func newServer(cfg config.Config) (*server, error) {
	s := &server{
		store:  store.New(cfg.Server.Snapshot.TTL),
		alerts: alerts.New(cfg.Alerts),
		health: grpchealth.New(),
		cfg:    cfg,
	}

	evalOpts := evaluator.Options{
		Store:    s.store,
		Alerts:   s.alerts,
		Health:   s.health,
		Interval: cfg.Server.EvaluateInterval,
	}
	apiOpts := api.Options{Store: s.store, Alerts: s.alerts, Config: cfg}

	if cfg.Storage.Backend == "sqlite" {
		hs, err := history.Open(cfg.Storage.Path)
		if err != nil {
			return nil, err
		}
		s.history = hs
		evalOpts.History = hs
		apiOpts.History = hs
	}

	s.evaluator = evaluator.New(evalOpts)
	if err := s.evaluator.SetScenarios(cfg.Scenarios); err != nil {
		s.close()
		return nil, err
	}
	s.api = api.New(apiOpts)
	s.hub = ws.New(s.api, cfg.Server.BroadcastInterval)
	return s, nil
}

func (s *server) close() {
	if s.history != nil {
		if err := s.history.Close(); err != nil {
			slog.Warn("serve: close history", "err", err)
		}
	}
}

// routes returns the HTTP handler: REST API, /metrics and the WebSocket
// stream behind the API key middleware. Health and metrics stay open.
func (s *server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/api/", s.api)
	mux.Handle("/metrics", s.api)
	mux.Handle("/ws/stream", s.hub)

	a := s.cfg.Server.Auth
	return auth.Middleware(a.Mode, a.EffectiveHeader(), a.Key(), "/api/v1/health", "/metrics")(mux)
}

// reload applies a changed config. Ports, TTL, storage and auth need a
// restart.
func (s *server) reload(cfg *config.Config) {
	if err := s.evaluator.SetScenarios(cfg.Scenarios); err != nil {
		slog.Error("serve: reload scenarios, keeping previous", "err", err)
	}
	s.alerts.SetConfig(cfg.Alerts)
	s.api.SetConfig(*cfg)
	slog.Info("serve: config applied",
		"scenarios", len(cfg.Scenarios),
		"alert_rules", len(cfg.Alerts.Rules),
	)
}

func serve(ctx context.Context, cfg *config.Config, configPath string) error {
	s, err := newServer(*cfg)
	if err != nil {
		return err
	}
	defer s.close()

	var lis net.Listener
	if cfg.Server.GRPCPort > 0 {
		if lis, err = net.Listen("tcp", fmt.Sprintf(":%d", cfg.Server.GRPCPort)); err != nil {
			return fmt.Errorf("serve: grpc listen: %w", err)
		}
	}

	slog.Info("partyield starting",
		"http_port", cfg.Server.HTTPPort,
		"grpc_port", cfg.Server.GRPCPort,
		"auth_mode", cfg.Server.Auth.Mode,
		"scenarios", len(cfg.Scenarios),
		"storage", cfg.Storage.Backend,
	)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error { s.store.Run(ctx); return nil })
	g.Go(func() error { s.evaluator.Run(ctx); return nil })
	g.Go(func() error { s.hub.Run(ctx); return nil })
	if s.history != nil {
		g.Go(func() error {
			s.history.RunRetention(ctx, cfg.Storage.Retention, retentionInterval)
			return nil
		})
	}
	if configPath != "" {
		g.Go(func() error {
			if err := config.Watch(ctx, configPath, s.reload); err != nil {
				slog.Warn("serve: config watch disabled", "err", err)
			}
			return nil
		})
	}

	httpSrv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.HTTPPort),
		Handler:           s.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	g.Go(func() error {
		slog.Info("serve: HTTP listening", "port", cfg.Server.HTTPPort)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: http: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	})

	if lis != nil {
		grpcSrv := s.health.NewServer(cfg.Server.Auth)
		g.Go(func() error { return serveGRPC(ctx, grpcSrv, lis) })
	}

	err = g.Wait()
	slog.Info("partyield shutting down")
	s.health.Shutdown()
	s.alerts.Wait()
	return err
}

func serveGRPC(ctx context.Context, srv *grpc.Server, lis net.Listener) error {
	go func() {
		<-ctx.Done()
		srv.GracefulStop()
	}()
	slog.Info("serve: gRPC health listening", "addr", lis.Addr().String())
	if err := srv.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return fmt.Errorf("serve: grpc: %w", err)
	}
	return nil
}
