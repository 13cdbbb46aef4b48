// Package grpcx exposes the gRPC health service of the chat service.
package grpcx

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"time"

	"github.com/cwrk-planet/chat-service/internal/service"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// ServiceName is the health entry toggled by the store checker.
const ServiceName = "chat.v1.ChatService"

type Config struct {
	Addr string
	// CheckInterval is how often the store is pinged.
	CheckInterval time.Duration
	CallTimeout   time.Duration
}

type Server struct {
	cfg    Config
	grpc   *grpc.Server
	health *health.Server
	store  service.Pinger
}

func NewServer(cfg Config, store service.Pinger) *Server {
	if cfg.CheckInterval <= 0 {
		cfg.CheckInterval = 10 * time.Second
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 10 * time.Second
	}

	gs := grpc.NewServer(
		grpc.ChainUnaryInterceptor(UnaryServerInterceptor(cfg.CallTimeout)),
		grpc.ChainStreamInterceptor(StreamServerInterceptor()),
	)
	hs := health.NewServer()
	healthpb.RegisterHealthServer(gs, hs)
	reflection.Register(gs)

	// not serving until the first successful ping
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)
	hs.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)

	return &Server{cfg: cfg, grpc: gs, health: hs, store: store}
}

// Check pings the store once and publishes the result.
func (s *Server) Check(ctx context.Context) healthpb.HealthCheckResponse_ServingStatus {
	st := healthpb.HealthCheckResponse_SERVING
	if s.store != nil {
		ctx, cancel := context.WithTimeout(ctx, s.cfg.CheckInterval/2)
		defer cancel()
		if err := s.store.Ping(ctx); err != nil {
			slog.Warn("store health check failed", "err", err)
			st = healthpb.HealthCheckResponse_NOT_SERVING
		}
	}
	s.health.SetServingStatus(ServiceName, st)
	s.health.SetServingStatus("", st)
	return st
}

// Run serves on lis and runs the health checker until ctx is done.
func (s *Server) Run(ctx context.Context, lis net.Listener) error {
	errCh := make(chan error, 1)
	go func() {
		if err := s.grpc.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			errCh <- err
		}
		close(errCh)
	}()

	t := time.NewTicker(s.cfg.CheckInterval)
	defer t.Stop()
	s.Check(ctx)

	for {
		select {
		case <-ctx.Done():
			s.health.Shutdown()
			s.grpc.GracefulStop()
			return nil
		case err, ok := <-errCh:
			if !ok {
				return nil
			}
			return err
		case <-t.C:
			s.Check(ctx)
		}
	}
}

// ListenAndRun listens on cfg.Addr and calls Run.
func (s *Server) ListenAndRun(ctx context.Context) error {
	lis, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return err
	}
	slog.Info("grpc listen", "addr", s.cfg.Addr)
	return s.Run(ctx, lis)
}
