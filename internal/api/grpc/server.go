// Package grpc serves the operational gRPC surface: health checking and
// reflection behind the bearer-token interceptor.
package grpc

import (
	"context"
	"time"

	"toolshare-backend/internal/api/grpc/interceptor"
	"toolshare-backend/internal/logger"
	"toolshare-backend/internal/security"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// ServiceName is the health-check service name of the lifecycle engine.
const ServiceName = "toolshare.v1.BorrowLifecycle"

// Probe reports whether the backing store is reachable.
type Probe func(ctx context.Context) error

type Server struct {
	*grpc.Server
	health *health.Server
	probe  Probe
}

// NewServer builds a gRPC server with auth and error interceptors, the
// standard health service and reflection.
func NewServer(tm security.TokenManager, probe Probe) *Server {
	auth := interceptor.NewAuthInterceptor(tm)
	gs := grpc.NewServer(
		grpc.ChainUnaryInterceptor(auth.Unary(), ErrorUnary()),
		grpc.ChainStreamInterceptor(auth.Stream()),
	)

	hs := health.NewServer()
	grpc_health_v1.RegisterHealthServer(gs, hs)
	reflection.Register(gs)

	s := &Server{Server: gs, health: hs, probe: probe}
	s.setServing(true)
	return s
}

func (s *Server) setServing(ok bool) {
	st := grpc_health_v1.HealthCheckResponse_SERVING
	if !ok {
		st = grpc_health_v1.HealthCheckResponse_NOT_SERVING
	}
	s.health.SetServingStatus("", st)
	s.health.SetServingStatus(ServiceName, st)
}

// CheckOnce runs the probe and publishes the result as the health status.
func (s *Server) CheckOnce(ctx context.Context) {
	if s.probe == nil {
		return
	}
	if err := s.probe(ctx); err != nil {
		logger.Warn("Health probe failed", "error", err)
		s.setServing(false)
		return
	}
	s.setServing(true)
}

// WatchHealth runs the probe every interval until ctx is done.
func (s *Server) WatchHealth(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.CheckOnce(ctx)
		}
	}
}

// Shutdown marks the server as not serving and stops it gracefully.
func (s *Server) Shutdown() {
	s.health.Shutdown()
	s.GracefulStop()
}
