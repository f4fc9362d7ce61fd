package server

import (
	"context"
	"log/slog"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// HealthService is the service name reported by the gRPC health server for
// the event stream. The empty name reports overall server health.
const HealthService = "shingolive.EventStream"

// NewGRPCServer creates a gRPC server with recovery, logging and auth
// interceptors, and registers the health service and reflection. A nil
// logger uses slog.Default().
func NewGRPCServer(authToken string, hs *health.Server, logger *slog.Logger) *grpc.Server {
	if logger == nil {
		logger = slog.Default()
	}
	srv := grpc.NewServer(
		grpc.ChainUnaryInterceptor(
			RecoveryInterceptor,
			LoggingInterceptor(logger),
			AuthInterceptor(authToken),
		),
		grpc.ChainStreamInterceptor(
			StreamRecoveryInterceptor,
			StreamLoggingInterceptor(logger),
			StreamAuthInterceptor(authToken),
		),
	)

	healthpb.RegisterHealthServer(srv, hs)
	reflection.Register(srv)

	return srv
}

// ServingStatus maps the bus state to a health status. Without a bus the
// stream can still serve emitted events, so it reports SERVING.
func (s *Server) ServingStatus() healthpb.HealthCheckResponse_ServingStatus {
	configured, connected := s.busState()
	if configured && !connected {
		return healthpb.HealthCheckResponse_NOT_SERVING
	}
	return healthpb.HealthCheckResponse_SERVING
}

// WatchHealth keeps hs up to date with ServingStatus until ctx is done,
// polling every interval. On return every service is marked NOT_SERVING.
func (s *Server) WatchHealth(ctx context.Context, hs *health.Server, interval time.Duration) {
	if interval <= 0 {
		interval = time.Second
	}
	update := func() {
		st := s.ServingStatus()
		hs.SetServingStatus("", st)
		hs.SetServingStatus(HealthService, st)
	}
	update()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			hs.Shutdown()
			return
		case <-ticker.C:
			update()
		}
	}
}
