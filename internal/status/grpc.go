// ABOUTME: gRPC server carrying the standard health service for load balancers and health checkers.
// ABOUTME: Keepalive settings mirror the agent-facing defaults; calls are logged at debug level.

package status

import (
	"context"
	"log/slog"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"
)

// HubService is the health service name reported alongside the overall status.
const HubService = "netsync.Hub"

// GRPCServer bundles the gRPC server with its health state.
type GRPCServer struct {
	Server *grpc.Server
	health *health.Server
}

// NewGRPCServer creates a gRPC server with the health service registered and
// set to SERVING.
func NewGRPCServer(logger *slog.Logger) *GRPCServer {
	if logger == nil {
		logger = slog.Default()
	}

	server := grpc.NewServer(
		grpc.KeepaliveParams(keepalive.ServerParameters{
			Time:    15 * time.Second,
			Timeout: 5 * time.Second,
		}),
		grpc.KeepaliveEnforcementPolicy(keepalive.EnforcementPolicy{
			MinTime:             5 * time.Second,
			PermitWithoutStream: true,
		}),
		grpc.ChainUnaryInterceptor(loggingUnaryInterceptor(logger.With("component", "grpc"))),
	)

	hs := health.NewServer()
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	hs.SetServingStatus(HubService, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(server, hs)

	return &GRPCServer{Server: server, health: hs}
}

// SetServing flips the hub service status, e.g. while draining.
func (g *GRPCServer) SetServing(serving bool) {
	st := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		st = healthpb.HealthCheckResponse_SERVING
	}
	g.health.SetServingStatus(HubService, st)
}

// Shutdown marks every service NOT_SERVING and stops the server, forcing it
// if ctx expires first.
func (g *GRPCServer) Shutdown(ctx context.Context) {
	g.health.Shutdown()

	stopped := make(chan struct{})
	go func() {
		g.Server.GracefulStop()
		close(stopped)
	}()

	select {
	case <-stopped:
	case <-ctx.Done():
		g.Server.Stop()
	}
}

func loggingUnaryInterceptor(logger *slog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		logger.Debug("grpc call", "method", info.FullMethod, "duration", time.Since(start), "error", err)
		return resp, err
	}
}
