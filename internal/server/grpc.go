package server

import (
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	grpchealth "google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"helpdesk-auth/backend/internal/server/interceptors"
)

// healthCheckMethods are not logged; load balancers probe them constantly.
var healthCheckMethods = map[string]bool{
	healthpb.Health_Check_FullMethodName: true,
	healthpb.Health_Watch_FullMethodName: true,
}

// NewGRPCServer returns a gRPC server exposing grpc.health.v1, traced with otelgrpc.
// The returned health server starts NOT_SERVING until its status is set (see health.Checker.Sync).
func NewGRPCServer(log *zap.Logger) (*grpc.Server, *grpchealth.Server) {
	s := grpc.NewServer(
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(
			interceptors.RecoverUnary(log),
			interceptors.LoggingUnary(log, healthCheckMethods),
		),
	)
	hs := grpchealth.NewServer()
	hs.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	healthpb.RegisterHealthServer(s, hs)
	return s, hs
}
