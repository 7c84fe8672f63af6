package grpc

import (
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"rentloop-backend/internal/api/grpc/interceptor"
	"rentloop-backend/internal/security"
)

// NewServer builds the gRPC server with auth, the order service, health and reflection.
// The returned health server starts out SERVING for the order service.
func NewServer(handler OrderServiceServer, tm security.TokenManager, opts ...grpc.ServerOption) (*grpc.Server, *health.Server) {
	auth := interceptor.NewAuthInterceptor(tm)
	opts = append(opts,
		grpc.ChainUnaryInterceptor(auth.Unary()),
		grpc.ChainStreamInterceptor(auth.Stream()),
	)
	s := grpc.NewServer(opts...)

	RegisterOrderServiceServer(s, handler)

	hs := health.NewServer()
	hs.SetServingStatus(OrderServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(s, hs)

	// Register reflection service for grpcurl
	reflection.Register(s)
	return s, hs
}
