package rpc

import (
	"github.com/signalsfoundry/sightline/internal/logging"
	"github.com/signalsfoundry/sightline/internal/observability"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
)

// NewServer builds a gRPC server with the standard interceptor chain and
// VisibilityService registered. collector may be nil.
func NewServer(svc VisibilityServer, log logging.Logger, collector *observability.VisibilityCollector, opts ...grpc.ServerOption) *grpc.Server {
	interceptors := []grpc.UnaryServerInterceptor{
		RequestIDUnaryServerInterceptor(log),
		TracingUnaryServerInterceptor(),
	}
	if collector != nil {
		interceptors = append(interceptors, collector.UnaryServerInterceptor())
	}

	serverOpts := append([]grpc.ServerOption{
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(interceptors...),
	}, opts...)

	server := grpc.NewServer(serverOpts...)
	RegisterVisibilityServer(server, svc)
	return server
}
