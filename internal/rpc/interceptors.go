package rpc

import (
	"context"

	"github.com/signalsfoundry/sightline/internal/logging"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
)

// RequestIDMetadataKey carries the request ID in both directions: callers
// may set it, and the server always returns the ID it used as a header.
const RequestIDMetadataKey = "x-request-id"

// RequestIDUnaryServerInterceptor adopts the caller's request ID or mints
// one, echoes it in the response header, and puts a logger tagged with
// request_id and method on the context for the session runner to extend.
func RequestIDUnaryServerInterceptor(base logging.Logger) grpc.UnaryServerInterceptor {
	if base == nil {
		base = logging.Noop()
	}
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		if md, ok := metadata.FromIncomingContext(ctx); ok {
			if incoming := firstHeader(md, RequestIDMetadataKey); incoming != "" {
				ctx = logging.ContextWithRequestID(ctx, incoming)
			}
		}

		ctx, reqLog := logging.WithRequestLogger(ctx, base.With(logging.String("method", info.FullMethod)))
		ctx = logging.ContextWithLogger(ctx, reqLog)

		// Fails only outside a real server stream, as in unit tests.
		_ = grpc.SetHeader(ctx, metadata.Pairs(RequestIDMetadataKey, logging.RequestIDFromContext(ctx)))

		return handler(ctx, req)
	}
}

// WithOutgoingRequestID attaches id to outbound call metadata.
func WithOutgoingRequestID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return metadata.AppendToOutgoingContext(ctx, RequestIDMetadataKey, id)
}

// ResponseRequestID reads the request ID the server echoed into header, as
// captured with grpc.Header.
func ResponseRequestID(header metadata.MD) string {
	return firstHeader(header, RequestIDMetadataKey)
}

func firstHeader(md metadata.MD, key string) string {
	if md == nil {
		return ""
	}
	if vals := md.Get(key); len(vals) > 0 {
		return vals[0]
	}
	return ""
}
