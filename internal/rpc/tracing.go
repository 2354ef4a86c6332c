package rpc

import (
	"context"

	"github.com/signalsfoundry/sightline/core"
	"github.com/signalsfoundry/sightline/internal/logging"
	"github.com/signalsfoundry/sightline/internal/observability"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc"
	"google.golang.org/grpc/status"
)

const tracerName = "github.com/signalsfoundry/sightline/internal/rpc"

// rpcSpanPrefix names the span that parents sightline.Session and its
// sightline.Pair children for one call.
const rpcSpanPrefix = "sightline.RPC/"

// TracingUnaryServerInterceptor names the call span sightline.RPC/<method>
// and tags it with the request ID and gRPC status. It starts the span itself
// when no otelgrpc stats handler has.
func TracingUnaryServerInterceptor() grpc.UnaryServerInterceptor {
	tracer := otel.Tracer(tracerName)

	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		service, method := observability.SplitMethod(info.FullMethod)
		name := rpcSpanPrefix + method

		span := trace.SpanFromContext(ctx)
		if span.SpanContext().IsValid() {
			span.SetName(name)
		} else {
			ctx, span = tracer.Start(ctx, name, trace.WithSpanKind(trace.SpanKindServer))
			defer span.End()
		}
		span.SetAttributes(callAttributes(ctx, service, method)...)

		resp, err := handler(ctx, req)
		st := status.Convert(err)
		span.SetAttributes(attribute.String("rpc.grpc.status", st.Code().String()))
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, st.Message())
		}
		return resp, err
	}
}

func callAttributes(ctx context.Context, service, method string) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.String("rpc.system", "grpc"),
		attribute.String("rpc.service", service),
		attribute.String("rpc.method", method),
	}
	if id := logging.RequestIDFromContext(ctx); id != "" {
		attrs = append(attrs, attribute.String("request_id", id))
	}
	return attrs
}

// tagSession links the call span to the session it ran, so a request_id can
// be followed to the session_id carried by the pair logs.
func tagSession(ctx context.Context, res *core.SessionResult) {
	trace.SpanFromContext(ctx).SetAttributes(
		attribute.String("session_id", res.SessionID),
		attribute.Int("visible", res.Summary.Visible),
		attribute.Int("occluded", res.Summary.Occluded),
		attribute.Int("failed", res.Summary.Failed+res.Summary.Degenerate),
	)
}

// startEncodeSpan covers conversion of a session result to its wire form.
func startEncodeSpan(ctx context.Context, res *core.SessionResult) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "sightline.EncodeResponse", trace.WithAttributes(
		attribute.String("session_id", res.SessionID),
		attribute.Int("pairs", len(res.Pairs)),
	))
}
