package rpc

import (
	"context"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"
)

// Client calls VisibilityService over an existing connection.
type Client struct {
	cc grpc.ClientConnInterface
}

// NewClient wraps cc.
func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

// Dial opens an instrumented connection to addr. Plaintext transport is the
// default; pass grpc.WithTransportCredentials in opts to override it.
func Dial(addr string, opts ...grpc.DialOption) (*grpc.ClientConn, error) {
	dialOpts := append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithStatsHandler(otelgrpc.NewClientHandler()),
	}, opts...)
	return grpc.NewClient(addr, dialOpts...)
}

// ClassifySession sends req and decodes the response.
func (c *Client) ClassifySession(ctx context.Context, req SessionRequest, opts ...grpc.CallOption) (SessionResponse, error) {
	in, err := EncodeRequest(req)
	if err != nil {
		return SessionResponse{}, err
	}
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, ClassifySessionMethod, in, out, opts...); err != nil {
		return SessionResponse{}, err
	}
	return DecodeResponse(out)
}
