package rpc

import (
	"context"
	"errors"
	"time"

	"github.com/signalsfoundry/sightline/core"
	"github.com/signalsfoundry/sightline/internal/logging"
	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	// ServiceName is the fully-qualified gRPC service name.
	ServiceName = "sightline.v1.VisibilityService"
	// ClassifySessionMethod is the full method path of ClassifySession.
	ClassifySessionMethod = "/" + ServiceName + "/ClassifySession"

	defaultMaxTargets = 10000
)

// VisibilityServer is the server API for VisibilityService.
type VisibilityServer interface {
	ClassifySession(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

// VisibilityServiceDesc describes VisibilityService for grpc.Server. Messages
// are google.protobuf.Struct so no generated code is required.
var VisibilityServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*VisibilityServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "ClassifySession",
			Handler:    classifySessionHandler,
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "sightline/v1/visibility.proto",
}

// RegisterVisibilityServer registers srv on s.
func RegisterVisibilityServer(s grpc.ServiceRegistrar, srv VisibilityServer) {
	s.RegisterService(&VisibilityServiceDesc, srv)
}

func classifySessionHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(VisibilityServer).ClassifySession(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: ClassifySessionMethod,
	}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(VisibilityServer).ClassifySession(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

// VisibilityService classifies observer-target sessions against a shared
// scene.
type VisibilityService struct {
	scene        core.SceneQuery
	log          logging.Logger
	metrics      core.MetricsRecorder
	queryTimeout time.Duration
	maxWorkers   int
	maxTargets   int
}

// ServiceOption configures a VisibilityService.
type ServiceOption func(*VisibilityService)

// WithMetricsRecorder wires session metrics.
func WithMetricsRecorder(m core.MetricsRecorder) ServiceOption {
	return func(s *VisibilityService) { s.metrics = m }
}

// WithQueryTimeout bounds each scene query.
func WithQueryTimeout(d time.Duration) ServiceOption {
	return func(s *VisibilityService) { s.queryTimeout = d }
}

// WithMaxWorkers caps the per-request worker count.
func WithMaxWorkers(n int) ServiceOption {
	return func(s *VisibilityService) { s.maxWorkers = n }
}

// WithMaxTargets caps the number of targets per request.
func WithMaxTargets(n int) ServiceOption {
	return func(s *VisibilityService) { s.maxTargets = n }
}

// NewVisibilityService constructs the service.
func NewVisibilityService(scene core.SceneQuery, log logging.Logger, opts ...ServiceOption) *VisibilityService {
	if log == nil {
		log = logging.Noop()
	}
	s := &VisibilityService{
		scene:      scene,
		log:        log,
		maxWorkers: 8,
		maxTargets: defaultMaxTargets,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// ClassifySession implements VisibilityServer.
func (s *VisibilityService) ClassifySession(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	log := logging.LoggerFromContext(ctx)
	if log == nil {
		log = s.log
	}

	req, err := DecodeRequest(in)
	if err == nil {
		err = req.Validate(s.maxTargets)
	}
	if err != nil {
		log.Warn(ctx, "rejecting ClassifySession request", logging.Err(err))
		return nil, ToStatusError(err)
	}

	workers := req.Workers
	if workers == 0 || (s.maxWorkers > 0 && workers > s.maxWorkers) {
		workers = s.maxWorkers
	}

	runner := core.NewSessionRunner(s.scene,
		core.WithWorkers(workers),
		core.WithQueryTimeout(s.queryTimeout),
		core.WithClassifier(core.NewClassifier(
			core.WithOmitMarker(req.OmitMarker),
			core.WithClipToTarget(req.ClipToTarget),
		)),
		core.WithLogger(log),
		core.WithMetricsRecorder(s.metrics),
	)

	res, err := runner.Run(ctx, req.Observer.toCore(), req.sessionTargets())
	if res != nil {
		tagSession(ctx, res)
	}
	if err != nil {
		return nil, ToStatusError(err)
	}
	if err := sceneUnavailable(res); err != nil {
		return nil, ToStatusError(err)
	}

	_, span := startEncodeSpan(ctx, res)
	out, err := EncodeResponse(NewSessionResponse(res))
	span.End()
	if err != nil {
		log.Error(ctx, "encode ClassifySession response", logging.Err(err))
		return nil, ToStatusError(err)
	}
	return out, nil
}

// sceneUnavailable returns the scene error when every pair failed because
// the scene could not answer.
func sceneUnavailable(res *core.SessionResult) error {
	if len(res.Pairs) == 0 {
		return nil
	}
	for _, p := range res.Pairs {
		if !errors.Is(p.Err, core.ErrSceneNotReady) {
			return nil
		}
	}
	return res.Pairs[0].Err
}
