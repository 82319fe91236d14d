package grpc_control

import (
	"context"

	"mt-gateway/src/logger"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "mtgateway.Control"

// ControlServer is the server API for the Control service.
type ControlServer interface {
	Health(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	ListSessions(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	NotifierStatus(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	ReconcilerStats(context.Context, *emptypb.Empty) (*structpb.Struct, error)
}

type unaryCall func(ControlServer, context.Context, *emptypb.Empty) (*structpb.Struct, error)

func unary(name string, call unaryCall) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
			in := new(emptypb.Empty)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(ControlServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/" + name}
			handler := func(ctx context.Context, req interface{}) (interface{}, error) {
				return call(srv.(ControlServer), ctx, req.(*emptypb.Empty))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

// ServiceDesc describes the Control service. Every method takes
// google.protobuf.Empty and answers google.protobuf.Struct.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*ControlServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("Health", ControlServer.Health),
		unary("ListSessions", ControlServer.ListSessions),
		unary("NotifierStatus", ControlServer.NotifierStatus),
		unary("ReconcilerStats", ControlServer.ReconcilerStats),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "mtgateway/control.proto",
}

// RegisterControlServer registers srv on s.
func RegisterControlServer(s grpc.ServiceRegistrar, srv ControlServer) {
	s.RegisterService(&ServiceDesc, srv)
}

// NewServer builds a gRPC server with the Control service and call logging.
func NewServer(srv ControlServer, log *logger.Logger) *grpc.Server {
	if log == nil {
		log = logger.NewNop()
	}
	s := grpc.NewServer(grpc.UnaryInterceptor(func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		resp, err := handler(ctx, req)
		if err != nil {
			log.Warning("gRPC: %s failed: %v", info.FullMethod, err)
		} else {
			log.Debug("gRPC: %s", info.FullMethod)
		}
		return resp, err
	}))
	RegisterControlServer(s, srv)
	return s
}

// -----------------------------------------------------------------------------

// ControlClient is a thin client for the Control service.
type ControlClient struct {
	cc grpc.ClientConnInterface
}

func NewControlClient(cc grpc.ClientConnInterface) *ControlClient {
	return &ControlClient{cc: cc}
}

func (c *ControlClient) call(ctx context.Context, method string, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, "/"+ServiceName+"/"+method, &emptypb.Empty{}, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *ControlClient) Health(ctx context.Context, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.call(ctx, "Health", opts...)
}

func (c *ControlClient) ListSessions(ctx context.Context, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.call(ctx, "ListSessions", opts...)
}

func (c *ControlClient) NotifierStatus(ctx context.Context, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.call(ctx, "NotifierStatus", opts...)
}

func (c *ControlClient) ReconcilerStats(ctx context.Context, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.call(ctx, "ReconcilerStats", opts...)
}
