package monitor

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "plcmonitor.v1.PLCMonitor"

// Full method names.
const (
	ResetSystemMethod    = "/" + ServiceName + "/ResetSystem"
	ResetAllMethod       = "/" + ServiceName + "/ResetAll"
	ReloadTopologyMethod = "/" + ServiceName + "/ReloadTopology"
	ListSystemsMethod    = "/" + ServiceName + "/ListSystems"
	WatchEventsMethod    = "/" + ServiceName + "/WatchEvents"
)

// PLCMonitorServer is the server API of the PLC monitor service.
type PLCMonitorServer interface {
	ResetSystem(ctx context.Context, req *wrapperspb.StringValue) (*emptypb.Empty, error)
	ResetAll(ctx context.Context, req *emptypb.Empty) (*emptypb.Empty, error)
	ReloadTopology(ctx context.Context, req *wrapperspb.StringValue) (*emptypb.Empty, error)
	ListSystems(ctx context.Context, req *emptypb.Empty) (*structpb.Struct, error)
	WatchEvents(req *emptypb.Empty, stream grpc.ServerStreamingServer[structpb.Struct]) error
}

// ServiceDesc describes the PLC monitor service for grpc.Server.RegisterService.
//
//nolint:gochecknoglobals // Service descriptors are package-level by convention.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*PLCMonitorServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "ResetSystem",
			Handler:    unaryHandler(ResetSystemMethod, PLCMonitorServer.ResetSystem),
		},
		{
			MethodName: "ResetAll",
			Handler:    unaryHandler(ResetAllMethod, PLCMonitorServer.ResetAll),
		},
		{
			MethodName: "ReloadTopology",
			Handler:    unaryHandler(ReloadTopologyMethod, PLCMonitorServer.ReloadTopology),
		},
		{
			MethodName: "ListSystems",
			Handler:    unaryHandler(ListSystemsMethod, PLCMonitorServer.ListSystems),
		},
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "WatchEvents",
			Handler:       watchEventsHandler,
			ServerStreams: true,
		},
	},
	Metadata: "plcmonitor/v1/monitor.proto",
}

// RegisterPLCMonitorServer registers srv on s.
func RegisterPLCMonitorServer(s grpc.ServiceRegistrar, srv PLCMonitorServer) {
	s.RegisterService(&ServiceDesc, srv)
}

// unaryHandler builds a method handler decoding Req and calling method.
func unaryHandler[Req any, Res any](
	fullMethod string,
	method func(PLCMonitorServer, context.Context, *Req) (*Res, error),
) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}

		server, _ := srv.(PLCMonitorServer)

		if interceptor == nil {
			return method(server, ctx, in)
		}

		info := &grpc.UnaryServerInfo{
			Server:     srv,
			FullMethod: fullMethod,
		}

		handler := func(ctx context.Context, req any) (any, error) {
			typed, _ := req.(*Req)

			return method(server, ctx, typed)
		}

		return interceptor(ctx, in, info, handler)
	}
}

func watchEventsHandler(srv any, stream grpc.ServerStream) error {
	in := new(emptypb.Empty)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}

	server, _ := srv.(PLCMonitorServer)

	return server.WatchEvents(in, &grpc.GenericServerStream[emptypb.Empty, structpb.Struct]{ServerStream: stream})
}

// PLCMonitorClient is the client API of the PLC monitor service.
type PLCMonitorClient struct {
	// cc is the underlying connection.
	cc grpc.ClientConnInterface
}

// NewPLCMonitorClient creates a client on cc.
func NewPLCMonitorClient(cc grpc.ClientConnInterface) *PLCMonitorClient {
	return &PLCMonitorClient{cc: cc}
}

// ResetSystem queues an alarm reset of one system.
func (c *PLCMonitorClient) ResetSystem(
	ctx context.Context,
	in *wrapperspb.StringValue,
	opts ...grpc.CallOption,
) (*emptypb.Empty, error) {
	out := new(emptypb.Empty)
	if err := c.cc.Invoke(ctx, ResetSystemMethod, in, out, opts...); err != nil {
		return nil, err
	}

	return out, nil
}

// ResetAll queues an alarm reset of every system.
func (c *PLCMonitorClient) ResetAll(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*emptypb.Empty, error) {
	out := new(emptypb.Empty)
	if err := c.cc.Invoke(ctx, ResetAllMethod, in, out, opts...); err != nil {
		return nil, err
	}

	return out, nil
}

// ReloadTopology queues a topology reload.
func (c *PLCMonitorClient) ReloadTopology(
	ctx context.Context,
	in *wrapperspb.StringValue,
	opts ...grpc.CallOption,
) (*emptypb.Empty, error) {
	out := new(emptypb.Empty)
	if err := c.cc.Invoke(ctx, ReloadTopologyMethod, in, out, opts...); err != nil {
		return nil, err
	}

	return out, nil
}

// ListSystems returns the latest snapshot of every system.
func (c *PLCMonitorClient) ListSystems(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, ListSystemsMethod, in, out, opts...); err != nil {
		return nil, err
	}

	return out, nil
}

// WatchEvents streams poller events.
func (c *PLCMonitorClient) WatchEvents(
	ctx context.Context,
	in *emptypb.Empty,
	opts ...grpc.CallOption,
) (grpc.ServerStreamingClient[structpb.Struct], error) {
	stream, err := c.cc.NewStream(ctx, &ServiceDesc.Streams[0], WatchEventsMethod, opts...)
	if err != nil {
		return nil, err
	}

	x := &grpc.GenericClientStream[emptypb.Empty, structpb.Struct]{ClientStream: stream}
	if err = x.SendMsg(in); err != nil {
		return nil, err
	}

	if err = x.CloseSend(); err != nil {
		return nil, err
	}

	return x, nil
}
