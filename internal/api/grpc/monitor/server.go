package monitor

import (
	"context"
	"errors"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/oshokin/plc-monitor/internal/api/wire"
	"github.com/oshokin/plc-monitor/internal/bridge"
	"github.com/oshokin/plc-monitor/internal/domain/plc"
	"github.com/oshokin/plc-monitor/internal/logger"
	"github.com/oshokin/plc-monitor/internal/service/poller"
)

// Service abstracts the operations the transport layer depends on.
type Service interface {
	ResetSystem(ctx context.Context, actor *plc.Actor, name string) error
	ResetAll(ctx context.Context, actor *plc.Actor) error
	ReloadTopology(ctx context.Context, actor *plc.Actor, source string) error
	Systems() []*plc.SystemInfo
	Subscribe(buffer int) (<-chan poller.Event, func())
}

// WatchBuffer is the per-stream event buffer.
const WatchBuffer = 256

// Server implements PLCMonitorServer.
type Server struct {
	// service provides the monitor operations.
	service Service
}

// NewServer wires the provided service implementation into a gRPC handler.
func NewServer(service Service) *Server {
	return &Server{
		service: service,
	}
}

// ResetSystem queues an alarm reset of the named system.
func (s *Server) ResetSystem(ctx context.Context, req *wrapperspb.StringValue) (*emptypb.Empty, error) {
	actor, err := requireActor(ctx)
	if err != nil {
		return nil, err
	}

	if err = s.service.ResetSystem(ctx, actor, req.GetValue()); err != nil {
		return nil, toStatus(err)
	}

	return new(emptypb.Empty), nil
}

// ResetAll queues an alarm reset of every system.
func (s *Server) ResetAll(ctx context.Context, _ *emptypb.Empty) (*emptypb.Empty, error) {
	actor, err := requireActor(ctx)
	if err != nil {
		return nil, err
	}

	if err = s.service.ResetAll(ctx, actor); err != nil {
		return nil, toStatus(err)
	}

	return new(emptypb.Empty), nil
}

// ReloadTopology queues a topology reload from the given source.
func (s *Server) ReloadTopology(ctx context.Context, req *wrapperspb.StringValue) (*emptypb.Empty, error) {
	actor, err := requireActor(ctx)
	if err != nil {
		return nil, err
	}

	if err = s.service.ReloadTopology(ctx, actor, req.GetValue()); err != nil {
		return nil, toStatus(err)
	}

	return new(emptypb.Empty), nil
}

// ListSystems returns {"systems": [...]} with the latest snapshots.
func (s *Server) ListSystems(_ context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	systems := s.service.Systems()

	listing := struct {
		Systems []*wire.System `json:"systems"`
	}{
		Systems: make([]*wire.System, 0, len(systems)),
	}

	for _, system := range systems {
		listing.Systems = append(listing.Systems, wire.FromSystem(system))
	}

	result, err := wire.ToStruct(listing)
	if err != nil {
		return nil, status.Error(codes.Internal, "unable to encode systems")
	}

	return result, nil
}

// WatchEvents streams every poller event until the client goes away.
func (s *Server) WatchEvents(_ *emptypb.Empty, stream grpc.ServerStreamingServer[structpb.Struct]) error {
	ctx := stream.Context()

	events, unsubscribe := s.service.Subscribe(WatchBuffer)
	defer unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-events:
			if !ok {
				return nil
			}

			if err := s.send(ctx, stream, event); err != nil {
				return err
			}
		}
	}
}

func (s *Server) send(ctx context.Context, stream grpc.ServerStreamingServer[structpb.Struct], event poller.Event) error {
	// The command sink is internal to the process.
	if event.Kind() == poller.KindReady {
		return nil
	}

	wireEvent, err := wire.FromEvent(event)
	if err != nil {
		logger.WarnKV(ctx, "Event not streamable", "kind", event.Kind(), "error", err)

		return nil
	}

	message, err := wire.ToStruct(wireEvent)
	if err != nil {
		return status.Error(codes.Internal, "unable to encode event")
	}

	return stream.Send(message)
}

// requireActor rejects mutating calls without an operator identity.
func requireActor(ctx context.Context) (*plc.Actor, error) {
	actor := ActorFromContext(ctx)
	if actor == nil {
		return nil, status.Error(codes.InvalidArgument, "actor is required")
	}

	return actor, nil
}

// toStatus maps service errors to gRPC status codes.
func toStatus(err error) error {
	switch {
	case errors.Is(err, plc.ErrEmptyArgument):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, plc.ErrUnknownSystem):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, plc.ErrNotReady):
		return status.Error(codes.Unavailable, err.Error())
	case errors.Is(err, bridge.ErrBridgeFull):
		return status.Error(codes.ResourceExhausted, err.Error())
	default:
		return status.Error(codes.Internal, "unable to queue command")
	}
}
