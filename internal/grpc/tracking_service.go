package grpcserver

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"restaurantDelivery/internal/auth"
	"restaurantDelivery/internal/simulator"
	"restaurantDelivery/internal/tracking"
	"restaurantDelivery/models"
	"restaurantDelivery/repository"
)

const (
	TrackingServiceName = "restaurant.tracking.v1.TrackingService"
	GetTrackingMethod   = "/" + TrackingServiceName + "/GetTracking"
	WatchOrderMethod    = "/" + TrackingServiceName + "/WatchOrder"
)

// TrackingServer is the server API of the tracking service. Requests and
// responses are google.protobuf.Struct messages.
type TrackingServer interface {
	GetTracking(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	WatchOrder(req *structpb.Struct, stream grpc.ServerStream) error
}

// TrackingServiceDesc describes the service without generated stubs.
var TrackingServiceDesc = grpc.ServiceDesc{
	ServiceName: TrackingServiceName,
	HandlerType: (*TrackingServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "GetTracking", Handler: getTrackingHandler},
	},
	Streams: []grpc.StreamDesc{
		{StreamName: "WatchOrder", Handler: watchOrderHandler, ServerStreams: true},
	},
	Metadata: "restaurant/tracking/v1/tracking.proto",
}

func RegisterTrackingServer(s grpc.ServiceRegistrar, srv TrackingServer) {
	s.RegisterService(&TrackingServiceDesc, srv)
}

func getTrackingHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(TrackingServer).GetTracking(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: GetTrackingMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(TrackingServer).GetTracking(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

func watchOrderHandler(srv any, stream grpc.ServerStream) error {
	in := new(structpb.Struct)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(TrackingServer).WatchOrder(in, stream)
}

// TrackingService serves simulator snapshots and the caller's notifications.
type TrackingService struct {
	Simulator *simulator.Manager
	Hub       *tracking.Hub
	Logger    *zap.Logger
}

func (s *TrackingService) logger() *zap.Logger {
	if s.Logger == nil {
		return zap.NewNop()
	}
	return s.Logger
}

// GetTracking returns the current snapshot of an order without advancing it.
func (s *TrackingService) GetTracking(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if _, err := auth.RequirePrincipal(ctx); err != nil {
		return nil, err
	}
	id, err := orderID(req)
	if err != nil {
		return nil, err
	}
	snap, err := s.Simulator.Peek(ctx, id)
	if err != nil {
		return nil, toStatus(err)
	}
	return envelope("snapshot", snap)
}

// WatchOrder streams snapshots of the order, interleaved with the caller's
// notifications about it, until the client goes away.
func (s *TrackingService) WatchOrder(req *structpb.Struct, stream grpc.ServerStream) error {
	ctx := stream.Context()
	p, err := auth.RequirePrincipal(ctx)
	if err != nil {
		return err
	}
	id, err := orderID(req)
	if err != nil {
		return err
	}
	if _, err := s.Simulator.Peek(ctx, id); err != nil {
		return toStatus(err)
	}
	snaps, cancel, err := s.Simulator.Subscribe(ctx, id)
	if err != nil {
		return toStatus(err)
	}
	defer cancel()

	var notes <-chan tracking.Notification
	if s.Hub != nil {
		obs := tracking.Observer{Role: p.Role(), ID: p.Name}
		s.Hub.Ensure(obs)
		ch, stop := s.Hub.Inbox().Subscribe(obs)
		defer stop()
		notes = ch
	}

	log := s.logger().With(zap.String("order_id", string(id)), zap.String("principal", p.Name))
	log.Debug("watch started")
	defer log.Debug("watch ended")

	for {
		select {
		case <-ctx.Done():
			return nil
		case snap, ok := <-snaps:
			if !ok {
				return status.Error(codes.Unavailable, "tracking stopped")
			}
			msg, err := envelope("snapshot", snap)
			if err != nil {
				return err
			}
			if err := stream.SendMsg(msg); err != nil {
				return err
			}
		case n, ok := <-notes:
			if !ok {
				notes = nil
				continue
			}
			if n.OrderID != id {
				continue
			}
			msg, err := envelope("notification", n)
			if err != nil {
				return err
			}
			if err := stream.SendMsg(msg); err != nil {
				return err
			}
		}
	}
}

func orderID(req *structpb.Struct) (models.OrderID, error) {
	v := strings.TrimSpace(req.GetFields()["order_id"].GetStringValue())
	if v == "" {
		return "", status.Error(codes.InvalidArgument, "order_id is required")
	}
	return models.OrderID(v), nil
}

// envelope wraps payload as {"kind": kind, kind: payload, "sent_at": ...}.
func envelope(kind string, payload any) (*structpb.Struct, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode %s: %v", kind, err)
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, status.Errorf(codes.Internal, "encode %s: %v", kind, err)
	}
	body, err := structpb.NewStruct(m)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode %s: %v", kind, err)
	}
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"kind":    structpb.NewStringValue(kind),
		kind:      structpb.NewStructValue(body),
		"sent_at": structpb.NewStringValue(time.Now().UTC().Format(time.RFC3339Nano)),
	}}, nil
}

func toStatus(err error) error {
	switch {
	case errors.Is(err, simulator.ErrOrderNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, simulator.ErrClosed):
		return status.Error(codes.Unavailable, err.Error())
	case errors.Is(err, repository.ErrPersistenceUnavailable):
		return status.Error(codes.Unavailable, err.Error())
	}
	return status.Errorf(codes.Internal, "tracking: %v", err)
}
