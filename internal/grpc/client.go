package grpcserver

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// TrackingClient calls the tracking service over an existing connection.
type TrackingClient struct {
	cc grpc.ClientConnInterface
}

func NewTrackingClient(cc grpc.ClientConnInterface) *TrackingClient {
	return &TrackingClient{cc: cc}
}

func orderRequest(id string) *structpb.Struct {
	return &structpb.Struct{Fields: map[string]*structpb.Value{"order_id": structpb.NewStringValue(id)}}
}

func (c *TrackingClient) GetTracking(ctx context.Context, orderID string, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, GetTrackingMethod, orderRequest(orderID), out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// WatchOrder opens the stream; call Recv until it fails or ctx ends.
func (c *TrackingClient) WatchOrder(ctx context.Context, orderID string, opts ...grpc.CallOption) (*WatchStream, error) {
	stream, err := c.cc.NewStream(ctx, &TrackingServiceDesc.Streams[0], WatchOrderMethod, opts...)
	if err != nil {
		return nil, err
	}
	if err := stream.SendMsg(orderRequest(orderID)); err != nil {
		return nil, err
	}
	if err := stream.CloseSend(); err != nil {
		return nil, err
	}
	return &WatchStream{stream: stream}, nil
}

type WatchStream struct {
	stream grpc.ClientStream
}

func (w *WatchStream) Recv() (*structpb.Struct, error) {
	m := new(structpb.Struct)
	if err := w.stream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}
