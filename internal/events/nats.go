package events

import (
	"context"
	"fmt"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// NATSPublisher publishes order events as JSON on TopicOrders.
type NATSPublisher struct {
	conn *nats.Conn
}

func NewNATSPublisher(url string) (*NATSPublisher, error) {
	conn, err := nats.Connect(url, nats.Name("restaurant-orders-publisher"))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	return &NATSPublisher{conn: conn}, nil
}

func (p *NATSPublisher) Publish(_ context.Context, evt OrderEvent) error {
	b, err := Encode(evt)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	return p.conn.Publish(TopicOrders, b)
}

func (p *NATSPublisher) Close() error {
	p.conn.Close()
	return nil
}

// NATSBridge relays events from TopicOrders into a local Bus so in-process
// consumers see changes committed by any instance.
type NATSBridge struct {
	conn   *nats.Conn
	sub    *nats.Subscription
	bus    *Bus
	logger *zap.Logger
}

func NewNATSBridge(url string, bus *Bus, logger *zap.Logger) (*NATSBridge, error) {
	conn, err := nats.Connect(url, nats.Name("restaurant-orders-bridge"))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	b := &NATSBridge{conn: conn, bus: bus, logger: logger}
	if b.logger == nil {
		b.logger = zap.NewNop()
	}
	b.sub, err = conn.Subscribe(TopicOrders, b.handle)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("subscribe %s: %w", TopicOrders, err)
	}
	return b, nil
}

func (b *NATSBridge) handle(msg *nats.Msg) {
	evt, err := Decode(msg.Data)
	if err != nil {
		b.logger.Warn("dropping malformed order event", zap.Error(err), zap.String("subject", msg.Subject))
		return
	}
	_ = b.bus.Publish(context.Background(), evt)
}

func (b *NATSBridge) Close() error {
	if b.sub != nil {
		_ = b.sub.Unsubscribe()
	}
	b.conn.Close()
	return nil
}
