// Package events carries order change notifications between the state
// machine and anything that reacts to it (tracking, streaming clients).
package events

import (
	"context"
	"encoding/json"
	"time"

	"restaurantDelivery/models"
)

// TopicOrders is the subject every order change is published on.
const TopicOrders = "orders.lifecycle"

const (
	TypeOrderCreated = "order.created"
	TypeOrderUpdated = "order.updated"
)

// OrderEvent describes a committed order change. It is a change event, not a
// user-facing notification.
type OrderEvent struct {
	Type           string                `json:"type"`
	OrderID        models.OrderID        `json:"order_id"`
	CustomerID     string                `json:"customer_id"`
	OrderType      models.OrderType      `json:"order_type"`
	Status         models.OrderStatus    `json:"status"`
	DeliveryStatus models.DeliveryStatus `json:"delivery_status"`
	AgentID        *models.AgentID       `json:"agent_id,omitempty"`
	Revision       int64                 `json:"revision"`
	OccurredAt     time.Time             `json:"occurred_at"`
}

// FromOrder builds an event snapshot of o.
func FromOrder(typ string, o *models.Order, at time.Time) OrderEvent {
	evt := OrderEvent{
		Type:           typ,
		OrderID:        o.ID,
		CustomerID:     o.CustomerID,
		OrderType:      o.Type,
		Status:         o.Status,
		DeliveryStatus: o.DeliveryStatus,
		Revision:       o.Revision,
		OccurredAt:     at.UTC(),
	}
	if o.DeliveryAgentID != nil {
		a := *o.DeliveryAgentID
		evt.AgentID = &a
	}
	return evt
}

// Encode serializes an event for the wire.
func Encode(evt OrderEvent) ([]byte, error) {
	return json.Marshal(evt)
}

// Decode parses an event from the wire.
func Decode(b []byte) (OrderEvent, error) {
	var evt OrderEvent
	err := json.Unmarshal(b, &evt)
	return evt, err
}

// Publisher emits committed order changes.
type Publisher interface {
	Publish(ctx context.Context, evt OrderEvent) error
}

// Source hands out event subscriptions. The returned cancel func must be called.
type Source interface {
	Subscribe() (<-chan OrderEvent, func())
}
