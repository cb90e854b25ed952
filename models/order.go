package models

import (
	"errors"
	"fmt"
	"time"
)

// OrderID identifies an order.
type OrderID string

// OrderStatus is the top-level business lifecycle stage of an order.
type OrderStatus string

const (
	OrderStatusPendingApproval OrderStatus = "pending_approval"
	OrderStatusApproved        OrderStatus = "approved"
	OrderStatusCancelled       OrderStatus = "cancelled"
	OrderStatusCompleted       OrderStatus = "completed"
)

// IsTerminal reports whether no further transition may leave this status.
func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusCancelled || s == OrderStatusCompleted
}

// Valid reports whether s is a known order status.
func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusPendingApproval, OrderStatusApproved, OrderStatusCancelled, OrderStatusCompleted:
		return true
	}
	return false
}

// OrderType is fixed at creation and gates which sub-lifecycle applies.
type OrderType string

const (
	OrderTypeDelivery OrderType = "delivery"
	OrderTypePickup   OrderType = "pickup"
	OrderTypeDineIn   OrderType = "dine-in"
)

// Valid reports whether t is a known order type.
func (t OrderType) Valid() bool {
	return t == OrderTypeDelivery || t == OrderTypePickup || t == OrderTypeDineIn
}

// Position is a geographic coordinate in degrees.
type Position struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// LineOption is a priced modifier selected on a line item.
type LineOption struct {
	Name  string `json:"name"`
	Price int64  `json:"price"`
}

// LineItem is a single ordered catalog entry. Prices are in minor currency units.
type LineItem struct {
	CatalogItemID CatalogItemID `json:"catalog_item_id"`
	Name          string        `json:"name"`
	UnitPrice     int64         `json:"unit_price"`
	Quantity      int           `json:"quantity"`
	Options       []LineOption  `json:"options,omitempty"`
}

// Total is (unit price + options price) × quantity.
func (li LineItem) Total() int64 {
	unit := li.UnitPrice
	for _, o := range li.Options {
		unit += o.Price
	}
	return unit * int64(li.Quantity)
}

// ProofType tells how a delivery was verified.
type ProofType string

const (
	ProofTypeCode  ProofType = "code"
	ProofTypePhoto ProofType = "photo"
)

// ProofOfDelivery is the evidence captured when a courier completes a delivery.
type ProofOfDelivery struct {
	Type      ProofType `json:"type"`
	Payload   string    `json:"payload"`
	Timestamp time.Time `json:"timestamp"`
}

// Order is the canonical order record.
// DeliveryAgentID is a weak reference resolved through the agent directory.
type Order struct {
	ID              OrderID          `json:"id"`
	CustomerID      string           `json:"customer_id"`
	Type            OrderType        `json:"type"`
	Status          OrderStatus      `json:"status"`
	DeliveryStatus  DeliveryStatus   `json:"delivery_status"`
	Items           []LineItem       `json:"items"`
	Subtotal        int64            `json:"subtotal"`
	Tax             int64            `json:"tax"`
	DeliveryFee     int64            `json:"delivery_fee"`
	Total           int64            `json:"total"`
	Destination     *Position        `json:"destination,omitempty"`
	DeliveryAgentID *AgentID         `json:"delivery_agent_id,omitempty"`
	DeliveryCode    string           `json:"delivery_code,omitempty"`
	ProofOfDelivery *ProofOfDelivery `json:"proof_of_delivery,omitempty"`
	CreatedAt       time.Time        `json:"created_at"`
	UpdatedAt       time.Time        `json:"updated_at"`
	Revision        int64            `json:"revision"`
}

// ItemsSubtotal sums the line item totals.
func (o *Order) ItemsSubtotal() int64 {
	var sum int64
	for _, li := range o.Items {
		sum += li.Total()
	}
	return sum
}

// Clone returns a deep copy so callers can mutate without touching shared state.
func (o *Order) Clone() *Order {
	if o == nil {
		return nil
	}
	c := *o
	c.Items = make([]LineItem, len(o.Items))
	for i, li := range o.Items {
		c.Items[i] = li
		if li.Options != nil {
			c.Items[i].Options = append([]LineOption(nil), li.Options...)
		}
	}
	if o.Destination != nil {
		d := *o.Destination
		c.Destination = &d
	}
	if o.DeliveryAgentID != nil {
		a := *o.DeliveryAgentID
		c.DeliveryAgentID = &a
	}
	if o.ProofOfDelivery != nil {
		p := *o.ProofOfDelivery
		c.ProofOfDelivery = &p
	}
	return &c
}

// IsActive reports whether the order still needs work.
func (o *Order) IsActive() bool {
	return !o.Status.IsTerminal()
}

// ErrInvalidOrder is returned by Validate for malformed orders.
var ErrInvalidOrder = errors.New("invalid order")

// Validate checks creation-time invariants, including the money totals.
func (o *Order) Validate() error {
	if !o.Type.Valid() {
		return fmt.Errorf("%w: unknown type %q", ErrInvalidOrder, o.Type)
	}
	if len(o.Items) == 0 {
		return fmt.Errorf("%w: no line items", ErrInvalidOrder)
	}
	for i, li := range o.Items {
		if li.Quantity <= 0 {
			return fmt.Errorf("%w: item %d quantity must be positive", ErrInvalidOrder, i)
		}
		if li.UnitPrice < 0 {
			return fmt.Errorf("%w: item %d has negative price", ErrInvalidOrder, i)
		}
	}
	if o.Subtotal != o.ItemsSubtotal() {
		return fmt.Errorf("%w: subtotal %d does not match items %d", ErrInvalidOrder, o.Subtotal, o.ItemsSubtotal())
	}
	if o.Total != o.Subtotal+o.Tax+o.DeliveryFee {
		return fmt.Errorf("%w: total %d does not match subtotal+tax+fee", ErrInvalidOrder, o.Total)
	}
	if o.Type == OrderTypeDelivery && o.Destination == nil {
		return fmt.Errorf("%w: delivery order needs a destination", ErrInvalidOrder)
	}
	return nil
}
