package models

import (
	"errors"
	"testing"
)

func validOrder() *Order {
	agent := AgentID("A")
	o := &Order{
		ID:   "o1",
		Type: OrderTypeDelivery,
		Items: []LineItem{
			{CatalogItemID: "burger", Name: "Burger", UnitPrice: 850, Quantity: 2, Options: []LineOption{{Name: "cheese", Price: 100}}},
			{CatalogItemID: "fries", Name: "Fries", UnitPrice: 300, Quantity: 1},
		},
		Tax:             200,
		DeliveryFee:     400,
		Destination:     &Position{Lat: 1, Lng: 2},
		DeliveryAgentID: &agent,
	}
	o.Subtotal = o.ItemsSubtotal()
	o.Total = o.Subtotal + o.Tax + o.DeliveryFee
	return o
}

func TestLineItemTotalIncludesOptions(t *testing.T) {
	li := LineItem{UnitPrice: 850, Quantity: 2, Options: []LineOption{{Price: 100}, {Price: 50}}}
	if got := li.Total(); got != 2000 {
		t.Fatalf("Total = %d, want 2000", got)
	}
	if got := validOrder().ItemsSubtotal(); got != 2200 {
		t.Fatalf("ItemsSubtotal = %d, want 2200", got)
	}
}

func TestOrderValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(o *Order)
		ok     bool
	}{
		{"valid", func(*Order) {}, true},
		{"unknown type", func(o *Order) { o.Type = "drone" }, false},
		{"no items", func(o *Order) { o.Items = nil; o.Subtotal = 0; o.Total = o.Tax + o.DeliveryFee }, false},
		{"zero quantity", func(o *Order) { o.Items[1].Quantity = 0 }, false},
		{"negative price", func(o *Order) { o.Items[1].UnitPrice = -1 }, false},
		{"subtotal mismatch", func(o *Order) { o.Subtotal++; o.Total++ }, false},
		{"total mismatch", func(o *Order) { o.Total++ }, false},
		{"delivery without destination", func(o *Order) { o.Destination = nil }, false},
		{"pickup without destination", func(o *Order) {
			o.Type = OrderTypePickup
			o.Destination = nil
		}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := validOrder()
			tt.mutate(o)
			err := o.Validate()
			if tt.ok && err != nil {
				t.Fatalf("Validate: %v", err)
			}
			if !tt.ok && !errors.Is(err, ErrInvalidOrder) {
				t.Fatalf("Validate = %v, want ErrInvalidOrder", err)
			}
		})
	}
}

func TestOrderCloneIsDeep(t *testing.T) {
	o := validOrder()
	c := o.Clone()
	c.Items[0].Options[0].Price = 999
	c.Destination.Lat = 50
	*c.DeliveryAgentID = "B"
	if o.Items[0].Options[0].Price != 100 || o.Destination.Lat != 1 || *o.DeliveryAgentID != "A" {
		t.Fatalf("clone shares state with original: %+v", o)
	}
	var nilOrder *Order
	if nilOrder.Clone() != nil {
		t.Fatalf("nil clone should be nil")
	}
}

func TestOrderStatus(t *testing.T) {
	if !OrderStatusCancelled.IsTerminal() || !OrderStatusCompleted.IsTerminal() || OrderStatusApproved.IsTerminal() {
		t.Fatalf("terminal statuses wrong")
	}
	if OrderStatus("shipped").Valid() {
		t.Fatalf("unknown status reported valid")
	}
}
