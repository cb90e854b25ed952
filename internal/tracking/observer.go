// Package tracking turns order changes into one-shot, auto-dismissing
// notifications for the people watching those orders.
package tracking

import (
	"fmt"

	"restaurantDelivery/models"
)

// Observer is whoever is watching orders: admins see every order, customers
// their own, agents the ones assigned to them.
type Observer struct {
	Role models.SenderRole
	ID   string
}

// Key identifies the observer in dedup and inbox storage.
func (o Observer) Key() string {
	return string(o.Role) + ":" + o.ID
}

// Sees reports whether the order is relevant to the observer.
func (o Observer) Sees(order *models.Order) bool {
	switch o.Role {
	case models.SenderAdmin:
		return true
	case models.SenderCustomer:
		return o.ID != "" && order.CustomerID == o.ID
	case models.SenderAgent:
		return order.DeliveryAgentID != nil && string(*order.DeliveryAgentID) == o.ID
	}
	return false
}

// EventKind is a user-visible milestone of an order.
type EventKind string

const (
	EventApproved       EventKind = "approved"
	EventCourierEnRoute EventKind = "courier_en_route"
)

// DedupKey is the per-order key under which an event fires at most once.
func DedupKey(id models.OrderID, kind EventKind) string {
	switch kind {
	case EventApproved:
		return string(id) + "_approved"
	case EventCourierEnRoute:
		return string(id) + "_onway"
	}
	return fmt.Sprintf("%s_%s", id, kind)
}

// Detect lists the milestones the order currently satisfies. "Approved" holds
// while the order is approved and the courier does not yet hold it;
// "courier en route" holds once the courier has picked it up.
func Detect(o *models.Order) []EventKind {
	if o.Status != models.OrderStatusApproved {
		return nil
	}
	if o.Type == models.OrderTypeDelivery && o.DeliveryStatus.CourierMoving() {
		return []EventKind{EventCourierEnRoute}
	}
	return []EventKind{EventApproved}
}
