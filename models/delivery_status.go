package models

import "fmt"

// DeliveryStatus is the courier-facing sub-lifecycle of a delivery order.
type DeliveryStatus string

const (
	DeliveryStatusPending           DeliveryStatus = "pending"
	DeliveryStatusReadyForLogistics DeliveryStatus = "ready_for_logistics"
	DeliveryStatusPicking           DeliveryStatus = "picking"
	DeliveryStatusPickedUp          DeliveryStatus = "picked_up"
	DeliveryStatusOnWay             DeliveryStatus = "on_way"
	DeliveryStatusDelivered         DeliveryStatus = "delivered"
)

// DeliveryPipeline is the fixed forward order a dispatched delivery moves through.
var DeliveryPipeline = []DeliveryStatus{
	DeliveryStatusReadyForLogistics,
	DeliveryStatusPicking,
	DeliveryStatusPickedUp,
	DeliveryStatusOnWay,
	DeliveryStatusDelivered,
}

// DeliveryStatusAliases maps legacy labels onto their canonical status.
// Stored values are always canonical.
var DeliveryStatusAliases = map[string]DeliveryStatus{
	"preparing": DeliveryStatusReadyForLogistics,
	"packing":   DeliveryStatusPickedUp,
}

// ParseDeliveryStatus resolves s to a canonical status. aliased is true when s
// was one of the legacy labels.
func ParseDeliveryStatus(s string) (ds DeliveryStatus, aliased bool, err error) {
	if c, ok := DeliveryStatusAliases[s]; ok {
		return c, true, nil
	}
	if DeliveryStatus(s).Rank() >= 0 {
		return DeliveryStatus(s), false, nil
	}
	return "", false, fmt.Errorf("unknown delivery status %q", s)
}

// Canonical returns the canonical form of ds, resolving aliases. Unknown values are returned as-is.
func (ds DeliveryStatus) Canonical() DeliveryStatus {
	if c, ok := DeliveryStatusAliases[string(ds)]; ok {
		return c
	}
	return ds
}

// Rank is the position of ds in the sub-lifecycle: pending is 0, delivered is 5.
// Unknown values return -1.
func (ds DeliveryStatus) Rank() int {
	switch ds.Canonical() {
	case DeliveryStatusPending, "":
		return 0
	case DeliveryStatusReadyForLogistics:
		return 1
	case DeliveryStatusPicking:
		return 2
	case DeliveryStatusPickedUp:
		return 3
	case DeliveryStatusOnWay:
		return 4
	case DeliveryStatusDelivered:
		return 5
	}
	return -1
}

// Successor returns the immediate next stage. ok is false for delivered and unknown values.
func (ds DeliveryStatus) Successor() (DeliveryStatus, bool) {
	r := ds.Rank()
	if r < 0 || r >= len(DeliveryPipeline) {
		return "", false
	}
	return DeliveryPipeline[r], true
}

// CourierMoving reports whether the courier holds the order.
func (ds DeliveryStatus) CourierMoving() bool {
	c := ds.Canonical()
	return c == DeliveryStatusPickedUp || c == DeliveryStatusOnWay
}
