package lifecycle

import (
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"time"

	"restaurantDelivery/models"
)

var (
	// ErrInvalidTransition is returned for a state change not reachable from the current state.
	ErrInvalidTransition = errors.New("invalid transition")
	// ErrProofRequired is returned when a delivery would complete without proof.
	ErrProofRequired = fmt.Errorf("%w: proof of delivery required", ErrInvalidTransition)
	// ErrOrderNotFound is returned when the addressed order does not exist.
	ErrOrderNotFound = errors.New("order not found")
)

// Transition is a requested change. Nil fields are left alone; at least one
// field must be set.
type Transition struct {
	Status         *models.OrderStatus
	DeliveryStatus *models.DeliveryStatus
	AgentID        *models.AgentID
	// ClearAgent detaches the agent and rewinds the delivery to pending.
	ClearAgent bool
	Proof      *models.ProofOfDelivery
}

func (t Transition) empty() bool {
	return t.Status == nil && t.DeliveryStatus == nil && t.AgentID == nil && !t.ClearAgent
}

// Effects are the side effects Evaluate asks the caller to commit with the order.
type Effects struct {
	Changed    bool
	CodeIssued bool
	Sale       []models.InventoryTransaction
}

// CodeGenerator yields a fresh delivery code.
type CodeGenerator func() (string, error)

// DeliveryCode returns a uniformly random 4-digit code in 1000..9999.
func DeliveryCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(9000))
	if err != nil {
		return "", fmt.Errorf("generate delivery code: %w", err)
	}
	return fmt.Sprintf("%04d", n.Int64()+1000), nil
}

// ValidStatusTransition reports whether the top-level status may move from -> to.
// Staying in approved is accepted as a no-op.
func ValidStatusTransition(from, to models.OrderStatus) bool {
	switch from {
	case models.OrderStatusPendingApproval:
		return to == models.OrderStatusApproved || to == models.OrderStatusCancelled || to == models.OrderStatusPendingApproval
	case models.OrderStatusApproved:
		return to == models.OrderStatusCompleted || to == models.OrderStatusApproved
	}
	return false
}

// Evaluate computes the order that results from applying t to cur without
// touching storage. cur is never modified.
func Evaluate(cur *models.Order, t Transition, now time.Time, codes CodeGenerator) (*models.Order, Effects, error) {
	var eff Effects
	if cur == nil {
		return nil, eff, ErrOrderNotFound
	}
	if t.empty() {
		return nil, eff, fmt.Errorf("%w: nothing to apply", ErrInvalidTransition)
	}
	if cur.Status.IsTerminal() {
		return nil, eff, fmt.Errorf("%w: order is %s", ErrInvalidTransition, cur.Status)
	}
	if codes == nil {
		codes = DeliveryCode
	}
	next := cur.Clone()
	delivery := cur.Type == models.OrderTypeDelivery
	completing := false

	if t.Status != nil {
		to := *t.Status
		if !ValidStatusTransition(cur.Status, to) {
			return nil, eff, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, cur.Status, to)
		}
		if to == models.OrderStatusApproved && cur.Status != models.OrderStatusApproved {
			next.Status = models.OrderStatusApproved
			if next.DeliveryCode == "" {
				code, err := codes()
				if err != nil {
					return nil, eff, err
				}
				next.DeliveryCode = code
				eff.CodeIssued = true
			}
			eff.Sale = saleFor(cur)
		}
		if to == models.OrderStatusCancelled {
			next.Status = models.OrderStatusCancelled
		}
		if to == models.OrderStatusCompleted {
			if delivery {
				completing = true
			} else {
				next.Status = models.OrderStatusCompleted
			}
		}
	}

	if delivery && t.ClearAgent {
		if cur.DeliveryStatus.Rank() >= models.DeliveryStatusOnWay.Rank() {
			return nil, eff, fmt.Errorf("%w: agent is already %s", ErrInvalidTransition, cur.DeliveryStatus)
		}
		next.DeliveryAgentID = nil
		next.DeliveryStatus = models.DeliveryStatusPending
	}
	if delivery && t.AgentID != nil {
		a := *t.AgentID
		next.DeliveryAgentID = &a
	}

	// Delivery status on pickup and dine-in orders is accepted and ignored.
	if delivery && t.DeliveryStatus != nil {
		ds := t.DeliveryStatus.Canonical()
		if ds.Rank() < 0 {
			return nil, eff, fmt.Errorf("%w: unknown delivery status %q", ErrInvalidTransition, *t.DeliveryStatus)
		}
		if next.Status != models.OrderStatusApproved {
			return nil, eff, fmt.Errorf("%w: delivery status needs an approved order, got %s", ErrInvalidTransition, next.Status)
		}
		if ds.Rank() < next.DeliveryStatus.Rank() {
			return nil, eff, fmt.Errorf("%w: delivery %s -> %s", ErrInvalidTransition, next.DeliveryStatus, ds)
		}
		if ds == models.DeliveryStatusDelivered {
			completing = true
		} else {
			next.DeliveryStatus = ds
		}
	}

	if completing {
		if next.Status != models.OrderStatusApproved {
			return nil, eff, fmt.Errorf("%w: cannot complete a %s order", ErrInvalidTransition, next.Status)
		}
		if t.Proof == nil {
			return nil, eff, ErrProofRequired
		}
		pod := *t.Proof
		if pod.Timestamp.IsZero() {
			pod.Timestamp = now.UTC()
		}
		next.Status = models.OrderStatusCompleted
		next.DeliveryStatus = models.DeliveryStatusDelivered
		next.ProofOfDelivery = &pod
	}

	eff.Changed = changed(cur, next)
	if eff.Changed {
		next.UpdatedAt = now.UTC()
	}
	return next, eff, nil
}

func saleFor(o *models.Order) []models.InventoryTransaction {
	out := make([]models.InventoryTransaction, 0, len(o.Items))
	for _, li := range o.Items {
		id := o.ID
		out = append(out, models.InventoryTransaction{
			CatalogItemID: li.CatalogItemID,
			OrderID:       &id,
			Kind:          models.InventoryKindSale,
			Delta:         -li.Quantity,
			Note:          "order " + string(o.ID),
		})
	}
	return out
}

func changed(a, b *models.Order) bool {
	if a.Status != b.Status || a.DeliveryStatus.Canonical() != b.DeliveryStatus.Canonical() || a.DeliveryCode != b.DeliveryCode {
		return true
	}
	if (a.DeliveryAgentID == nil) != (b.DeliveryAgentID == nil) {
		return true
	}
	if a.DeliveryAgentID != nil && *a.DeliveryAgentID != *b.DeliveryAgentID {
		return true
	}
	return (a.ProofOfDelivery == nil) != (b.ProofOfDelivery == nil)
}
