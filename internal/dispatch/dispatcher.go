// Package dispatch binds delivery agents to orders and drives the delivery
// sub-lifecycle on behalf of agent and admin actions.
package dispatch

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"restaurantDelivery/internal/lifecycle"
	"restaurantDelivery/models"
	"restaurantDelivery/repository"
)

var (
	ErrAgentNotFound    = errors.New("agent not found")
	ErrOrderNotEligible = errors.New("order not eligible for dispatch")
	ErrAgentBusy        = errors.New("agent already has an active delivery")
	ErrAgentUnavailable = errors.New("agent is not available")
	// ErrProofMismatch is retryable by the same actor.
	ErrProofMismatch   = errors.New("proof of delivery does not match")
	ErrInvalidProof    = errors.New("invalid proof of delivery")
	ErrTooManyAttempts = errors.New("too many proof attempts")
)

// Dispatcher is the single entry point for agent-facing order changes.
type Dispatcher struct {
	orders  repository.OrderRepositoryI
	agents  repository.AgentRepositoryI
	machine *lifecycle.Machine
	guard   *AttemptGuard
	logger  *zap.Logger
	now     func() time.Time
}

func New(orders repository.OrderRepositoryI, agents repository.AgentRepositoryI, machine *lifecycle.Machine, guard *AttemptGuard, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{orders: orders, agents: agents, machine: machine, guard: guard, logger: logger, now: time.Now}
}

// Assign binds the agent to an approved delivery order and moves a pending
// delivery to ready_for_logistics. An agent may carry one active order at a time;
// the store enforces it, the lookup below only gives the common case a clear error.
// Assigning the agent already on the order is a no-op.
func (d *Dispatcher) Assign(ctx context.Context, orderID models.OrderID, agentID models.AgentID) (*models.Order, error) {
	agent, err := d.agents.GetByID(ctx, agentID)
	if err != nil {
		return nil, err
	}
	if agent == nil {
		return nil, fmt.Errorf("agent %s: %w", agentID, ErrAgentNotFound)
	}
	if agent.Status == models.AgentStatusOffline || agent.Status == models.AgentStatusOnBreak {
		return nil, fmt.Errorf("agent %s is %s: %w", agentID, agent.Status, ErrAgentUnavailable)
	}
	active, err := d.orders.FindActiveByAgent(ctx, agentID)
	if err != nil {
		return nil, err
	}
	for _, o := range active {
		if o.ID != orderID {
			return nil, fmt.Errorf("agent %s is on order %s: %w", agentID, o.ID, ErrAgentBusy)
		}
	}

	var previous *models.AgentID
	o, err := d.machine.ApplyFunc(ctx, orderID, func(cur *models.Order) (lifecycle.Transition, error) {
		if err := eligible(cur); err != nil {
			return lifecycle.Transition{}, err
		}
		previous = cur.DeliveryAgentID
		if previous != nil && *previous != agentID && cur.DeliveryStatus.Rank() >= models.DeliveryStatusOnWay.Rank() {
			return lifecycle.Transition{}, fmt.Errorf("%w: order already %s with agent %s", lifecycle.ErrInvalidTransition, cur.DeliveryStatus, *previous)
		}
		t := lifecycle.Transition{AgentID: &agentID}
		if cur.DeliveryStatus.Rank() == 0 {
			ready := models.DeliveryStatusReadyForLogistics
			t.DeliveryStatus = &ready
		}
		return t, nil
	})
	if errors.Is(err, repository.ErrAgentTaken) {
		// Lost a race with a concurrent assignment of the same agent.
		return nil, fmt.Errorf("%w: %w", ErrAgentBusy, err)
	}
	if err != nil {
		return nil, err
	}
	if previous != nil && *previous != agentID {
		d.setAgentStatus(ctx, *previous, models.AgentStatusAvailable)
	}
	if agent.Status != models.AgentStatusBusy {
		d.setAgentStatus(ctx, agentID, models.AgentStatusBusy)
	}
	return o, nil
}

// Advance moves the delivery to the immediate next stage. Legacy labels are
// accepted. Delivered is only reachable through CompleteWithProof.
func (d *Dispatcher) Advance(ctx context.Context, orderID models.OrderID, next models.DeliveryStatus) (*models.Order, error) {
	target := next.Canonical()
	if target.Rank() < 0 {
		return nil, fmt.Errorf("%w: unknown delivery status %q", lifecycle.ErrInvalidTransition, next)
	}
	if target == models.DeliveryStatusDelivered {
		return nil, lifecycle.ErrProofRequired
	}
	return d.machine.ApplyFunc(ctx, orderID, func(cur *models.Order) (lifecycle.Transition, error) {
		if err := eligible(cur); err != nil {
			return lifecycle.Transition{}, err
		}
		if cur.DeliveryAgentID == nil {
			return lifecycle.Transition{}, fmt.Errorf("%w: no agent assigned", ErrOrderNotEligible)
		}
		succ, ok := cur.DeliveryStatus.Successor()
		if !ok || succ != target {
			return lifecycle.Transition{}, fmt.Errorf("%w: %s cannot advance to %s", lifecycle.ErrInvalidTransition, cur.DeliveryStatus, target)
		}
		return lifecycle.Transition{DeliveryStatus: &target}, nil
	})
}

// Unassign detaches the agent while the delivery has not left the restaurant.
func (d *Dispatcher) Unassign(ctx context.Context, orderID models.OrderID) (*models.Order, error) {
	var previous *models.AgentID
	o, err := d.machine.ApplyFunc(ctx, orderID, func(cur *models.Order) (lifecycle.Transition, error) {
		if cur.Type != models.OrderTypeDelivery {
			return lifecycle.Transition{}, fmt.Errorf("%w: %s order has no courier", ErrOrderNotEligible, cur.Type)
		}
		previous = cur.DeliveryAgentID
		return lifecycle.Transition{ClearAgent: true}, nil
	})
	if err != nil {
		return nil, err
	}
	if previous != nil {
		d.setAgentStatus(ctx, *previous, models.AgentStatusAvailable)
	}
	return o, nil
}

// CompleteWithProof verifies pod and completes the delivery. A code proof must
// equal the order's delivery code; a photo proof must carry a payload.
func (d *Dispatcher) CompleteWithProof(ctx context.Context, orderID models.OrderID, pod models.ProofOfDelivery) (*models.Order, error) {
	if pod.Type != models.ProofTypeCode && pod.Type != models.ProofTypePhoto {
		return nil, fmt.Errorf("%w: unknown type %q", ErrInvalidProof, pod.Type)
	}
	if !d.guard.Allow(orderID) {
		d.logger.Warn("proof attempts throttled", zap.String("order_id", string(orderID)))
		return nil, ErrTooManyAttempts
	}
	pod.Payload = strings.TrimSpace(pod.Payload)
	pod.Timestamp = d.now().UTC()

	var agent *models.AgentID
	o, err := d.machine.ApplyFunc(ctx, orderID, func(cur *models.Order) (lifecycle.Transition, error) {
		if err := eligible(cur); err != nil {
			return lifecycle.Transition{}, err
		}
		if cur.DeliveryStatus != models.DeliveryStatusOnWay {
			return lifecycle.Transition{}, fmt.Errorf("%w: delivery is %s, not on_way", lifecycle.ErrInvalidTransition, cur.DeliveryStatus)
		}
		if err := verify(cur, pod); err != nil {
			return lifecycle.Transition{}, err
		}
		agent = cur.DeliveryAgentID
		delivered := models.DeliveryStatusDelivered
		return lifecycle.Transition{DeliveryStatus: &delivered, Proof: &pod}, nil
	})
	if err != nil {
		if errors.Is(err, ErrProofMismatch) {
			d.logger.Info("proof rejected", zap.String("order_id", string(orderID)), zap.String("type", string(pod.Type)))
		}
		return nil, err
	}
	d.guard.Forget(orderID)
	if agent != nil {
		d.setAgentStatus(ctx, *agent, models.AgentStatusAvailable)
	}
	return o, nil
}

func eligible(cur *models.Order) error {
	if cur.Type != models.OrderTypeDelivery {
		return fmt.Errorf("%w: %s order", ErrOrderNotEligible, cur.Type)
	}
	if cur.Status != models.OrderStatusApproved {
		return fmt.Errorf("%w: order is %s", ErrOrderNotEligible, cur.Status)
	}
	return nil
}

func verify(cur *models.Order, pod models.ProofOfDelivery) error {
	switch pod.Type {
	case models.ProofTypeCode:
		if cur.DeliveryCode == "" || subtle.ConstantTimeCompare([]byte(pod.Payload), []byte(cur.DeliveryCode)) != 1 {
			return ErrProofMismatch
		}
	case models.ProofTypePhoto:
		if pod.Payload == "" {
			return fmt.Errorf("%w: empty photo", ErrProofMismatch)
		}
	}
	return nil
}

// setAgentStatus is best effort: the order change is already committed.
func (d *Dispatcher) setAgentStatus(ctx context.Context, id models.AgentID, status models.AgentStatus) {
	if err := d.agents.UpdateStatus(ctx, id, status); err != nil {
		d.logger.Warn("update agent status failed",
			zap.String("agent_id", string(id)), zap.String("status", string(status)), zap.Error(err))
	}
}
