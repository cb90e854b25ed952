// Package lifecycle owns every change to an order's (status, delivery status)
// pair and the side effects that go with it.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"restaurantDelivery/internal/events"
	"restaurantDelivery/models"
	"restaurantDelivery/repository"
)

// Store is the slice of the order repository the machine needs.
type Store interface {
	Create(ctx context.Context, o *models.Order) (*models.Order, error)
	GetByID(ctx context.Context, id models.OrderID) (*models.Order, error)
	Save(ctx context.Context, o *models.Order, expectedRevision int64, sale []models.InventoryTransaction) error
	UpdateFields(ctx context.Context, id models.OrderID, patch repository.OrderPatch) (*models.Order, error)
}

// Decider derives the transition to apply from the freshly read order. It is
// re-run after every lost compare-and-swap.
type Decider func(cur *models.Order) (Transition, error)

// Machine applies transitions with optimistic concurrency.
type Machine struct {
	store  Store
	pub    events.Publisher
	logger *zap.Logger

	Now        func() time.Time
	Codes      CodeGenerator
	MaxRetries int
}

func NewMachine(store Store, pub events.Publisher, logger *zap.Logger) *Machine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Machine{
		store:      store,
		pub:        pub,
		logger:     logger,
		Now:        time.Now,
		Codes:      DeliveryCode,
		MaxRetries: 3,
	}
}

// Create stores a new order and announces it.
func (m *Machine) Create(ctx context.Context, o *models.Order) (*models.Order, error) {
	created, err := m.store.Create(ctx, o)
	if err != nil {
		return nil, err
	}
	m.publish(ctx, events.TypeOrderCreated, created)
	return created, nil
}

// UpdateFields edits the non-lifecycle fields of an open order and announces
// the change. Status fields are never touched here.
func (m *Machine) UpdateFields(ctx context.Context, id models.OrderID, patch repository.OrderPatch) (*models.Order, error) {
	o, err := m.store.UpdateFields(ctx, id, patch)
	if err != nil {
		return nil, err
	}
	m.publish(ctx, events.TypeOrderUpdated, o)
	return o, nil
}

// Apply applies t to the order with the given id.
func (m *Machine) Apply(ctx context.Context, id models.OrderID, t Transition) (*models.Order, error) {
	return m.ApplyFunc(ctx, id, func(*models.Order) (Transition, error) { return t, nil })
}

// ApplyFunc reads the order, asks decide for a transition, evaluates it and
// saves the result if the revision is unchanged. A no-op transition returns
// the current order without writing.
func (m *Machine) ApplyFunc(ctx context.Context, id models.OrderID, decide Decider) (*models.Order, error) {
	for attempt := 0; ; attempt++ {
		cur, err := m.store.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		if cur == nil {
			return nil, fmt.Errorf("order %s: %w", id, ErrOrderNotFound)
		}
		t, err := decide(cur)
		if err != nil {
			return nil, err
		}
		next, eff, err := Evaluate(cur, t, m.Now(), m.Codes)
		if err != nil {
			return nil, err
		}
		if !eff.Changed {
			return next, nil
		}
		err = m.store.Save(ctx, next, cur.Revision, eff.Sale)
		if errors.Is(err, repository.ErrRevisionConflict) && attempt < m.MaxRetries {
			m.logger.Debug("order changed underneath transition, retrying",
				zap.String("order_id", string(id)), zap.Int("attempt", attempt+1))
			continue
		}
		if err != nil {
			return nil, err
		}
		m.logger.Info("order transitioned",
			zap.String("order_id", string(id)),
			zap.String("status", string(next.Status)),
			zap.String("delivery_status", string(next.DeliveryStatus)),
			zap.Int64("revision", next.Revision),
			zap.Bool("code_issued", eff.CodeIssued),
			zap.Int("sale_lines", len(eff.Sale)))
		m.publish(ctx, events.TypeOrderUpdated, next)
		return next, nil
	}
}

func (m *Machine) publish(ctx context.Context, typ string, o *models.Order) {
	if m.pub == nil {
		return
	}
	if err := m.pub.Publish(ctx, events.FromOrder(typ, o, m.Now())); err != nil {
		// The change is committed; pollers reconcile missed events.
		m.logger.Warn("publish order event failed", zap.String("order_id", string(o.ID)), zap.Error(err))
	}
}
