package tracking

import (
	"context"
	"time"

	"go.uber.org/zap"

	"restaurantDelivery/internal/events"
	"restaurantDelivery/models"
	"restaurantDelivery/repository"
)

// DefaultPollInterval is the reconcile period when none is configured.
const DefaultPollInterval = 5 * time.Second

type OrderLister interface {
	ListAll(ctx context.Context, p repository.ListOrdersParams) ([]models.Order, error)
}

// Poller feeds one observer's notifier. Order events are handled as they
// arrive; a single ticker re-reads the order list to catch anything missed.
type Poller struct {
	obs      Observer
	notifier *Notifier
	orders   OrderLister
	source   events.Source
	interval time.Duration
	logger   *zap.Logger
}

func NewPoller(obs Observer, notifier *Notifier, orders OrderLister, source events.Source, interval time.Duration, logger *zap.Logger) *Poller {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Poller{
		obs:      obs,
		notifier: notifier,
		orders:   orders,
		source:   source,
		interval: interval,
		logger:   logger.With(zap.String("observer", obs.Key())),
	}
}

// Run blocks until ctx is cancelled.
func (p *Poller) Run(ctx context.Context) {
	var feed <-chan events.OrderEvent
	if p.source != nil {
		ch, cancel := p.source.Subscribe()
		defer cancel()
		feed = ch
	}

	p.Reconcile(ctx)
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-feed:
			if !ok {
				// The ticker alone keeps the observer current.
				feed = nil
				continue
			}
			p.notifier.Observe(ctx, p.obs, orderFromEvent(evt))
		case <-ticker.C:
			p.Reconcile(ctx)
		}
	}
}

// Reconcile re-reads the approved orders visible to the observer. Failures are
// logged and leave the notifier state as it was.
func (p *Poller) Reconcile(ctx context.Context) {
	if p.orders == nil {
		return
	}
	params := repository.ListOrdersParams{Statuses: []models.OrderStatus{models.OrderStatusApproved}}
	switch p.obs.Role {
	case models.SenderCustomer:
		id := p.obs.ID
		params.CustomerID = &id
	case models.SenderAgent:
		id := models.AgentID(p.obs.ID)
		params.AgentID = &id
	}
	list, err := p.orders.ListAll(ctx, params)
	if err != nil {
		if ctx.Err() == nil {
			p.logger.Warn("reconcile orders failed", zap.Error(err))
		}
		return
	}
	for i := range list {
		p.notifier.Observe(ctx, p.obs, &list[i])
	}
}

func orderFromEvent(evt events.OrderEvent) *models.Order {
	o := &models.Order{
		ID:             evt.OrderID,
		CustomerID:     evt.CustomerID,
		Type:           evt.OrderType,
		Status:         evt.Status,
		DeliveryStatus: evt.DeliveryStatus,
		Revision:       evt.Revision,
	}
	if evt.AgentID != nil {
		a := *evt.AgentID
		o.DeliveryAgentID = &a
	}
	return o
}
