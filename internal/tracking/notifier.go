package tracking

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"restaurantDelivery/models"
)

type AgentReader interface {
	GetByID(ctx context.Context, id models.AgentID) (*models.DeliveryAgent, error)
}

// Notifier raises each milestone at most once per observer and pushes it to the inbox.
type Notifier struct {
	dedup  DedupStore
	inbox  *Inbox
	agents AgentReader
	logger *zap.Logger
}

func NewNotifier(dedup DedupStore, inbox *Inbox, agents AgentReader, logger *zap.Logger) *Notifier {
	if dedup == nil {
		dedup = NewMemoryDedup()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Notifier{dedup: dedup, inbox: inbox, agents: agents, logger: logger}
}

func (n *Notifier) Inbox() *Inbox { return n.inbox }

// Observe evaluates o for obs and returns the notifications raised for the first time.
// Dedup failures skip the event so a later pass can retry it.
func (n *Notifier) Observe(ctx context.Context, obs Observer, o *models.Order) []Notification {
	if o == nil || !obs.Sees(o) {
		return nil
	}
	var raised []Notification
	for _, kind := range Detect(o) {
		key := DedupKey(o.ID, kind)
		first, err := n.dedup.MarkOnce(ctx, obs, key)
		if err != nil {
			n.logger.Warn("dedup unavailable", zap.String("observer", obs.Key()), zap.String("key", key), zap.Error(err))
			continue
		}
		if !first {
			continue
		}
		raised = append(raised, n.inbox.Push(obs, n.build(ctx, o, kind)))
	}
	return raised
}

func (n *Notifier) build(ctx context.Context, o *models.Order, kind EventKind) Notification {
	nt := Notification{
		OrderID:      o.ID,
		Kind:         kind,
		TrackingPath: TrackingPath(o.ID),
	}
	short := shortID(o.ID)
	switch kind {
	case EventApproved:
		nt.Title = "Order approved"
		nt.Body = fmt.Sprintf("Order #%s was approved and is being prepared.", short)
	case EventCourierEnRoute:
		nt.Title = "Courier en route"
		nt.Body = fmt.Sprintf("Order #%s is on its way.", short)
	}
	if o.DeliveryAgentID != nil {
		id := *o.DeliveryAgentID
		nt.AgentID = &id
		if n.agents != nil {
			a, err := n.agents.GetByID(ctx, id)
			if err != nil {
				n.logger.Debug("resolve agent", zap.String("agent_id", string(id)), zap.Error(err))
			} else if a != nil {
				nt.AgentName = a.Name
				if kind == EventCourierEnRoute {
					nt.Body = fmt.Sprintf("%s is bringing order #%s.", a.Name, short)
				}
			}
		}
	}
	return nt
}

// TrackingPath is where acting on a notification leads.
func TrackingPath(id models.OrderID) string {
	return "/orders/" + string(id) + "/tracking"
}

func shortID(id models.OrderID) string {
	s := string(id)
	if len(s) > 8 {
		return s[:8]
	}
	return s
}
