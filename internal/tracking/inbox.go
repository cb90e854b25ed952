package tracking

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"restaurantDelivery/models"
)

// DefaultNotificationTTL is how long a notification stays visible unless dismissed.
const DefaultNotificationTTL = 8 * time.Second

// Notification is a one-shot, user-facing message about an order.
type Notification struct {
	ID           string          `json:"id"`
	OrderID      models.OrderID  `json:"order_id"`
	Kind         EventKind       `json:"kind"`
	Title        string          `json:"title"`
	Body         string          `json:"body"`
	AgentID      *models.AgentID `json:"agent_id,omitempty"`
	AgentName    string          `json:"agent_name,omitempty"`
	TrackingPath string          `json:"tracking_path"`
	CreatedAt    time.Time       `json:"created_at"`
	ExpiresAt    time.Time       `json:"expires_at"`
}

// Inbox holds each observer's visible notifications. Expired entries are
// pruned lazily on read.
type Inbox struct {
	ttl time.Duration
	now func() time.Time

	mu     sync.Mutex
	items  map[string][]Notification
	subs   map[string]map[int]chan Notification
	nextID int
}

func NewInbox(ttl time.Duration) *Inbox {
	if ttl <= 0 {
		ttl = DefaultNotificationTTL
	}
	return &Inbox{
		ttl:   ttl,
		now:   time.Now,
		items: make(map[string][]Notification),
		subs:  make(map[string]map[int]chan Notification),
	}
}

// Push stamps n with an id and expiry, stores it and hands it to live subscribers.
func (in *Inbox) Push(obs Observer, n Notification) Notification {
	now := in.now()
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	n.CreatedAt = now.UTC()
	n.ExpiresAt = now.Add(in.ttl).UTC()

	in.mu.Lock()
	defer in.mu.Unlock()
	k := obs.Key()
	in.items[k] = append(in.prune(k, now), n)
	for _, ch := range in.subs[k] {
		select {
		case ch <- n:
		default:
		}
	}
	return n
}

// List returns the observer's unexpired notifications, oldest first.
func (in *Inbox) List(obs Observer) []Notification {
	in.mu.Lock()
	defer in.mu.Unlock()
	live := in.prune(obs.Key(), in.now())
	in.items[obs.Key()] = live
	out := make([]Notification, len(live))
	copy(out, live)
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// Dismiss removes a notification. It reports false if it was not visible.
func (in *Inbox) Dismiss(obs Observer, id string) bool {
	_, ok := in.take(obs, id)
	return ok
}

// Act dismisses the notification and returns where it points.
func (in *Inbox) Act(obs Observer, id string) (string, bool) {
	n, ok := in.take(obs, id)
	if !ok {
		return "", false
	}
	return n.TrackingPath, true
}

// Subscribe delivers notifications pushed for the observer from now on.
func (in *Inbox) Subscribe(obs Observer) (<-chan Notification, func()) {
	in.mu.Lock()
	defer in.mu.Unlock()
	k := obs.Key()
	if in.subs[k] == nil {
		in.subs[k] = make(map[int]chan Notification)
	}
	id := in.nextID
	in.nextID++
	ch := make(chan Notification, 8)
	in.subs[k][id] = ch
	var once sync.Once
	return ch, func() {
		once.Do(func() {
			in.mu.Lock()
			defer in.mu.Unlock()
			delete(in.subs[k], id)
			close(ch)
		})
	}
}

// Subscribers reports how many live subscriptions the observer holds.
func (in *Inbox) Subscribers(obs Observer) int {
	in.mu.Lock()
	defer in.mu.Unlock()
	return len(in.subs[obs.Key()])
}

func (in *Inbox) take(obs Observer, id string) (Notification, bool) {
	in.mu.Lock()
	defer in.mu.Unlock()
	k := obs.Key()
	live := in.prune(k, in.now())
	for i, n := range live {
		if n.ID == id {
			in.items[k] = append(live[:i:i], live[i+1:]...)
			return n, true
		}
	}
	in.items[k] = live
	return Notification{}, false
}

// prune must be called with mu held.
func (in *Inbox) prune(k string, now time.Time) []Notification {
	cur := in.items[k]
	live := cur[:0:0]
	for _, n := range cur {
		if now.Before(n.ExpiresAt) {
			live = append(live, n)
		}
	}
	return live
}
