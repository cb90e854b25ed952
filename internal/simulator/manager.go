package simulator

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"

	"restaurantDelivery/internal/geo"
	"restaurantDelivery/models"
)

// ErrClosed is returned by Subscribe after Close.
var ErrClosed = errors.New("simulator closed")

// Snapshot is one observation of a tracked order.
type Snapshot struct {
	OrderID     models.OrderID   `json:"order_id"`
	AgentID     *models.AgentID  `json:"agent_id,omitempty"`
	Position    *models.Position `json:"position,omitempty"`
	Destination *models.Position `json:"destination,omitempty"`
	DistanceKm  float64          `json:"distance_km"`
	ETAMinutes  int              `json:"eta_minutes"`
	ETALabel    string           `json:"eta_label"`
	Arrived     bool             `json:"arrived"`
	// Tracking is false when there is nothing to simulate (no agent, no destination).
	Tracking bool      `json:"tracking"`
	At       time.Time `json:"at"`
}

type OrderReader interface {
	GetByID(ctx context.Context, id models.OrderID) (*models.Order, error)
}

type AgentStore interface {
	GetByID(ctx context.Context, id models.AgentID) (*models.DeliveryAgent, error)
	UpdatePosition(ctx context.Context, id models.AgentID, pos models.Position) error
}

type Config struct {
	Tick         time.Duration
	StepFraction float64
	Jitter       float64
	SpeedKmh     float64
}

func (c Config) withDefaults() Config {
	if c.Tick <= 0 {
		c.Tick = time.Second
	}
	if c.StepFraction <= 0 || c.StepFraction >= 1 {
		c.StepFraction = DefaultStepFraction
	}
	if c.Jitter < 0 {
		c.Jitter = DefaultJitter
	}
	if c.SpeedKmh <= 0 {
		c.SpeedKmh = geo.DefaultSpeedKmh
	}
	return c
}

// Manager runs at most one simulation loop per order, shared by all of the
// order's subscribers. The loop starts with the first subscriber and stops
// with the last.
type Manager struct {
	orders OrderReader
	agents AgentStore
	cfg    Config
	logger *zap.Logger
	now    func() time.Time

	rngMu sync.Mutex
	rng   *rand.Rand

	mu     sync.Mutex
	runs   map[models.OrderID]*run
	closed bool
	wg     sync.WaitGroup
}

type run struct {
	cancel context.CancelFunc
	subs   map[int]chan Snapshot
	nextID int
	last   *Snapshot
}

func NewManager(orders OrderReader, agents AgentStore, cfg Config, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		orders: orders,
		agents: agents,
		cfg:    cfg.withDefaults(),
		logger: logger,
		now:    time.Now,
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
		runs:   make(map[models.OrderID]*run),
	}
}

// Subscribe streams snapshots of the order until ctx ends or cancel is called.
// Subscribing again for the same order reuses the running loop.
// Slow readers only ever see the latest snapshot.
func (m *Manager) Subscribe(ctx context.Context, id models.OrderID) (<-chan Snapshot, func(), error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, nil, ErrClosed
	}
	r, ok := m.runs[id]
	if !ok {
		runCtx, cancel := context.WithCancel(context.Background())
		r = &run{cancel: cancel, subs: make(map[int]chan Snapshot)}
		m.runs[id] = r
		m.wg.Add(1)
		go m.loop(runCtx, id)
	}
	subID := r.nextID
	r.nextID++
	ch := make(chan Snapshot, 1)
	r.subs[subID] = ch
	if r.last != nil {
		ch <- *r.last
	}

	var once sync.Once
	release := func() {
		once.Do(func() { m.unsubscribe(id, r, subID) })
	}
	stop := context.AfterFunc(ctx, release)
	return ch, func() {
		stop()
		release()
	}, nil
}

func (m *Manager) unsubscribe(id models.OrderID, r *run, subID int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ch, ok := r.subs[subID]
	if !ok {
		return
	}
	delete(r.subs, subID)
	close(ch)
	if len(r.subs) == 0 {
		r.cancel()
		if m.runs[id] == r {
			delete(m.runs, id)
		}
	}
}

// Active reports how many orders currently have a running loop.
func (m *Manager) Active() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.runs)
}

// Close stops every loop, closes every subscriber channel and waits for the
// loops to exit.
func (m *Manager) Close() {
	m.mu.Lock()
	m.closed = true
	for id, r := range m.runs {
		r.cancel()
		for subID, ch := range r.subs {
			delete(r.subs, subID)
			close(ch)
		}
		delete(m.runs, id)
	}
	m.mu.Unlock()
	m.wg.Wait()
}

func (m *Manager) loop(ctx context.Context, id models.OrderID) {
	defer m.wg.Done()
	ticker := time.NewTicker(m.cfg.Tick)
	defer ticker.Stop()
	for {
		snap, err := m.Advance(ctx, id)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			// Keep the last known snapshot; the next tick retries.
			m.logger.Debug("simulation tick failed", zap.String("order_id", string(id)), zap.Error(err))
		} else {
			m.broadcast(id, snap)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (m *Manager) broadcast(id models.OrderID, snap Snapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.runs[id]
	if !ok {
		return
	}
	s := snap
	r.last = &s
	for _, ch := range r.subs {
		select {
		case <-ch:
		default:
		}
		ch <- snap
	}
}

// Advance performs one simulation tick: it re-reads the order and agent,
// moves the agent one step toward the destination and persists the new
// position. Orders without an agent or destination yield a placeholder.
func (m *Manager) Advance(ctx context.Context, id models.OrderID) (Snapshot, error) {
	return m.observe(ctx, id, true)
}

// Peek returns the current snapshot without moving anything.
func (m *Manager) Peek(ctx context.Context, id models.OrderID) (Snapshot, error) {
	return m.observe(ctx, id, false)
}

// ErrOrderNotFound is returned when the tracked order does not exist.
var ErrOrderNotFound = errors.New("order not found")

func (m *Manager) observe(ctx context.Context, id models.OrderID, move bool) (Snapshot, error) {
	o, err := m.orders.GetByID(ctx, id)
	if err != nil {
		return Snapshot{}, err
	}
	if o == nil {
		return Snapshot{}, ErrOrderNotFound
	}
	if o.DeliveryAgentID == nil || o.Destination == nil {
		return m.placeholder(o), nil
	}
	agent, err := m.agents.GetByID(ctx, *o.DeliveryAgentID)
	if err != nil {
		return Snapshot{}, err
	}
	if agent == nil {
		return m.placeholder(o), nil
	}

	pos := agent.Position
	arrived := false
	if move && o.IsActive() {
		m.rngMu.Lock()
		next, done := Step(pos, *o.Destination, m.cfg.StepFraction, m.cfg.Jitter, m.rng)
		m.rngMu.Unlock()
		arrived = done
		if !done {
			if err := m.agents.UpdatePosition(ctx, agent.ID, next); err != nil {
				return Snapshot{}, err
			}
			pos = next
		}
	}
	dist := geo.HaversineKm(pos, *o.Destination)
	eta := geo.ETA(dist, m.cfg.SpeedKmh)
	agentID := agent.ID
	dest := *o.Destination
	return Snapshot{
		OrderID:     o.ID,
		AgentID:     &agentID,
		Position:    &pos,
		Destination: &dest,
		DistanceKm:  dist,
		ETAMinutes:  eta.Minutes,
		ETALabel:    eta.Label,
		Arrived:     arrived || geo.IsWithinRadius(pos, dest, geo.ArrivedKm),
		Tracking:    true,
		At:          m.now().UTC(),
	}, nil
}

func (m *Manager) placeholder(o *models.Order) Snapshot {
	s := Snapshot{OrderID: o.ID, ETALabel: geo.Placeholder, At: m.now().UTC()}
	if o.Destination != nil {
		d := *o.Destination
		s.Destination = &d
	}
	return s
}
