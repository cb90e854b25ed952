package tracking

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"restaurantDelivery/internal/events"
)

// DefaultIdleAfter is how long a poller survives without its observer asking
// for notifications or holding an inbox subscription.
const DefaultIdleAfter = 5 * time.Minute

// Hub starts one poller per observer on first use, stops pollers whose
// observer has gone quiet and stops them all on Close.
type Hub struct {
	notifier *Notifier
	orders   OrderLister
	source   events.Source
	interval time.Duration
	logger   *zap.Logger

	idleAfter time.Duration
	now       func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	running map[string]*pollerRun
}

type pollerRun struct {
	obs      Observer
	cancel   context.CancelFunc
	lastSeen time.Time
}

func NewHub(notifier *Notifier, orders OrderLister, source events.Source, interval time.Duration, logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	ctx, cancel := context.WithCancel(context.Background())
	h := &Hub{
		notifier:  notifier,
		orders:    orders,
		source:    source,
		interval:  interval,
		logger:    logger,
		idleAfter: DefaultIdleAfter,
		now:       time.Now,
		ctx:       ctx,
		cancel:    cancel,
		running:   make(map[string]*pollerRun),
	}
	h.wg.Add(1)
	go h.reapLoop()
	return h
}

// Ensure starts the observer's poller unless it is already running, and marks
// the observer as active either way. It reports whether a new poller was started.
func (h *Hub) Ensure(obs Observer) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.ctx.Err() != nil {
		return false
	}
	if r, ok := h.running[obs.Key()]; ok {
		r.lastSeen = h.now()
		return false
	}
	ctx, cancel := context.WithCancel(h.ctx)
	h.running[obs.Key()] = &pollerRun{obs: obs, cancel: cancel, lastSeen: h.now()}
	p := NewPoller(obs, h.notifier, h.orders, h.source, h.interval, h.logger)
	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		p.Run(ctx)
	}()
	h.logger.Debug("poller started", zap.String("observer", obs.Key()))
	return true
}

// SetIdleAfter changes the idle cut-off. Zero or less keeps pollers until Close.
func (h *Hub) SetIdleAfter(d time.Duration) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.idleAfter = d
}

func (h *Hub) Inbox() *Inbox { return h.notifier.Inbox() }

// Running reports the number of live pollers.
func (h *Hub) Running() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.running)
}

func (h *Hub) reapLoop() {
	defer h.wg.Done()
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()
	for {
		select {
		case <-h.ctx.Done():
			return
		case <-ticker.C:
			h.reap()
		}
	}
}

// reap stops pollers idle for idleAfter with no inbox subscriber and returns
// how many it stopped. Dedup marks outlive the poller, so a later Ensure does
// not repeat notifications.
func (h *Hub) reap() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.idleAfter <= 0 {
		return 0
	}
	now := h.now()
	stopped := 0
	for k, r := range h.running {
		if now.Sub(r.lastSeen) < h.idleAfter || h.notifier.Inbox().Subscribers(r.obs) > 0 {
			continue
		}
		r.cancel()
		delete(h.running, k)
		stopped++
		h.logger.Debug("idle poller stopped", zap.String("observer", k))
	}
	return stopped
}

func (h *Hub) Close() {
	h.mu.Lock()
	h.cancel()
	h.mu.Unlock()
	h.wg.Wait()
}
