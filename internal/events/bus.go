package events

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// Bus is an in-process fan-out. Publishing never blocks: a subscriber whose
// buffer is full misses the event and is expected to reconcile by polling.
type Bus struct {
	logger *zap.Logger
	buffer int

	mu     sync.RWMutex
	nextID uint64
	subs   map[uint64]chan OrderEvent
	closed bool
}

func NewBus(logger *zap.Logger, buffer int) *Bus {
	if logger == nil {
		logger = zap.NewNop()
	}
	if buffer <= 0 {
		buffer = 64
	}
	return &Bus{logger: logger, buffer: buffer, subs: make(map[uint64]chan OrderEvent)}
}

// Publish delivers evt to every current subscriber.
func (b *Bus) Publish(_ context.Context, evt OrderEvent) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for id, ch := range b.subs {
		select {
		case ch <- evt:
		default:
			b.logger.Warn("subscriber channel full, dropping event",
				zap.Uint64("subscriber_id", id), zap.String("order_id", string(evt.OrderID)))
		}
	}
	return nil
}

// Subscribe registers a new subscriber. The channel is closed by cancel or Close.
func (b *Bus) Subscribe() (<-chan OrderEvent, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch := make(chan OrderEvent, b.buffer)
	if b.closed {
		close(ch)
		return ch, func() {}
	}
	id := b.nextID
	b.nextID++
	b.subs[id] = ch
	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if c, ok := b.subs[id]; ok {
				delete(b.subs, id)
				close(c)
			}
		})
	}
}

// Len reports the number of live subscribers.
func (b *Bus) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Close closes every subscriber channel; later subscriptions get a closed channel.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
}
