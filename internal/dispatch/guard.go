package dispatch

import (
	"sync"
	"time"

	"golang.org/x/time/rate"

	"restaurantDelivery/models"
)

// AttemptGuard throttles proof submissions per order so a 4-digit code
// cannot be brute-forced.
type AttemptGuard struct {
	mu       sync.Mutex
	limiters map[models.OrderID]*rate.Limiter
	limit    rate.Limit
	burst    int
}

// NewAttemptGuard allows perMinute attempts per order, refilled evenly.
// perMinute <= 0 disables throttling.
func NewAttemptGuard(perMinute int) *AttemptGuard {
	g := &AttemptGuard{limiters: make(map[models.OrderID]*rate.Limiter)}
	if perMinute <= 0 {
		g.limit = rate.Inf
		return g
	}
	g.limit = rate.Every(time.Minute / time.Duration(perMinute))
	g.burst = perMinute
	return g
}

// Allow consumes one attempt for the order.
func (g *AttemptGuard) Allow(id models.OrderID) bool {
	if g == nil || g.limit == rate.Inf {
		return true
	}
	g.mu.Lock()
	l, ok := g.limiters[id]
	if !ok {
		l = rate.NewLimiter(g.limit, g.burst)
		g.limiters[id] = l
	}
	g.mu.Unlock()
	return l.Allow()
}

// Forget drops the order's limiter once it no longer accepts proofs.
func (g *AttemptGuard) Forget(id models.OrderID) {
	if g == nil {
		return
	}
	g.mu.Lock()
	delete(g.limiters, id)
	g.mu.Unlock()
}
