package repository

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrPersistenceUnavailable wraps every storage driver failure so callers can
	// degrade explicitly instead of guessing at driver error types.
	ErrPersistenceUnavailable = errors.New("persistence unavailable")
	// ErrRevisionConflict is returned when a compare-and-swap save lost the race.
	ErrRevisionConflict = errors.New("revision conflict")
	// ErrNotFound is returned by mutations addressed at a missing row.
	ErrNotFound = errors.New("not found")
	// ErrOrderClosed is returned when editing a completed or cancelled order.
	ErrOrderClosed = errors.New("order is closed")
	// ErrAgentTaken is returned when a save would put an agent on a second active order.
	ErrAgentTaken = errors.New("agent already on an active order")
)

func unavailable(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", op, ErrPersistenceUnavailable, err)
}

func toNanos(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UTC().UnixNano()
}

func fromNanos(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n).UTC()
}
