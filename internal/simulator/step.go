// Package simulator produces stand-in courier motion for tracking views.
// Motion converges exponentially on the destination: each tick covers a fixed
// fraction of the remaining distance plus jitter. It is not a physical model.
package simulator

import (
	"math"
	"math/rand"

	"restaurantDelivery/models"
)

const (
	// Epsilon is the per-axis distance in degrees (~10 m) under which the courier is frozen.
	Epsilon             = 0.0001
	DefaultStepFraction = 0.03
	DefaultJitter       = 0.00005
)

// Step moves cur a fraction k of the way to dest plus uniform noise in
// [-jitter, jitter] per axis. arrived is true when cur is already within
// Epsilon on both axes, in which case cur is returned unchanged.
func Step(cur, dest models.Position, k, jitter float64, rng *rand.Rand) (models.Position, bool) {
	latDiff := dest.Lat - cur.Lat
	lngDiff := dest.Lng - cur.Lng
	if math.Abs(latDiff) < Epsilon && math.Abs(lngDiff) < Epsilon {
		return cur, true
	}
	next := models.Position{
		Lat: cur.Lat + k*latDiff,
		Lng: cur.Lng + k*lngDiff,
	}
	if jitter > 0 && rng != nil {
		next.Lat += (rng.Float64()*2 - 1) * jitter
		next.Lng += (rng.Float64()*2 - 1) * jitter
	}
	return next, false
}
