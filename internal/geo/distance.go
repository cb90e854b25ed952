package geo

import (
	"fmt"
	"math"

	"restaurantDelivery/models"
)

const (
	// EarthRadiusKm is Earth's radius in kilometres for Haversine calculation.
	EarthRadiusKm = 6371.0
	// ArrivedKm is the distance under which a courier counts as arrived.
	ArrivedKm = 0.1
	// DefaultSpeedKmh is the nominal courier speed used for ETA.
	DefaultSpeedKmh = 40.0
	// Placeholder is shown when nothing is being tracked.
	Placeholder = "--"
)

// HaversineKm calculates the great-circle distance between two points in kilometres.
func HaversineKm(a, b models.Position) float64 {
	const degToRad = math.Pi / 180
	dLat := (b.Lat - a.Lat) * degToRad
	dLng := (b.Lng - a.Lng) * degToRad
	h := math.Sin(dLat/2)*math.Sin(dLat/2) + math.Cos(a.Lat*degToRad)*math.Cos(b.Lat*degToRad)*math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
	return EarthRadiusKm * c
}

// IsWithinRadius checks if two coordinates are strictly closer than radiusKm,
// matching the "Arrived" cut-off of ETA.
func IsWithinRadius(a, b models.Position, radiusKm float64) bool {
	return HaversineKm(a, b) < radiusKm
}

// Estimate is a display-ready arrival estimate.
type Estimate struct {
	Minutes int    `json:"minutes"`
	Label   string `json:"label"`
}

// ETA derives minutes at a constant speed: ceil(distance / speed * 60).
// Under ArrivedKm the label is "Arrived"; under one minute it is "Arriving Now".
func ETA(distanceKm, speedKmh float64) Estimate {
	if speedKmh <= 0 {
		speedKmh = DefaultSpeedKmh
	}
	if distanceKm < ArrivedKm {
		return Estimate{Minutes: 0, Label: "Arrived"}
	}
	minutes := int(math.Ceil(distanceKm / speedKmh * 60))
	if minutes < 1 {
		return Estimate{Minutes: 0, Label: "Arriving Now"}
	}
	return Estimate{Minutes: minutes, Label: fmt.Sprintf("%d min", minutes)}
}
