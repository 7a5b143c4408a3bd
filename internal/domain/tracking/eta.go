package tracking

import (
	"time"
)

// ConfidenceBucket coarsely classifies ETA reliability for display
type ConfidenceBucket string

const (
	ConfidenceHigh   ConfidenceBucket = "high"
	ConfidenceMedium ConfidenceBucket = "medium"
	ConfidenceLow    ConfidenceBucket = "low"
)

// Degrade caps a bucket at the given ceiling
func (c ConfidenceBucket) Degrade(ceiling ConfidenceBucket) ConfidenceBucket {
	rank := map[ConfidenceBucket]int{ConfidenceLow: 0, ConfidenceMedium: 1, ConfidenceHigh: 2}
	if rank[c] > rank[ceiling] {
		return ceiling
	}
	return c
}

// AtLeast reports whether the bucket meets the given floor
func (c ConfidenceBucket) AtLeast(floor ConfidenceBucket) bool {
	rank := map[ConfidenceBucket]int{ConfidenceLow: 0, ConfidenceMedium: 1, ConfidenceHigh: 2}
	return rank[c] >= rank[floor]
}

// ETASample is one per-stop arrival estimate produced after a position
type ETASample struct {
	ID               string
	ShipmentID       string
	StopID           string
	ObservedAt       time.Time
	EstimatedArrival time.Time
	ResidualM        float64       // remaining distance along the route
	ResidualRaw      time.Duration // unsmoothed residual duration
	ResidualSmoothed time.Duration // EWMA-smoothed residual duration
	Bucket           ConfidenceBucket
	Confidence       float64 // 0..1, derived from the same inputs as Bucket
}
