package tracking

import (
	"fmt"
	"time"

	"github.com/andrescamacho/fleettrack-go/internal/domain/shared"
)

// RerouteStatus represents the reroute proposal lifecycle
type RerouteStatus string

const (
	RerouteStatusProposed RerouteStatus = "proposed"
	RerouteStatusAccepted RerouteStatus = "accepted"
	RerouteStatusRejected RerouteStatus = "rejected"
	RerouteStatusExpired  RerouteStatus = "expired"
)

// Reroute is an alternative route offered for human acceptance
//
// Invariants:
// - at most one proposed reroute per shipment; a new proposal expires the old one
// - once accepted, the shipment's active route is atomically replaced
type Reroute struct {
	ID           string
	ShipmentID   string
	CreatedAt    time.Time
	OldRouteID   string
	NewRouteID   string
	NewRoute     *Route // carried in memory so acceptance does not refetch
	TimeSavedMin float64
	Reason       string
	Status       RerouteStatus
}

// Accept transitions proposed → accepted
func (r *Reroute) Accept() error {
	if r.Status != RerouteStatusProposed {
		return shared.NewDomainError(shared.KindStateConflict,
			fmt.Sprintf("reroute %s is %s, only proposed reroutes can be accepted", r.ID, r.Status))
	}
	r.Status = RerouteStatusAccepted
	return nil
}

// Reject transitions proposed → rejected
func (r *Reroute) Reject() error {
	if r.Status != RerouteStatusProposed {
		return shared.NewDomainError(shared.KindStateConflict,
			fmt.Sprintf("reroute %s is %s, only proposed reroutes can be rejected", r.ID, r.Status))
	}
	r.Status = RerouteStatusRejected
	return nil
}

// Expire transitions proposed → expired. Expiring a non-proposed reroute is a no-op.
func (r *Reroute) Expire() {
	if r.Status == RerouteStatusProposed {
		r.Status = RerouteStatusExpired
	}
}

// ExpiredAt reports whether the proposal has outlived its TTL at the given instant
func (r *Reroute) ExpiredAt(now time.Time, ttl time.Duration) bool {
	return r.Status == RerouteStatusProposed && now.Sub(r.CreatedAt) >= ttl
}

func (r *Reroute) String() string {
	return fmt.Sprintf("Reroute(id=%s, shipment=%s, saved=%.1fmin, status=%s)",
		r.ID, r.ShipmentID, r.TimeSavedMin, r.Status)
}
