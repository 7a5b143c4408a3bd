package tracking

import (
	"context"
	"time"

	"github.com/andrescamacho/fleettrack-go/internal/domain/routing"
	"github.com/andrescamacho/fleettrack-go/internal/domain/shared"
	"github.com/andrescamacho/fleettrack-go/internal/domain/tracking"
	"github.com/andrescamacho/fleettrack-go/pkg/geo"
)

// RerouteConfig holds reroute evaluation thresholds
type RerouteConfig struct {
	MinSavingMin  float64       // savings must be strictly greater to propose
	ProposalTTL   time.Duration // expiry for unaccepted proposals
	Alternatives  int           // k alternatives requested from the router
	DetourMaxPct  float64       // distance overshoot beyond which a penalty applies
	DetourPenalty time.Duration // penalty subtracted from a long detour's saving
}

// DefaultRerouteConfig returns the production thresholds
func DefaultRerouteConfig() RerouteConfig {
	return RerouteConfig{
		MinSavingMin:  10,
		ProposalTTL:   15 * time.Minute,
		Alternatives:  3,
		DetourMaxPct:  30,
		DetourPenalty: 5 * time.Minute,
	}
}

// Evaluator requests alternatives from the routing backend, scores them
// against the current residual, and persists qualifying proposals.
type Evaluator struct {
	cfg     RerouteConfig
	router  routing.RoutingClient
	repo    tracking.Repository
	ids     shared.IDGenerator
	profile routing.Profile
}

// NewEvaluator creates a reroute evaluator
func NewEvaluator(cfg RerouteConfig, router routing.RoutingClient, repo tracking.Repository, ids shared.IDGenerator, profile routing.Profile) *Evaluator {
	return &Evaluator{cfg: cfg, router: router, repo: repo, ids: ids, profile: profile}
}

// ProposalTTL returns the expiry applied to unanswered proposals
func (e *Evaluator) ProposalTTL() time.Duration {
	return e.cfg.ProposalTTL
}

// Evaluate asks for alternatives from the current snapped position through
// all remaining stops and returns a persisted proposed reroute, or nil when
// no alternative clears the saving threshold. The caller supplies the
// current residual duration and its confidence; proposals require at least
// medium confidence.
func (e *Evaluator) Evaluate(
	ctx context.Context,
	shipment *tracking.Shipment,
	currentRoute *tracking.Route,
	snap *tracking.SnappedPoint,
	residual time.Duration,
	confidence tracking.ConfidenceBucket,
	now time.Time,
) (*tracking.Reroute, error) {
	if !confidence.AtLeast(tracking.ConfidenceMedium) {
		return nil, nil
	}

	remaining := shipment.RemainingStops()
	if len(remaining) == 0 {
		return nil, nil
	}
	waypoints := make([]geo.Point, 0, len(remaining)+1)
	waypoints = append(waypoints, snap.Snapped)
	for _, stop := range remaining {
		waypoints = append(waypoints, stop.Location)
	}

	alternatives, err := e.router.Alternatives(ctx, waypoints, e.profile, e.cfg.Alternatives)
	if err != nil {
		return nil, err
	}

	residualDistanceM := (1 - snap.Progress) * currentRoute.DistanceM

	var best *tracking.Route
	var bestSaved time.Duration
	for _, alt := range alternatives {
		saved := residual - alt.Duration
		if residualDistanceM > 0 && alt.DistanceM > residualDistanceM*(1+e.cfg.DetourMaxPct/100) {
			saved -= e.cfg.DetourPenalty
		}
		if best == nil || saved > bestSaved {
			best = alt
			bestSaved = saved
		}
	}

	// Equal saving is not enough; the threshold must be strictly exceeded.
	if best == nil || bestSaved.Minutes() <= e.cfg.MinSavingMin {
		return nil, nil
	}

	// A new proposal supersedes any still-proposed one.
	if prior, err := e.repo.GetProposedReroute(ctx, shipment.ID); err == nil && prior != nil {
		if err := e.repo.UpdateRerouteStatus(ctx, prior.ID, tracking.RerouteStatusExpired); err != nil {
			return nil, err
		}
	}

	if err := e.repo.SaveRoute(ctx, shipment.ID, best, false); err != nil {
		return nil, err
	}

	reroute := &tracking.Reroute{
		ID:           e.ids.NewID(),
		ShipmentID:   shipment.ID,
		CreatedAt:    now,
		OldRouteID:   currentRoute.ID,
		NewRouteID:   best.ID,
		NewRoute:     best,
		TimeSavedMin: bestSaved.Minutes(),
		Reason:       "faster alternative available",
		Status:       tracking.RerouteStatusProposed,
	}
	if err := e.repo.InsertReroute(ctx, reroute); err != nil {
		return nil, err
	}
	return reroute, nil
}
