package tracking

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/andrescamacho/fleettrack-go/internal/adapters/metrics"
	"github.com/andrescamacho/fleettrack-go/internal/application/logging"
	"github.com/andrescamacho/fleettrack-go/internal/domain/shared"
	"github.com/andrescamacho/fleettrack-go/internal/domain/signals"
	"github.com/andrescamacho/fleettrack-go/internal/domain/tracking"
	"github.com/andrescamacho/fleettrack-go/pkg/geo"
)

// ActorConfig holds the per-shipment actor tunables
type ActorConfig struct {
	QueueCapacity          int           // bounded inbound position queue
	DegradedBufferCap      int           // positions buffered while storage is down
	RepoTimeout            time.Duration // per-call repository deadline
	SignalTimeout          time.Duration // per-call signal provider deadline
	RepoRetries            uint64        // retries before degrading
	LateThresholdMin       float64       // projected lateness triggering reroute evaluation
	TrafficFactorThreshold float64       // traffic factor triggering reroute evaluation
}

// DefaultActorConfig returns the production tunables
func DefaultActorConfig() ActorConfig {
	return ActorConfig{
		QueueCapacity:          64,
		DegradedBufferCap:      200,
		RepoTimeout:            1 * time.Second,
		SignalTimeout:          2 * time.Second,
		RepoRetries:            3,
		LateThresholdMin:       10,
		TrafficFactorThreshold: 0.6,
	}
}

// ActorDeps gathers the collaborators every actor shares
type ActorDeps struct {
	Repo       tracking.Repository
	Publisher  tracking.EventPublisher
	Snapper    *Snapper
	Estimator  *Estimator
	Classifier *Classifier
	Evaluator  *Evaluator
	Traffic    signals.TrafficProvider
	Weather    signals.WeatherProvider
	Clock      shared.Clock
	Dwell      DwellConfig
	Logger     logging.Logger
}

// ShipmentSnapshot is the read-only view served to queries while the actor
// keeps exclusive ownership of the mutable state.
type ShipmentSnapshot struct {
	Shipment        *tracking.Shipment
	LastSnapped     *tracking.SnappedPoint
	Advisory        *tracking.Advisory
	StopETAs        []tracking.StopETA
	ResidualPercent float64
}

type commandKind int

const (
	cmdStart commandKind = iota
	cmdCancel
	cmdSnapshot
	cmdAcceptReroute
	cmdRejectReroute
	cmdProposeReroute
	cmdReportIssue
	cmdShiftStart
)

type command struct {
	kind      commandKind
	rerouteID string
	note      string
	at        time.Time
	reply     chan commandResult
}

type commandResult struct {
	snapshot *ShipmentSnapshot
	reroute  *tracking.Reroute
	err      error
}

// Actor is the per-shipment serialized state machine. All shipment-scoped
// mutations flow through its run loop; independent shipments run in parallel.
type Actor struct {
	cfg  ActorConfig
	deps ActorDeps

	positions chan *tracking.Position
	commands  chan command
	stopped   chan struct{}

	// State below is owned exclusively by the run loop goroutine.
	shipment     *tracking.Shipment
	route        *tracking.Route
	lastAccepted time.Time
	lastSnap     *tracking.SnappedPoint
	smoothed     map[string]time.Duration
	advisory     *tracking.Advisory
	lastETAs     []tracking.StopETA
	lastResidual time.Duration
	lastBucket   tracking.ConfidenceBucket
	lastLateness float64
	rejectStreak int
	proposed     *tracking.Reroute
	shiftStart   *time.Time
	issue        *VehicleIssue
	dwell        *DwellDetector
	dwellStopID  string
	degraded     []*tracking.SnappedPoint
	degradedLost int
}

// NewActor creates an actor for one shipment. route may be nil; the actor
// loads the active route lazily on the first position.
func NewActor(cfg ActorConfig, deps ActorDeps, shipment *tracking.Shipment, route *tracking.Route) *Actor {
	if cfg.QueueCapacity <= 0 {
		cfg.QueueCapacity = DefaultActorConfig().QueueCapacity
	}
	if deps.Logger == nil {
		deps.Logger = logging.NopLogger()
	}
	return &Actor{
		cfg:        cfg,
		deps:       deps,
		positions:  make(chan *tracking.Position, cfg.QueueCapacity),
		commands:   make(chan command, 16),
		stopped:    make(chan struct{}),
		shipment:   shipment,
		route:      route,
		smoothed:   make(map[string]time.Duration),
		lastBucket: tracking.ConfidenceLow,
		dwell:      NewDwellDetector(deps.Dwell),
	}
}

// ShipmentID returns the owned shipment's id
func (a *Actor) ShipmentID() string { return a.shipment.ID }

// Run processes messages until the context is cancelled or the shipment
// reaches a terminal status. Must be called exactly once, in its own goroutine.
func (a *Actor) Run(ctx context.Context) {
	metrics.RecordActorStarted()
	defer func() {
		metrics.RecordActorStopped()
		close(a.stopped)
		// Unblock callers whose command was admitted but not yet served.
		for {
			select {
			case cmd := <-a.commands:
				cmd.reply <- commandResult{err: shared.NewDomainError(shared.KindStateConflict,
					fmt.Sprintf("shipment %s is no longer tracked", a.shipment.ID))}
			default:
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case cmd := <-a.commands:
			a.handleCommand(ctx, cmd)
		case pos := <-a.positions:
			a.handlePosition(ctx, pos)
		}
		if !a.shipment.IsActive() {
			return
		}
	}
}

// Stopped reports whether the run loop has exited
func (a *Actor) Stopped() bool {
	select {
	case <-a.stopped:
		return true
	default:
		return false
	}
}

// Done is closed when the run loop exits
func (a *Actor) Done() <-chan struct{} { return a.stopped }

// Enqueue offers a position to the inbound queue without blocking. On a full
// queue the oldest buffered position is dropped to preserve freshness.
// Returns false only if the position could not be queued at all.
func (a *Actor) Enqueue(pos *tracking.Position) bool {
	select {
	case a.positions <- pos:
		return true
	default:
	}
	select {
	case <-a.positions:
		metrics.RecordQueueDrop()
	default:
	}
	select {
	case a.positions <- pos:
		return true
	default:
		return false
	}
}

// Start transitions the shipment to in_transit by explicit command
func (a *Actor) Start(ctx context.Context) error {
	_, err := a.send(ctx, command{kind: cmdStart})
	return err
}

// Cancel transitions the shipment to cancelled and stops the actor
func (a *Actor) Cancel(ctx context.Context) error {
	_, err := a.send(ctx, command{kind: cmdCancel})
	return err
}

// Snapshot returns the current read-only view of the shipment
func (a *Actor) Snapshot(ctx context.Context) (*ShipmentSnapshot, error) {
	res, err := a.send(ctx, command{kind: cmdSnapshot})
	if err != nil {
		return nil, err
	}
	return res.snapshot, nil
}

// AcceptReroute atomically activates a proposed reroute
func (a *Actor) AcceptReroute(ctx context.Context, rerouteID string) (*tracking.Reroute, error) {
	res, err := a.send(ctx, command{kind: cmdAcceptReroute, rerouteID: rerouteID})
	if err != nil {
		return nil, err
	}
	return res.reroute, nil
}

// RejectReroute marks a proposed reroute rejected
func (a *Actor) RejectReroute(ctx context.Context, rerouteID string) (*tracking.Reroute, error) {
	res, err := a.send(ctx, command{kind: cmdRejectReroute, rerouteID: rerouteID})
	if err != nil {
		return nil, err
	}
	return res.reroute, nil
}

// ProposeReroute explicitly triggers a reroute evaluation. A nil reroute with
// nil error means no alternative cleared the saving threshold.
func (a *Actor) ProposeReroute(ctx context.Context) (*tracking.Reroute, error) {
	res, err := a.send(ctx, command{kind: cmdProposeReroute})
	if err != nil {
		return nil, err
	}
	return res.reroute, nil
}

// ReportVehicleIssue records a manual vehicle event for delay classification
func (a *Actor) ReportVehicleIssue(ctx context.Context, note string, at time.Time) error {
	_, err := a.send(ctx, command{kind: cmdReportIssue, note: note, at: at})
	return err
}

// RecordShiftStart records the driver's shift start for hours-of-service scoring
func (a *Actor) RecordShiftStart(ctx context.Context, at time.Time) error {
	_, err := a.send(ctx, command{kind: cmdShiftStart, at: at})
	return err
}

// send admits a command to the run loop, honoring the caller's deadline.
// A deadline elapsing before admission rejects with DEADLINE_EXCEEDED; once
// admitted, the command runs to completion.
func (a *Actor) send(ctx context.Context, cmd command) (commandResult, error) {
	cmd.reply = make(chan commandResult, 1)
	select {
	case a.commands <- cmd:
	case <-a.stopped:
		return commandResult{}, shared.NewDomainError(shared.KindStateConflict,
			fmt.Sprintf("shipment %s is no longer tracked", a.shipment.ID))
	case <-ctx.Done():
		return commandResult{}, shared.NewDomainError(shared.KindDeadlineExceeded,
			"deadline elapsed before the command was admitted")
	}
	res := <-cmd.reply
	return res, res.err
}

func (a *Actor) handleCommand(ctx context.Context, cmd command) {
	var res commandResult
	switch cmd.kind {
	case cmdStart:
		res.err = a.start(ctx)
	case cmdCancel:
		res.err = a.cancel(ctx)
	case cmdSnapshot:
		res.snapshot = a.snapshot()
	case cmdAcceptReroute:
		res.reroute, res.err = a.acceptReroute(ctx, cmd.rerouteID)
	case cmdRejectReroute:
		res.reroute, res.err = a.rejectReroute(ctx, cmd.rerouteID)
	case cmdProposeReroute:
		res.reroute, res.err = a.proposeReroute(ctx)
	case cmdReportIssue:
		a.issue = &VehicleIssue{ReportedAt: cmd.at, Note: cmd.note}
	case cmdShiftStart:
		t := cmd.at
		a.shiftStart = &t
	}
	cmd.reply <- res
}

// handlePosition is the hot path: admission, snap, dwell, ETA, classify,
// reroute, publish, persist. Executed strictly in order per position.
func (a *Actor) handlePosition(ctx context.Context, pos *tracking.Position) {
	now := a.deps.Clock.Now()

	// Admission: timestamps must strictly advance per vehicle.
	if !pos.Timestamp.After(a.lastAccepted) {
		metrics.RecordPositionDropped("stale_timestamp")
		return
	}
	a.lastAccepted = pos.Timestamp

	if a.route == nil {
		route, err := a.loadRoute(ctx)
		if err != nil {
			metrics.RecordPositionDropped("no_active_route")
			a.deps.Logger.Log("warn", "position dropped, no active route", map[string]interface{}{
				"shipment_id": a.shipment.ID,
				"error":       err.Error(),
			})
			return
		}
		a.route = route
	}

	snap, err := a.deps.Snapper.Snap(pos, a.route, a.lastSnap)
	if err != nil {
		a.rejectStreak++
		metrics.RecordSnapRejection(rejectReason(err))
		// A sustained rejection streak is itself a delay signal.
		if a.rejectStreak >= a.deps.Classifier.cfg.OffRouteRejects {
			a.classify(ctx, nil, nil, a.lastLateness, now)
		}
		return
	}
	metrics.RecordPositionAdmitted(a.shipment.ID)
	a.rejectStreak = 0

	// First observed movement starts the shipment.
	if a.shipment.Status == tracking.ShipmentStatusPending && snap.Progress > 0 {
		if err := a.shipment.Start(now); err == nil {
			a.persistStatus(ctx)
		}
	}

	a.observeDwell(ctx, snap, now)
	if !a.shipment.IsActive() {
		// Terminal stop completed; persist the final position and let the
		// run loop retire the actor.
		a.lastSnap = snap
		a.persistPosition(ctx, snap, nil, nil, now)
		return
	}

	traffic, weather := a.sampleSignals(ctx, snap.Snapped, now)
	est := a.deps.Estimator.Estimate(a.shipment, a.route, snap, traffic, weather, a.smoothed, now)
	lateness := a.latenessMin(est)

	prevSeverity := tracking.SeverityLow
	if a.advisory != nil {
		prevSeverity = a.advisory.Severity
	}
	a.classify(ctx, traffic, weather, lateness, now)

	escalated := prevSeverity == tracking.SeverityLow &&
		a.advisory != nil && a.advisory.Severity != tracking.SeverityLow
	trafficBad := traffic != nil && traffic.SpeedFactor() < a.cfg.TrafficFactorThreshold
	if escalated || lateness > a.cfg.LateThresholdMin || trafficBad {
		a.evaluateReroute(ctx, snap, est, now)
	}
	a.expireStaleProposal(ctx, now)

	stopETAs := a.stopETAs(est.Samples)
	a.lastSnap = snap
	a.lastETAs = stopETAs
	a.lastBucket = est.Bucket
	a.lastLateness = lateness
	if n := len(est.Samples); n > 0 {
		a.lastResidual = est.Samples[n-1].ResidualSmoothed
	}

	update := tracking.PositionUpdateEvent{
		ShipmentID:      a.shipment.ID,
		Snapped:         snap.Snapped,
		Progress:        snap.Progress,
		ResidualPercent: (1 - snap.Progress) * 100,
		StopETAs:        stopETAs,
		Advisory:        a.advisory,
		ObservedAt:      pos.Timestamp,
	}
	a.deps.Publisher.Publish(a.shipment.ID, update)

	a.persistPosition(ctx, snap, est.Samples, update, now)
}

// loadRoute fetches the active route under the repository deadline
func (a *Actor) loadRoute(ctx context.Context) (*tracking.Route, error) {
	c, cancel := context.WithTimeout(ctx, a.cfg.RepoTimeout)
	defer cancel()
	return a.deps.Repo.GetActiveRoute(c, a.shipment.ID)
}

// observeDwell applies the dwell-radius predicate to the next incomplete stop
// and persists arrival/departure mutations. Completion of the terminal stop
// completes the shipment.
func (a *Actor) observeDwell(ctx context.Context, snap *tracking.SnappedPoint, now time.Time) {
	next := a.shipment.NextStop()
	if next == nil {
		return
	}
	if next.ID != a.dwellStopID {
		a.dwell.Reset()
		a.dwellStopID = next.ID
	}

	event, at := a.dwell.Observe(next, snap.Snapped, snap.EdgeSpeed, snap.Position.Timestamp)
	terminal := a.shipment.TerminalStop()

	switch event {
	case DwellArrived:
		next.MarkArrived(at)
		if terminal != nil && next.ID == terminal.ID {
			// Arrival at the terminal stop completes the shipment; there is
			// no onward leg to depart for.
			next.Completed = true
			a.updateStop(ctx, next)
			if err := a.shipment.Complete(now); err == nil {
				a.persistStatus(ctx)
			}
			return
		}
		a.updateStop(ctx, next)
	case DwellDeparted:
		if err := next.MarkDeparted(at); err != nil {
			a.deps.Logger.Log("warn", "departure rejected", map[string]interface{}{
				"shipment_id": a.shipment.ID,
				"stop_id":     next.ID,
				"error":       err.Error(),
			})
			return
		}
		a.updateStop(ctx, next)
		delete(a.smoothed, next.ID)
		a.dwell.Reset()
	}
}

func (a *Actor) updateStop(ctx context.Context, stop *tracking.Stop) {
	err := a.withRetry(ctx, func(c context.Context) error {
		return a.deps.Repo.UpdateStopActual(c, stop.ID, stop.ActualArrival, stop.ActualDeparture, stop.Completed)
	})
	if err != nil {
		a.deps.Logger.Log("error", "failed to persist stop actuals", map[string]interface{}{
			"shipment_id": a.shipment.ID,
			"stop_id":     stop.ID,
			"error":       err.Error(),
		})
	}
}

// sampleSignals queries both providers under their deadline. Unavailability
// is a missing input, never a failure of the position pass.
func (a *Actor) sampleSignals(ctx context.Context, at geo.Point, now time.Time) (*signals.TrafficSample, *signals.WeatherSample) {
	var traffic *signals.TrafficSample
	var weather *signals.WeatherSample
	if a.deps.Traffic != nil {
		c, cancel := context.WithTimeout(ctx, a.cfg.SignalTimeout)
		if s, err := a.deps.Traffic.Sample(c, at, now); err == nil {
			traffic = s
		}
		cancel()
	}
	if a.deps.Weather != nil {
		c, cancel := context.WithTimeout(ctx, a.cfg.SignalTimeout)
		if s, err := a.deps.Weather.Sample(c, at, now); err == nil {
			weather = s
		}
		cancel()
	}
	return traffic, weather
}

// latenessMin is the projected terminal arrival minus the promised time
func (a *Actor) latenessMin(est *Estimation) float64 {
	if len(est.Samples) == 0 || a.shipment.PromisedAt.IsZero() {
		return 0
	}
	last := est.Samples[len(est.Samples)-1]
	return last.EstimatedArrival.Sub(a.shipment.PromisedAt).Minutes()
}

// classify runs one classifier pass and upserts the advisory when it
// supersedes the active one.
func (a *Actor) classify(ctx context.Context, traffic *signals.TrafficSample, weather *signals.WeatherSample, lateness float64, now time.Time) {
	adv := a.deps.Classifier.Classify(ClassifierInput{
		Shipment:         a.shipment,
		LatenessMin:      lateness,
		Traffic:          traffic,
		Weather:          weather,
		ShiftStart:       a.shiftStart,
		VehicleIssue:     a.issue,
		SnapRejectStreak: a.rejectStreak,
		Now:              now,
	})
	if !adv.Supersedes(a.advisory) {
		return
	}
	a.advisory = adv
	err := a.withRetry(ctx, func(c context.Context) error {
		return a.deps.Repo.UpsertAdvisory(c, a.shipment.ID, adv)
	})
	if err != nil {
		a.deps.Logger.Log("error", "failed to persist advisory", map[string]interface{}{
			"shipment_id": a.shipment.ID,
			"reason":      string(adv.Reason),
			"error":       err.Error(),
		})
	}
	a.deps.Publisher.Publish(a.shipment.ID, tracking.AdvisoryChangedEvent{
		ShipmentID:  a.shipment.ID,
		Reason:      adv.Reason,
		Confidence:  adv.Confidence,
		Explanation: adv.Explanation,
		Severity:    adv.Severity,
	})
}

// evaluateReroute asks the evaluator for a qualifying proposal and announces it
func (a *Actor) evaluateReroute(ctx context.Context, snap *tracking.SnappedPoint, est *Estimation, now time.Time) {
	// One live proposal at a time; a fresh one is only sought once the
	// previous proposal is answered or expired.
	if a.proposed != nil && !a.proposed.ExpiredAt(now, a.deps.Evaluator.ProposalTTL()) {
		return
	}
	residual := a.lastResidual
	if n := len(est.Samples); n > 0 {
		residual = est.Samples[n-1].ResidualSmoothed
	}
	reroute, err := a.deps.Evaluator.Evaluate(ctx, a.shipment, a.route, snap, residual, est.Bucket, now)
	if err != nil {
		a.deps.Logger.Log("warn", "reroute evaluation failed", map[string]interface{}{
			"shipment_id": a.shipment.ID,
			"error":       err.Error(),
		})
		return
	}
	if reroute == nil {
		return
	}
	a.proposed = reroute
	metrics.RecordRerouteProposed()
	a.deps.Publisher.Publish(a.shipment.ID, tracking.RerouteSuggestedEvent{
		ShipmentID:   a.shipment.ID,
		RerouteID:    reroute.ID,
		TimeSavedMin: reroute.TimeSavedMin,
		Reason:       reroute.Reason,
	})
	a.audit(ctx, "reroute_suggested", tracking.RerouteSuggestedEvent{
		ShipmentID:   a.shipment.ID,
		RerouteID:    reroute.ID,
		TimeSavedMin: reroute.TimeSavedMin,
		Reason:       reroute.Reason,
	}, now)
}

// expireStaleProposal retires a proposal that outlived its TTL
func (a *Actor) expireStaleProposal(ctx context.Context, now time.Time) {
	if a.proposed == nil || !a.proposed.ExpiredAt(now, a.deps.Evaluator.ProposalTTL()) {
		return
	}
	a.proposed.Expire()
	err := a.withRetry(ctx, func(c context.Context) error {
		return a.deps.Repo.UpdateRerouteStatus(c, a.proposed.ID, tracking.RerouteStatusExpired)
	})
	if err != nil {
		a.deps.Logger.Log("error", "failed to expire reroute proposal", map[string]interface{}{
			"shipment_id": a.shipment.ID,
			"reroute_id":  a.proposed.ID,
			"error":       err.Error(),
		})
	}
	a.proposed = nil
}

func (a *Actor) start(ctx context.Context) error {
	if err := a.shipment.Start(a.deps.Clock.Now()); err != nil {
		return err
	}
	return a.withRetry(ctx, func(c context.Context) error {
		return a.deps.Repo.UpdateShipmentStatus(c, a.shipment.ID, a.shipment.Status)
	})
}

func (a *Actor) cancel(ctx context.Context) error {
	if err := a.shipment.Cancel(a.deps.Clock.Now()); err != nil {
		return err
	}
	return a.withRetry(ctx, func(c context.Context) error {
		return a.deps.Repo.UpdateShipmentStatus(c, a.shipment.ID, a.shipment.Status)
	})
}

func (a *Actor) snapshot() *ShipmentSnapshot {
	residualPct := 100.0
	if a.lastSnap != nil {
		residualPct = (1 - a.lastSnap.Progress) * 100
	}
	return &ShipmentSnapshot{
		Shipment:        a.shipment,
		LastSnapped:     a.lastSnap,
		Advisory:        a.advisory,
		StopETAs:        a.lastETAs,
		ResidualPercent: residualPct,
	}
}

func (a *Actor) acceptReroute(ctx context.Context, rerouteID string) (*tracking.Reroute, error) {
	now := a.deps.Clock.Now()
	reroute, err := a.resolveReroute(ctx, rerouteID)
	if err != nil {
		return nil, err
	}
	if reroute.ExpiredAt(now, a.deps.Evaluator.ProposalTTL()) {
		a.expireStaleProposal(ctx, now)
		return nil, shared.NewDomainError(shared.KindStateConflict,
			fmt.Sprintf("reroute %s has expired", rerouteID))
	}
	if err := reroute.Accept(); err != nil {
		return nil, err
	}
	if err := a.withRetry(ctx, func(c context.Context) error {
		return a.deps.Repo.ReplaceActiveRouteWithReroute(c, a.shipment.ID, reroute.ID)
	}); err != nil {
		return nil, err
	}
	metrics.RecordRerouteAccepted()

	if reroute.NewRoute != nil {
		a.route = reroute.NewRoute
	} else if route, err := a.loadRoute(ctx); err == nil {
		a.route = route
	}
	a.shipment.ActiveRouteID = reroute.NewRouteID
	a.proposed = nil
	// EWMA state belongs to the old route's residuals; restart it.
	a.smoothed = make(map[string]time.Duration)

	accepted := tracking.RerouteAcceptedEvent{
		ShipmentID: a.shipment.ID,
		RerouteID:  reroute.ID,
		NewRouteSummary: tracking.RouteSummary{
			RouteID:   reroute.NewRouteID,
			DistanceM: a.route.DistanceM,
			Duration:  a.route.Duration,
			Source:    a.route.Source,
		},
		StopsWithNewETAs: a.reprojectedETAs(ctx, now),
	}
	a.deps.Publisher.Publish(a.shipment.ID, accepted)
	a.audit(ctx, "reroute_accepted", accepted, now)
	return reroute, nil
}

// reprojectedETAs recomputes stop ETAs against the new active route from the
// last accepted snap. ETAs settle fully on the next inbound position.
func (a *Actor) reprojectedETAs(ctx context.Context, now time.Time) []tracking.StopETA {
	if a.lastSnap == nil || a.route == nil {
		return nil
	}
	proj := a.route.Line.Project(a.lastSnap.Snapped)
	snap := &tracking.SnappedPoint{
		Position:    a.lastSnap.Position,
		RouteID:     a.route.ID,
		Snapped:     proj.Point,
		Progress:    proj.Fraction,
		CrossTrackM: proj.CrossTrack,
		EdgeSpeed:   a.lastSnap.EdgeSpeed,
	}
	traffic, weather := a.sampleSignals(ctx, snap.Snapped, now)
	est := a.deps.Estimator.Estimate(a.shipment, a.route, snap, traffic, weather, a.smoothed, now)
	etas := a.stopETAs(est.Samples)
	a.lastSnap = snap
	a.lastETAs = etas
	a.lastBucket = est.Bucket
	if n := len(est.Samples); n > 0 {
		a.lastResidual = est.Samples[n-1].ResidualSmoothed
	}
	return etas
}

func (a *Actor) rejectReroute(ctx context.Context, rerouteID string) (*tracking.Reroute, error) {
	reroute, err := a.resolveReroute(ctx, rerouteID)
	if err != nil {
		return nil, err
	}
	if err := reroute.Reject(); err != nil {
		return nil, err
	}
	if err := a.withRetry(ctx, func(c context.Context) error {
		return a.deps.Repo.UpdateRerouteStatus(c, reroute.ID, tracking.RerouteStatusRejected)
	}); err != nil {
		return nil, err
	}
	if a.proposed != nil && a.proposed.ID == reroute.ID {
		a.proposed = nil
	}
	return reroute, nil
}

func (a *Actor) proposeReroute(ctx context.Context) (*tracking.Reroute, error) {
	if a.lastSnap == nil || a.route == nil {
		return nil, shared.NewDomainError(shared.KindStateConflict,
			fmt.Sprintf("shipment %s has no accepted position to reroute from", a.shipment.ID))
	}
	now := a.deps.Clock.Now()
	a.expireStaleProposal(ctx, now)
	if a.proposed != nil {
		return nil, shared.NewDomainError(shared.KindStateConflict,
			fmt.Sprintf("shipment %s already has a proposed reroute", a.shipment.ID))
	}
	// Explicit triggers bypass the confidence gate by passing the floor the
	// evaluator requires.
	bucket := a.lastBucket
	if !bucket.AtLeast(tracking.ConfidenceMedium) {
		bucket = tracking.ConfidenceMedium
	}
	reroute, err := a.deps.Evaluator.Evaluate(ctx, a.shipment, a.route, a.lastSnap, a.lastResidual, bucket, now)
	if err != nil {
		return nil, err
	}
	if reroute == nil {
		return nil, nil
	}
	a.proposed = reroute
	metrics.RecordRerouteProposed()
	a.deps.Publisher.Publish(a.shipment.ID, tracking.RerouteSuggestedEvent{
		ShipmentID:   a.shipment.ID,
		RerouteID:    reroute.ID,
		TimeSavedMin: reroute.TimeSavedMin,
		Reason:       reroute.Reason,
	})
	return reroute, nil
}

// resolveReroute prefers the in-memory proposal, falling back to the repository
func (a *Actor) resolveReroute(ctx context.Context, rerouteID string) (*tracking.Reroute, error) {
	if a.proposed != nil && a.proposed.ID == rerouteID {
		return a.proposed, nil
	}
	var reroute *tracking.Reroute
	err := a.withRetry(ctx, func(c context.Context) error {
		var err error
		reroute, err = a.deps.Repo.GetReroute(c, rerouteID)
		return err
	})
	if err != nil {
		return nil, err
	}
	if reroute.ShipmentID != a.shipment.ID {
		return nil, shared.NewDomainError(shared.KindNotFound,
			fmt.Sprintf("reroute %s does not belong to shipment %s", rerouteID, a.shipment.ID))
	}
	return reroute, nil
}

// persistPosition appends the snap (and any degraded backlog), ETA samples,
// and the audit event. Persistent storage failure degrades to a bounded
// in-memory buffer instead of halting the pipeline.
func (a *Actor) persistPosition(ctx context.Context, snap *tracking.SnappedPoint, samples []*tracking.ETASample, update tracking.Event, now time.Time) {
	points := make([]*tracking.SnappedPoint, 0, len(a.degraded)+1)
	points = append(points, a.degraded...)
	points = append(points, snap)

	err := a.withRetry(ctx, func(c context.Context) error {
		_, err := a.deps.Repo.AppendPositions(c, a.shipment.VehicleID, points)
		return err
	})
	if err != nil {
		a.bufferDegraded(snap)
		a.deps.Logger.Log("error", "storage degraded, buffering positions", map[string]interface{}{
			"shipment_id": a.shipment.ID,
			"buffered":    len(a.degraded),
			"lost":        a.degradedLost,
			"error":       err.Error(),
		})
		a.deps.Publisher.Publish(a.shipment.ID, tracking.StorageDegradedEvent{
			ShipmentID: a.shipment.ID,
			Buffered:   len(a.degraded),
			Lost:       a.degradedLost,
		})
		return
	}
	a.degraded = nil

	if len(samples) > 0 {
		if err := a.withRetry(ctx, func(c context.Context) error {
			return a.deps.Repo.InsertETASamples(c, samples)
		}); err != nil {
			a.deps.Logger.Log("error", "failed to persist eta samples", map[string]interface{}{
				"shipment_id": a.shipment.ID,
				"error":       err.Error(),
			})
		}
	}
	if update != nil {
		a.audit(ctx, update.EventType(), update, now)
	}
}

// bufferDegraded holds a snap the repository refused, dropping the oldest
// beyond the cap. Loss beyond the buffer is permitted and counted.
func (a *Actor) bufferDegraded(snap *tracking.SnappedPoint) {
	a.degraded = append(a.degraded, snap)
	for len(a.degraded) > a.cfg.DegradedBufferCap {
		a.degraded = a.degraded[1:]
		a.degradedLost++
	}
}

// audit appends to the event log; failures are logged, never fatal
func (a *Actor) audit(ctx context.Context, eventType string, payload interface{}, now time.Time) {
	body, err := json.Marshal(payload)
	if err != nil {
		return
	}
	c, cancel := context.WithTimeout(ctx, a.cfg.RepoTimeout)
	defer cancel()
	if err := a.deps.Repo.InsertEvent(c, a.shipment.ID, eventType, body, now); err != nil {
		a.deps.Logger.Log("warn", "failed to append audit event", map[string]interface{}{
			"shipment_id": a.shipment.ID,
			"event_type":  eventType,
			"error":       err.Error(),
		})
	}
}

func (a *Actor) persistStatus(ctx context.Context) {
	err := a.withRetry(ctx, func(c context.Context) error {
		return a.deps.Repo.UpdateShipmentStatus(c, a.shipment.ID, a.shipment.Status)
	})
	if err != nil {
		a.deps.Logger.Log("error", "failed to persist shipment status", map[string]interface{}{
			"shipment_id": a.shipment.ID,
			"status":      string(a.shipment.Status),
			"error":       err.Error(),
		})
	}
}

// withRetry runs a repository call under the per-call deadline, retrying
// transient failures with exponential backoff.
func (a *Actor) withRetry(ctx context.Context, op func(context.Context) error) error {
	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), a.cfg.RepoRetries), ctx)
	return backoff.Retry(func() error {
		c, cancel := context.WithTimeout(ctx, a.cfg.RepoTimeout)
		defer cancel()
		err := op(c)
		if err != nil && !shared.IsRetryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}, policy)
}

// stopETAs converts estimator samples to the wire shape, carrying stop sequence
func (a *Actor) stopETAs(samples []*tracking.ETASample) []tracking.StopETA {
	seq := make(map[string]int, len(a.shipment.Stops))
	for _, s := range a.shipment.Stops {
		seq[s.ID] = s.Sequence
	}
	out := make([]tracking.StopETA, 0, len(samples))
	for _, s := range samples {
		out = append(out, tracking.StopETA{
			StopID:           s.StopID,
			Sequence:         seq[s.StopID],
			EstimatedArrival: s.EstimatedArrival,
			ResidualM:        s.ResidualM,
			Bucket:           s.Bucket,
			Confidence:       s.Confidence,
		})
	}
	return out
}

func rejectReason(err error) string {
	switch err {
	case ErrLowAccuracy:
		return "low_accuracy"
	case ErrOffPolyline:
		return "off_polyline"
	case ErrBacktrack:
		return "backtrack"
	default:
		return "other"
	}
}
