package tracking

import (
	"context"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/time/rate"

	"github.com/andrescamacho/fleettrack-go/internal/adapters/metrics"
	"github.com/andrescamacho/fleettrack-go/internal/domain/shared"
	"github.com/andrescamacho/fleettrack-go/internal/domain/tracking"
	"github.com/andrescamacho/fleettrack-go/pkg/geo"
)

// Drop reasons reported per ingest response
const (
	DropReasonStaleTimestamp  = "stale_timestamp"
	DropReasonFutureTimestamp = "future_timestamp"
	DropReasonQueueFull       = "queue_full"
	DropReasonRateLimited     = "rate_limited"
)

// PositionPoint is one fix inside an ingest batch
type PositionPoint struct {
	TS        time.Time `json:"ts" validate:"required"`
	Lat       float64   `json:"lat" validate:"min=-90,max=90"`
	Lon       float64   `json:"lon" validate:"min=-180,max=180"`
	SpeedKPH  *float64  `json:"speed,omitempty" validate:"omitempty,min=0"`
	AccuracyM *float64  `json:"accuracy" validate:"required,min=0"`
}

// PositionBatch is the inbound ingest payload, bound to one vehicle
type PositionBatch struct {
	VehicleID string          `json:"vehicle_id" validate:"required"`
	Points    []PositionPoint `json:"points" validate:"required,min=1,dive"`
	Source    string          `json:"source,omitempty"`
}

// IngestResult reports per-batch admission counts
type IngestResult struct {
	Admitted int            `json:"admitted"`
	Dropped  map[string]int `json:"dropped,omitempty"` // reason -> count
}

// GatewayConfig holds ingest admission tunables
type GatewayConfig struct {
	MaxPastWindow    time.Duration // oldest acceptable timestamp relative to now
	MaxFutureSkew    time.Duration // newest acceptable timestamp relative to now
	VehicleRate      rate.Limit    // sustained batches per second per vehicle
	VehicleBurst     int
	AdmissionTimeout time.Duration // upper bound on time spent admitting one batch
}

// DefaultGatewayConfig returns the production tunables
func DefaultGatewayConfig() GatewayConfig {
	return GatewayConfig{
		MaxPastWindow:    24 * time.Hour,
		MaxFutureSkew:    5 * time.Minute,
		VehicleRate:      10,
		VehicleBurst:     20,
		AdmissionTimeout: 250 * time.Millisecond,
	}
}

// Gateway validates inbound position batches, resolves the vehicle's active
// shipment, and forwards points to its actor. Never blocks inbound traffic
// beyond the admission timeout. Safe for concurrent use.
type Gateway struct {
	cfg      GatewayConfig
	registry *Registry
	clock    shared.Clock
	validate *validator.Validate

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewGateway creates an ingestion gateway in front of the actor registry
func NewGateway(cfg GatewayConfig, registry *Registry, clock shared.Clock) *Gateway {
	return &Gateway{
		cfg:      cfg,
		registry: registry,
		clock:    clock,
		validate: validator.New(),
		limiters: make(map[string]*rate.Limiter),
	}
}

// Ingest admits one batch. Invalid payloads reject the whole batch; valid
// batches report per-point admission and drop counts. A caller deadline that
// elapses before admission rejects with DEADLINE_EXCEEDED.
func (g *Gateway) Ingest(ctx context.Context, batch *PositionBatch) (*IngestResult, error) {
	select {
	case <-ctx.Done():
		return nil, shared.NewDomainError(shared.KindDeadlineExceeded,
			"deadline elapsed before the batch was admitted")
	default:
	}

	if err := g.validate.Struct(batch); err != nil {
		return nil, shared.WrapDomainError(shared.KindInvalidInput, "invalid position batch", err)
	}

	result := &IngestResult{Dropped: make(map[string]int)}

	if !g.limiter(batch.VehicleID).Allow() {
		result.Dropped[DropReasonRateLimited] = len(batch.Points)
		metrics.RecordPositionDropped(DropReasonRateLimited)
		return result, nil
	}

	admitCtx, cancel := context.WithTimeout(ctx, g.cfg.AdmissionTimeout)
	defer cancel()
	actor, err := g.registry.ForVehicle(admitCtx, batch.VehicleID)
	if err != nil {
		return nil, err
	}

	now := g.clock.Now()
	source := batch.Source
	if source == "" {
		source = "ingest"
	}
	for _, p := range batch.Points {
		switch {
		case p.TS.Before(now.Add(-g.cfg.MaxPastWindow)):
			result.Dropped[DropReasonStaleTimestamp]++
			metrics.RecordPositionDropped(DropReasonStaleTimestamp)
			continue
		case p.TS.After(now.Add(g.cfg.MaxFutureSkew)):
			result.Dropped[DropReasonFutureTimestamp]++
			metrics.RecordPositionDropped(DropReasonFutureTimestamp)
			continue
		}

		pos := &tracking.Position{
			VehicleID: batch.VehicleID,
			Timestamp: p.TS,
			Location:  geo.Point{Lat: p.Lat, Lon: p.Lon},
			SpeedKPH:  p.SpeedKPH,
			AccuracyM: *p.AccuracyM,
			Source:    source,
		}
		if actor.Enqueue(pos) {
			result.Admitted++
		} else {
			result.Dropped[DropReasonQueueFull]++
		}
	}
	return result, nil
}

// limiter returns the per-vehicle rate limiter, creating it on first use
func (g *Gateway) limiter(vehicleID string) *rate.Limiter {
	g.mu.Lock()
	defer g.mu.Unlock()
	l, ok := g.limiters[vehicleID]
	if !ok {
		l = rate.NewLimiter(g.cfg.VehicleRate, g.cfg.VehicleBurst)
		g.limiters[vehicleID] = l
	}
	return l
}
