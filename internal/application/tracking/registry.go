package tracking

import (
	"context"
	"fmt"
	"sync"

	"github.com/andrescamacho/fleettrack-go/internal/domain/shared"
	"github.com/andrescamacho/fleettrack-go/internal/domain/tracking"
)

// Registry starts, indexes, and reaps shipment actors. Lookups by vehicle
// serve the ingestion gateway; lookups by shipment serve commands and queries.
// Safe for concurrent use.
type Registry struct {
	cfg  ActorConfig
	deps ActorDeps

	mu        sync.RWMutex
	actors    map[string]*Actor // shipment id -> actor
	byVehicle map[string]string // vehicle id -> shipment id

	runCtx context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewRegistry creates an empty registry. Call Start before use.
func NewRegistry(cfg ActorConfig, deps ActorDeps) *Registry {
	return &Registry{
		cfg:       cfg,
		deps:      deps,
		actors:    make(map[string]*Actor),
		byVehicle: make(map[string]string),
	}
}

// Start binds the registry to its lifetime context. Actors run until the
// context is cancelled or their shipment reaches a terminal status.
func (r *Registry) Start(ctx context.Context) {
	r.runCtx, r.cancel = context.WithCancel(ctx)
}

// Close stops all actors and waits for their run loops to exit
func (r *Registry) Close() {
	if r.cancel != nil {
		r.cancel()
	}
	r.wg.Wait()
}

// ResumeActive starts an actor for every active shipment, used at daemon
// startup so in-flight shipments keep tracking across restarts.
func (r *Registry) ResumeActive(ctx context.Context) error {
	shipments, err := r.deps.Repo.ListActiveShipments(ctx)
	if err != nil {
		return err
	}
	for _, shipment := range shipments {
		if _, err := r.startActor(ctx, shipment); err != nil {
			return err
		}
	}
	return nil
}

// ForVehicle returns the running actor for the vehicle's active shipment,
// starting one on demand.
func (r *Registry) ForVehicle(ctx context.Context, vehicleID string) (*Actor, error) {
	r.mu.RLock()
	if id, ok := r.byVehicle[vehicleID]; ok {
		if a, ok := r.actors[id]; ok && !a.Stopped() {
			r.mu.RUnlock()
			return a, nil
		}
	}
	r.mu.RUnlock()

	shipment, err := r.deps.Repo.GetShipmentByVehicle(ctx, vehicleID)
	if err != nil {
		return nil, err
	}
	if !shipment.IsActive() {
		return nil, shared.NewDomainError(shared.KindStateConflict,
			fmt.Sprintf("shipment %s for vehicle %s is %s", shipment.ID, vehicleID, shipment.Status))
	}
	return r.startActor(ctx, shipment)
}

// ForShipment returns the running actor for the shipment, starting one on demand
func (r *Registry) ForShipment(ctx context.Context, shipmentID string) (*Actor, error) {
	r.mu.RLock()
	if a, ok := r.actors[shipmentID]; ok && !a.Stopped() {
		r.mu.RUnlock()
		return a, nil
	}
	r.mu.RUnlock()

	shipment, err := r.deps.Repo.GetShipmentByID(ctx, shipmentID)
	if err != nil {
		return nil, err
	}
	if !shipment.IsActive() {
		return nil, shared.NewDomainError(shared.KindStateConflict,
			fmt.Sprintf("shipment %s is %s", shipment.ID, shipment.Status))
	}
	return r.startActor(ctx, shipment)
}

// ActorCount returns the number of running actors
func (r *Registry) ActorCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.actors)
}

func (r *Registry) startActor(ctx context.Context, shipment *tracking.Shipment) (*Actor, error) {
	if r.runCtx == nil {
		return nil, shared.NewDomainError(shared.KindServiceUnavailable, "actor registry is not started")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if a, ok := r.actors[shipment.ID]; ok && !a.Stopped() {
		return a, nil
	}

	route, err := r.deps.Repo.GetActiveRoute(ctx, shipment.ID)
	if err != nil && !shared.IsKind(err, shared.KindNotFound) {
		return nil, err
	}

	actor := NewActor(r.cfg, r.deps, shipment, route)
	r.actors[shipment.ID] = actor
	r.byVehicle[shipment.VehicleID] = shipment.ID

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		actor.Run(r.runCtx)
		r.remove(shipment.ID, shipment.VehicleID)
	}()
	return actor, nil
}

func (r *Registry) remove(shipmentID, vehicleID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.actors, shipmentID)
	if r.byVehicle[vehicleID] == shipmentID {
		delete(r.byVehicle, vehicleID)
	}
}
