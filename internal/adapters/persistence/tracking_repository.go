package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/twpayne/go-polyline"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/andrescamacho/fleettrack-go/internal/domain/shared"
	"github.com/andrescamacho/fleettrack-go/internal/domain/tracking"
	"github.com/andrescamacho/fleettrack-go/pkg/geo"
)

// GormTrackingRepository implements tracking.Repository using GORM
type GormTrackingRepository struct {
	db *gorm.DB
}

// NewGormTrackingRepository creates a new GORM tracking repository
func NewGormTrackingRepository(db *gorm.DB) *GormTrackingRepository {
	return &GormTrackingRepository{db: db}
}

var _ tracking.Repository = (*GormTrackingRepository)(nil)

// wrapDBError maps database failures onto the error kinds callers retry on
func wrapDBError(op string, err error) error {
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return shared.WrapDomainError(shared.KindNotFound, op, err)
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return shared.WrapDomainError(shared.KindConflict, op, err)
	case errors.Is(err, context.DeadlineExceeded):
		return shared.WrapDomainError(shared.KindTimeout, op, err)
	default:
		return shared.WrapDomainError(shared.KindTransient, op, err)
	}
}

// GetShipmentByID retrieves a shipment with its stops
func (r *GormTrackingRepository) GetShipmentByID(ctx context.Context, id string) (*tracking.Shipment, error) {
	var model ShipmentModel
	result := r.db.WithContext(ctx).Where("id = ?", id).First(&model)
	if result.Error != nil {
		return nil, wrapDBError(fmt.Sprintf("failed to find shipment %s", id), result.Error)
	}
	return r.loadShipment(ctx, &model)
}

// GetShipmentByReference retrieves a shipment by its customer-facing reference
func (r *GormTrackingRepository) GetShipmentByReference(ctx context.Context, reference string) (*tracking.Shipment, error) {
	var model ShipmentModel
	result := r.db.WithContext(ctx).Where("reference = ?", reference).First(&model)
	if result.Error != nil {
		return nil, wrapDBError(fmt.Sprintf("failed to find shipment by reference %s", reference), result.Error)
	}
	return r.loadShipment(ctx, &model)
}

// GetShipmentByVehicle retrieves the vehicle's most recent active shipment
func (r *GormTrackingRepository) GetShipmentByVehicle(ctx context.Context, vehicleID string) (*tracking.Shipment, error) {
	var model ShipmentModel
	result := r.db.WithContext(ctx).
		Where("vehicle_id = ? AND status IN ?", vehicleID,
			[]string{string(tracking.ShipmentStatusPending), string(tracking.ShipmentStatusInTransit)}).
		Order("created_at DESC").
		First(&model)
	if result.Error != nil {
		return nil, wrapDBError(fmt.Sprintf("failed to find active shipment for vehicle %s", vehicleID), result.Error)
	}
	return r.loadShipment(ctx, &model)
}

// ListActiveShipments retrieves all pending and in-transit shipments with stops
func (r *GormTrackingRepository) ListActiveShipments(ctx context.Context) ([]*tracking.Shipment, error) {
	var models []ShipmentModel
	result := r.db.WithContext(ctx).
		Where("status IN ?",
			[]string{string(tracking.ShipmentStatusPending), string(tracking.ShipmentStatusInTransit)}).
		Find(&models)
	if result.Error != nil {
		return nil, wrapDBError("failed to list active shipments", result.Error)
	}
	if len(models) == 0 {
		return nil, nil
	}

	ids := make([]string, 0, len(models))
	for _, m := range models {
		ids = append(ids, m.ID)
	}
	var stopModels []StopModel
	if err := r.db.WithContext(ctx).
		Where("shipment_id IN ?", ids).
		Order("sequence ASC").
		Find(&stopModels).Error; err != nil {
		return nil, wrapDBError("failed to list stops for active shipments", err)
	}
	stopsByShipment := make(map[string][]*tracking.Stop)
	for i := range stopModels {
		stop := modelToStop(&stopModels[i])
		stopsByShipment[stop.ShipmentID] = append(stopsByShipment[stop.ShipmentID], stop)
	}

	shipments := make([]*tracking.Shipment, 0, len(models))
	for i := range models {
		shipments = append(shipments, modelToShipment(&models[i], stopsByShipment[models[i].ID]))
	}
	return shipments, nil
}

// UpdateShipmentStatus persists a status transition
func (r *GormTrackingRepository) UpdateShipmentStatus(ctx context.Context, shipmentID string, status tracking.ShipmentStatus) error {
	result := r.db.WithContext(ctx).
		Model(&ShipmentModel{}).
		Where("id = ?", shipmentID).
		Updates(map[string]interface{}{
			"status":     string(status),
			"updated_at": time.Now().UTC(),
		})
	if result.Error != nil {
		return wrapDBError(fmt.Sprintf("failed to update status of shipment %s", shipmentID), result.Error)
	}
	if result.RowsAffected == 0 {
		return shared.NewDomainError(shared.KindNotFound,
			fmt.Sprintf("shipment %s not found", shipmentID))
	}
	return nil
}

// AppendPositions inserts snapped positions, skipping (vehicle_id, ts) pairs
// already present. Returns the number of rows actually inserted.
func (r *GormTrackingRepository) AppendPositions(ctx context.Context, vehicleID string, points []*tracking.SnappedPoint) (int, error) {
	if len(points) == 0 {
		return 0, nil
	}
	models := make([]PositionModel, 0, len(points))
	for _, p := range points {
		models = append(models, PositionModel{
			VehicleID:   vehicleID,
			TS:          p.Position.Timestamp,
			Lat:         p.Position.Location.Lat,
			Lon:         p.Position.Location.Lon,
			SnappedLat:  p.Snapped.Lat,
			SnappedLon:  p.Snapped.Lon,
			RouteID:     p.RouteID,
			Progress:    p.Progress,
			CrossTrackM: p.CrossTrackM,
			EdgeSpeed:   p.EdgeSpeed,
			SpeedKPH:    p.Position.SpeedKPH,
			AccuracyM:   p.Position.AccuracyM,
			Source:      p.Position.Source,
		})
	}
	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "vehicle_id"}, {Name: "ts"}},
			DoNothing: true,
		}).
		Create(&models)
	if result.Error != nil {
		return 0, wrapDBError(fmt.Sprintf("failed to append positions for vehicle %s", vehicleID), result.Error)
	}
	return int(result.RowsAffected), nil
}

// GetStops retrieves a shipment's stops ordered by sequence
func (r *GormTrackingRepository) GetStops(ctx context.Context, shipmentID string) ([]*tracking.Stop, error) {
	var models []StopModel
	result := r.db.WithContext(ctx).
		Where("shipment_id = ?", shipmentID).
		Order("sequence ASC").
		Find(&models)
	if result.Error != nil {
		return nil, wrapDBError(fmt.Sprintf("failed to list stops of shipment %s", shipmentID), result.Error)
	}
	stops := make([]*tracking.Stop, 0, len(models))
	for i := range models {
		stops = append(stops, modelToStop(&models[i]))
	}
	return stops, nil
}

// UpdateStopActual persists arrival/departure actuals and completion
func (r *GormTrackingRepository) UpdateStopActual(ctx context.Context, stopID string, arrival, departure *time.Time, completed bool) error {
	result := r.db.WithContext(ctx).
		Model(&StopModel{}).
		Where("id = ?", stopID).
		Updates(map[string]interface{}{
			"actual_arrival":   arrival,
			"actual_departure": departure,
			"completed":        completed,
		})
	if result.Error != nil {
		return wrapDBError(fmt.Sprintf("failed to update actuals of stop %s", stopID), result.Error)
	}
	if result.RowsAffected == 0 {
		return shared.NewDomainError(shared.KindNotFound, fmt.Sprintf("stop %s not found", stopID))
	}
	return nil
}

// SaveRoute persists a route. With active set, the previous active route is
// deactivated and the shipment repointed in the same transaction.
func (r *GormTrackingRepository) SaveRoute(ctx context.Context, shipmentID string, route *tracking.Route, active bool) error {
	model, err := routeToModel(shipmentID, route, active)
	if err != nil {
		return err
	}
	err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if active {
			if err := tx.Model(&RouteModel{}).
				Where("shipment_id = ? AND active = ?", shipmentID, true).
				Update("active", false).Error; err != nil {
				return err
			}
			if err := tx.Model(&ShipmentModel{}).
				Where("id = ?", shipmentID).
				Updates(map[string]interface{}{
					"active_route_id": route.ID,
					"updated_at":      time.Now().UTC(),
				}).Error; err != nil {
				return err
			}
		}
		return tx.Save(model).Error
	})
	if err != nil {
		return wrapDBError(fmt.Sprintf("failed to save route %s", route.ID), err)
	}
	return nil
}

// GetActiveRoute retrieves the shipment's single active route
func (r *GormTrackingRepository) GetActiveRoute(ctx context.Context, shipmentID string) (*tracking.Route, error) {
	var model RouteModel
	result := r.db.WithContext(ctx).
		Where("shipment_id = ? AND active = ?", shipmentID, true).
		First(&model)
	if result.Error != nil {
		return nil, wrapDBError(fmt.Sprintf("failed to find active route of shipment %s", shipmentID), result.Error)
	}
	return modelToRoute(&model)
}

// ReplaceActiveRouteWithReroute atomically accepts the reroute, deactivates
// the old route, activates the candidate, and repoints the shipment.
func (r *GormTrackingRepository) ReplaceActiveRouteWithReroute(ctx context.Context, shipmentID, rerouteID string) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var reroute RerouteModel
		if err := tx.Where("id = ? AND shipment_id = ?", rerouteID, shipmentID).First(&reroute).Error; err != nil {
			return err
		}
		if reroute.Status != string(tracking.RerouteStatusProposed) &&
			reroute.Status != string(tracking.RerouteStatusAccepted) {
			return shared.NewDomainError(shared.KindStateConflict,
				fmt.Sprintf("reroute %s is %s", rerouteID, reroute.Status))
		}
		if err := tx.Model(&RerouteModel{}).
			Where("id = ?", rerouteID).
			Update("status", string(tracking.RerouteStatusAccepted)).Error; err != nil {
			return err
		}
		if err := tx.Model(&RouteModel{}).
			Where("shipment_id = ? AND active = ?", shipmentID, true).
			Update("active", false).Error; err != nil {
			return err
		}
		if err := tx.Model(&RouteModel{}).
			Where("id = ?", reroute.NewRouteID).
			Update("active", true).Error; err != nil {
			return err
		}
		return tx.Model(&ShipmentModel{}).
			Where("id = ?", shipmentID).
			Updates(map[string]interface{}{
				"active_route_id": reroute.NewRouteID,
				"updated_at":      time.Now().UTC(),
			}).Error
	})
	if err != nil {
		var de *shared.DomainError
		if errors.As(err, &de) {
			return err
		}
		return wrapDBError(fmt.Sprintf("failed to activate reroute %s", rerouteID), err)
	}
	return nil
}

// InsertReroute persists a new reroute proposal
func (r *GormTrackingRepository) InsertReroute(ctx context.Context, reroute *tracking.Reroute) error {
	model := RerouteModel{
		ID:           reroute.ID,
		ShipmentID:   reroute.ShipmentID,
		CreatedAt:    reroute.CreatedAt,
		OldRouteID:   reroute.OldRouteID,
		NewRouteID:   reroute.NewRouteID,
		TimeSavedMin: reroute.TimeSavedMin,
		Reason:       reroute.Reason,
		Status:       string(reroute.Status),
	}
	if err := r.db.WithContext(ctx).Create(&model).Error; err != nil {
		return wrapDBError(fmt.Sprintf("failed to insert reroute %s", reroute.ID), err)
	}
	return nil
}

// GetReroute retrieves a reroute by id
func (r *GormTrackingRepository) GetReroute(ctx context.Context, id string) (*tracking.Reroute, error) {
	var model RerouteModel
	result := r.db.WithContext(ctx).Where("id = ?", id).First(&model)
	if result.Error != nil {
		return nil, wrapDBError(fmt.Sprintf("failed to find reroute %s", id), result.Error)
	}
	return modelToReroute(&model), nil
}

// GetProposedReroute retrieves the shipment's live proposal, nil when none exists
func (r *GormTrackingRepository) GetProposedReroute(ctx context.Context, shipmentID string) (*tracking.Reroute, error) {
	var model RerouteModel
	result := r.db.WithContext(ctx).
		Where("shipment_id = ? AND status = ?", shipmentID, string(tracking.RerouteStatusProposed)).
		Order("created_at DESC").
		First(&model)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, wrapDBError(fmt.Sprintf("failed to find proposed reroute of shipment %s", shipmentID), result.Error)
	}
	return modelToReroute(&model), nil
}

// UpdateRerouteStatus persists a reroute lifecycle transition
func (r *GormTrackingRepository) UpdateRerouteStatus(ctx context.Context, id string, status tracking.RerouteStatus) error {
	result := r.db.WithContext(ctx).
		Model(&RerouteModel{}).
		Where("id = ?", id).
		Update("status", string(status))
	if result.Error != nil {
		return wrapDBError(fmt.Sprintf("failed to update status of reroute %s", id), result.Error)
	}
	if result.RowsAffected == 0 {
		return shared.NewDomainError(shared.KindNotFound, fmt.Sprintf("reroute %s not found", id))
	}
	return nil
}

// UpsertAdvisory deactivates the previous advisory and inserts the new one
// in a single transaction.
func (r *GormTrackingRepository) UpsertAdvisory(ctx context.Context, shipmentID string, advisory *tracking.Advisory) error {
	model := AdvisoryModel{
		ID:          advisory.ID,
		ShipmentID:  shipmentID,
		ObservedAt:  advisory.ObservedAt,
		Reason:      string(advisory.Reason),
		Confidence:  advisory.Confidence,
		Explanation: advisory.Explanation,
		Severity:    string(advisory.Severity),
		Active:      true,
	}
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&AdvisoryModel{}).
			Where("shipment_id = ? AND active = ?", shipmentID, true).
			Update("active", false).Error; err != nil {
			return err
		}
		return tx.Create(&model).Error
	})
	if err != nil {
		return wrapDBError(fmt.Sprintf("failed to upsert advisory for shipment %s", shipmentID), err)
	}
	return nil
}

// GetActiveAdvisory retrieves the shipment's single active advisory
func (r *GormTrackingRepository) GetActiveAdvisory(ctx context.Context, shipmentID string) (*tracking.Advisory, error) {
	var model AdvisoryModel
	result := r.db.WithContext(ctx).
		Where("shipment_id = ? AND active = ?", shipmentID, true).
		First(&model)
	if result.Error != nil {
		return nil, wrapDBError(fmt.Sprintf("failed to find active advisory of shipment %s", shipmentID), result.Error)
	}
	return &tracking.Advisory{
		ID:          model.ID,
		ShipmentID:  model.ShipmentID,
		ObservedAt:  model.ObservedAt,
		Reason:      tracking.ReasonCode(model.Reason),
		Confidence:  model.Confidence,
		Explanation: model.Explanation,
		Severity:    tracking.Severity(model.Severity),
	}, nil
}

// InsertETASamples persists one batch of per-stop estimates
func (r *GormTrackingRepository) InsertETASamples(ctx context.Context, samples []*tracking.ETASample) error {
	if len(samples) == 0 {
		return nil
	}
	models := make([]ETASampleModel, 0, len(samples))
	for _, s := range samples {
		models = append(models, ETASampleModel{
			ID:               s.ID,
			ShipmentID:       s.ShipmentID,
			StopID:           s.StopID,
			ObservedAt:       s.ObservedAt,
			EstimatedArrival: s.EstimatedArrival,
			ResidualM:        s.ResidualM,
			ResidualRawS:     s.ResidualRaw.Seconds(),
			ResidualSmoothS:  s.ResidualSmoothed.Seconds(),
			Bucket:           string(s.Bucket),
			Confidence:       s.Confidence,
		})
	}
	if err := r.db.WithContext(ctx).CreateInBatches(&models, 100).Error; err != nil {
		return wrapDBError("failed to insert eta samples", err)
	}
	return nil
}

// InsertEvent appends one entry to the audit log
func (r *GormTrackingRepository) InsertEvent(ctx context.Context, shipmentID, eventType string, payload []byte, ts time.Time) error {
	model := EventModel{
		ShipmentID: shipmentID,
		EventType:  eventType,
		Payload:    string(payload),
		TS:         ts,
	}
	if err := r.db.WithContext(ctx).Create(&model).Error; err != nil {
		return wrapDBError(fmt.Sprintf("failed to append %s event for shipment %s", eventType, shipmentID), err)
	}
	return nil
}

// loadShipment attaches stops to a shipment model and converts to the domain entity
func (r *GormTrackingRepository) loadShipment(ctx context.Context, model *ShipmentModel) (*tracking.Shipment, error) {
	stops, err := r.GetStops(ctx, model.ID)
	if err != nil {
		return nil, err
	}
	return modelToShipment(model, stops), nil
}

func modelToShipment(model *ShipmentModel, stops []*tracking.Stop) *tracking.Shipment {
	return &tracking.Shipment{
		ID:            model.ID,
		Reference:     model.Reference,
		VehicleID:     model.VehicleID,
		Stops:         stops,
		PromisedAt:    model.PromisedAt,
		Status:        tracking.ShipmentStatus(model.Status),
		ActiveRouteID: model.ActiveRouteID,
		CreatedAt:     model.CreatedAt,
		UpdatedAt:     model.UpdatedAt,
	}
}

func modelToStop(model *StopModel) *tracking.Stop {
	return &tracking.Stop{
		ID:               model.ID,
		ShipmentID:       model.ShipmentID,
		Sequence:         model.Sequence,
		Name:             model.Name,
		Location:         geo.Point{Lat: model.Lat, Lon: model.Lon},
		PlannedArrival:   model.PlannedArrival,
		PlannedDeparture: model.PlannedDeparture,
		ServiceMinutes:   model.ServiceMinutes,
		ActualArrival:    model.ActualArrival,
		ActualDeparture:  model.ActualDeparture,
		Completed:        model.Completed,
	}
}

func modelToReroute(model *RerouteModel) *tracking.Reroute {
	return &tracking.Reroute{
		ID:           model.ID,
		ShipmentID:   model.ShipmentID,
		CreatedAt:    model.CreatedAt,
		OldRouteID:   model.OldRouteID,
		NewRouteID:   model.NewRouteID,
		TimeSavedMin: model.TimeSavedMin,
		Reason:       model.Reason,
		Status:       tracking.RerouteStatus(model.Status),
	}
}

// routeToModel converts a route to its row, encoding the polyline
func routeToModel(shipmentID string, route *tracking.Route, active bool) (*RouteModel, error) {
	points := route.Line.Points()
	coords := make([][]float64, 0, len(points))
	for _, p := range points {
		coords = append(coords, []float64{p.Lat, p.Lon})
	}
	segments, err := json.Marshal(route.Segments)
	if err != nil {
		return nil, shared.WrapDomainError(shared.KindInvalidInput, "failed to marshal route segments", err)
	}
	return &RouteModel{
		ID:         route.ID,
		ShipmentID: shipmentID,
		Polyline:   string(polyline.EncodeCoords(coords)),
		DistanceM:  route.DistanceM,
		DurationS:  route.Duration.Seconds(),
		Segments:   string(segments),
		Costing:    route.Costing,
		Source:     route.Source,
		Active:     active,
		CreatedAt:  route.CreatedAt,
	}, nil
}

// modelToRoute converts a row back to the domain route, decoding the polyline
func modelToRoute(model *RouteModel) (*tracking.Route, error) {
	coords, _, err := polyline.DecodeCoords([]byte(model.Polyline))
	if err != nil {
		return nil, shared.WrapDomainError(shared.KindTransient,
			fmt.Sprintf("failed to decode polyline of route %s", model.ID), err)
	}
	points := make([]geo.Point, 0, len(coords))
	for _, c := range coords {
		points = append(points, geo.Point{Lat: c[0], Lon: c[1]})
	}
	line, err := geo.NewPolyline(points)
	if err != nil {
		return nil, shared.WrapDomainError(shared.KindTransient,
			fmt.Sprintf("route %s polyline is degenerate", model.ID), err)
	}
	var segments []tracking.RouteSegment
	if err := json.Unmarshal([]byte(model.Segments), &segments); err != nil {
		return nil, shared.WrapDomainError(shared.KindTransient,
			fmt.Sprintf("failed to unmarshal segments of route %s", model.ID), err)
	}
	return &tracking.Route{
		ID:        model.ID,
		Line:      line,
		DistanceM: model.DistanceM,
		Duration:  time.Duration(model.DurationS * float64(time.Second)),
		Segments:  segments,
		Costing:   model.Costing,
		Source:    model.Source,
		CreatedAt: model.CreatedAt,
	}, nil
}
