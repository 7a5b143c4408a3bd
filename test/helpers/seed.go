package helpers

import (
	"context"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/andrescamacho/fleettrack-go/internal/adapters/persistence"
	"github.com/andrescamacho/fleettrack-go/internal/domain/tracking"
)

// SeedShipment writes the shipment and its stops so repository updates
// against them succeed.
func SeedShipment(t *testing.T, db *gorm.DB, shipment *tracking.Shipment) {
	t.Helper()
	now := time.Now().UTC()
	model := persistence.ShipmentModel{
		ID:            shipment.ID,
		Reference:     shipment.Reference,
		VehicleID:     shipment.VehicleID,
		PromisedAt:    shipment.PromisedAt,
		Status:        string(shipment.Status),
		ActiveRouteID: shipment.ActiveRouteID,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := db.Create(&model).Error; err != nil {
		t.Fatalf("failed to seed shipment: %v", err)
	}
	for _, stop := range shipment.Stops {
		stopModel := persistence.StopModel{
			ID:               stop.ID,
			ShipmentID:       stop.ShipmentID,
			Sequence:         stop.Sequence,
			Name:             stop.Name,
			Lat:              stop.Location.Lat,
			Lon:              stop.Location.Lon,
			PlannedArrival:   stop.PlannedArrival,
			PlannedDeparture: stop.PlannedDeparture,
			ServiceMinutes:   stop.ServiceMinutes,
			ActualArrival:    stop.ActualArrival,
			ActualDeparture:  stop.ActualDeparture,
			Completed:        stop.Completed,
		}
		if err := db.Create(&stopModel).Error; err != nil {
			t.Fatalf("failed to seed stop %s: %v", stop.ID, err)
		}
	}
}

// SeedCorridor seeds the corridor fixture's shipment, stops, and active route
func SeedCorridor(t *testing.T, db *gorm.DB, fixture *CorridorFixture) {
	t.Helper()
	SeedShipment(t, db, fixture.Shipment)
	repo := persistence.NewGormTrackingRepository(db)
	if err := repo.SaveRoute(context.Background(), fixture.Shipment.ID, fixture.Route, true); err != nil {
		t.Fatalf("failed to seed active route: %v", err)
	}
}
