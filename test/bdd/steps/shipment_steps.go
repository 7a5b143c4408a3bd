package steps

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/cucumber/godog"

	"github.com/andrescamacho/fleettrack-go/internal/domain/shared"
	"github.com/andrescamacho/fleettrack-go/internal/domain/tracking"
	"github.com/andrescamacho/fleettrack-go/pkg/geo"
)

// scenarioEpoch is the fixed base instant every scenario runs against
var scenarioEpoch = time.Date(2026, 3, 14, 8, 0, 0, 0, time.UTC)

type shipmentContext struct {
	shipment *tracking.Shipment
	err      error
	now      time.Time
}

func (sc *shipmentContext) reset() {
	sc.shipment = nil
	sc.err = nil
	sc.now = scenarioEpoch
}

func (sc *shipmentContext) buildStops(shipmentID string, sequences []int, names []string) ([]*tracking.Stop, error) {
	stops := make([]*tracking.Stop, 0, len(sequences))
	for i, seq := range sequences {
		name := fmt.Sprintf("Stop %d", seq)
		if i < len(names) && names[i] != "" {
			name = names[i]
		}
		planned := scenarioEpoch.Add(time.Duration(seq) * time.Hour)
		stop, err := tracking.NewStop(
			fmt.Sprintf("stop-%d", i+1), shipmentID, seq, name,
			geo.Point{Lat: 37.0 + 0.1*float64(i), Lon: -122.0},
			planned, planned.Add(10*time.Minute), 10,
		)
		if err != nil {
			return nil, err
		}
		stops = append(stops, stop)
	}
	return stops, nil
}

func (sc *shipmentContext) aShipmentForVehicleWithStops(id, vehicleID string, table *godog.Table) error {
	var sequences []int
	var names []string
	for i, row := range table.Rows {
		if i == 0 {
			continue // Skip header
		}
		seq, err := strconv.Atoi(row.Cells[0].Value)
		if err != nil {
			return fmt.Errorf("bad sequence %q: %w", row.Cells[0].Value, err)
		}
		sequences = append(sequences, seq)
		names = append(names, row.Cells[1].Value)
	}

	stops, err := sc.buildStops(id, sequences, names)
	if err != nil {
		return err
	}
	sc.shipment, err = tracking.NewShipment(id, "REF-"+id, vehicleID, stops, scenarioEpoch.Add(4*time.Hour), sc.now)
	return err
}

func (sc *shipmentContext) iAttemptToCreateAShipmentWithStopSequences(list string) error {
	var sequences []int
	for _, part := range strings.Split(list, ",") {
		seq, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return fmt.Errorf("bad sequence %q: %w", part, err)
		}
		sequences = append(sequences, seq)
	}

	stops, err := sc.buildStops("ship-x", sequences, nil)
	if err != nil {
		sc.err = err
		return nil
	}
	_, sc.err = tracking.NewShipment("ship-x", "REF-ship-x", "veh-1", stops, scenarioEpoch.Add(4*time.Hour), sc.now)
	return nil
}

func (sc *shipmentContext) iStartTheShipment() error {
	return sc.shipment.Start(sc.now)
}

func (sc *shipmentContext) iCompleteTheShipment() error {
	return sc.shipment.Complete(sc.now)
}

func (sc *shipmentContext) iCancelTheShipment() error {
	return sc.shipment.Cancel(sc.now)
}

func (sc *shipmentContext) iAttemptToCompleteTheShipment() error {
	sc.err = sc.shipment.Complete(sc.now)
	return nil
}

func (sc *shipmentContext) iAttemptToCancelTheShipment() error {
	sc.err = sc.shipment.Cancel(sc.now)
	return nil
}

func (sc *shipmentContext) theStopIsVisited(name string) error {
	for _, stop := range sc.shipment.Stops {
		if stop.Name != name {
			continue
		}
		stop.MarkArrived(sc.now)
		return stop.MarkDeparted(sc.now.Add(10 * time.Minute))
	}
	return fmt.Errorf("no stop named %q", name)
}

func (sc *shipmentContext) theShipmentStatusShouldBe(status string) error {
	if string(sc.shipment.Status) != status {
		return fmt.Errorf("expected status %q, got %q", status, sc.shipment.Status)
	}
	return nil
}

func (sc *shipmentContext) theNextStopShouldBe(name string) error {
	next := sc.shipment.NextStop()
	if next == nil {
		return fmt.Errorf("expected next stop %q, got none", name)
	}
	if next.Name != name {
		return fmt.Errorf("expected next stop %q, got %q", name, next.Name)
	}
	return nil
}

func (sc *shipmentContext) stopsShouldRemain(count int) error {
	remaining := len(sc.shipment.RemainingStops())
	if remaining != count {
		return fmt.Errorf("expected %d remaining stops, got %d", count, remaining)
	}
	return nil
}

func (sc *shipmentContext) theOperationShouldFailWithAStateConflict() error {
	if sc.err == nil {
		return fmt.Errorf("expected a state conflict, but the operation succeeded")
	}
	if !shared.IsKind(sc.err, shared.KindStateConflict) {
		return fmt.Errorf("expected a state conflict, got %v", sc.err)
	}
	return nil
}

func (sc *shipmentContext) shipmentCreationShouldFail() error {
	if sc.err == nil {
		return fmt.Errorf("expected shipment creation to fail, but it succeeded")
	}
	return nil
}

// InitializeShipmentScenario registers shipment lifecycle step definitions
func InitializeShipmentScenario(scenario *godog.ScenarioContext) {
	ctx := &shipmentContext{}
	scenario.Before(func(c context.Context, s *godog.Scenario) (context.Context, error) {
		ctx.reset()
		return c, nil
	})

	scenario.Step(`^a shipment "([^"]*)" for vehicle "([^"]*)" with stops:$`, ctx.aShipmentForVehicleWithStops)
	scenario.Step(`^I attempt to create a shipment with stop sequences "([^"]*)"$`, ctx.iAttemptToCreateAShipmentWithStopSequences)

	scenario.Step(`^I start the shipment$`, ctx.iStartTheShipment)
	scenario.Step(`^I complete the shipment$`, ctx.iCompleteTheShipment)
	scenario.Step(`^I cancel the shipment$`, ctx.iCancelTheShipment)
	scenario.Step(`^I attempt to complete the shipment$`, ctx.iAttemptToCompleteTheShipment)
	scenario.Step(`^I attempt to cancel the shipment$`, ctx.iAttemptToCancelTheShipment)
	scenario.Step(`^the stop "([^"]*)" is visited$`, ctx.theStopIsVisited)

	scenario.Step(`^the shipment status should be "([^"]*)"$`, ctx.theShipmentStatusShouldBe)
	scenario.Step(`^the next stop should be "([^"]*)"$`, ctx.theNextStopShouldBe)
	scenario.Step(`^(\d+) stop should remain$`, ctx.stopsShouldRemain)
	scenario.Step(`^(\d+) stops should remain$`, ctx.stopsShouldRemain)
	scenario.Step(`^the shipment operation should fail with a state conflict$`, ctx.theOperationShouldFailWithAStateConflict)
	scenario.Step(`^shipment creation should fail$`, ctx.shipmentCreationShouldFail)
}
