package steps

import (
	"context"
	"fmt"
	"time"

	"github.com/cucumber/godog"

	apptracking "github.com/andrescamacho/fleettrack-go/internal/application/tracking"
	"github.com/andrescamacho/fleettrack-go/internal/domain/tracking"
	"github.com/andrescamacho/fleettrack-go/pkg/geo"
)

// metersPerDegreeLat converts northward offsets to latitude degrees
const metersPerDegreeLat = 111194.9

type dwellContext struct {
	detector    *apptracking.DwellDetector
	stop        *tracking.Stop
	radiusM     float64
	departed    *time.Time
	firstExitAt time.Time
}

func (dc *dwellContext) reset() {
	dc.detector = nil
	dc.stop = nil
	dc.radiusM = 0
	dc.departed = nil
	dc.firstExitAt = time.Time{}
}

func (dc *dwellContext) aStopWithRadiusAndDepartureGap(name string, radiusM, gapS int) error {
	stop, err := tracking.NewStop("stop-1", "ship-1", 1, name,
		geo.Point{Lat: 37.45, Lon: -122.0},
		scenarioEpoch, scenarioEpoch.Add(10*time.Minute), 10)
	if err != nil {
		return err
	}
	dc.stop = stop
	dc.radiusM = float64(radiusM)
	dc.detector = apptracking.NewDwellDetector(apptracking.DwellConfig{
		RadiusM:         float64(radiusM),
		StoppedSpeedKPH: 5,
		MinDepartureGap: time.Duration(gapS) * time.Second,
	})
	return nil
}

func (dc *dwellContext) feed(distanceM, speedKPH, elapsedS int) error {
	at := scenarioEpoch.Add(time.Duration(elapsedS) * time.Second)
	location := geo.Point{
		Lat: dc.stop.Location.Lat + float64(distanceM)/metersPerDegreeLat,
		Lon: dc.stop.Location.Lon,
	}

	event, when := dc.detector.Observe(dc.stop, location, float64(speedKPH), at)
	switch event {
	case apptracking.DwellArrived:
		dc.stop.MarkArrived(when)
	case apptracking.DwellDeparted:
		if err := dc.stop.MarkDeparted(when); err != nil {
			return err
		}
		dc.departed = &when
	}

	// Remember the first exit fix after arrival for the departure assertion
	if dc.stop.ActualArrival != nil && dc.firstExitAt.IsZero() && float64(distanceM) > dc.radiusM {
		dc.firstExitAt = at
	}
	return nil
}

func (dc *dwellContext) theVehicleReportsAFix(distanceM, speedKPH int) error {
	return dc.feed(distanceM, speedKPH, 0)
}

func (dc *dwellContext) theVehicleReportsAFixAfter(distanceM, speedKPH, elapsedS int) error {
	return dc.feed(distanceM, speedKPH, elapsedS)
}

func (dc *dwellContext) theStopShouldHaveAnArrivalTime() error {
	if dc.stop.ActualArrival == nil {
		return fmt.Errorf("expected an arrival time, got none")
	}
	return nil
}

func (dc *dwellContext) theStopShouldHaveNoArrivalTime() error {
	if dc.stop.ActualArrival != nil {
		return fmt.Errorf("expected no arrival time, got %s", dc.stop.ActualArrival)
	}
	return nil
}

func (dc *dwellContext) theStopShouldBeCompleted() error {
	if !dc.stop.Completed {
		return fmt.Errorf("expected the stop to be completed")
	}
	return nil
}

func (dc *dwellContext) theStopShouldNotBeCompleted() error {
	if dc.stop.Completed {
		return fmt.Errorf("expected the stop to still be open")
	}
	return nil
}

func (dc *dwellContext) theDepartureTimeShouldMatchTheFirstExitFix() error {
	if dc.departed == nil {
		return fmt.Errorf("no departure was recorded")
	}
	if !dc.departed.Equal(dc.firstExitAt) {
		return fmt.Errorf("expected departure at %s, got %s", dc.firstExitAt, dc.departed)
	}
	return nil
}

// InitializeStopDwellScenario registers dwell detection step definitions
func InitializeStopDwellScenario(scenario *godog.ScenarioContext) {
	ctx := &dwellContext{}
	scenario.Before(func(c context.Context, s *godog.Scenario) (context.Context, error) {
		ctx.reset()
		return c, nil
	})

	scenario.Step(`^a stop "([^"]*)" with an (\d+) m radius and a (\d+) s departure gap$`, ctx.aStopWithRadiusAndDepartureGap)
	scenario.Step(`^the vehicle reports a fix (\d+) m from the stop at (\d+) kph$`, ctx.theVehicleReportsAFix)
	scenario.Step(`^the vehicle reports a fix (\d+) m from the stop at (\d+) kph after (\d+) s$`, ctx.theVehicleReportsAFixAfter)

	scenario.Step(`^the stop should have an arrival time$`, ctx.theStopShouldHaveAnArrivalTime)
	scenario.Step(`^the stop should have no arrival time$`, ctx.theStopShouldHaveNoArrivalTime)
	scenario.Step(`^the stop should be completed$`, ctx.theStopShouldBeCompleted)
	scenario.Step(`^the stop should not be completed$`, ctx.theStopShouldNotBeCompleted)
	scenario.Step(`^the departure time should match the first exit fix$`, ctx.theDepartureTimeShouldMatchTheFirstExitFix)
}
