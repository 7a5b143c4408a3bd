package steps

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cucumber/godog"

	apptracking "github.com/andrescamacho/fleettrack-go/internal/application/tracking"
	"github.com/andrescamacho/fleettrack-go/internal/domain/shared"
	"github.com/andrescamacho/fleettrack-go/internal/domain/signals"
	"github.com/andrescamacho/fleettrack-go/internal/domain/tracking"
	"github.com/andrescamacho/fleettrack-go/pkg/geo"
)

type classifierContext struct {
	input    apptracking.ClassifierInput
	advisory *tracking.Advisory
}

func (cc *classifierContext) reset() error {
	origin, err := tracking.NewStop("stop-1", "ship-1", 1, "Origin",
		geo.Point{Lat: 37.0, Lon: -122.0}, scenarioEpoch, scenarioEpoch.Add(10*time.Minute), 10)
	if err != nil {
		return err
	}
	terminal, err := tracking.NewStop("stop-2", "ship-1", 2, "Final DC",
		geo.Point{Lat: 37.9, Lon: -122.0}, scenarioEpoch.Add(2*time.Hour), scenarioEpoch.Add(2*time.Hour), 0)
	if err != nil {
		return err
	}
	shipment, err := tracking.NewShipment("ship-1", "REF-1001", "veh-1",
		[]*tracking.Stop{origin, terminal}, scenarioEpoch.Add(2*time.Hour), scenarioEpoch)
	if err != nil {
		return err
	}

	cc.input = apptracking.ClassifierInput{
		Shipment: shipment,
		Now:      scenarioEpoch,
	}
	cc.advisory = nil
	return nil
}

func (cc *classifierContext) aTrackedShipmentRunningMinutesLate(minutes int) error {
	cc.input.LatenessMin = float64(minutes)
	return nil
}

func (cc *classifierContext) trafficIsMovingAt(speedKPH, freeFlowKPH int) error {
	cc.input.Traffic = &signals.TrafficSample{
		SpeedKPH:    float64(speedKPH),
		FreeFlowKPH: float64(freeFlowKPH),
		Timestamp:   scenarioEpoch,
	}
	return nil
}

func (cc *classifierContext) theTrafficFeedReportsTheIncident(detail string) error {
	if cc.input.Traffic == nil {
		cc.input.Traffic = &signals.TrafficSample{Timestamp: scenarioEpoch}
	}
	cc.input.Traffic.Incident = true
	cc.input.Traffic.IncidentDetail = detail
	return nil
}

func (cc *classifierContext) aSevereWeatherAdvisoryInTheCorridor(advisory string) error {
	cc.input.Weather = &signals.WeatherSample{
		SevereAdvisory: advisory,
		Timestamp:      scenarioEpoch,
	}
	return nil
}

func (cc *classifierContext) aVehicleIssueReportedMinutesAgo(note string, minutes int) error {
	cc.input.VehicleIssue = &apptracking.VehicleIssue{
		ReportedAt: scenarioEpoch.Add(-time.Duration(minutes) * time.Minute),
		Note:       note,
	}
	return nil
}

func (cc *classifierContext) theDriverShiftStartedHoursAgo(hours int) error {
	start := scenarioEpoch.Add(-time.Duration(hours) * time.Hour)
	cc.input.ShiftStart = &start
	return nil
}

func (cc *classifierContext) consecutiveFixesFailedToMatchTheRoute(count int) error {
	cc.input.SnapRejectStreak = count
	return nil
}

func (cc *classifierContext) theDelayIsClassified() error {
	classifier := apptracking.NewClassifier(apptracking.DefaultClassifierConfig(), shared.NewSequentialIDGenerator("adv"))
	cc.advisory = classifier.Classify(cc.input)
	if cc.advisory == nil {
		return fmt.Errorf("classification produced no advisory")
	}
	return nil
}

func (cc *classifierContext) theAdvisoryReasonShouldBe(reason string) error {
	if string(cc.advisory.Reason) != reason {
		return fmt.Errorf("expected reason %q, got %q", reason, cc.advisory.Reason)
	}
	return nil
}

func (cc *classifierContext) theAdvisorySeverityShouldBe(severity string) error {
	if string(cc.advisory.Severity) != severity {
		return fmt.Errorf("expected severity %q, got %q", severity, cc.advisory.Severity)
	}
	return nil
}

func (cc *classifierContext) theAdvisoryExplanationShouldMention(fragment string) error {
	if !strings.Contains(cc.advisory.Explanation, fragment) {
		return fmt.Errorf("expected explanation to mention %q, got %q", fragment, cc.advisory.Explanation)
	}
	return nil
}

// InitializeDelayClassificationScenario registers delay classifier step definitions
func InitializeDelayClassificationScenario(scenario *godog.ScenarioContext) {
	ctx := &classifierContext{}
	scenario.Before(func(c context.Context, s *godog.Scenario) (context.Context, error) {
		return c, ctx.reset()
	})

	scenario.Step(`^a tracked shipment running (\d+) minutes late$`, ctx.aTrackedShipmentRunningMinutesLate)
	scenario.Step(`^traffic is moving at (\d+) kph against a free flow of (\d+) kph$`, ctx.trafficIsMovingAt)
	scenario.Step(`^the traffic feed reports the incident "([^"]*)"$`, ctx.theTrafficFeedReportsTheIncident)
	scenario.Step(`^a severe weather advisory "([^"]*)" in the corridor$`, ctx.aSevereWeatherAdvisoryInTheCorridor)
	scenario.Step(`^a vehicle issue "([^"]*)" reported (\d+) minutes ago$`, ctx.aVehicleIssueReportedMinutesAgo)
	scenario.Step(`^the driver shift started (\d+) hours ago$`, ctx.theDriverShiftStartedHoursAgo)
	scenario.Step(`^(\d+) consecutive fixes failed to match the route$`, ctx.consecutiveFixesFailedToMatchTheRoute)

	scenario.Step(`^the delay is classified$`, ctx.theDelayIsClassified)

	scenario.Step(`^the advisory reason should be "([^"]*)"$`, ctx.theAdvisoryReasonShouldBe)
	scenario.Step(`^the advisory severity should be "([^"]*)"$`, ctx.theAdvisorySeverityShouldBe)
	scenario.Step(`^the advisory explanation should mention "([^"]*)"$`, ctx.theAdvisoryExplanationShouldMention)
}
