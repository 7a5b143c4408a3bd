package tracking_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apptracking "github.com/andrescamacho/fleettrack-go/internal/application/tracking"
	"github.com/andrescamacho/fleettrack-go/internal/domain/shared"
	"github.com/andrescamacho/fleettrack-go/internal/domain/signals"
	"github.com/andrescamacho/fleettrack-go/internal/domain/tracking"
	"github.com/andrescamacho/fleettrack-go/test/helpers"
)

func newClassifier() *apptracking.Classifier {
	return apptracking.NewClassifier(apptracking.DefaultClassifierConfig(), shared.NewSequentialIDGenerator("adv"))
}

func classifierInput(t *testing.T, now time.Time) apptracking.ClassifierInput {
	t.Helper()
	fixture := helpers.NewCorridor(t, now)
	return apptracking.ClassifierInput{
		Shipment: fixture.Shipment,
		Now:      now,
	}
}

func TestClassifier_OnTimeWithNoSignals(t *testing.T) {
	now := time.Now()
	in := classifierInput(t, now)

	advisory := newClassifier().Classify(in)

	require.NotNil(t, advisory)
	assert.Equal(t, tracking.ReasonOnTime, advisory.Reason)
	assert.Equal(t, tracking.SeverityLow, advisory.Severity)
}

func TestClassifier_UnknownDelayWhenLateWithoutCause(t *testing.T) {
	now := time.Now()
	in := classifierInput(t, now)
	in.LatenessMin = 25

	advisory := newClassifier().Classify(in)

	assert.Equal(t, tracking.ReasonUnknownDelay, advisory.Reason)
	assert.Equal(t, tracking.SeverityHigh, advisory.Severity) // 25 >= 2x10
}

func TestClassifier_TrafficCongestion(t *testing.T) {
	now := time.Now()
	in := classifierInput(t, now)
	in.LatenessMin = 12
	in.Traffic = &signals.TrafficSample{SpeedKPH: 24, FreeFlowKPH: 80} // factor 0.3

	advisory := newClassifier().Classify(in)

	assert.Equal(t, tracking.ReasonTrafficCongestion, advisory.Reason)
	assert.Equal(t, tracking.SeverityMedium, advisory.Severity)
	assert.NotEmpty(t, advisory.Explanation)
}

func TestClassifier_TrafficAtThresholdScoresNothing(t *testing.T) {
	now := time.Now()
	in := classifierInput(t, now)
	in.Traffic = &signals.TrafficSample{SpeedKPH: 48, FreeFlowKPH: 80} // factor exactly 0.6

	advisory := newClassifier().Classify(in)

	assert.Equal(t, tracking.ReasonOnTime, advisory.Reason)
}

func TestClassifier_SevereWeatherBeatsCongestion(t *testing.T) {
	// Severe advisory scores 0.9; moderate congestion scores lower
	now := time.Now()
	in := classifierInput(t, now)
	in.LatenessMin = 12
	in.Traffic = &signals.TrafficSample{SpeedKPH: 40, FreeFlowKPH: 80}
	in.Weather = &signals.WeatherSample{PrecipMMPerH: 12, SevereAdvisory: "winter storm warning"}

	advisory := newClassifier().Classify(in)

	assert.Equal(t, tracking.ReasonWeatherDelay, advisory.Reason)
}

func TestClassifier_RoadIncident(t *testing.T) {
	now := time.Now()
	in := classifierInput(t, now)
	in.LatenessMin = 12
	in.Traffic = &signals.TrafficSample{
		SpeedKPH:       70,
		FreeFlowKPH:    80,
		Incident:       true,
		IncidentDetail: "jackknifed trailer blocking two lanes",
	}

	advisory := newClassifier().Classify(in)

	assert.Equal(t, tracking.ReasonRoadIncident, advisory.Reason)
	assert.Contains(t, advisory.Explanation, "jackknifed trailer")
}

func TestClassifier_DriverHOSRisk(t *testing.T) {
	// 10 h into an 11 h drive limit leaves 60 min, inside the warning window
	now := time.Now()
	in := classifierInput(t, now)
	shiftStart := now.Add(-10 * time.Hour)
	in.ShiftStart = &shiftStart

	advisory := newClassifier().Classify(in)

	assert.Equal(t, tracking.ReasonDriverHOSRisk, advisory.Reason)
}

func TestClassifier_FreshShiftScoresNothing(t *testing.T) {
	now := time.Now()
	in := classifierInput(t, now)
	shiftStart := now.Add(-2 * time.Hour)
	in.ShiftStart = &shiftStart

	advisory := newClassifier().Classify(in)

	assert.Equal(t, tracking.ReasonOnTime, advisory.Reason)
}

func TestClassifier_VehicleIssueWithinWindow(t *testing.T) {
	now := time.Now()
	in := classifierInput(t, now)
	in.VehicleIssue = &apptracking.VehicleIssue{
		ReportedAt: now.Add(-10 * time.Minute),
		Note:       "tire pressure warning",
	}

	advisory := newClassifier().Classify(in)

	assert.Equal(t, tracking.ReasonVehicleIssue, advisory.Reason)
	assert.Contains(t, advisory.Explanation, "tire pressure warning")
}

func TestClassifier_StaleVehicleIssueIgnored(t *testing.T) {
	now := time.Now()
	in := classifierInput(t, now)
	in.VehicleIssue = &apptracking.VehicleIssue{
		ReportedAt: now.Add(-45 * time.Minute),
		Note:       "tire pressure warning",
	}

	advisory := newClassifier().Classify(in)

	assert.Equal(t, tracking.ReasonOnTime, advisory.Reason)
}

func TestClassifier_OffRouteAfterRejectStreak(t *testing.T) {
	now := time.Now()
	in := classifierInput(t, now)
	in.SnapRejectStreak = 4

	advisory := newClassifier().Classify(in)

	assert.Equal(t, tracking.ReasonOffRoute, advisory.Reason)
}

func TestClassifier_TieBreaksByPriority(t *testing.T) {
	// Vehicle issue and severe weather both score 0.9; the fixed priority
	// order prefers the vehicle issue.
	now := time.Now()
	in := classifierInput(t, now)
	in.Weather = &signals.WeatherSample{SevereAdvisory: "high wind warning"}
	in.VehicleIssue = &apptracking.VehicleIssue{
		ReportedAt: now.Add(-5 * time.Minute),
		Note:       "coolant leak",
	}

	advisory := newClassifier().Classify(in)

	assert.Equal(t, tracking.ReasonVehicleIssue, advisory.Reason)
}
