package tracking

import (
	"fmt"
	"math"
	"time"

	"github.com/andrescamacho/fleettrack-go/internal/domain/shared"
	"github.com/andrescamacho/fleettrack-go/internal/domain/signals"
	"github.com/andrescamacho/fleettrack-go/internal/domain/tracking"
)

// ClassifierConfig holds delay-classification thresholds. The cause
// priority order is fixed; only thresholds are configurable.
type ClassifierConfig struct {
	MinScore               float64       // minimum winning score
	TrafficFactorThreshold float64       // speed factor below this scores congestion
	LateThresholdMin       float64       // projected lateness counting as delayed
	PrecipThresholdMM      float64       // precipitation rate scoring weather delay
	HOSDriveLimit          time.Duration // regulatory active-drive ceiling
	HOSWarningWindow       time.Duration // remaining drive time that starts scoring risk
	VehicleIssueWindow     time.Duration // recency window for manual vehicle events
	OffRouteRejects        int           // snap-rejection streak scoring off-route
}

// DefaultClassifierConfig returns the production thresholds
func DefaultClassifierConfig() ClassifierConfig {
	return ClassifierConfig{
		MinScore:               0.4,
		TrafficFactorThreshold: 0.6,
		LateThresholdMin:       10,
		PrecipThresholdMM:      2.5,
		HOSDriveLimit:          11 * time.Hour,
		HOSWarningWindow:       90 * time.Minute,
		VehicleIssueWindow:     30 * time.Minute,
		OffRouteRejects:        3,
	}
}

// VehicleIssue is an externally reported manual event
type VehicleIssue struct {
	ReportedAt time.Time
	Note       string
}

// ClassifierInput gathers every signal one classification pass consumes.
// Missing inputs are nil and score zero for their causes.
type ClassifierInput struct {
	Shipment        *tracking.Shipment
	LatenessMin     float64 // projected terminal arrival minus promised time
	Traffic         *signals.TrafficSample
	Weather         *signals.WeatherSample
	ShiftStart      *time.Time
	VehicleIssue    *VehicleIssue
	SnapRejectStreak int
	Now             time.Time
}

// Classifier scores candidate delay causes independently and emits exactly
// one advisory per pass.
type Classifier struct {
	cfg ClassifierConfig
	ids shared.IDGenerator
}

// NewClassifier creates a classifier
func NewClassifier(cfg ClassifierConfig, ids shared.IDGenerator) *Classifier {
	return &Classifier{cfg: cfg, ids: ids}
}

type scoredCause struct {
	reason      tracking.ReasonCode
	score       float64
	explanation string
}

// Classify selects the highest-scoring cause above the minimum; ties break
// by the fixed priority order. With no qualifying cause the result is
// ON_TIME when on schedule and UNKNOWN_DELAY otherwise.
func (c *Classifier) Classify(in ClassifierInput) *tracking.Advisory {
	candidates := []scoredCause{
		c.scoreTraffic(in),
		c.scoreWeather(in),
		c.scoreHOS(in),
		c.scoreIncident(in),
		c.scoreVehicleIssue(in),
		c.scoreOffRoute(in),
	}

	var winner *scoredCause
	for i := range candidates {
		cand := &candidates[i]
		if cand.score < c.cfg.MinScore {
			continue
		}
		if winner == nil ||
			cand.score > winner.score ||
			(cand.score == winner.score && cand.reason.TiePriority() > winner.reason.TiePriority()) {
			winner = cand
		}
	}

	late := in.LatenessMin >= c.cfg.LateThresholdMin
	if winner == nil {
		if late {
			winner = &scoredCause{
				reason:      tracking.ReasonUnknownDelay,
				score:       0.5,
				explanation: fmt.Sprintf("Running %.0f min behind the promised window with no identified cause.", in.LatenessMin),
			}
		} else {
			winner = &scoredCause{
				reason:      tracking.ReasonOnTime,
				score:       0.9,
				explanation: "Projected arrival is within the promised window.",
			}
		}
	}

	return &tracking.Advisory{
		ID:          c.ids.NewID(),
		ShipmentID:  in.Shipment.ID,
		ObservedAt:  in.Now,
		Reason:      winner.reason,
		Confidence:  math.Min(1.0, winner.score),
		Explanation: winner.explanation,
		Severity:    c.severity(winner.reason, in.LatenessMin),
	}
}

func (c *Classifier) scoreTraffic(in ClassifierInput) scoredCause {
	out := scoredCause{reason: tracking.ReasonTrafficCongestion}
	if in.Traffic == nil {
		return out
	}
	factor := in.Traffic.SpeedFactor()
	if factor >= c.cfg.TrafficFactorThreshold {
		return out
	}
	// Scale linearly: factor at threshold scores the minimum, standstill scores 1.
	out.score = c.cfg.MinScore + (1-c.cfg.MinScore)*(c.cfg.TrafficFactorThreshold-factor)/c.cfg.TrafficFactorThreshold
	out.explanation = fmt.Sprintf("Traffic on upcoming segments is moving at %.0f%% of free-flow speed.", factor*100)
	return out
}

func (c *Classifier) scoreWeather(in ClassifierInput) scoredCause {
	out := scoredCause{reason: tracking.ReasonWeatherDelay}
	if in.Weather == nil {
		return out
	}
	w := in.Weather
	switch {
	case w.SevereAdvisory != "":
		out.score = 0.9
		out.explanation = fmt.Sprintf("Severe weather advisory in corridor: %s.", w.SevereAdvisory)
	case w.PrecipMMPerH >= c.cfg.PrecipThresholdMM:
		out.score = math.Min(0.85, 0.4+w.PrecipMMPerH/20)
		out.explanation = fmt.Sprintf("Precipitation at %.1f mm/h is slowing the corridor.", w.PrecipMMPerH)
	}
	return out
}

func (c *Classifier) scoreHOS(in ClassifierInput) scoredCause {
	out := scoredCause{reason: tracking.ReasonDriverHOSRisk}
	if in.ShiftStart == nil {
		return out
	}
	driven := in.Now.Sub(*in.ShiftStart)
	remaining := c.cfg.HOSDriveLimit - driven
	if remaining > c.cfg.HOSWarningWindow {
		return out
	}
	if remaining < 0 {
		remaining = 0
	}
	out.score = 0.5 + 0.5*(1-remaining.Minutes()/c.cfg.HOSWarningWindow.Minutes())
	out.explanation = fmt.Sprintf("Driver has %.0f min of regulated drive time remaining.", remaining.Minutes())
	return out
}

func (c *Classifier) scoreIncident(in ClassifierInput) scoredCause {
	out := scoredCause{reason: tracking.ReasonRoadIncident}
	if in.Traffic == nil || !in.Traffic.Incident {
		return out
	}
	out.score = 0.85
	detail := in.Traffic.IncidentDetail
	if detail == "" {
		detail = "incident reported on route"
	}
	out.explanation = fmt.Sprintf("Traffic provider reports: %s.", detail)
	return out
}

func (c *Classifier) scoreVehicleIssue(in ClassifierInput) scoredCause {
	out := scoredCause{reason: tracking.ReasonVehicleIssue}
	if in.VehicleIssue == nil {
		return out
	}
	age := in.Now.Sub(in.VehicleIssue.ReportedAt)
	if age > c.cfg.VehicleIssueWindow {
		return out
	}
	out.score = 0.9
	out.explanation = fmt.Sprintf("Manual vehicle event reported %.0f min ago: %s.", age.Minutes(), in.VehicleIssue.Note)
	return out
}

func (c *Classifier) scoreOffRoute(in ClassifierInput) scoredCause {
	out := scoredCause{reason: tracking.ReasonOffRoute}
	if in.SnapRejectStreak < c.cfg.OffRouteRejects {
		return out
	}
	out.score = math.Min(0.9, 0.4+0.1*float64(in.SnapRejectStreak-c.cfg.OffRouteRejects+1))
	out.explanation = fmt.Sprintf("Vehicle position has diverged from the active route for %d consecutive fixes.", in.SnapRejectStreak)
	return out
}

// severity grades from projected lateness; ON_TIME is always low.
func (c *Classifier) severity(reason tracking.ReasonCode, latenessMin float64) tracking.Severity {
	if reason == tracking.ReasonOnTime {
		return tracking.SeverityLow
	}
	switch {
	case latenessMin >= 2*c.cfg.LateThresholdMin:
		return tracking.SeverityHigh
	case latenessMin >= c.cfg.LateThresholdMin:
		return tracking.SeverityMedium
	default:
		return tracking.SeverityLow
	}
}
