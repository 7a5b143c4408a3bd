package tracking

import (
	"math"
	"time"

	"github.com/andrescamacho/fleettrack-go/internal/domain/shared"
	"github.com/andrescamacho/fleettrack-go/internal/domain/signals"
	"github.com/andrescamacho/fleettrack-go/internal/domain/tracking"
)

// ETAConfig holds estimation and smoothing parameters
type ETAConfig struct {
	Alpha             float64 // EWMA smoothing factor; lower = more smoothing
	HighDevMin        float64 // deviation band for high confidence, minutes
	MediumDevMin      float64 // deviation band for medium confidence, minutes
	MinSpeedKPH       float64 // floor for effective segment speed
	OffRouteStopM     float64 // stops farther than this from the polyline degrade confidence
}

// DefaultETAConfig returns the production parameters
func DefaultETAConfig() ETAConfig {
	return ETAConfig{
		Alpha:         0.3,
		HighDevMin:    5,
		MediumDevMin:  15,
		MinSpeedKPH:   5,
		OffRouteStopM: 500,
	}
}

// Estimation is the full output of one ETA pass
type Estimation struct {
	Samples      []*tracking.ETASample
	Bucket       tracking.ConfidenceBucket // worst bucket across stops
	OffRouteStop bool                      // some remaining stop sits far from the polyline
}

// Estimator produces per-stop ETAs from snapped progress, segment free-flow
// speeds, traffic/weather factors, and planned service time, smoothed with
// an exponentially weighted moving average.
type Estimator struct {
	cfg ETAConfig
	ids shared.IDGenerator
}

// NewEstimator creates an estimator
func NewEstimator(cfg ETAConfig, ids shared.IDGenerator) *Estimator {
	return &Estimator{cfg: cfg, ids: ids}
}

// Estimate computes one ETASample per remaining stop. prevSmoothed carries
// the EWMA state per stop id from the previous pass and is updated in place.
// Missing traffic/weather samples default their factors to 1.0 and degrade
// confidence per the bucket rules.
func (e *Estimator) Estimate(
	shipment *tracking.Shipment,
	route *tracking.Route,
	snap *tracking.SnappedPoint,
	traffic *signals.TrafficSample,
	weather *signals.WeatherSample,
	prevSmoothed map[string]time.Duration,
	now time.Time,
) *Estimation {
	trafficFactor, weatherFactor := 1.0, 1.0
	if traffic != nil {
		trafficFactor = traffic.SpeedFactor()
	}
	if weather != nil {
		weatherFactor = weather.SpeedFactor()
	}

	est := &Estimation{Bucket: tracking.ConfidenceHigh}
	serviceAhead := time.Duration(0)

	for _, stop := range shipment.RemainingStops() {
		proj := route.Line.Project(stop.Location)
		if proj.CrossTrack >= e.cfg.OffRouteStopM {
			est.OffRouteStop = true
		}

		targetFrac := math.Max(proj.Fraction, snap.Progress)
		residualM := (targetFrac - snap.Progress) * route.DistanceM
		raw := e.residualDuration(route, snap.Progress, targetFrac, trafficFactor, weatherFactor)
		raw += serviceAhead

		smoothed := raw
		if prev, ok := prevSmoothed[stop.ID]; ok {
			smoothed = time.Duration(e.cfg.Alpha*float64(raw) + (1-e.cfg.Alpha)*float64(prev))
		}
		prevSmoothed[stop.ID] = smoothed

		deviation := raw - smoothed
		if deviation < 0 {
			deviation = -deviation
		}
		bucket, confidence := e.confidence(deviation, traffic != nil, weather != nil)
		if est.OffRouteStop {
			bucket = bucket.Degrade(tracking.ConfidenceLow)
		}
		if !bucket.AtLeast(est.Bucket) {
			est.Bucket = bucket
		}

		est.Samples = append(est.Samples, &tracking.ETASample{
			ID:               e.ids.NewID(),
			ShipmentID:       shipment.ID,
			StopID:           stop.ID,
			ObservedAt:       now,
			EstimatedArrival: now.Add(smoothed),
			ResidualM:        residualM,
			ResidualRaw:      raw,
			ResidualSmoothed: smoothed,
			Bucket:           bucket,
			Confidence:       confidence,
		})

		// Service time at this stop delays every stop after it.
		serviceAhead += time.Duration(stop.ServiceMinutes) * time.Minute
	}

	return est
}

// residualDuration integrates travel time over the route segments between
// two fractional positions, applying the effective-speed floor per segment.
func (e *Estimator) residualDuration(route *tracking.Route, from, to, trafficFactor, weatherFactor float64) time.Duration {
	if to <= from {
		return 0
	}
	total := 0.0
	for _, seg := range route.Segments {
		lo := math.Max(from, seg.StartFraction)
		hi := math.Min(to, seg.EndFraction)
		if hi <= lo {
			continue
		}
		lengthM := (hi - lo) * route.DistanceM
		speedKPH := math.Max(e.cfg.MinSpeedKPH, seg.FreeFlowKPH*trafficFactor*weatherFactor)
		total += lengthM / (speedKPH / 3.6)
	}
	return time.Duration(total * float64(time.Second))
}

// confidence maps smoothing deviation and signal availability to a bucket
// and a numeric confidence monotone in the same inputs.
func (e *Estimator) confidence(deviation time.Duration, hasTraffic, hasWeather bool) (tracking.ConfidenceBucket, float64) {
	devMin := deviation.Minutes()
	bothPresent := hasTraffic && hasWeather
	oneMissing := hasTraffic != hasWeather

	var bucket tracking.ConfidenceBucket
	switch {
	case devMin <= e.cfg.HighDevMin && bothPresent:
		bucket = tracking.ConfidenceHigh
	case devMin <= e.cfg.MediumDevMin || oneMissing:
		bucket = tracking.ConfidenceMedium
	default:
		bucket = tracking.ConfidenceLow
	}

	confidence := 1.0 - devMin/(2*e.cfg.MediumDevMin)
	if !hasTraffic {
		confidence -= 0.1
	}
	if !hasWeather {
		confidence -= 0.1
	}
	confidence = math.Max(0.05, math.Min(1.0, confidence))
	return bucket, confidence
}
