package signals

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/andrescamacho/fleettrack-go/internal/domain/shared"
	"github.com/andrescamacho/fleettrack-go/internal/domain/signals"
	"github.com/andrescamacho/fleettrack-go/pkg/geo"
)

// Wire shapes for the JSON signal endpoints. Both providers answer a GET
// with lat/lon query parameters.
type trafficResponse struct {
	SpeedKPH       float64 `json:"speed_kph"`
	FreeFlowKPH    float64 `json:"free_flow_kph"`
	Incident       bool    `json:"incident"`
	IncidentDetail string  `json:"incident_detail,omitempty"`
}

type weatherResponse struct {
	PrecipMMPerH   float64 `json:"precip_mm_h"`
	WindKPH        float64 `json:"wind_kph"`
	TempC          float64 `json:"temp_c"`
	SevereAdvisory string  `json:"severe_advisory,omitempty"`
}

func fetchJSON(ctx context.Context, client *http.Client, rawURL string, point geo.Point, out interface{}) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return shared.NewDomainError(shared.KindInvalidInput, fmt.Sprintf("invalid signal provider url: %v", err))
	}
	q := u.Query()
	q.Set("lat", fmt.Sprintf("%.6f", point.Lat))
	q.Set("lon", fmt.Sprintf("%.6f", point.Lon))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return shared.NewDomainError(shared.KindTransient, fmt.Sprintf("signal provider unreachable: %v", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return shared.NewDomainError(shared.KindTransient, fmt.Sprintf("signal provider returned %d", resp.StatusCode))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// NewHTTPTrafficFetcher builds a fetch function against a JSON traffic
// endpoint. The per-request timeout is enforced here so provider stalls
// never exceed the signal budget.
func NewHTTPTrafficFetcher(baseURL string, timeout time.Duration, clock shared.Clock) TrafficFetchFunc {
	client := &http.Client{Timeout: timeout}
	return func(ctx context.Context, point geo.Point, at time.Time) (*signals.TrafficSample, error) {
		var body trafficResponse
		if err := fetchJSON(ctx, client, baseURL, point, &body); err != nil {
			return nil, err
		}
		sample := &signals.TrafficSample{
			Location:       point,
			Timestamp:      clock.Now(),
			SpeedKPH:       body.SpeedKPH,
			FreeFlowKPH:    body.FreeFlowKPH,
			Incident:       body.Incident,
			IncidentDetail: body.IncidentDetail,
			Source:         baseURL,
		}
		if sample.FreeFlowKPH > 0 {
			sample.CongestionRatio = sample.SpeedFactor()
		}
		return sample, nil
	}
}

// NewHTTPWeatherFetcher builds a fetch function against a JSON weather endpoint
func NewHTTPWeatherFetcher(baseURL string, timeout time.Duration, clock shared.Clock) WeatherFetchFunc {
	client := &http.Client{Timeout: timeout}
	return func(ctx context.Context, point geo.Point, at time.Time) (*signals.WeatherSample, error) {
		var body weatherResponse
		if err := fetchJSON(ctx, client, baseURL, point, &body); err != nil {
			return nil, err
		}
		return &signals.WeatherSample{
			Location:       point,
			Timestamp:      clock.Now(),
			PrecipMMPerH:   body.PrecipMMPerH,
			WindKPH:        body.WindKPH,
			TempC:          body.TempC,
			SevereAdvisory: body.SevereAdvisory,
			Source:         baseURL,
		}, nil
	}
}
