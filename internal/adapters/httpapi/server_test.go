package httpapi_test

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andrescamacho/fleettrack-go/internal/adapters/httpapi"
	"github.com/andrescamacho/fleettrack-go/internal/adapters/persistence"
	routingadapter "github.com/andrescamacho/fleettrack-go/internal/adapters/routing"
	applogging "github.com/andrescamacho/fleettrack-go/internal/application/logging"
	apptracking "github.com/andrescamacho/fleettrack-go/internal/application/tracking"
	domainrouting "github.com/andrescamacho/fleettrack-go/internal/domain/routing"
	"github.com/andrescamacho/fleettrack-go/internal/domain/shared"
	"github.com/andrescamacho/fleettrack-go/internal/domain/tracking"
	"github.com/andrescamacho/fleettrack-go/test/helpers"
)

type serverEnv struct {
	repo    *persistence.GormTrackingRepository
	clock   *shared.MockClock
	fixture *helpers.CorridorFixture
	server  *httptest.Server
	now     time.Time
}

// newServerEnv stands up the full HTTP surface over a seeded corridor
func newServerEnv(t *testing.T) *serverEnv {
	t.Helper()
	now := time.Date(2026, 3, 14, 8, 0, 0, 0, time.UTC)
	db := helpers.NewTestDB(t)
	repo := persistence.NewGormTrackingRepository(db)
	fixture := helpers.NewCorridor(t, now)
	helpers.SeedCorridor(t, db, fixture)

	clock := shared.NewMockClock(now)
	ids := shared.NewSequentialIDGenerator("id")
	router := routingadapter.NewMockRoutingClient(ids, clock)
	hub := apptracking.NewHub(apptracking.DefaultSubscriberBuffer)

	deps := apptracking.ActorDeps{
		Repo:       repo,
		Publisher:  hub,
		Snapper:    apptracking.NewSnapper(apptracking.DefaultSnapperConfig()),
		Estimator:  apptracking.NewEstimator(apptracking.DefaultETAConfig(), ids),
		Classifier: apptracking.NewClassifier(apptracking.DefaultClassifierConfig(), ids),
		Evaluator:  apptracking.NewEvaluator(apptracking.DefaultRerouteConfig(), router, repo, ids, domainrouting.DefaultTruckProfile()),
		Clock:      clock,
		Dwell:      apptracking.DefaultDwellConfig(),
	}
	registry := apptracking.NewRegistry(apptracking.DefaultActorConfig(), deps)
	registry.Start(context.Background())
	t.Cleanup(registry.Close)

	gateway := apptracking.NewGateway(apptracking.DefaultGatewayConfig(), registry, clock)
	service := apptracking.NewService(repo, registry, hub, clock, ids)

	server := httptest.NewServer(
		httpapi.NewServer(gateway, service, registry, applogging.NopLogger(), now).Handler())
	t.Cleanup(server.Close)

	return &serverEnv{
		repo:    repo,
		clock:   clock,
		fixture: fixture,
		server:  server,
		now:     now,
	}
}

func (env *serverEnv) post(t *testing.T, path string, body interface{}) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	resp, err := http.Post(env.server.URL+path, "application/json", &buf)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func (env *serverEnv) get(t *testing.T, path string) *http.Response {
	t.Helper()
	resp, err := http.Get(env.server.URL + path)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodeBody(t *testing.T, resp *http.Response) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return body
}

func (env *serverEnv) batch(points int) map[string]interface{} {
	pts := make([]map[string]interface{}, 0, points)
	for i := 0; i < points; i++ {
		at := env.fixture.Route.Line.At(0.1 * float64(i+1))
		pts = append(pts, map[string]interface{}{
			"ts":       env.now.Add(time.Duration(i) * time.Minute),
			"lat":      at.Lat,
			"lon":      at.Lon,
			"speed":    72.0,
			"accuracy": 8.0,
		})
	}
	return map[string]interface{}{"vehicle_id": "veh-1", "points": pts, "source": "gps"}
}

func TestServer_Healthz(t *testing.T) {
	env := newServerEnv(t)

	resp := env.get(t, "/healthz")

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", decodeBody(t, resp)["status"])
}

func TestServer_Statusz(t *testing.T) {
	env := newServerEnv(t)

	resp := env.get(t, "/statusz")

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body := decodeBody(t, resp)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, 0.0, body["active_actors"])
}

func TestServer_IngestAcceptsABatch(t *testing.T) {
	// Arrange
	env := newServerEnv(t)

	// Act
	resp := env.post(t, "/v1/positions", env.batch(2))

	// Assert
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	body := decodeBody(t, resp)
	assert.Equal(t, 2.0, body["admitted"])
}

func TestServer_IngestRejectsMalformedBody(t *testing.T) {
	env := newServerEnv(t)

	resp, err := http.Post(env.server.URL+"/v1/positions", "application/json",
		strings.NewReader("{not json"))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "INVALID_INPUT", decodeBody(t, resp)["code"])
}

func TestServer_GetShipmentByReference(t *testing.T) {
	// Arrange
	env := newServerEnv(t)

	// Act
	resp := env.get(t, "/v1/shipments/REF-1001")

	// Assert
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body := decodeBody(t, resp)
	assert.Equal(t, "ship-1", body["id"])
	assert.Equal(t, "REF-1001", body["reference"])
	assert.Equal(t, 100.0, body["residual_percent"])
	assert.Len(t, body["stops"], 2)
}

func TestServer_GetUnknownShipment(t *testing.T) {
	env := newServerEnv(t)

	resp := env.get(t, "/v1/shipments/REF-NOPE")

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "NOT_FOUND", decodeBody(t, resp)["code"])
}

func TestServer_LifecycleEndpoints(t *testing.T) {
	// Arrange
	env := newServerEnv(t)

	// Act / Assert: start, then cancel, then a conflicting restart
	resp := env.post(t, "/v1/shipments/ship-1/start", nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	stored, err := env.repo.GetShipmentByID(context.Background(), "ship-1")
	require.NoError(t, err)
	assert.Equal(t, tracking.ShipmentStatusInTransit, stored.Status)

	resp = env.post(t, "/v1/shipments/ship-1/cancel", nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = env.post(t, "/v1/shipments/ship-1/start", nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "STATE_CONFLICT", decodeBody(t, resp)["code"])
}

func TestServer_ReportIssue(t *testing.T) {
	env := newServerEnv(t)

	resp := env.post(t, "/v1/shipments/ship-1/issues", map[string]string{"note": "flat tire"})

	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
}

func TestServer_ShiftStartRequiresTimestamp(t *testing.T) {
	env := newServerEnv(t)

	resp := env.post(t, "/v1/shipments/ship-1/shift", map[string]string{})

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "INVALID_INPUT", decodeBody(t, resp)["code"])
}

func TestServer_ProposeRerouteWithoutPositionConflicts(t *testing.T) {
	env := newServerEnv(t)

	resp := env.post(t, "/v1/shipments/ship-1/reroutes", nil)

	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestServer_AcceptUnknownReroute(t *testing.T) {
	env := newServerEnv(t)

	resp := env.post(t, "/v1/reroutes/rr-missing/accept", nil)

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestServer_EventStreamDeliversUpdates(t *testing.T) {
	// Arrange: an open event stream for the shipment
	env := newServerEnv(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		env.server.URL+"/v1/shipments/ship-1/events", nil)
	require.NoError(t, err)
	stream, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer stream.Body.Close()
	require.Equal(t, http.StatusOK, stream.StatusCode)
	require.Equal(t, "text/event-stream", stream.Header.Get("Content-Type"))

	// Act: a position admitted after subscription reaches the stream
	resp := env.post(t, "/v1/positions", env.batch(1))
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	// Assert: scan frames until the position update arrives
	scanner := bufio.NewScanner(stream.Body)
	var sawUpdate bool
	for scanner.Scan() {
		if scanner.Text() == "event: position_update" {
			sawUpdate = true
			break
		}
	}
	assert.True(t, sawUpdate, "expected a position_update frame on the stream")
}
