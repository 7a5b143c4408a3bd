package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	apptracking "github.com/andrescamacho/fleettrack-go/internal/application/tracking"
	"github.com/andrescamacho/fleettrack-go/internal/application/logging"
	"github.com/andrescamacho/fleettrack-go/internal/domain/shared"
	"github.com/andrescamacho/fleettrack-go/internal/domain/tracking"
)

// Server is the daemon HTTP surface: position ingest, shipment snapshot
// queries, lifecycle and reroute commands, and the per-shipment event stream
// over server-sent events. Business rules live in the application layer; the
// server only decodes, dispatches, and maps error kinds to status codes.
type Server struct {
	gateway  *apptracking.Gateway
	service  *apptracking.Service
	registry *apptracking.Registry
	logger   logging.Logger
	started  time.Time
}

// NewServer wires the HTTP surface in front of the application services
func NewServer(gateway *apptracking.Gateway, service *apptracking.Service, registry *apptracking.Registry, logger logging.Logger, started time.Time) *Server {
	return &Server{
		gateway:  gateway,
		service:  service,
		registry: registry,
		logger:   logger,
		started:  started,
	}
}

// Handler returns the routed handler for the daemon listener
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// Health and status
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /statusz", s.handleStatus)

	// Ingest
	mux.HandleFunc("POST /v1/positions", s.handleIngest)

	// Shipment queries and lifecycle
	mux.HandleFunc("GET /v1/shipments/{reference}", s.handleGetShipment)
	mux.HandleFunc("POST /v1/shipments/{id}/start", s.handleStartShipment)
	mux.HandleFunc("POST /v1/shipments/{id}/cancel", s.handleCancelShipment)
	mux.HandleFunc("POST /v1/shipments/{id}/issues", s.handleReportIssue)
	mux.HandleFunc("POST /v1/shipments/{id}/shift", s.handleShiftStart)

	// Reroutes
	mux.HandleFunc("POST /v1/shipments/{id}/reroutes", s.handleProposeReroute)
	mux.HandleFunc("POST /v1/reroutes/{id}/accept", s.handleAcceptReroute)
	mux.HandleFunc("POST /v1/reroutes/{id}/reject", s.handleRejectReroute)

	// Event stream
	mux.HandleFunc("GET /v1/shipments/{id}/events", s.handleEvents)

	return mux
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":         "ok",
		"uptime_seconds": int(time.Since(s.started).Seconds()),
		"active_actors":  s.registry.ActorCount(),
	})
}

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	var batch apptracking.PositionBatch
	if err := json.NewDecoder(r.Body).Decode(&batch); err != nil {
		writeError(w, shared.WrapDomainError(shared.KindInvalidInput, "malformed position batch", err))
		return
	}

	result, err := s.gateway.Ingest(r.Context(), &batch)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, result)
}

// shipmentResponse is the snapshot read model
type shipmentResponse struct {
	ID              string             `json:"id"`
	Reference       string             `json:"reference"`
	VehicleID       string             `json:"vehicle_id"`
	Status          string             `json:"status"`
	PromisedAt      time.Time          `json:"promised_at"`
	Stops           []stopResponse     `json:"stops"`
	LastPosition    *positionResponse  `json:"last_position,omitempty"`
	StopETAs        []tracking.StopETA `json:"per_stop_etas,omitempty"`
	Advisory        *tracking.Advisory `json:"advisory,omitempty"`
	ResidualPercent float64            `json:"residual_percent"`
}

type stopResponse struct {
	ID               string     `json:"id"`
	Sequence         int        `json:"sequence"`
	Name             string     `json:"name"`
	Lat              float64    `json:"lat"`
	Lon              float64    `json:"lon"`
	PlannedArrival   time.Time  `json:"planned_arrival"`
	PlannedDeparture time.Time  `json:"planned_departure"`
	ActualArrival    *time.Time `json:"actual_arrival,omitempty"`
	ActualDeparture  *time.Time `json:"actual_departure,omitempty"`
	Completed        bool       `json:"completed"`
}

type positionResponse struct {
	SnappedLat float64   `json:"snapped_lat"`
	SnappedLon float64   `json:"snapped_lon"`
	Progress   float64   `json:"progress"`
	SpeedKPH   float64   `json:"speed_kph"`
	ObservedAt time.Time `json:"observed_at"`
}

func toShipmentResponse(snap *apptracking.ShipmentSnapshot) shipmentResponse {
	resp := shipmentResponse{
		ID:              snap.Shipment.ID,
		Reference:       snap.Shipment.Reference,
		VehicleID:       snap.Shipment.VehicleID,
		Status:          string(snap.Shipment.Status),
		PromisedAt:      snap.Shipment.PromisedAt,
		StopETAs:        snap.StopETAs,
		Advisory:        snap.Advisory,
		ResidualPercent: snap.ResidualPercent,
	}
	for _, stop := range snap.Shipment.Stops {
		resp.Stops = append(resp.Stops, stopResponse{
			ID:               stop.ID,
			Sequence:         stop.Sequence,
			Name:             stop.Name,
			Lat:              stop.Location.Lat,
			Lon:              stop.Location.Lon,
			PlannedArrival:   stop.PlannedArrival,
			PlannedDeparture: stop.PlannedDeparture,
			ActualArrival:    stop.ActualArrival,
			ActualDeparture:  stop.ActualDeparture,
			Completed:        stop.Completed,
		})
	}
	if snap.LastSnapped != nil {
		resp.LastPosition = &positionResponse{
			SnappedLat: snap.LastSnapped.Snapped.Lat,
			SnappedLon: snap.LastSnapped.Snapped.Lon,
			Progress:   snap.LastSnapped.Progress,
			SpeedKPH:   snap.LastSnapped.EdgeSpeed,
			ObservedAt: snap.LastSnapped.Position.Timestamp,
		}
	}
	return resp
}

func (s *Server) handleGetShipment(w http.ResponseWriter, r *http.Request) {
	snap, err := s.service.GetShipment(r.Context(), r.PathValue("reference"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toShipmentResponse(snap))
}

func (s *Server) handleStartShipment(w http.ResponseWriter, r *http.Request) {
	if err := s.service.StartShipment(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCancelShipment(w http.ResponseWriter, r *http.Request) {
	if err := s.service.CancelShipment(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleReportIssue(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Note string `json:"note"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, shared.WrapDomainError(shared.KindInvalidInput, "malformed issue report", err))
		return
	}
	if err := s.service.ReportVehicleIssue(r.Context(), r.PathValue("id"), body.Note); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleShiftStart(w http.ResponseWriter, r *http.Request) {
	var body struct {
		StartedAt time.Time `json:"started_at"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, shared.WrapDomainError(shared.KindInvalidInput, "malformed shift report", err))
		return
	}
	if body.StartedAt.IsZero() {
		writeError(w, shared.NewDomainError(shared.KindInvalidInput, "started_at is required"))
		return
	}
	if err := s.service.RecordShiftStart(r.Context(), r.PathValue("id"), body.StartedAt); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type rerouteResponse struct {
	ID           string  `json:"id"`
	ShipmentID   string  `json:"shipment_id"`
	OldRouteID   string  `json:"old_route_id"`
	NewRouteID   string  `json:"new_route_id"`
	TimeSavedMin float64 `json:"time_saved_min"`
	Reason       string  `json:"reason"`
	Status       string  `json:"status"`
}

func toRerouteResponse(rr *tracking.Reroute) rerouteResponse {
	return rerouteResponse{
		ID:           rr.ID,
		ShipmentID:   rr.ShipmentID,
		OldRouteID:   rr.OldRouteID,
		NewRouteID:   rr.NewRouteID,
		TimeSavedMin: rr.TimeSavedMin,
		Reason:       rr.Reason,
		Status:       string(rr.Status),
	}
}

func (s *Server) handleProposeReroute(w http.ResponseWriter, r *http.Request) {
	reroute, err := s.service.ProposeReroute(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	if reroute == nil {
		// No alternative cleared the savings threshold
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusCreated, toRerouteResponse(reroute))
}

func (s *Server) handleAcceptReroute(w http.ResponseWriter, r *http.Request) {
	reroute, err := s.service.AcceptReroute(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toRerouteResponse(reroute))
}

func (s *Server) handleRejectReroute(w http.ResponseWriter, r *http.Request) {
	reroute, err := s.service.RejectReroute(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toRerouteResponse(reroute))
}

// handleEvents streams the shipment's events as server-sent events until the
// client disconnects. Ordering per shipment follows publish order; buffer
// overflow surfaces as a "lagged" event.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	session := s.service.OpenSession()
	defer s.service.CloseSession(session)

	shipmentID := r.PathValue("id")
	if err := s.service.Subscribe(r.Context(), session, shipmentID); err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		event, ok := session.Receive(r.Context())
		if !ok {
			return
		}
		payload, err := json.Marshal(event)
		if err != nil {
			s.logger.Log("error", "failed to encode event", map[string]interface{}{
				"shipment_id": shipmentID,
				"event_type":  event.EventType(),
				"error":       err.Error(),
			})
			continue
		}
		fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.EventType(), payload)
		flusher.Flush()
	}
}

// errorResponse is the wire shape for failed requests
type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeError(w http.ResponseWriter, err error) {
	kind := shared.KindOf(err)
	writeJSON(w, statusForKind(kind), errorResponse{
		Code:    string(kind),
		Message: err.Error(),
	})
}

func statusForKind(kind shared.ErrorKind) int {
	switch kind {
	case shared.KindInvalidInput:
		return http.StatusBadRequest
	case shared.KindNotFound:
		return http.StatusNotFound
	case shared.KindStateConflict, shared.KindConflict:
		return http.StatusConflict
	case shared.KindOverload:
		return http.StatusTooManyRequests
	case shared.KindTimeout, shared.KindDeadlineExceeded:
		return http.StatusGatewayTimeout
	case shared.KindServiceUnavailable, shared.KindRoutingUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
