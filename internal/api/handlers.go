package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/skyfence/utm/internal/fleet"
	"github.com/skyfence/utm/internal/flight"
	"github.com/skyfence/utm/internal/geofence"
	"github.com/skyfence/utm/internal/storage/sqlite"
	"github.com/skyfence/utm/internal/telemetry"
	"github.com/skyfence/utm/internal/websocket"
	"github.com/skyfence/utm/pkg/logger"
)

// Handler serves the UTM HTTP API
type Handler struct {
	authorizer       *flight.Authorizer
	registry         *flight.Registry
	simulator        *telemetry.Simulator
	fleetService     *fleet.Service
	telemetryStorage *sqlite.TelemetryStorage
	geofenceEngine   *geofence.Engine
	wsServer         *websocket.Server
	logger           *logger.Logger
}

// NewHandler creates a new API handler
func NewHandler(
	authorizer *flight.Authorizer,
	registry *flight.Registry,
	simulator *telemetry.Simulator,
	fleetService *fleet.Service,
	telemetryStorage *sqlite.TelemetryStorage,
	geofenceEngine *geofence.Engine,
	wsServer *websocket.Server,
	log *logger.Logger,
) *Handler {
	return &Handler{
		authorizer:       authorizer,
		registry:         registry,
		simulator:        simulator,
		fleetService:     fleetService,
		telemetryStorage: telemetryStorage,
		geofenceEngine:   geofenceEngine,
		wsServer:         wsServer,
		logger:           log.Named("api-handler"),
	}
}

// CreatePilot handles POST /api/v1/pilots
func (h *Handler) CreatePilot(w http.ResponseWriter, r *http.Request) {
	var req fleet.NewPilotRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	pilot, err := h.fleetService.CreatePilot(req)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}

	h.respondJSON(w, http.StatusCreated, pilot)
}

// GetAllPilots handles GET /api/v1/pilots
func (h *Handler) GetAllPilots(w http.ResponseWriter, r *http.Request) {
	pilots, err := h.fleetService.ListPilots()
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	if pilots == nil {
		pilots = []*fleet.Pilot{}
	}
	h.respondJSON(w, http.StatusOK, pilots)
}

// GetPilotByID handles GET /api/v1/pilots/{id}
func (h *Handler) GetPilotByID(w http.ResponseWriter, r *http.Request) {
	pilot, err := h.fleetService.GetPilot(chi.URLParam(r, "id"))
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, pilot)
}

// CreateDrone handles POST /api/v1/drones
func (h *Handler) CreateDrone(w http.ResponseWriter, r *http.Request) {
	var req fleet.NewDroneRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	drone, err := h.fleetService.CreateDrone(req)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}

	h.respondJSON(w, http.StatusCreated, drone)
}

// GetAllDrones handles GET /api/v1/drones
func (h *Handler) GetAllDrones(w http.ResponseWriter, r *http.Request) {
	drones, err := h.fleetService.ListDrones()
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	if drones == nil {
		drones = []*fleet.Drone{}
	}
	h.respondJSON(w, http.StatusOK, drones)
}

// GetDroneByID handles GET /api/v1/drones/{id}
func (h *Handler) GetDroneByID(w http.ResponseWriter, r *http.Request) {
	drone, err := h.fleetService.GetDrone(chi.URLParam(r, "id"))
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, drone)
}

// flightPlanRequest is the submit payload with textual timestamps
type flightPlanRequest struct {
	DroneID     string            `json:"drone_id"`
	PilotID     string            `json:"pilot_id"`
	StartTime   time.Time         `json:"start_time"`
	EndTime     time.Time         `json:"end_time"`
	Altitude    float64           `json:"altitude"`
	Waypoints   []flight.Waypoint `json:"waypoints"`
	Description string            `json:"description"`
}

// SubmitFlight handles POST /api/v1/flights. A rejected flight is a normal
// outcome: the response carries status rejected plus the violation list.
func (h *Handler) SubmitFlight(w http.ResponseWriter, r *http.Request) {
	var req flightPlanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	f, err := h.authorizer.Submit(flight.Plan{
		DroneID:     req.DroneID,
		PilotID:     req.PilotID,
		StartTime:   req.StartTime,
		EndTime:     req.EndTime,
		Altitude:    req.Altitude,
		Waypoints:   req.Waypoints,
		Description: req.Description,
	})
	if err != nil {
		h.respondServiceError(w, err)
		return
	}

	h.respondJSON(w, http.StatusCreated, f)
}

// GetAllFlights handles GET /api/v1/flights
func (h *Handler) GetAllFlights(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, h.registry.List())
}

// GetFlightByID handles GET /api/v1/flights/{id}
func (h *Handler) GetFlightByID(w http.ResponseWriter, r *http.Request) {
	f, err := h.registry.Get(chi.URLParam(r, "id"))
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, f)
}

// SimulateFlight handles POST /api/v1/flights/{id}/simulate. The flight
// must be approved; anything else is reported as a conflict, not a crash.
func (h *Handler) SimulateFlight(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := h.simulator.Start(id); err != nil {
		h.respondServiceError(w, err)
		return
	}

	h.respondJSON(w, http.StatusAccepted, map[string]string{
		"status":    "simulation_started",
		"flight_id": id,
	})
}

// GetDroneTelemetry handles GET /api/v1/telemetry/{droneId}?limit=N
func (h *Handler) GetDroneTelemetry(w http.ResponseWriter, r *http.Request) {
	droneID := chi.URLParam(r, "droneId")

	if _, err := h.fleetService.GetDrone(droneID); err != nil {
		h.respondServiceError(w, err)
		return
	}

	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed <= 0 {
			h.respondError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = parsed
	}

	samples, err := h.telemetryStorage.GetRecent(droneID, limit)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	if samples == nil {
		samples = []*telemetry.Sample{}
	}
	h.respondJSON(w, http.StatusOK, samples)
}

// GetRestrictedZones handles GET /api/v1/zones: a read-only snapshot of
// the configured zone set.
func (h *Handler) GetRestrictedZones(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, h.geofenceEngine.Zones())
}

// HandleWebSocket handles GET /api/v1/ws: the live telemetry feed
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	h.wsServer.HandleConnection(w, r)
}

// GetHealth handles GET /api/v1/health
func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":      "ok",
		"subscribers": h.wsServer.ClientCount(),
		"timestamp":   time.Now().UTC(),
	})
}

func (h *Handler) respondJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Error("Failed to encode response", logger.Error(err))
	}
}

func (h *Handler) respondError(w http.ResponseWriter, status int, msg string) {
	h.respondJSON(w, status, map[string]string{"error": msg})
}

// respondServiceError maps the error taxonomy onto HTTP statuses:
// validation 400, unknown references 404, state conflicts 409.
func (h *Handler) respondServiceError(w http.ResponseWriter, err error) {
	switch {
	case flight.IsValidationError(err), errors.Is(err, fleet.ErrInvalidRequest):
		h.respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, flight.ErrNotFound),
		errors.Is(err, fleet.ErrPilotNotFound),
		errors.Is(err, fleet.ErrDroneNotFound):
		h.respondError(w, http.StatusNotFound, err.Error())
	case flight.IsStateError(err):
		h.respondError(w, http.StatusConflict, err.Error())
	default:
		h.logger.Error("Internal error", logger.Error(err))
		h.respondError(w, http.StatusInternalServerError, "internal server error")
	}
}
