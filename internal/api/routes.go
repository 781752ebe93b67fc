package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/skyfence/utm/internal/config"
	"github.com/skyfence/utm/internal/fleet"
	"github.com/skyfence/utm/internal/flight"
	"github.com/skyfence/utm/internal/geofence"
	"github.com/skyfence/utm/internal/storage/sqlite"
	"github.com/skyfence/utm/internal/telemetry"
	"github.com/skyfence/utm/internal/websocket"
	"github.com/skyfence/utm/pkg/logger"
)

// Router is the API router
type Router struct {
	handler    *Handler
	middleware *Middleware
	config     *config.Config
	logger     *logger.Logger
}

// NewRouter creates a new API router
func NewRouter(
	authorizer *flight.Authorizer,
	registry *flight.Registry,
	simulator *telemetry.Simulator,
	fleetService *fleet.Service,
	telemetryStorage *sqlite.TelemetryStorage,
	geofenceEngine *geofence.Engine,
	wsServer *websocket.Server,
	cfg *config.Config,
	log *logger.Logger,
) *Router {
	return &Router{
		handler:    NewHandler(authorizer, registry, simulator, fleetService, telemetryStorage, geofenceEngine, wsServer, log),
		middleware: NewMiddleware(log),
		config:     cfg,
		logger:     log.Named("api-router"),
	}
}

// Routes returns the API routes
func (r *Router) Routes() http.Handler {
	router := chi.NewRouter()

	// Middleware
	router.Use(r.middleware.RequestID)
	router.Use(r.middleware.Logger)
	router.Use(r.middleware.Recoverer)
	router.Use(r.middleware.CORS(r.config.Server.CORSAllowedOrigins))

	// API routes
	router.Route("/api/v1", func(router chi.Router) {
		// Pilot routes
		router.Post("/pilots", r.handler.CreatePilot)
		router.Get("/pilots", r.handler.GetAllPilots)
		router.Get("/pilots/{id}", r.handler.GetPilotByID)

		// Drone routes
		router.Post("/drones", r.handler.CreateDrone)
		router.Get("/drones", r.handler.GetAllDrones)
		router.Get("/drones/{id}", r.handler.GetDroneByID)

		// Flight plan routes
		router.Post("/flights", r.handler.SubmitFlight)
		router.Get("/flights", r.handler.GetAllFlights)
		router.Get("/flights/{id}", r.handler.GetFlightByID)
		router.Post("/flights/{id}/simulate", r.handler.SimulateFlight)

		// Telemetry history
		router.Get("/telemetry/{droneId}", r.handler.GetDroneTelemetry)

		// Restricted airspace
		router.Get("/zones", r.handler.GetRestrictedZones)

		// Live telemetry feed
		router.Get("/ws", r.handler.HandleWebSocket)

		// Health check
		router.Get("/health", r.handler.GetHealth)
	})

	return router
}
