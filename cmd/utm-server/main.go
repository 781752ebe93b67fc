package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/skyfence/utm/internal/api"
	"github.com/skyfence/utm/internal/config"
	"github.com/skyfence/utm/internal/fleet"
	"github.com/skyfence/utm/internal/flight"
	"github.com/skyfence/utm/internal/geofence"
	"github.com/skyfence/utm/internal/storage/sqlite"
	"github.com/skyfence/utm/internal/telemetry"
	"github.com/skyfence/utm/internal/websocket"
	"github.com/skyfence/utm/pkg/logger"
)

func main() {
	configPath := flag.String("config", "config.toml", "path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	log.Info("Starting UTM server",
		logger.String("config", *configPath),
		logger.Int("restricted_zones", len(cfg.Airspace.Zones)))

	db, err := sqlite.Open(cfg.Storage.Path)
	if err != nil {
		log.Fatal("Failed to open database", logger.Error(err))
	}
	defer db.Close()

	fleetStorage, err := sqlite.NewFleetStorage(db, log)
	if err != nil {
		log.Fatal("Failed to initialize fleet storage", logger.Error(err))
	}
	telemetryStorage, err := sqlite.NewTelemetryStorage(db, cfg.Storage.TelemetryHistorySize, log)
	if err != nil {
		log.Fatal("Failed to initialize telemetry storage", logger.Error(err))
	}

	geofenceEngine := geofence.NewEngine(cfg.Airspace)
	fleetService := fleet.NewService(fleetStorage, log)
	registry := flight.NewRegistry(log)
	authorizer := flight.NewAuthorizer(registry, geofenceEngine, fleetService, cfg.Flights, log)

	wsServer := websocket.NewServer(cfg.WebSocket, cfg.Server.CORSAllowedOrigins, log)
	simulator := telemetry.NewSimulator(registry, telemetryStorage, wsServer, cfg.Simulation, log)

	router := api.NewRouter(authorizer, registry, simulator, fleetService,
		telemetryStorage, geofenceEngine, wsServer, cfg, log)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      router.Routes(),
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeoutSecs) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeoutSecs) * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("HTTP server listening", logger.String("addr", addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info("Received signal, shutting down", logger.String("signal", sig.String()))
	case err := <-errCh:
		log.Error("HTTP server failed", logger.Error(err))
	}

	// Stop accepting requests first, then wind down the simulations and
	// the live feed.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server shutdown failed", logger.Error(err))
	}

	simulator.Shutdown()
	wsServer.Shutdown()

	log.Info("UTM server stopped")
}
