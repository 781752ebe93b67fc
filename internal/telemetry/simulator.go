package telemetry

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/skyfence/utm/internal/config"
	"github.com/skyfence/utm/internal/flight"
	"github.com/skyfence/utm/internal/geofence"
	"github.com/skyfence/utm/internal/websocket"
	"github.com/skyfence/utm/pkg/logger"
)

// Broadcaster pushes live-feed messages to all connected subscribers
type Broadcaster interface {
	Broadcast(msg *websocket.Message)
}

// Store persists the bounded recent telemetry history
type Store interface {
	Insert(sample *Sample) error
}

// Simulator produces simulated telemetry for active flights. Each flight
// runs as its own cancellable goroutine keyed by flight id; at most one
// simulation per flight can ever run, and a fault in one run never touches
// the others.
type Simulator struct {
	registry    *flight.Registry
	store       Store
	broadcaster Broadcaster
	cfg         config.SimulationConfig
	logger      *logger.Logger

	mu   sync.Mutex
	runs map[string]context.CancelFunc
	wg   sync.WaitGroup
}

// NewSimulator creates a telemetry simulator
func NewSimulator(registry *flight.Registry, store Store, broadcaster Broadcaster, cfg config.SimulationConfig, log *logger.Logger) *Simulator {
	return &Simulator{
		registry:    registry,
		store:       store,
		broadcaster: broadcaster,
		cfg:         cfg,
		logger:      log.Named("simulator"),
		runs:        make(map[string]context.CancelFunc),
	}
}

// Start begins simulating the flight with the given id. The flight must be
// approved; any other status is a state conflict and nothing changes.
// Triggering an already running simulation is likewise a conflict.
func (s *Simulator) Start(flightID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, running := s.runs[flightID]; running {
		return &flight.StateError{FlightID: flightID, From: flight.StatusActive, To: flight.StatusActive}
	}

	f, err := s.registry.Activate(flightID)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.runs[flightID] = cancel

	s.wg.Add(1)
	go s.run(ctx, f)

	s.logger.Info("Simulation started",
		logger.String("flight_id", f.ID),
		logger.String("drone_id", f.DroneID),
		logger.Int("waypoints", len(f.Waypoints)),
	)

	return nil
}

// Stop cancels an in-progress simulation between ticks. The flight is left
// active; it did not arrive.
func (s *Simulator) Stop(flightID string) bool {
	s.mu.Lock()
	cancel, ok := s.runs[flightID]
	s.mu.Unlock()

	if ok {
		cancel()
	}
	return ok
}

// Shutdown cancels all running simulations and waits for them to exit
func (s *Simulator) Shutdown() {
	s.mu.Lock()
	for _, cancel := range s.runs {
		cancel()
	}
	s.mu.Unlock()

	s.wg.Wait()
	s.logger.Info("All simulations stopped")
}

// Running reports whether a simulation is currently active for the flight
func (s *Simulator) Running(flightID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.runs[flightID]
	return ok
}

func (s *Simulator) finish(flightID string) {
	s.mu.Lock()
	if cancel, ok := s.runs[flightID]; ok {
		cancel()
		delete(s.runs, flightID)
	}
	s.mu.Unlock()
	s.wg.Done()
}

// run walks the flight's route, emitting one sample per tick. On any
// internal fault the flight is left active with the fault logged:
// completion implies successful arrival, and a fault is not that.
func (s *Simulator) run(ctx context.Context, f flight.Flight) {
	defer s.finish(f.ID)
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Simulation panicked; flight left active",
				logger.String("flight_id", f.ID),
				logger.Any("panic", r),
			)
		}
	}()

	if err := s.fly(ctx, f); err != nil {
		if ctx.Err() != nil {
			s.logger.Info("Simulation cancelled",
				logger.String("flight_id", f.ID),
			)
		} else {
			s.logger.Error("Simulation failed; flight left active",
				logger.String("flight_id", f.ID),
				logger.Error(err),
			)
		}
		return
	}

	if _, err := s.registry.Complete(f.ID); err != nil {
		s.logger.Error("Failed to complete flight",
			logger.String("flight_id", f.ID),
			logger.Error(err),
		)
		return
	}

	s.logger.Info("Simulation completed",
		logger.String("flight_id", f.ID),
		logger.String("drone_id", f.DroneID),
	)
}

// fly advances along the route at the nominal speed, one tick at a time,
// and always ends with an exact terminal sample at the last waypoint.
func (s *Simulator) fly(ctx context.Context, f flight.Flight) error {
	if len(f.Waypoints) == 0 {
		return fmt.Errorf("flight has no waypoints")
	}

	tick := time.Duration(s.cfg.TickMs) * time.Millisecond
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	// Nominal speed picked once per run from the configured range
	speed := s.cfg.MinSpeedMPS + rand.Float64()*(s.cfg.MaxSpeedMPS-s.cfg.MinSpeedMPS)
	stepMeters := speed * tick.Seconds()

	cur := f.Waypoints[0]
	battery := 100.0

	for i := 1; i < len(f.Waypoints); i++ {
		target := f.Waypoints[i]

		for cur != target {
			if err := s.waitTick(ctx, ticker); err != nil {
				return err
			}

			dist := geofence.Haversine(cur.Lat, cur.Lng, target.Lat, target.Lng)
			if math.IsNaN(dist) || math.IsInf(dist, 0) {
				return fmt.Errorf("malformed waypoint %d: (%f, %f)", i, target.Lat, target.Lng)
			}

			if dist <= stepMeters {
				cur = target
				break
			}

			frac := stepMeters / dist
			cur.Lat += (target.Lat - cur.Lat) * frac
			cur.Lng += (target.Lng - cur.Lng) * frac

			battery = drainBattery(battery, s.cfg.BatteryDrainPct)
			s.emit(f, jitter(cur, s.cfg.PositionJitterDeg), speed, battery)
		}
	}

	// Terminal sample: exact last waypoint position, no jitter. Emitted
	// even when the route collapses to near-zero length.
	if err := s.waitTick(ctx, ticker); err != nil {
		return err
	}
	battery = drainBattery(battery, s.cfg.BatteryDrainPct)
	s.emit(f, f.Waypoints[len(f.Waypoints)-1], 0, battery)

	return nil
}

func (s *Simulator) waitTick(ctx context.Context, ticker *time.Ticker) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-ticker.C:
		return nil
	}
}

func (s *Simulator) emit(f flight.Flight, pos flight.Waypoint, speed, battery float64) {
	sample := &Sample{
		DroneID:   f.DroneID,
		Lat:       pos.Lat,
		Lng:       pos.Lng,
		Altitude:  f.Altitude + (rand.Float64()*2-1)*s.cfg.AltVarianceMeters,
		Speed:     speed,
		Battery:   battery,
		Timestamp: time.Now().UTC(),
	}

	if err := s.store.Insert(sample); err != nil {
		s.logger.Warn("Failed to store telemetry sample",
			logger.String("drone_id", f.DroneID),
			logger.Error(err),
		)
	}

	s.broadcaster.Broadcast(websocket.NewTelemetryMessage(sample))
}

// drainBattery decreases battery toward zero; it never increases
func drainBattery(battery, drainPct float64) float64 {
	drain := drainPct * (0.5 + rand.Float64())
	return math.Max(0, battery-drain)
}

func jitter(p flight.Waypoint, jitterDeg float64) flight.Waypoint {
	if jitterDeg <= 0 {
		return p
	}
	return flight.Waypoint{
		Lat: p.Lat + (rand.Float64()*2-1)*jitterDeg,
		Lng: p.Lng + (rand.Float64()*2-1)*jitterDeg,
	}
}
