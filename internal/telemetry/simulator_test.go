package telemetry

import (
	"fmt"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/skyfence/utm/internal/config"
	"github.com/skyfence/utm/internal/flight"
	"github.com/skyfence/utm/internal/websocket"
	"github.com/skyfence/utm/pkg/logger"
)

// recordingBroadcaster captures broadcast samples grouped by drone
type recordingBroadcaster struct {
	mu      sync.Mutex
	byDrone map[string][]*Sample
}

func newRecordingBroadcaster() *recordingBroadcaster {
	return &recordingBroadcaster{byDrone: make(map[string][]*Sample)}
}

func (b *recordingBroadcaster) Broadcast(msg *websocket.Message) {
	sample, ok := msg.Data.(*Sample)
	if !ok {
		return
	}
	b.mu.Lock()
	b.byDrone[sample.DroneID] = append(b.byDrone[sample.DroneID], sample)
	b.mu.Unlock()
}

func (b *recordingBroadcaster) samples(droneID string) []*Sample {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]*Sample, len(b.byDrone[droneID]))
	copy(out, b.byDrone[droneID])
	return out
}

type nopStore struct{}

func (nopStore) Insert(*Sample) error { return nil }

func testSimConfig() config.SimulationConfig {
	return config.SimulationConfig{
		TickMs:            1,
		MinSpeedMPS:       400,
		MaxSpeedMPS:       500,
		BatteryDrainPct:   0.2,
		PositionJitterDeg: 0.00001,
		AltVarianceMeters: 2,
	}
}

// shortRoute is a route a few ticks long at the test speed
func shortRoute() []flight.Waypoint {
	return []flight.Waypoint{
		{Lat: 51.1694, Lng: 71.4491},
		{Lat: 51.1700, Lng: 71.4500},
		{Lat: 51.1710, Lng: 71.4510},
	}
}

func approvedFlight(t *testing.T, registry *flight.Registry, droneID string, route []flight.Waypoint) flight.Flight {
	t.Helper()

	created := registry.Create(flight.Plan{
		DroneID:   droneID,
		PilotID:   "pilot-1",
		StartTime: time.Now(),
		EndTime:   time.Now().Add(time.Hour),
		Altitude:  50,
		Waypoints: route,
	})
	decided, err := registry.Decide(created.ID, nil)
	if err != nil {
		t.Fatalf("Decide() error: %v", err)
	}
	return decided
}

func waitForStatus(t *testing.T, registry *flight.Registry, id string, want flight.Status) flight.Flight {
	t.Helper()

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		f, err := registry.Get(id)
		if err != nil {
			t.Fatalf("Get() error: %v", err)
		}
		if f.Status() == want {
			return f
		}
		time.Sleep(5 * time.Millisecond)
	}
	f, _ := registry.Get(id)
	t.Fatalf("flight %s never reached status %s (stuck at %s)", id, want, f.Status())
	return flight.Flight{}
}

func TestSimulationProducesOrderedSamplesAndCompletes(t *testing.T) {
	registry := flight.NewRegistry(logger.NewNop())
	broadcaster := newRecordingBroadcaster()
	sim := NewSimulator(registry, nopStore{}, broadcaster, testSimConfig(), logger.NewNop())

	route := shortRoute()
	f := approvedFlight(t, registry, "drone-1", route)

	if err := sim.Start(f.ID); err != nil {
		t.Fatalf("Start() error: %v", err)
	}

	waitForStatus(t, registry, f.ID, flight.StatusCompleted)
	sim.Shutdown()

	samples := broadcaster.samples("drone-1")
	if len(samples) == 0 {
		t.Fatal("simulation produced no samples")
	}

	last := route[len(route)-1]
	final := samples[len(samples)-1]
	if final.Lat != last.Lat || final.Lng != last.Lng {
		t.Errorf("final sample position = (%f, %f), want last waypoint (%f, %f)",
			final.Lat, final.Lng, last.Lat, last.Lng)
	}

	for i := 1; i < len(samples); i++ {
		if samples[i].Timestamp.Before(samples[i-1].Timestamp) {
			t.Errorf("sample %d timestamp %v precedes sample %d timestamp %v",
				i, samples[i].Timestamp, i-1, samples[i-1].Timestamp)
		}
		if samples[i].Battery > samples[i-1].Battery {
			t.Errorf("battery increased from %f to %f at sample %d",
				samples[i-1].Battery, samples[i].Battery, i)
		}
	}
}

func TestSecondTriggerIsStateConflict(t *testing.T) {
	registry := flight.NewRegistry(logger.NewNop())
	broadcaster := newRecordingBroadcaster()

	// Long route so the first run is still in progress on the second trigger
	route := []flight.Waypoint{
		{Lat: 51.0, Lng: 71.0},
		{Lat: 52.0, Lng: 72.0},
	}
	cfg := testSimConfig()
	cfg.MinSpeedMPS = 1
	cfg.MaxSpeedMPS = 2
	sim := NewSimulator(registry, nopStore{}, broadcaster, cfg, logger.NewNop())

	f := approvedFlight(t, registry, "drone-2", route)

	if err := sim.Start(f.ID); err != nil {
		t.Fatalf("first Start() error: %v", err)
	}

	err := sim.Start(f.ID)
	if err == nil {
		t.Fatal("second Start() succeeded, want state conflict")
	}
	if !flight.IsStateError(err) {
		t.Errorf("second Start() error = %v, want *flight.StateError", err)
	}

	got, _ := registry.Get(f.ID)
	if got.Status() != flight.StatusActive {
		t.Errorf("status after double trigger = %s, want active", got.Status())
	}

	sim.Shutdown()
}

func TestStartRejectsNonApprovedFlight(t *testing.T) {
	registry := flight.NewRegistry(logger.NewNop())
	sim := NewSimulator(registry, nopStore{}, newRecordingBroadcaster(), testSimConfig(), logger.NewNop())

	created := registry.Create(flight.Plan{
		DroneID:   "drone-3",
		PilotID:   "pilot-1",
		StartTime: time.Now(),
		EndTime:   time.Now().Add(time.Hour),
		Altitude:  50,
		Waypoints: shortRoute(),
	})

	// Still pending: trigger must fail and mutate nothing
	err := sim.Start(created.ID)
	if !flight.IsStateError(err) {
		t.Errorf("Start() on pending flight = %v, want *flight.StateError", err)
	}

	got, _ := registry.Get(created.ID)
	if got.Status() != flight.StatusPending {
		t.Errorf("status = %s after failed trigger, want pending", got.Status())
	}
}

func TestZeroLengthRouteEmitsTerminalSample(t *testing.T) {
	registry := flight.NewRegistry(logger.NewNop())
	broadcaster := newRecordingBroadcaster()
	sim := NewSimulator(registry, nopStore{}, broadcaster, testSimConfig(), logger.NewNop())

	wp := flight.Waypoint{Lat: 51.1694, Lng: 71.4491}
	f := approvedFlight(t, registry, "drone-4", []flight.Waypoint{wp, wp})

	if err := sim.Start(f.ID); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	waitForStatus(t, registry, f.ID, flight.StatusCompleted)
	sim.Shutdown()

	samples := broadcaster.samples("drone-4")
	if len(samples) == 0 {
		t.Fatal("zero-length route produced no terminal sample")
	}
	final := samples[len(samples)-1]
	if final.Lat != wp.Lat || final.Lng != wp.Lng {
		t.Errorf("terminal sample position = (%f, %f), want (%f, %f)",
			final.Lat, final.Lng, wp.Lat, wp.Lng)
	}
}

func TestMalformedWaypointLeavesFlightActive(t *testing.T) {
	registry := flight.NewRegistry(logger.NewNop())
	broadcaster := newRecordingBroadcaster()
	sim := NewSimulator(registry, nopStore{}, broadcaster, testSimConfig(), logger.NewNop())

	// NaN coordinates surface as a simulation fault at runtime
	badRoute := []flight.Waypoint{
		{Lat: 51.0, Lng: 71.0},
		{Lat: math.NaN(), Lng: 71.1},
	}
	bad := approvedFlight(t, registry, "drone-bad", badRoute)

	// An unrelated healthy flight must be unaffected
	good := approvedFlight(t, registry, "drone-good", shortRoute())

	if err := sim.Start(bad.ID); err != nil {
		t.Fatalf("Start(bad) error: %v", err)
	}
	if err := sim.Start(good.ID); err != nil {
		t.Fatalf("Start(good) error: %v", err)
	}

	waitForStatus(t, registry, good.ID, flight.StatusCompleted)

	// Wait for the faulted run to unwind
	deadline := time.Now().Add(5 * time.Second)
	for sim.Running(bad.ID) && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	sim.Shutdown()

	badFlight, _ := registry.Get(bad.ID)
	if badFlight.Status() != flight.StatusActive {
		t.Errorf("faulted flight status = %s, want active (not force-completed)", badFlight.Status())
	}
}

func TestStopCancelsSimulationBetweenTicks(t *testing.T) {
	registry := flight.NewRegistry(logger.NewNop())
	broadcaster := newRecordingBroadcaster()

	cfg := testSimConfig()
	cfg.MinSpeedMPS = 1
	cfg.MaxSpeedMPS = 2
	sim := NewSimulator(registry, nopStore{}, broadcaster, cfg, logger.NewNop())

	f := approvedFlight(t, registry, "drone-5", []flight.Waypoint{
		{Lat: 51.0, Lng: 71.0},
		{Lat: 52.0, Lng: 72.0},
	})

	if err := sim.Start(f.ID); err != nil {
		t.Fatalf("Start() error: %v", err)
	}

	if !sim.Stop(f.ID) {
		t.Fatal("Stop() found no running simulation")
	}

	deadline := time.Now().Add(5 * time.Second)
	for sim.Running(f.ID) && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if sim.Running(f.ID) {
		t.Fatal("simulation still running after Stop()")
	}

	// Cancelled, not arrived: the flight stays active
	got, _ := registry.Get(f.ID)
	if got.Status() != flight.StatusActive {
		t.Errorf("status after cancel = %s, want active", got.Status())
	}
}

func TestConcurrentFlightsPreservePerDroneOrdering(t *testing.T) {
	registry := flight.NewRegistry(logger.NewNop())
	broadcaster := newRecordingBroadcaster()
	sim := NewSimulator(registry, nopStore{}, broadcaster, testSimConfig(), logger.NewNop())

	const flights = 20
	ids := make([]string, flights)
	for i := 0; i < flights; i++ {
		droneID := fmt.Sprintf("drone-%03d", i)
		f := approvedFlight(t, registry, droneID, shortRoute())
		ids[i] = f.ID
		if err := sim.Start(f.ID); err != nil {
			t.Fatalf("Start(%s) error: %v", droneID, err)
		}
	}

	for _, id := range ids {
		waitForStatus(t, registry, id, flight.StatusCompleted)
	}
	sim.Shutdown()

	for i := 0; i < flights; i++ {
		droneID := fmt.Sprintf("drone-%03d", i)
		samples := broadcaster.samples(droneID)
		if len(samples) == 0 {
			t.Errorf("%s produced no samples", droneID)
			continue
		}
		for j := 1; j < len(samples); j++ {
			if samples[j].Timestamp.Before(samples[j-1].Timestamp) {
				t.Errorf("%s: sample %d out of order", droneID, j)
			}
			if samples[j].Battery > samples[j-1].Battery {
				t.Errorf("%s: battery increased at sample %d", droneID, j)
			}
		}
	}
}
