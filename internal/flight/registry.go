package flight

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/skyfence/utm/pkg/logger"
)

// Registry owns all flight records and enforces the status state machine:
//
//	pending  -> approved | rejected (authorization decision)
//	approved -> active              (simulation trigger)
//	active   -> completed           (simulation finished)
//
// rejected and completed are terminal. Transitions for a single flight are
// serialized on a per-flight lock; different flights never block each other.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*entry
	logger  *logger.Logger
}

type entry struct {
	mu     sync.Mutex
	flight *Flight
}

// NewRegistry creates an empty flight registry
func NewRegistry(log *logger.Logger) *Registry {
	return &Registry{
		entries: make(map[string]*entry),
		logger:  log.Named("flight-registry"),
	}
}

// Create registers a new flight for the given plan in status pending and
// returns a snapshot of it.
func (r *Registry) Create(plan Plan) Flight {
	f := &Flight{
		ID:          uuid.NewString(),
		DroneID:     plan.DroneID,
		PilotID:     plan.PilotID,
		StartTime:   plan.StartTime,
		EndTime:     plan.EndTime,
		Altitude:    plan.Altitude,
		Waypoints:   append([]Waypoint(nil), plan.Waypoints...),
		Description: plan.Description,
		CreatedAt:   time.Now().UTC(),
		decision:    pendingDecision(),
	}

	r.mu.Lock()
	r.entries[f.ID] = &entry{flight: f}
	r.mu.Unlock()

	r.logger.Debug("Flight created",
		logger.String("flight_id", f.ID),
		logger.String("drone_id", f.DroneID),
		logger.Int("waypoints", len(f.Waypoints)),
	)

	return f.snapshot()
}

// Decide commits the authorization decision for a pending flight: rejected
// with the given violations when non-empty, approved otherwise. Decisions
// for non-pending flights are refused; an approved flight's (empty)
// violation set is never overwritten.
func (r *Registry) Decide(id string, violations []string) (Flight, error) {
	return r.transition(id, func(f *Flight) error {
		if f.decision.status != StatusPending {
			return &StateError{FlightID: id, From: f.decision.status, To: StatusApproved}
		}
		if len(violations) > 0 {
			f.decision = rejectedDecision(violations)
		} else {
			f.decision = decision{status: StatusApproved}
		}
		return nil
	})
}

// Activate moves an approved flight to active. Any other starting status is
// a state conflict.
func (r *Registry) Activate(id string) (Flight, error) {
	return r.transition(id, func(f *Flight) error {
		if f.decision.status != StatusApproved {
			return &StateError{FlightID: id, From: f.decision.status, To: StatusActive}
		}
		f.decision = decision{status: StatusActive}
		return nil
	})
}

// Complete moves an active flight to the terminal completed status
func (r *Registry) Complete(id string) (Flight, error) {
	return r.transition(id, func(f *Flight) error {
		if f.decision.status != StatusActive {
			return &StateError{FlightID: id, From: f.decision.status, To: StatusCompleted}
		}
		f.decision = decision{status: StatusCompleted}
		return nil
	})
}

// Get returns a snapshot of the flight with the given id
func (r *Registry) Get(id string) (Flight, error) {
	e, err := r.lookup(id)
	if err != nil {
		return Flight{}, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return e.flight.snapshot(), nil
}

// List returns snapshots of all flights ordered by creation time
func (r *Registry) List() []Flight {
	r.mu.RLock()
	entries := make([]*entry, 0, len(r.entries))
	for _, e := range r.entries {
		entries = append(entries, e)
	}
	r.mu.RUnlock()

	flights := make([]Flight, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		flights = append(flights, e.flight.snapshot())
		e.mu.Unlock()
	}

	sort.Slice(flights, func(i, j int) bool {
		if flights[i].CreatedAt.Equal(flights[j].CreatedAt) {
			return flights[i].ID < flights[j].ID
		}
		return flights[i].CreatedAt.Before(flights[j].CreatedAt)
	})
	return flights
}

func (r *Registry) lookup(id string) (*entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[id]
	if !ok {
		return nil, ErrNotFound
	}
	return e, nil
}

func (r *Registry) transition(id string, apply func(*Flight) error) (Flight, error) {
	e, err := r.lookup(id)
	if err != nil {
		return Flight{}, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	from := e.flight.decision.status
	if err := apply(e.flight); err != nil {
		return Flight{}, err
	}

	r.logger.Info("Flight status changed",
		logger.String("flight_id", id),
		logger.String("from", string(from)),
		logger.String("to", string(e.flight.decision.status)),
	)

	return e.flight.snapshot(), nil
}
