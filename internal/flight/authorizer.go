package flight

import (
	"fmt"

	"go.uber.org/multierr"

	"github.com/skyfence/utm/internal/config"
	"github.com/skyfence/utm/pkg/logger"
)

// GeofenceChecker decides which restricted zones a route intersects.
// The check must be pure: same route, same result.
type GeofenceChecker interface {
	CheckRoute(route []Waypoint) []string
}

// FleetResolver resolves drone and pilot references from a flight plan
type FleetResolver interface {
	DroneExists(id string) (bool, error)
	PilotExists(id string) (bool, error)
}

// Authorizer validates incoming flight plans, runs the geofence check and
// commits the accept/reject decision to the registry. The zone set it
// checks against is the snapshot loaded at startup; decisions are made
// once at submission time and never re-evaluated.
type Authorizer struct {
	registry *Registry
	geofence GeofenceChecker
	fleet    FleetResolver
	bounds   config.FlightsConfig
	logger   *logger.Logger
}

// NewAuthorizer creates a flight authorizer
func NewAuthorizer(registry *Registry, geofence GeofenceChecker, fleet FleetResolver, bounds config.FlightsConfig, log *logger.Logger) *Authorizer {
	return &Authorizer{
		registry: registry,
		geofence: geofence,
		fleet:    fleet,
		bounds:   bounds,
		logger:   log.Named("flight-authorizer"),
	}
}

// Submit validates the plan, creates the flight and commits the
// authorization decision. Validation failures return a *ValidationError
// and no flight is created. A route intersecting restricted zones is not
// an error: the flight comes back rejected with its violation list.
func (a *Authorizer) Submit(plan Plan) (Flight, error) {
	if err := a.validate(plan); err != nil {
		return Flight{}, &ValidationError{Err: err}
	}

	created := a.registry.Create(plan)

	violations := a.geofence.CheckRoute(plan.Waypoints)

	decided, err := a.registry.Decide(created.ID, violations)
	if err != nil {
		// Nothing else can touch a flight this fresh; a conflict here is a bug.
		return Flight{}, fmt.Errorf("failed to commit authorization decision: %w", err)
	}

	if decided.Status() == StatusRejected {
		a.logger.Info("Flight rejected",
			logger.String("flight_id", decided.ID),
			logger.String("drone_id", decided.DroneID),
			logger.Strings("violations", decided.Violations()),
		)
	} else {
		a.logger.Info("Flight approved",
			logger.String("flight_id", decided.ID),
			logger.String("drone_id", decided.DroneID),
		)
	}

	return decided, nil
}

func (a *Authorizer) validate(plan Plan) error {
	var err error

	if len(plan.Waypoints) < 2 {
		err = multierr.Append(err, fmt.Errorf("route must contain at least 2 waypoints, got %d", len(plan.Waypoints)))
	}
	if !plan.StartTime.Before(plan.EndTime) {
		err = multierr.Append(err, fmt.Errorf("start time must be before end time"))
	}
	if plan.Altitude < a.bounds.MinAltitudeMeters || plan.Altitude > a.bounds.MaxAltitudeMeters {
		err = multierr.Append(err, fmt.Errorf("altitude %.1fm outside allowed range [%.1f, %.1f]",
			plan.Altitude, a.bounds.MinAltitudeMeters, a.bounds.MaxAltitudeMeters))
	}

	if plan.DroneID == "" {
		err = multierr.Append(err, fmt.Errorf("drone id is required"))
	} else if ok, lookupErr := a.fleet.DroneExists(plan.DroneID); lookupErr != nil {
		err = multierr.Append(err, fmt.Errorf("failed to resolve drone %s: %w", plan.DroneID, lookupErr))
	} else if !ok {
		err = multierr.Append(err, fmt.Errorf("unknown drone: %s", plan.DroneID))
	}

	if plan.PilotID == "" {
		err = multierr.Append(err, fmt.Errorf("pilot id is required"))
	} else if ok, lookupErr := a.fleet.PilotExists(plan.PilotID); lookupErr != nil {
		err = multierr.Append(err, fmt.Errorf("failed to resolve pilot %s: %w", plan.PilotID, lookupErr))
	} else if !ok {
		err = multierr.Append(err, fmt.Errorf("unknown pilot: %s", plan.PilotID))
	}

	return err
}
