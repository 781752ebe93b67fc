package flight

import (
	"encoding/json"
	"time"
)

// Status represents the lifecycle state of a flight
type Status string

const (
	StatusPending   Status = "pending"
	StatusApproved  Status = "approved"
	StatusRejected  Status = "rejected"
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
)

// Terminal reports whether no further transition is allowed out of the status
func (s Status) Terminal() bool {
	return s == StatusRejected || s == StatusCompleted
}

// Waypoint is a single geographic coordinate in an ordered flight route.
// Altitude is a flight-level property, not a per-point one.
type Waypoint struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Plan is an operator-submitted flight plan
type Plan struct {
	DroneID     string     `json:"drone_id"`
	PilotID     string     `json:"pilot_id"`
	StartTime   time.Time  `json:"start_time"`
	EndTime     time.Time  `json:"end_time"`
	Altitude    float64    `json:"altitude"`
	Waypoints   []Waypoint `json:"waypoints"`
	Description string     `json:"description,omitempty"`
}

// decision couples a flight's status with its violation set so that the two
// can never disagree: violations exist only on the rejected branch.
type decision struct {
	status     Status
	violations []string
}

func pendingDecision() decision {
	return decision{status: StatusPending}
}

func rejectedDecision(violations []string) decision {
	v := make([]string, len(violations))
	copy(v, violations)
	return decision{status: StatusRejected, violations: v}
}

// Flight is a submitted plan plus its authorization decision and lifecycle
// state. Status and violations are mutated only through Registry transitions.
type Flight struct {
	ID          string
	DroneID     string
	PilotID     string
	StartTime   time.Time
	EndTime     time.Time
	Altitude    float64
	Waypoints   []Waypoint
	Description string
	CreatedAt   time.Time

	decision decision
}

// Status returns the flight's current status
func (f *Flight) Status() Status {
	return f.decision.status
}

// Violations returns the violated zone names. Non-empty only when the
// flight was rejected.
func (f *Flight) Violations() []string {
	if f.decision.status != StatusRejected {
		return nil
	}
	v := make([]string, len(f.decision.violations))
	copy(v, f.decision.violations)
	return v
}

// snapshot returns a deep copy safe to hand out to concurrent readers
func (f *Flight) snapshot() Flight {
	out := *f
	out.Waypoints = make([]Waypoint, len(f.Waypoints))
	copy(out.Waypoints, f.Waypoints)
	out.decision.violations = make([]string, len(f.decision.violations))
	copy(out.decision.violations, f.decision.violations)
	return out
}

// MarshalJSON emits the external flight shape, including the resolved
// status and, for rejected flights, the violation list.
func (f Flight) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		ID          string     `json:"id"`
		DroneID     string     `json:"drone_id"`
		PilotID     string     `json:"pilot_id"`
		StartTime   time.Time  `json:"start_time"`
		EndTime     time.Time  `json:"end_time"`
		Altitude    float64    `json:"altitude"`
		Waypoints   []Waypoint `json:"waypoints"`
		Description string     `json:"description,omitempty"`
		Status      Status     `json:"status"`
		Violations  []string   `json:"violations,omitempty"`
		CreatedAt   time.Time  `json:"created_at"`
	}{
		ID:          f.ID,
		DroneID:     f.DroneID,
		PilotID:     f.PilotID,
		StartTime:   f.StartTime,
		EndTime:     f.EndTime,
		Altitude:    f.Altitude,
		Waypoints:   f.Waypoints,
		Description: f.Description,
		Status:      f.decision.status,
		Violations:  f.decision.violations,
		CreatedAt:   f.CreatedAt,
	})
}
