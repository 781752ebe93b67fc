package geofence

import (
	"github.com/skyfence/utm/internal/config"
	"github.com/skyfence/utm/internal/flight"
)

// Zone is a restricted airspace volume projected to an axis-aligned
// lat/lng rectangle. Zones are immutable once loaded.
type Zone struct {
	Name  string  `json:"name"`
	North float64 `json:"north"`
	South float64 `json:"south"`
	East  float64 `json:"east"`
	West  float64 `json:"west"`
}

// contains reports whether the point lies inside the rectangle. Bounds are
// inclusive: the boundary counts as inside.
func (z Zone) contains(p flight.Waypoint) bool {
	return p.Lat >= z.South && p.Lat <= z.North &&
		p.Lng >= z.West && p.Lng <= z.East
}

// Engine checks flight routes against the process-wide restricted zone set.
// It is stateless apart from the immutable zone snapshot and is safe for
// concurrent use without locking.
type Engine struct {
	zones []Zone
}

// NewEngine creates an engine over the configured zone set
func NewEngine(cfg config.AirspaceConfig) *Engine {
	zones := make([]Zone, 0, len(cfg.Zones))
	for _, z := range cfg.Zones {
		zones = append(zones, Zone{
			Name:  z.Name,
			North: z.North,
			South: z.South,
			East:  z.East,
			West:  z.West,
		})
	}
	return &Engine{zones: zones}
}

// Zones returns a copy of the configured zone set
func (e *Engine) Zones() []Zone {
	out := make([]Zone, len(e.zones))
	copy(out, e.zones)
	return out
}

// CheckRoute returns the names of all zones intersected by any segment of
// the route. The result does not depend on the direction of travel.
func (e *Engine) CheckRoute(route []flight.Waypoint) []string {
	return CheckRoute(route, e.zones)
}

// CheckRoute tests every consecutive waypoint pair against every zone and
// returns the distinct names of the intersected zones, in zone order. A
// single waypoint is treated as a degenerate route of one point.
func CheckRoute(route []flight.Waypoint, zones []Zone) []string {
	if len(route) == 0 {
		return nil
	}

	var violated []string
	for _, zone := range zones {
		if routeIntersects(route, zone) {
			violated = append(violated, zone.Name)
		}
	}
	return violated
}

func routeIntersects(route []flight.Waypoint, zone Zone) bool {
	if len(route) == 1 {
		return zone.contains(route[0])
	}
	for i := 0; i < len(route)-1; i++ {
		if segmentIntersects(route[i], route[i+1], zone) {
			return true
		}
	}
	return false
}

// segmentIntersects tests a single route segment against a zone rectangle
// using a Liang-Barsky parametric clip. The segment is parameterized as
// p(t) = a + t*(b-a) for t in [0,1] and clipped against the rectangle's
// four half-planes; a non-empty surviving interval means an intersection.
func segmentIntersects(a, b flight.Waypoint, zone Zone) bool {
	// Degenerate segment: duplicate consecutive waypoints
	if a == b {
		return zone.contains(a)
	}

	dLat := b.Lat - a.Lat
	dLng := b.Lng - a.Lng

	tEnter, tExit := 0.0, 1.0

	clips := [4]struct{ p, q float64 }{
		{-dLat, a.Lat - zone.South}, // lat >= south
		{dLat, zone.North - a.Lat},  // lat <= north
		{-dLng, a.Lng - zone.West},  // lng >= west
		{dLng, zone.East - a.Lng},   // lng <= east
	}

	for _, c := range clips {
		if c.p == 0 {
			// Segment parallel to this edge: outside the half-plane means
			// no intersection at all
			if c.q < 0 {
				return false
			}
			continue
		}
		t := c.q / c.p
		if c.p < 0 {
			if t > tExit {
				return false
			}
			if t > tEnter {
				tEnter = t
			}
		} else {
			if t < tEnter {
				return false
			}
			if t < tExit {
				tExit = t
			}
		}
	}

	return tEnter <= tExit
}
