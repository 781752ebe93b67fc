package geofence

import (
	"math"
	"reflect"
	"sort"
	"testing"

	"github.com/skyfence/utm/internal/flight"
)

var testZones = []Zone{
	{Name: "airport", North: 51.0342, South: 51.0142, East: 71.4842, West: 71.4442},
	{Name: "palace", North: 51.1742, South: 51.1642, East: 71.4142, West: 71.4042},
}

func TestCheckRoute(t *testing.T) {
	tests := []struct {
		name  string
		route []flight.Waypoint
		zones []Zone
		want  []string
	}{
		{
			name:  "empty route",
			route: nil,
			zones: testZones,
			want:  nil,
		},
		{
			name: "route fully outside all zones",
			route: []flight.Waypoint{
				{Lat: 40, Lng: 40},
				{Lat: 41, Lng: 41},
			},
			zones: []Zone{{Name: "z", North: 52, South: 51, East: 72, West: 71}},
			want:  nil,
		},
		{
			name: "segment crossing a zone boundary",
			route: []flight.Waypoint{
				{Lat: 51.0, Lng: 71.35},
				{Lat: 51.3, Lng: 71.55},
			},
			zones: []Zone{{Name: "z", North: 51.2, South: 51.1, East: 71.5, West: 71.4}},
			want:  []string{"z"},
		},
		{
			name: "waypoint inside a zone",
			route: []flight.Waypoint{
				{Lat: 51.02, Lng: 71.46},
				{Lat: 51.05, Lng: 71.50},
			},
			zones: testZones,
			want:  []string{"airport"},
		},
		{
			name: "waypoint exactly on zone boundary counts as inside",
			route: []flight.Waypoint{
				{Lat: 51.0342, Lng: 71.4442},
				{Lat: 51.05, Lng: 71.40},
			},
			zones: testZones,
			want:  []string{"airport"},
		},
		{
			name: "segment passing through zone with both endpoints outside",
			route: []flight.Waypoint{
				{Lat: 51.0242, Lng: 71.40},
				{Lat: 51.0242, Lng: 71.52},
			},
			zones: testZones,
			want:  []string{"airport"},
		},
		{
			name: "segment skimming past the corner misses",
			route: []flight.Waypoint{
				{Lat: 51.04, Lng: 71.44},
				{Lat: 51.05, Lng: 71.49},
			},
			zones: testZones,
			want:  nil,
		},
		{
			name: "duplicate consecutive waypoints inside zone",
			route: []flight.Waypoint{
				{Lat: 51.02, Lng: 71.46},
				{Lat: 51.02, Lng: 71.46},
			},
			zones: testZones,
			want:  []string{"airport"},
		},
		{
			name: "single waypoint outside all zones",
			route: []flight.Waypoint{
				{Lat: 10, Lng: 10},
			},
			zones: testZones,
			want:  nil,
		},
		{
			name: "route crossing multiple zones flags each once",
			route: []flight.Waypoint{
				{Lat: 51.0242, Lng: 71.46},
				{Lat: 51.1692, Lng: 71.41},
				{Lat: 51.0242, Lng: 71.46},
			},
			zones: testZones,
			want:  []string{"airport", "palace"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CheckRoute(tt.route, tt.zones)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("CheckRoute() = %v, want %v", got, tt.want)
			}
		})
	}
}

// Reversing the route must never change which zones are flagged: direction
// of travel is irrelevant to the intersection test.
func TestCheckRouteDirectionSymmetry(t *testing.T) {
	routes := [][]flight.Waypoint{
		{{Lat: 51.0, Lng: 71.35}, {Lat: 51.3, Lng: 71.55}},
		{{Lat: 51.0242, Lng: 71.40}, {Lat: 51.0242, Lng: 71.52}},
		{{Lat: 40, Lng: 40}, {Lat: 41, Lng: 41}},
		{{Lat: 51.0242, Lng: 71.46}, {Lat: 51.1692, Lng: 71.41}, {Lat: 51.2, Lng: 71.3}},
	}

	for _, route := range routes {
		forward := CheckRoute(route, testZones)

		reversed := make([]flight.Waypoint, len(route))
		for i, wp := range route {
			reversed[len(route)-1-i] = wp
		}
		backward := CheckRoute(reversed, testZones)

		sort.Strings(forward)
		sort.Strings(backward)
		if !reflect.DeepEqual(forward, backward) {
			t.Errorf("route %v: forward violations %v != backward violations %v",
				route, forward, backward)
		}
	}
}

func TestEngineCheckRoute(t *testing.T) {
	engine := &Engine{zones: testZones}

	got := engine.CheckRoute([]flight.Waypoint{
		{Lat: 51.02, Lng: 71.46},
		{Lat: 51.05, Lng: 71.50},
	})
	want := []string{"airport"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Engine.CheckRoute() = %v, want %v", got, want)
	}

	if n := len(engine.Zones()); n != 2 {
		t.Errorf("Zones() returned %d zones, want 2", n)
	}
}

func TestHaversine(t *testing.T) {
	tests := []struct {
		name                   string
		lat1, lng1, lat2, lng2 float64
		want                   float64 // meters
		tolerance              float64
	}{
		{
			name: "same point",
			lat1: 51.1694, lng1: 71.4491,
			lat2: 51.1694, lng2: 71.4491,
			want: 0, tolerance: 0.001,
		},
		{
			name: "one degree of latitude",
			lat1: 51.0, lng1: 71.0,
			lat2: 52.0, lng2: 71.0,
			want: 111195, tolerance: 100,
		},
		{
			name: "short hop across Astana",
			lat1: 51.1694, lng1: 71.4491,
			lat2: 51.1605, lng2: 71.4704,
			want: 1780, tolerance: 50,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Haversine(tt.lat1, tt.lng1, tt.lat2, tt.lng2)
			if math.Abs(got-tt.want) > tt.tolerance {
				t.Errorf("Haversine() = %v, want %v ± %v", got, tt.want, tt.tolerance)
			}
		})
	}
}
