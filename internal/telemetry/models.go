package telemetry

import "time"

// Sample is a single simulated telemetry reading for an airborne drone.
// Samples are ephemeral: broadcast live and kept only in a bounded
// recent-history window per drone.
type Sample struct {
	DroneID   string    `json:"drone_id"`
	Lat       float64   `json:"lat"`
	Lng       float64   `json:"lng"`
	Altitude  float64   `json:"altitude"`
	Speed     float64   `json:"speed"`
	Battery   float64   `json:"battery"`
	Timestamp time.Time `json:"timestamp"`
}
