package fleet

import (
	"errors"
	"time"
)

// ErrPilotNotFound is returned when a pilot reference cannot be resolved
var ErrPilotNotFound = errors.New("pilot not found")

// ErrDroneNotFound is returned when a drone reference cannot be resolved
var ErrDroneNotFound = errors.New("drone not found")

// ErrInvalidRequest marks registration payloads that fail validation
var ErrInvalidRequest = errors.New("invalid request")

// Pilot is a registered drone operator
type Pilot struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Phone     string    `json:"phone"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
}

// Drone is a registered aircraft tied to its owning pilot
type Drone struct {
	ID           string    `json:"id"`
	Brand        string    `json:"brand"`
	Model        string    `json:"model"`
	SerialNumber string    `json:"serial_number"`
	PilotID      string    `json:"pilot_id"`
	CreatedAt    time.Time `json:"created_at"`
}

// NewPilotRequest is the payload for registering a pilot
type NewPilotRequest struct {
	Name  string `json:"name"`
	Phone string `json:"phone"`
	Email string `json:"email"`
}

// NewDroneRequest is the payload for registering a drone
type NewDroneRequest struct {
	Brand        string `json:"brand"`
	Model        string `json:"model"`
	SerialNumber string `json:"serial_number"`
	PilotID      string `json:"pilot_id"`
}
