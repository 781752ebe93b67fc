package fleet

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/skyfence/utm/pkg/logger"
)

// Storage defines the persistence interface for fleet records
type Storage interface {
	InsertPilot(pilot *Pilot) error
	GetPilot(id string) (*Pilot, error)
	ListPilots() ([]*Pilot, error)
	InsertDrone(drone *Drone) error
	GetDrone(id string) (*Drone, error)
	ListDrones() ([]*Drone, error)
}

// Service manages the pilot and drone registry. It also acts as the
// reference resolver for flight authorization.
type Service struct {
	storage Storage
	logger  *logger.Logger
}

// NewService creates a fleet service over the given storage
func NewService(storage Storage, log *logger.Logger) *Service {
	return &Service{
		storage: storage,
		logger:  log.Named("fleet"),
	}
}

// CreatePilot registers a new pilot
func (s *Service) CreatePilot(req NewPilotRequest) (*Pilot, error) {
	if req.Name == "" {
		return nil, fmt.Errorf("%w: pilot name is required", ErrInvalidRequest)
	}

	pilot := &Pilot{
		ID:        uuid.NewString(),
		Name:      req.Name,
		Phone:     req.Phone,
		Email:     req.Email,
		CreatedAt: time.Now().UTC(),
	}

	if err := s.storage.InsertPilot(pilot); err != nil {
		return nil, fmt.Errorf("failed to store pilot: %w", err)
	}

	s.logger.Info("Pilot registered",
		logger.String("pilot_id", pilot.ID),
		logger.String("name", pilot.Name),
	)
	return pilot, nil
}

// CreateDrone registers a new drone. The owning pilot must already exist.
func (s *Service) CreateDrone(req NewDroneRequest) (*Drone, error) {
	if req.SerialNumber == "" {
		return nil, fmt.Errorf("%w: drone serial number is required", ErrInvalidRequest)
	}

	if _, err := s.storage.GetPilot(req.PilotID); err != nil {
		if errors.Is(err, ErrPilotNotFound) {
			return nil, ErrPilotNotFound
		}
		return nil, fmt.Errorf("failed to resolve pilot %s: %w", req.PilotID, err)
	}

	drone := &Drone{
		ID:           uuid.NewString(),
		Brand:        req.Brand,
		Model:        req.Model,
		SerialNumber: req.SerialNumber,
		PilotID:      req.PilotID,
		CreatedAt:    time.Now().UTC(),
	}

	if err := s.storage.InsertDrone(drone); err != nil {
		return nil, fmt.Errorf("failed to store drone: %w", err)
	}

	s.logger.Info("Drone registered",
		logger.String("drone_id", drone.ID),
		logger.String("serial_number", drone.SerialNumber),
		logger.String("pilot_id", drone.PilotID),
	)
	return drone, nil
}

// GetPilot returns a pilot by id
func (s *Service) GetPilot(id string) (*Pilot, error) {
	return s.storage.GetPilot(id)
}

// ListPilots returns all registered pilots
func (s *Service) ListPilots() ([]*Pilot, error) {
	return s.storage.ListPilots()
}

// GetDrone returns a drone by id
func (s *Service) GetDrone(id string) (*Drone, error) {
	return s.storage.GetDrone(id)
}

// ListDrones returns all registered drones
func (s *Service) ListDrones() ([]*Drone, error) {
	return s.storage.ListDrones()
}

// PilotExists reports whether the pilot reference resolves
func (s *Service) PilotExists(id string) (bool, error) {
	_, err := s.storage.GetPilot(id)
	if errors.Is(err, ErrPilotNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// DroneExists reports whether the drone reference resolves
func (s *Service) DroneExists(id string) (bool, error) {
	_, err := s.storage.GetDrone(id)
	if errors.Is(err, ErrDroneNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
