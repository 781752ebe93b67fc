package sqlite

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/skyfence/utm/internal/fleet"
	"github.com/skyfence/utm/pkg/logger"
)

// FleetStorage persists pilot and drone records
type FleetStorage struct {
	db     *sql.DB
	logger *logger.Logger
}

// NewFleetStorage creates a new SQLite fleet storage
func NewFleetStorage(db *sql.DB, log *logger.Logger) (*FleetStorage, error) {
	storage := &FleetStorage{
		db:     db,
		logger: log.Named("sqlite-fleet"),
	}

	if err := storage.initDB(); err != nil {
		return nil, fmt.Errorf("failed to initialize fleet storage: %w", err)
	}

	return storage, nil
}

func (s *FleetStorage) initDB() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS pilots (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			phone TEXT,
			email TEXT,
			created_at TIMESTAMP NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create pilots table: %w", err)
	}

	_, err = s.db.Exec(`
		CREATE TABLE IF NOT EXISTS drones (
			id TEXT PRIMARY KEY,
			brand TEXT,
			model TEXT,
			serial_number TEXT NOT NULL,
			pilot_id TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL,
			FOREIGN KEY (pilot_id) REFERENCES pilots(id)
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create drones table: %w", err)
	}

	indexes := []string{
		`CREATE INDEX IF NOT EXISTS idx_drones_pilot_id ON drones(pilot_id)`,
		`CREATE INDEX IF NOT EXISTS idx_drones_serial ON drones(serial_number)`,
	}
	for _, indexSQL := range indexes {
		if _, err := s.db.Exec(indexSQL); err != nil {
			return fmt.Errorf("failed to create fleet index: %w", err)
		}
	}

	return nil
}

// InsertPilot stores a pilot record
func (s *FleetStorage) InsertPilot(pilot *fleet.Pilot) error {
	_, err := s.db.Exec(
		`INSERT INTO pilots (id, name, phone, email, created_at) VALUES (?, ?, ?, ?, ?)`,
		pilot.ID,
		pilot.Name,
		pilot.Phone,
		pilot.Email,
		pilot.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("failed to insert pilot: %w", err)
	}
	return nil
}

// GetPilot returns the pilot with the given id
func (s *FleetStorage) GetPilot(id string) (*fleet.Pilot, error) {
	row := s.db.QueryRow(
		`SELECT id, name, phone, email, created_at FROM pilots WHERE id = ?`, id,
	)

	var pilot fleet.Pilot
	var createdAt string
	if err := row.Scan(&pilot.ID, &pilot.Name, &pilot.Phone, &pilot.Email, &createdAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, fleet.ErrPilotNotFound
		}
		return nil, fmt.Errorf("failed to scan pilot: %w", err)
	}

	var err error
	pilot.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return nil, fmt.Errorf("failed to parse pilot created_at: %w", err)
	}

	return &pilot, nil
}

// ListPilots returns all pilots ordered by registration time
func (s *FleetStorage) ListPilots() ([]*fleet.Pilot, error) {
	rows, err := s.db.Query(
		`SELECT id, name, phone, email, created_at FROM pilots ORDER BY created_at`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query pilots: %w", err)
	}
	defer rows.Close()

	var pilots []*fleet.Pilot
	for rows.Next() {
		var pilot fleet.Pilot
		var createdAt string
		if err := rows.Scan(&pilot.ID, &pilot.Name, &pilot.Phone, &pilot.Email, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan pilot: %w", err)
		}
		pilot.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt)
		if err != nil {
			return nil, fmt.Errorf("failed to parse pilot created_at: %w", err)
		}
		pilots = append(pilots, &pilot)
	}

	return pilots, rows.Err()
}

// InsertDrone stores a drone record
func (s *FleetStorage) InsertDrone(drone *fleet.Drone) error {
	_, err := s.db.Exec(
		`INSERT INTO drones (id, brand, model, serial_number, pilot_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		drone.ID,
		drone.Brand,
		drone.Model,
		drone.SerialNumber,
		drone.PilotID,
		drone.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("failed to insert drone: %w", err)
	}
	return nil
}

// GetDrone returns the drone with the given id
func (s *FleetStorage) GetDrone(id string) (*fleet.Drone, error) {
	row := s.db.QueryRow(
		`SELECT id, brand, model, serial_number, pilot_id, created_at FROM drones WHERE id = ?`, id,
	)

	var drone fleet.Drone
	var createdAt string
	if err := row.Scan(&drone.ID, &drone.Brand, &drone.Model, &drone.SerialNumber, &drone.PilotID, &createdAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, fleet.ErrDroneNotFound
		}
		return nil, fmt.Errorf("failed to scan drone: %w", err)
	}

	var err error
	drone.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return nil, fmt.Errorf("failed to parse drone created_at: %w", err)
	}

	return &drone, nil
}

// ListDrones returns all drones ordered by registration time
func (s *FleetStorage) ListDrones() ([]*fleet.Drone, error) {
	rows, err := s.db.Query(
		`SELECT id, brand, model, serial_number, pilot_id, created_at FROM drones ORDER BY created_at`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query drones: %w", err)
	}
	defer rows.Close()

	var drones []*fleet.Drone
	for rows.Next() {
		var drone fleet.Drone
		var createdAt string
		if err := rows.Scan(&drone.ID, &drone.Brand, &drone.Model, &drone.SerialNumber, &drone.PilotID, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan drone: %w", err)
		}
		drone.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt)
		if err != nil {
			return nil, fmt.Errorf("failed to parse drone created_at: %w", err)
		}
		drones = append(drones, &drone)
	}

	return drones, rows.Err()
}
