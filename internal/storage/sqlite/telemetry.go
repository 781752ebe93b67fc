package sqlite

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/skyfence/utm/internal/telemetry"
	"github.com/skyfence/utm/pkg/logger"
)

// TelemetryStorage keeps a bounded recent-history window of telemetry
// samples per drone. Older samples are pruned on insert.
type TelemetryStorage struct {
	db          *sql.DB
	historySize int
	logger      *logger.Logger
}

// NewTelemetryStorage creates a new SQLite telemetry storage keeping at
// most historySize samples per drone
func NewTelemetryStorage(db *sql.DB, historySize int, log *logger.Logger) (*TelemetryStorage, error) {
	storage := &TelemetryStorage{
		db:          db,
		historySize: historySize,
		logger:      log.Named("sqlite-telemetry"),
	}

	if err := storage.initDB(); err != nil {
		return nil, fmt.Errorf("failed to initialize telemetry storage: %w", err)
	}

	return storage, nil
}

func (s *TelemetryStorage) initDB() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS telemetry (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			drone_id TEXT NOT NULL,
			lat REAL NOT NULL,
			lng REAL NOT NULL,
			altitude REAL NOT NULL,
			speed REAL NOT NULL,
			battery REAL NOT NULL,
			timestamp TIMESTAMP NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create telemetry table: %w", err)
	}

	indexes := []string{
		`CREATE INDEX IF NOT EXISTS idx_telemetry_drone_id ON telemetry(drone_id)`,
		`CREATE INDEX IF NOT EXISTS idx_telemetry_timestamp ON telemetry(timestamp)`,
	}
	for _, indexSQL := range indexes {
		if _, err := s.db.Exec(indexSQL); err != nil {
			return fmt.Errorf("failed to create telemetry index: %w", err)
		}
	}

	return nil
}

// Insert stores a sample and prunes the drone's history down to the
// configured window
func (s *TelemetryStorage) Insert(sample *telemetry.Sample) error {
	_, err := s.db.Exec(
		`INSERT INTO telemetry (drone_id, lat, lng, altitude, speed, battery, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		sample.DroneID,
		sample.Lat,
		sample.Lng,
		sample.Altitude,
		sample.Speed,
		sample.Battery,
		sample.Timestamp.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("failed to insert telemetry sample: %w", err)
	}

	// Keep only the most recent window for this drone
	_, err = s.db.Exec(
		`DELETE FROM telemetry
		WHERE drone_id = ? AND id NOT IN (
			SELECT id FROM telemetry WHERE drone_id = ? ORDER BY id DESC LIMIT ?
		)`,
		sample.DroneID, sample.DroneID, s.historySize,
	)
	if err != nil {
		return fmt.Errorf("failed to prune telemetry history: %w", err)
	}

	return nil
}

// GetRecent returns up to limit most recent samples for a drone in
// chronological order
func (s *TelemetryStorage) GetRecent(droneID string, limit int) ([]*telemetry.Sample, error) {
	if limit <= 0 || limit > s.historySize {
		limit = s.historySize
	}

	rows, err := s.db.Query(
		`SELECT drone_id, lat, lng, altitude, speed, battery, timestamp
		FROM telemetry
		WHERE drone_id = ?
		ORDER BY id DESC
		LIMIT ?`,
		droneID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query telemetry: %w", err)
	}
	defer rows.Close()

	samples, err := s.scanSampleRows(rows)
	if err != nil {
		return nil, err
	}

	// Rows come back newest-first; flip to chronological order
	for i, j := 0, len(samples)-1; i < j; i, j = i+1, j-1 {
		samples[i], samples[j] = samples[j], samples[i]
	}
	return samples, nil
}

// Latest returns the most recent sample for a drone, or nil when the drone
// has no recorded telemetry
func (s *TelemetryStorage) Latest(droneID string) (*telemetry.Sample, error) {
	rows, err := s.db.Query(
		`SELECT drone_id, lat, lng, altitude, speed, battery, timestamp
		FROM telemetry
		WHERE drone_id = ?
		ORDER BY id DESC
		LIMIT 1`,
		droneID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query latest telemetry: %w", err)
	}
	defer rows.Close()

	samples, err := s.scanSampleRows(rows)
	if err != nil {
		return nil, err
	}
	if len(samples) == 0 {
		return nil, nil
	}
	return samples[0], nil
}

func (s *TelemetryStorage) scanSampleRows(rows *sql.Rows) ([]*telemetry.Sample, error) {
	var samples []*telemetry.Sample
	for rows.Next() {
		var sample telemetry.Sample
		var timestamp string

		if err := rows.Scan(
			&sample.DroneID,
			&sample.Lat,
			&sample.Lng,
			&sample.Altitude,
			&sample.Speed,
			&sample.Battery,
			&timestamp,
		); err != nil {
			return nil, fmt.Errorf("failed to scan telemetry sample: %w", err)
		}

		var err error
		sample.Timestamp, err = time.Parse(time.RFC3339Nano, timestamp)
		if err != nil {
			return nil, fmt.Errorf("failed to parse telemetry timestamp: %w", err)
		}

		samples = append(samples, &sample)
	}

	return samples, rows.Err()
}
