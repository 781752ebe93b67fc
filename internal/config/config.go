package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// Config is the top-level server configuration
type Config struct {
	Server     ServerConfig     `toml:"server"`
	Logging    LoggingConfig    `toml:"logging"`
	Storage    StorageConfig    `toml:"storage"`
	Airspace   AirspaceConfig   `toml:"airspace"`
	Flights    FlightsConfig    `toml:"flights"`
	Simulation SimulationConfig `toml:"simulation"`
	WebSocket  WebSocketConfig  `toml:"websocket"`
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Host               string   `toml:"host"`
	Port               int      `toml:"port"`
	ReadTimeoutSecs    int      `toml:"read_timeout_secs"`
	WriteTimeoutSecs   int      `toml:"write_timeout_secs"`
	CORSAllowedOrigins []string `toml:"cors_allowed_origins"`
}

// LoggingConfig holds logging settings
type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// StorageConfig holds SQLite settings
type StorageConfig struct {
	Path string `toml:"path"`
	// TelemetryHistorySize bounds how many recent samples are kept per drone
	TelemetryHistorySize int `toml:"telemetry_history_size"`
}

// ZoneConfig describes one restricted zone as an axis-aligned lat/lng box
type ZoneConfig struct {
	Name  string  `toml:"name"`
	North float64 `toml:"north"`
	South float64 `toml:"south"`
	East  float64 `toml:"east"`
	West  float64 `toml:"west"`
}

// AirspaceConfig holds the restricted zone set, loaded once at startup
type AirspaceConfig struct {
	Zones []ZoneConfig `toml:"zones"`
}

// FlightsConfig holds flight plan validation bounds
type FlightsConfig struct {
	MinAltitudeMeters float64 `toml:"min_altitude_meters"`
	MaxAltitudeMeters float64 `toml:"max_altitude_meters"`
}

// SimulationConfig holds telemetry simulation pacing parameters.
// The pacing formula (fixed tick, speed-derived interpolation) is
// deliberately configuration rather than constants.
type SimulationConfig struct {
	TickMs            int     `toml:"tick_ms"`
	MinSpeedMPS       float64 `toml:"min_speed_mps"`
	MaxSpeedMPS       float64 `toml:"max_speed_mps"`
	BatteryDrainPct   float64 `toml:"battery_drain_pct_per_tick"`
	PositionJitterDeg float64 `toml:"position_jitter_deg"`
	AltVarianceMeters float64 `toml:"altitude_variance_meters"`
}

// WebSocketConfig holds live feed settings
type WebSocketConfig struct {
	// SendBufferSize is the per-subscriber outgoing queue; on overflow the
	// oldest queued message is dropped for that subscriber
	SendBufferSize  int `toml:"send_buffer_size"`
	PingIntervalSec int `toml:"ping_interval_secs"`
}

// DefaultConfig returns the default configuration. The default zone set
// covers the Astana restricted areas used by the reference deployment.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:               "0.0.0.0",
			Port:               8000,
			ReadTimeoutSecs:    30,
			WriteTimeoutSecs:   30,
			CORSAllowedOrigins: []string{"*"},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
		Storage: StorageConfig{
			Path:                 "utm.db",
			TelemetryHistorySize: 50,
		},
		Airspace: AirspaceConfig{
			Zones: []ZoneConfig{
				{Name: "Nur-Sultan Airport", North: 51.0342, South: 51.0142, East: 71.4842, West: 71.4442},
				{Name: "Ak Orda", North: 51.1742, South: 51.1642, East: 71.4142, West: 71.4042},
			},
		},
		Flights: FlightsConfig{
			MinAltitudeMeters: 1,
			MaxAltitudeMeters: 120,
		},
		Simulation: SimulationConfig{
			TickMs:            1000,
			MinSpeedMPS:       12,
			MaxSpeedMPS:       18,
			BatteryDrainPct:   0.2,
			PositionJitterDeg: 0.00001,
			AltVarianceMeters: 2,
		},
		WebSocket: WebSocketConfig{
			SendBufferSize:  64,
			PingIntervalSec: 30,
		},
	}
}

// Load reads configuration from a TOML file, applying defaults for any
// missing sections. A missing file is not an error; defaults are used.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path == "" {
		return cfg, nil
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config file %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks configuration invariants
func (c *Config) Validate() error {
	for _, z := range c.Airspace.Zones {
		if z.Name == "" {
			return fmt.Errorf("restricted zone with empty name")
		}
		if z.North < z.South {
			return fmt.Errorf("zone %q: north (%f) must be >= south (%f)", z.Name, z.North, z.South)
		}
		if z.East < z.West {
			return fmt.Errorf("zone %q: east (%f) must be >= west (%f)", z.Name, z.East, z.West)
		}
	}

	if c.Flights.MinAltitudeMeters >= c.Flights.MaxAltitudeMeters {
		return fmt.Errorf("flights: min altitude (%f) must be below max altitude (%f)",
			c.Flights.MinAltitudeMeters, c.Flights.MaxAltitudeMeters)
	}

	if c.Simulation.TickMs <= 0 {
		return fmt.Errorf("simulation: tick_ms must be positive")
	}
	if c.Simulation.MinSpeedMPS <= 0 || c.Simulation.MaxSpeedMPS < c.Simulation.MinSpeedMPS {
		return fmt.Errorf("simulation: speed range [%f, %f] is invalid",
			c.Simulation.MinSpeedMPS, c.Simulation.MaxSpeedMPS)
	}

	if c.Storage.TelemetryHistorySize <= 0 {
		return fmt.Errorf("storage: telemetry_history_size must be positive")
	}
	if c.WebSocket.SendBufferSize <= 0 {
		return fmt.Errorf("websocket: send_buffer_size must be positive")
	}

	return nil
}
