package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/mr1hm/vessel-alert-engine/internal/models"
)

type Config struct {
	Server     ServerConfig
	Worker     WorkerConfig
	Monitor    MonitorConfig
	Delivery   DeliveryConfig
	Escalation EscalationConfig
	Zones      ZonesConfig
	Sources    SourcesConfig
	DB         DatabaseConfig
	Logging    LoggingConfig
}

type ServerConfig struct {
	Host       string
	Port       int
	RatePerSec int
	RateBurst  int
}

type WorkerConfig struct {
	Count      int
	BufferSize int
}

type MonitorConfig struct {
	SweepInterval  time.Duration
	PositionMaxAge time.Duration
}

type DeliveryConfig struct {
	MaxAttempts        int
	DuplicateWindow    time.Duration
	AlertTTL           time.Duration
	ProviderRatePerSec int
}

type EscalationConfig struct {
	PollInterval time.Duration
}

// ZonesConfig holds the per-kind danger-zone radii (km), ordered
// critical, high, moderate, low.
type ZonesConfig struct {
	EarthquakeRadiiKm [4]float64
	TsunamiRadiiKm    [4]float64
}

type SourcesConfig struct {
	HazardFeedEnabled      bool
	HazardFeedURL          string
	HazardFeedPollInterval time.Duration
	PositionsEnabled       bool
	PositionsURL           string
	PositionsPollInterval  time.Duration
}

type DatabaseConfig struct {
	Path string
}

type LoggingConfig struct {
	Level string
}

func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Host:       getEnv("SERVER_HOST", "localhost"),
			Port:       getEnvInt("SERVER_PORT", 8080),
			RatePerSec: getEnvInt("API_RATE_PER_SEC", 5),
			RateBurst:  getEnvInt("API_RATE_BURST", 10),
		},
		Worker: WorkerConfig{
			Count:      getEnvInt("WORKER_COUNT", 4),
			BufferSize: getEnvInt("WORKER_BUFFER_SIZE", 64),
		},
		Monitor: MonitorConfig{
			SweepInterval:  getEnvDuration("SWEEP_INTERVAL", 5*time.Minute),
			PositionMaxAge: getEnvDuration("POSITION_MAX_AGE", time.Hour),
		},
		Delivery: DeliveryConfig{
			MaxAttempts:        getEnvInt("DELIVERY_MAX_ATTEMPTS", 3),
			DuplicateWindow:    getEnvDuration("DUPLICATE_WINDOW", 24*time.Hour),
			AlertTTL:           getEnvDuration("ALERT_TTL", 24*time.Hour),
			ProviderRatePerSec: getEnvInt("PROVIDER_RATE_PER_SEC", 10),
		},
		Escalation: EscalationConfig{
			PollInterval: getEnvDuration("ESCALATION_POLL_INTERVAL", 30*time.Second),
		},
		Zones: ZonesConfig{
			EarthquakeRadiiKm: getEnvRadii("EARTHQUAKE_RADII_KM", [4]float64{100, 300, 500, 1000}),
			TsunamiRadiiKm:    getEnvRadii("TSUNAMI_RADII_KM", [4]float64{50, 200, 500, 1000}),
		},
		Sources: SourcesConfig{
			HazardFeedEnabled:      getEnvBool("HAZARD_FEED_ENABLED", true),
			HazardFeedURL:          getEnv("HAZARD_FEED_URL", "https://earthquake.usgs.gov/earthquakes/feed/v1.0/summary/all_hour.geojson"),
			HazardFeedPollInterval: getEnvDuration("HAZARD_FEED_POLL_INTERVAL", 5*time.Minute),
			PositionsEnabled:       getEnvBool("POSITIONS_ENABLED", false),
			PositionsURL:           getEnv("POSITIONS_URL", ""),
			PositionsPollInterval:  getEnvDuration("POSITIONS_POLL_INTERVAL", time.Minute),
		},
		DB: DatabaseConfig{
			Path: getEnv("DB_PATH", "./data/vessel-alerts.db"),
		},
		Logging: LoggingConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// RadiusBands converts the zone config into the evaluator's band table.
func (z ZonesConfig) RadiusBands() map[models.HazardKind]map[models.Severity]float64 {
	toBands := func(radii [4]float64) map[models.Severity]float64 {
		return map[models.Severity]float64{
			models.SeverityCritical: radii[0],
			models.SeverityHigh:     radii[1],
			models.SeverityModerate: radii[2],
			models.SeverityLow:      radii[3],
		}
	}
	return map[models.HazardKind]map[models.Severity]float64{
		models.HazardEarthquake: toBands(z.EarthquakeRadiiKm),
		models.HazardTsunami:    toBands(z.TsunamiRadiiKm),
	}
}

func (c *Config) validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Server.RatePerSec < 1 || c.Server.RateBurst < 1 {
		return fmt.Errorf("api rate limit and burst must be at least 1")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}

	if c.Delivery.MaxAttempts < 1 {
		return fmt.Errorf("delivery max attempts must be at least 1")
	}
	if c.Delivery.DuplicateWindow < time.Minute {
		return fmt.Errorf("duplicate window must be at least 1 minute")
	}
	if c.Delivery.AlertTTL < time.Minute {
		return fmt.Errorf("alert TTL must be at least 1 minute")
	}
	if c.Monitor.SweepInterval < 10*time.Second {
		return fmt.Errorf("sweep interval must be at least 10 seconds")
	}
	if c.Escalation.PollInterval < time.Second {
		return fmt.Errorf("escalation poll interval must be at least 1 second")
	}

	for _, radii := range [][4]float64{c.Zones.EarthquakeRadiiKm, c.Zones.TsunamiRadiiKm} {
		for i := 1; i < len(radii); i++ {
			if radii[i] <= radii[i-1] {
				return fmt.Errorf("danger-zone radii must strictly increase, got %v", radii)
			}
		}
	}

	return nil
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return fallback
}

// getEnvRadii parses "critical,high,moderate,low" km values.
func getEnvRadii(key string, fallback [4]float64) [4]float64 {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parts := strings.Split(val, ",")
	if len(parts) != 4 {
		return fallback
	}
	var out [4]float64
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return fallback
		}
		out[i] = f
	}
	return out
}
