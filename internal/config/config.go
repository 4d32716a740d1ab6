// Package config loads the immutable configuration tree a pipeline run is
// wired from: clubs, weather providers, and users/memberships,
// plus the ambient ops settings (debug HTTP surface, optional audit sink,
// observability).
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// AppConfig is the full immutable configuration tree for one pipeline
// process. Nothing under it is mutated after Load returns; per-run state
// lives in the services the app wires from it, not here.
type AppConfig struct {
	Server          ServerConfig     `yaml:"server"`
	Database        DatabaseConfig   `yaml:"database"`
	Observability   ObservabilityConfig `yaml:"observability"`
	Cache           CacheConfig      `yaml:"cache"`
	FanOut          FanOutConfig     `yaml:"fan_out"`
	TimezoneDefault string           `yaml:"timezone_default"`
	BufferMinutes   int              `yaml:"buffer_minutes"`
	Clubs           []ClubConfig     `yaml:"clubs"`
	Providers       []ProviderConfig `yaml:"providers"`
	Users           []UserConfig     `yaml:"users"`
}

// ServerConfig controls the operator-only debug HTTP surface; the
// pipeline itself serves no public API.
type ServerConfig struct {
	Port         string        `yaml:"port"`
	Environment  string        `yaml:"environment"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// DatabaseConfig controls the optional Postgres audit/analytics sink.
type DatabaseConfig struct {
	Enabled               bool          `yaml:"enabled"`
	Host                  string        `yaml:"host"`
	Port                  int           `yaml:"port"`
	User                  string        `yaml:"user"`
	Password              string        `yaml:"password"`
	Database              string        `yaml:"database"`
	SSLMode               string        `yaml:"ssl_mode"`
	MaxConnections        int           `yaml:"max_connections"`
	MaxIdleConnections    int           `yaml:"max_idle_connections"`
	ConnectionMaxLifetime time.Duration `yaml:"connection_max_lifetime"`
}

// ObservabilityConfig controls tracing/metrics export.
type ObservabilityConfig struct {
	ServiceName    string  `yaml:"service_name"`
	ServiceVersion string  `yaml:"service_version"`
	OTLPEndpoint   string  `yaml:"otlp_endpoint"`
	SampleRate     float64 `yaml:"sample_rate"`
}

// CacheConfig points at the sqlite file backing both cache tables.
type CacheConfig struct {
	Path                     string        `yaml:"path"`
	LocationMemoTTL          time.Duration `yaml:"location_memo_ttl"`
	LocationCacheMaxAge      time.Duration `yaml:"location_cache_max_age"`
	LocationCacheMaxDistance float64       `yaml:"location_cache_max_distance_km"`
}

// FanOutConfig controls the reservation service's concurrency bounds. Zero means "use the
// component's documented default".
type FanOutConfig struct {
	MembershipFanOut  int           `yaml:"membership_fan_out"`
	ReservationFanOut int           `yaml:"reservation_fan_out"`
	PipelineTimeout   time.Duration `yaml:"pipeline_timeout"`
}

// ClubConfig describes one golf club: its tee-sheet system and location.
// Type names the CRM adapter registered for this club — clubs sharing a tee-sheet deployment share a
// Type and therefore one adapter instance.
type ClubConfig struct {
	ID            string  `yaml:"id"`
	Type          string  `yaml:"type"`
	CRMFamily     string  `yaml:"crm_family"` // "embedded", "urlparam", or "split"
	BaseURL       string  `yaml:"base_url"`
	FlightBaseURL string  `yaml:"flight_base_url,omitempty"` // split family only
	CourseName    string  `yaml:"course_name"`
	Lat           float64 `yaml:"lat"`
	Lon           float64 `yaml:"lon"`
	AltitudeM     *int    `yaml:"altitude_m,omitempty"`
}

// ProviderConfig describes one weather provider adapter's wiring.
type ProviderConfig struct {
	ID                   string        `yaml:"id"`
	Kind                 string        `yaml:"kind"` // "nordic" or "global"
	BaseURL              string        `yaml:"base_url"`
	DiscoveryURL         string        `yaml:"discovery_url,omitempty"`
	APIKey               string        `yaml:"api_key,omitempty"`
	UserAgent            string        `yaml:"user_agent"`
	RateMinInterval      time.Duration `yaml:"rate_min_interval"`
	RateCapPerWindow     int           `yaml:"rate_cap_per_window,omitempty"`
	RateWindow           time.Duration `yaml:"rate_window,omitempty"`
}

// MembershipConfig binds a user to a club under one auth strategy.
type MembershipConfig struct {
	ClubID                 string            `yaml:"club_id"`
	AuthKind               string            `yaml:"auth_kind"`
	Secrets                map[string]string `yaml:"secrets"`
	DisplayDurationMinutes int               `yaml:"display_duration_minutes"`
	LocalTZ                string            `yaml:"local_tz"`
}

// ExternalEventConfig is a user-supplied non-golf calendar entry.
type ExternalEventConfig struct {
	ID       string `yaml:"id"`
	StartUTC string `yaml:"start_utc"`
	EndUTC   string `yaml:"end_utc"`
	Category string `yaml:"category"`
	Priority string `yaml:"priority"`
}

// UserConfig describes one pipeline subject: their memberships and any
// externally supplied events to merge into their calendar.
type UserConfig struct {
	ID             string                 `yaml:"id"`
	Memberships    []MembershipConfig     `yaml:"memberships"`
	ExternalEvents []ExternalEventConfig  `yaml:"external_events,omitempty"`
	BufferMinutes  *int                   `yaml:"buffer_minutes,omitempty"`
}

// Load decodes path as YAML into an AppConfig and applies defaults for any
// ambient setting left unset. Deep semantic validation of club/provider/user
// references is left to the domain constructors that consume this tree
// — Load only handles shape and defaulting.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file %s: %w", path, err)
	}

	var cfg AppConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}

	applyDefaults(&cfg)
	return &cfg, nil
}

func applyDefaults(cfg *AppConfig) {
	if cfg.Server.Port == "" {
		cfg.Server.Port = getEnv("PORT", "8080")
	}
	if cfg.Server.Environment == "" {
		cfg.Server.Environment = getEnv("ENVIRONMENT", "development")
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 15 * time.Second
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = 15 * time.Second
	}

	if cfg.Observability.ServiceName == "" {
		cfg.Observability.ServiceName = "teeforecast"
	}
	if cfg.Observability.ServiceVersion == "" {
		cfg.Observability.ServiceVersion = getEnv("VERSION", "0.1.0")
	}
	if cfg.Observability.OTLPEndpoint == "" {
		cfg.Observability.OTLPEndpoint = getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317")
	}
	if cfg.Observability.SampleRate == 0 {
		cfg.Observability.SampleRate = 0.1
	}

	if cfg.Cache.Path == "" {
		cfg.Cache.Path = getEnv("CACHE_PATH", "teeforecast.db")
	}
	if cfg.Cache.LocationMemoTTL == 0 {
		cfg.Cache.LocationMemoTTL = 10 * time.Minute
	}
	if cfg.Cache.LocationCacheMaxAge == 0 {
		cfg.Cache.LocationCacheMaxAge = 30 * 24 * time.Hour
	}
	if cfg.Cache.LocationCacheMaxDistance == 0 {
		cfg.Cache.LocationCacheMaxDistance = 5.0
	}

	if cfg.FanOut.PipelineTimeout == 0 {
		cfg.FanOut.PipelineTimeout = 10 * time.Minute
	}

	if cfg.TimezoneDefault == "" {
		cfg.TimezoneDefault = "UTC"
	}
	if cfg.BufferMinutes == 0 {
		cfg.BufferMinutes = 60
	}

	if cfg.Database.MaxConnections == 0 {
		cfg.Database.MaxConnections = 25
	}
	if cfg.Database.MaxIdleConnections == 0 {
		cfg.Database.MaxIdleConnections = 5
	}
	if cfg.Database.ConnectionMaxLifetime == 0 {
		cfg.Database.ConnectionMaxLifetime = 5 * time.Minute
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = "disable"
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}
