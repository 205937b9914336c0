package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Service names accepted by Load.
const (
	ServiceAPI      = "api"
	ServiceExplorer = "explorer"
	ServiceMigrate  = "migrate"
	ServiceSeed     = "seed"
	ServiceImporter = "importer"
	ServiceCLI      = "bodegactl"
)

// Search backends of the search service.
const (
	BackendPostgres = "postgres"
	BackendMemory   = "memory"
)

// Config holds all application configuration.
type Config struct {
	Service   string          `mapstructure:"-"`
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	NATS      NATSConfig      `mapstructure:"nats"`
	Valkey    ValkeyConfig    `mapstructure:"valkey"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Log       LogConfig       `mapstructure:"log"`
	Search    SearchConfig    `mapstructure:"search"`
	Explorer  ExplorerConfig  `mapstructure:"explorer"`
	Temporal  TemporalConfig  `mapstructure:"temporal"`
}

type ServerConfig struct {
	Port         int `mapstructure:"port"`
	ReadTimeout  int `mapstructure:"read_timeout"`
	WriteTimeout int `mapstructure:"write_timeout"`
}

type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode,
	)
}

type NATSConfig struct {
	URL     string `mapstructure:"url"`
	Enabled bool   `mapstructure:"enabled"`
}

type ValkeyConfig struct {
	Addr     string `mapstructure:"addr"`
	Enabled  bool   `mapstructure:"enabled"`
	CacheTTL int    `mapstructure:"cache_ttl"`
}

type TelemetryConfig struct {
	ServiceName string `mapstructure:"service_name"`
	TempoAddr   string `mapstructure:"tempo_addr"`
	Enabled     bool   `mapstructure:"enabled"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// SearchConfig covers both the search service (backend, seed file) and its
// clients (base_url, timeout, retry_max).
type SearchConfig struct {
	BaseURL  string        `mapstructure:"base_url"`
	Timeout  time.Duration `mapstructure:"timeout"`
	RetryMax int           `mapstructure:"retry_max"`
	Backend  string        `mapstructure:"backend"`
	SeedFile string        `mapstructure:"seed_file"`
}

// TemporalConfig locates the workflow engine that runs catalog imports.
type TemporalConfig struct {
	HostPort  string `mapstructure:"host_port"`
	Namespace string `mapstructure:"namespace"`
	TaskQueue string `mapstructure:"task_queue"`
	Enabled   bool   `mapstructure:"enabled"`
}

type ExplorerConfig struct {
	Port              int           `mapstructure:"port"`
	Debounce          time.Duration `mapstructure:"debounce"`
	RadiusKm          float64       `mapstructure:"radius_km"`
	LocationTimeout   time.Duration `mapstructure:"location_timeout"`
	LocationMaxAge    time.Duration `mapstructure:"location_max_age"`
	LocationFreshness time.Duration `mapstructure:"location_freshness"`
	HighAccuracy      bool          `mapstructure:"high_accuracy"`
	MapsAPIKey        string        `mapstructure:"maps_api_key"`
	MapLoadTimeout    time.Duration `mapstructure:"map_load_timeout"`
	DefaultLat        float64       `mapstructure:"default_lat"`
	DefaultLng        float64       `mapstructure:"default_lng"`
	DefaultZoom       int           `mapstructure:"default_zoom"`
	InitialType       string        `mapstructure:"initial_type"`
}

// Load reads configuration from file and environment variables.
func Load(service string) (*Config, error) {
	v := viper.New()

	// Defaults
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 10)
	v.SetDefault("server.write_timeout", 10)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "bodegamap")
	v.SetDefault("database.password", "")
	v.SetDefault("database.dbname", "bodegamap")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("nats.url", "nats://localhost:4222")
	v.SetDefault("nats.enabled", true)
	v.SetDefault("valkey.addr", "localhost:6379")
	v.SetDefault("valkey.enabled", true)
	v.SetDefault("valkey.cache_ttl", 60)
	v.SetDefault("telemetry.service_name", "bodegamap-"+service)
	v.SetDefault("telemetry.tempo_addr", "tempo:4317")
	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("search.base_url", "http://localhost:8080")
	v.SetDefault("search.timeout", 10*time.Second)
	v.SetDefault("search.retry_max", 2)
	v.SetDefault("search.backend", BackendPostgres)
	v.SetDefault("search.seed_file", "")
	v.SetDefault("explorer.port", 8090)
	v.SetDefault("explorer.debounce", 500*time.Millisecond)
	v.SetDefault("explorer.radius_km", 5.0)
	v.SetDefault("explorer.location_timeout", 10*time.Second)
	v.SetDefault("explorer.location_max_age", 5*time.Minute)
	v.SetDefault("explorer.location_freshness", 5*time.Minute)
	v.SetDefault("explorer.high_accuracy", true)
	v.SetDefault("explorer.maps_api_key", "")
	v.SetDefault("explorer.map_load_timeout", 15*time.Second)
	v.SetDefault("explorer.default_lat", 40.7589)
	v.SetDefault("explorer.default_lng", -73.9851)
	v.SetDefault("explorer.default_zoom", 12)
	v.SetDefault("explorer.initial_type", "items")
	v.SetDefault("temporal.host_port", "localhost:7233")
	v.SetDefault("temporal.namespace", "default")
	v.SetDefault("temporal.task_queue", "catalog-import")
	v.SetDefault("temporal.enabled", false)

	// Config file (optional)
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")
	_ = v.ReadInConfig() // OK if missing

	// Environment variables: BODEGAMAP_DATABASE_HOST → database.host
	v.SetEnvPrefix("BODEGAMAP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.Service = service

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// NeedsDatabase reports whether the service talks to PostgreSQL.
func (c *Config) NeedsDatabase() bool {
	switch c.Service {
	case ServiceMigrate, ServiceSeed, ServiceImporter:
		return true
	case ServiceAPI:
		return c.Search.Backend == BackendPostgres
	}
	return false
}

// Validate checks that required configuration fields are present and sane.
func (c *Config) Validate() error {
	var errs []string

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("server.port must be 1-65535, got %d", c.Server.Port))
	}
	if c.Server.ReadTimeout <= 0 {
		errs = append(errs, "server.read_timeout must be positive")
	}
	if c.Server.WriteTimeout <= 0 {
		errs = append(errs, "server.write_timeout must be positive")
	}

	if c.NeedsDatabase() {
		if c.Database.Host == "" {
			errs = append(errs, "database.host is required")
		}
		if c.Database.Port <= 0 || c.Database.Port > 65535 {
			errs = append(errs, fmt.Sprintf("database.port must be 1-65535, got %d", c.Database.Port))
		}
		if c.Database.User == "" {
			errs = append(errs, "database.user is required")
		}
		if c.Database.DBName == "" {
			errs = append(errs, "database.dbname is required")
		}
	}
	if c.NATS.Enabled && c.NATS.URL == "" {
		errs = append(errs, "nats.url is required when nats is enabled")
	}
	if c.Valkey.Enabled && c.Valkey.Addr == "" {
		errs = append(errs, "valkey.addr is required when valkey is enabled")
	}

	switch c.Search.Backend {
	case BackendPostgres, BackendMemory:
	default:
		errs = append(errs, fmt.Sprintf("search.backend must be %q or %q, got %q", BackendPostgres, BackendMemory, c.Search.Backend))
	}
	if c.Service == ServiceExplorer || c.Service == ServiceCLI {
		if c.Search.BaseURL == "" {
			errs = append(errs, "search.base_url is required")
		}
		if c.Search.Timeout <= 0 {
			errs = append(errs, "search.timeout must be positive")
		}
		if c.Search.RetryMax < 0 {
			errs = append(errs, "search.retry_max must not be negative")
		}
	}

	if c.Service == ServiceExplorer {
		e := c.Explorer
		if e.Port <= 0 || e.Port > 65535 {
			errs = append(errs, fmt.Sprintf("explorer.port must be 1-65535, got %d", e.Port))
		}
		if e.Debounce <= 0 {
			errs = append(errs, "explorer.debounce must be positive")
		}
		if e.RadiusKm <= 0 {
			errs = append(errs, "explorer.radius_km must be positive")
		}
		if e.LocationTimeout <= 0 {
			errs = append(errs, "explorer.location_timeout must be positive")
		}
		if e.DefaultLat < -90 || e.DefaultLat > 90 || e.DefaultLng < -180 || e.DefaultLng > 180 {
			errs = append(errs, "explorer.default_lat/default_lng must be a valid coordinate")
		}
		if e.DefaultZoom < 1 || e.DefaultZoom > 21 {
			errs = append(errs, fmt.Sprintf("explorer.default_zoom must be 1-21, got %d", e.DefaultZoom))
		}
		if e.InitialType != "sites" && e.InitialType != "items" {
			errs = append(errs, fmt.Sprintf("explorer.initial_type must be sites or items, got %q", e.InitialType))
		}
	}

	if c.Service == ServiceImporter || (c.Service == ServiceSeed && c.Temporal.Enabled) {
		if c.Temporal.HostPort == "" {
			errs = append(errs, "temporal.host_port is required")
		}
		if c.Temporal.TaskQueue == "" {
			errs = append(errs, "temporal.task_queue is required")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
