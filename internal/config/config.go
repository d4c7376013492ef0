package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// DefaultRootServerListURL is the discovery document listing every known
// root server as {id, name, rootURL} objects.
const DefaultRootServerListURL = "https://raw.githubusercontent.com/bmlt-enabled/BMLTTally/master/rootServerList.json"

type Config struct {
	Server         ServerConfig
	Database       DatabaseConfig
	Logging        LoggingConfig
	Import         ImportConfig
	Geocoding      GeocodingConfig
	Map            MapConfig
	AdminBootstrap AdminBootstrapConfig
	Tracing        TracingConfig
	Debug          bool
	Environment    string
}

type ServerConfig struct {
	Host    string
	Port    int
	BaseURL string `validate:"omitempty,url"`
}

type DatabaseConfig struct {
	URL            string `validate:"required"`
	MaxConnections int
	MaxIdle        int
}

type LoggingConfig struct {
	Level  string
	Format string
}

type ImportConfig struct {
	Enabled           bool
	Interval          time.Duration
	RootServerListURL string `validate:"required,url"`
	RequestTimeout    time.Duration
	RequestsPerSecond float64
	NAWSMerge         bool
	// IgnoreRootServers and IgnoreServiceBodies come from the YAML file
	// named by TOMATO_CONFIG; the map is keyed by root server URL and
	// holds service body source ids.
	IgnoreRootServers   []string
	IgnoreServiceBodies map[string][]int64
}

type GeocodingConfig struct {
	APIKey            string
	RequestTimeout    time.Duration
	RequestsPerSecond float64
}

// MapConfig overrides the map center reported by GetServerInfo. When
// latitude and longitude are both zero the center falls back to the
// centroid of the stored meeting coordinates.
type MapConfig struct {
	CenterLongitude float64
	CenterLatitude  float64
	CenterZoom      int
}

type AdminBootstrapConfig struct {
	Username string
	Password string
	Email    string
}

type TracingConfig struct {
	Enabled      bool
	Exporter     string
	ServiceName  string
	OTLPEndpoint string
	SampleRate   float64
}

// fileConfig is the shape of the optional YAML overlay. It carries the
// list-valued settings that do not fit environment variables.
type fileConfig struct {
	IgnoreRootServers   []string           `yaml:"ignore_root_servers"`
	IgnoreServiceBodies map[string][]int64 `yaml:"ignore_service_bodies"`
}

func Load() (Config, error) {
	cfg := Config{
		Server: ServerConfig{
			Host:    getEnv("SERVER_HOST", "0.0.0.0"),
			Port:    getEnvInt("SERVER_PORT", 8080),
			BaseURL: getEnv("SERVER_BASE_URL", "http://localhost:8080"),
		},
		Database: DatabaseConfig{
			URL:            getEnv("DATABASE_URL", ""),
			MaxConnections: getEnvInt("DATABASE_MAX_CONNECTIONS", 25),
			MaxIdle:        getEnvInt("DATABASE_MAX_IDLE_CONNECTIONS", 5),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
		Import: ImportConfig{
			Enabled:           getEnvBool("IMPORT_ENABLED", true),
			Interval:          getEnvDuration("IMPORT_INTERVAL", 24*time.Hour),
			RootServerListURL: getEnv("ROOT_SERVER_LIST_URL", DefaultRootServerListURL),
			RequestTimeout:    getEnvDuration("IMPORT_REQUEST_TIMEOUT", 60*time.Second),
			RequestsPerSecond: getEnvFloat("IMPORT_REQUESTS_PER_SECOND", 2),
			NAWSMerge:         getEnvBool("IMPORT_NAWS_MERGE", true),
		},
		Geocoding: GeocodingConfig{
			APIKey:            getEnv("GOOGLE_MAPS_API_KEY", ""),
			RequestTimeout:    getEnvDuration("GEOCODING_REQUEST_TIMEOUT", 10*time.Second),
			RequestsPerSecond: getEnvFloat("GEOCODING_REQUESTS_PER_SECOND", 10),
		},
		Map: MapConfig{
			CenterLongitude: getEnvFloat("MAP_CENTER_LONGITUDE", 0),
			CenterLatitude:  getEnvFloat("MAP_CENTER_LATITUDE", 0),
			CenterZoom:      getEnvInt("MAP_CENTER_ZOOM", 6),
		},
		AdminBootstrap: AdminBootstrapConfig{
			Username: getEnv("ADMIN_USERNAME", "admin"),
			Password: getEnv("ADMIN_PASSWORD", ""),
			Email:    getEnv("ADMIN_EMAIL", ""),
		},
		Tracing: TracingConfig{
			Enabled:      getEnvBool("TRACING_ENABLED", false),
			Exporter:     getEnv("TRACING_EXPORTER", "none"),
			ServiceName:  getEnv("TRACING_SERVICE_NAME", "tomato"),
			OTLPEndpoint: getEnv("TRACING_OTLP_ENDPOINT", "localhost:4317"),
			SampleRate:   getEnvFloat("TRACING_SAMPLE_RATE", 1.0),
		},
		Debug:       getEnvBool("DEBUG", false),
		Environment: getEnv("ENVIRONMENT", "development"),
	}

	if cfg.Database.URL == "" {
		return Config{}, fmt.Errorf("DATABASE_URL is required")
	}

	if path := getEnv("TOMATO_CONFIG", ""); path != "" {
		if err := cfg.applyFile(path); err != nil {
			return Config{}, err
		}
	}

	if err := validator.New().Struct(cfg); err != nil {
		return Config{}, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func (c *Config) applyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config file %s: %w", path, err)
	}
	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("parsing config file %s: %w", path, err)
	}
	c.Import.IgnoreRootServers = fc.IgnoreRootServers
	c.Import.IgnoreServiceBodies = fc.IgnoreServiceBodies
	return nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvFloat(key string, fallback float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvBool(key string, fallback bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}
