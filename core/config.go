package core

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the mesh components.
// It supports three-layer configuration priority:
//  1. Default values (lowest priority)
//  2. Optional YAML file and environment variables (medium priority)
//  3. Functional options (highest priority)
//
// Example usage:
//
//	cfg, err := NewConfig(
//	    WithName("registry"),
//	    WithPort(8080),
//	    WithHealthCheckInterval(15*time.Second),
//	)
type Config struct {
	// Core configuration
	Name    string `json:"name" yaml:"name"`
	Port    int    `json:"port" yaml:"port"`
	Address string `json:"address" yaml:"address"`

	// HTTP server configuration
	HTTP HTTPConfig `json:"http" yaml:"http"`

	// Registry configuration
	Registry RegistryConfig `json:"registry" yaml:"registry"`

	// Client configuration
	Client ClientConfig `json:"client" yaml:"client"`

	// Telemetry configuration
	Telemetry TelemetryConfig `json:"telemetry" yaml:"telemetry"`

	// Logging configuration
	Logging LoggingConfig `json:"logging" yaml:"logging"`
}

// HTTPConfig contains HTTP server timeouts and CORS settings
type HTTPConfig struct {
	ReadTimeout     time.Duration `json:"read_timeout" yaml:"read_timeout"`
	WriteTimeout    time.Duration `json:"write_timeout" yaml:"write_timeout"`
	IdleTimeout     time.Duration `json:"idle_timeout" yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `json:"shutdown_timeout" yaml:"shutdown_timeout"`
	CORS            CORSConfig    `json:"cors" yaml:"cors"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings for the
// registry HTTP surface
type CORSConfig struct {
	Enabled        bool     `json:"enabled" yaml:"enabled"`
	AllowedOrigins []string `json:"allowed_origins" yaml:"allowed_origins"`
	AllowedMethods []string `json:"allowed_methods" yaml:"allowed_methods"`
	AllowedHeaders []string `json:"allowed_headers" yaml:"allowed_headers"`
}

// RegistryConfig contains registry and health loop settings
type RegistryConfig struct {
	HealthCheckInterval time.Duration `json:"health_check_interval" yaml:"health_check_interval"`
	HealthCheckTimeout  time.Duration `json:"health_check_timeout" yaml:"health_check_timeout"`
}

// ClientConfig contains registry client settings
type ClientConfig struct {
	RegistryURL    string        `json:"registry_url" yaml:"registry_url"`
	RequestTimeout time.Duration `json:"request_timeout" yaml:"request_timeout"`
	AuthToken      string        `json:"-" yaml:"-"`
}

// TelemetryConfig controls trace export
type TelemetryConfig struct {
	Enabled  bool   `json:"enabled" yaml:"enabled"`
	Exporter string `json:"exporter" yaml:"exporter"` // stdout or otlp
	Endpoint string `json:"endpoint" yaml:"endpoint"` // OTLP gRPC endpoint
}

// Option is a functional option for Config
type Option func(*Config)

// NewConfig builds a Config from defaults, environment variables and
// functional options, in that order of precedence
func NewConfig(opts ...Option) (*Config, error) {
	cfg := defaultConfig()
	cfg.applyEnvironment()
	for _, opt := range opts {
		opt(cfg)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadConfigFile reads a YAML config file over the defaults, then applies
// environment variables and options on top
func LoadConfigFile(path string, opts ...Option) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("%w: parse %s: %v", ErrInvalidConfiguration, path, err)
	}

	cfg.applyEnvironment()
	for _, opt := range opts {
		opt(cfg)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func defaultConfig() *Config {
	return &Config{
		Name: "agentmesh",
		Port: 8080,
		HTTP: HTTPConfig{
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			IdleTimeout:     120 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			CORS: CORSConfig{
				AllowedOrigins: []string{"*"},
				AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
				AllowedHeaders: []string{"Content-Type", "Authorization", "X-API-Key"},
			},
		},
		Registry: RegistryConfig{
			HealthCheckInterval: 30 * time.Second,
			HealthCheckTimeout:  5 * time.Second,
		},
		Client: ClientConfig{
			RegistryURL:    "http://localhost:8080",
			RequestTimeout: 30 * time.Second,
		},
		Telemetry: TelemetryConfig{
			Exporter: "stdout",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvironment overlays AGENTMESH_* environment variables
func (c *Config) applyEnvironment() {
	if v := os.Getenv("AGENTMESH_NAME"); v != "" {
		c.Name = v
	}
	if v := os.Getenv("AGENTMESH_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Port = port
		}
	}
	if v := os.Getenv("AGENTMESH_ADDRESS"); v != "" {
		c.Address = v
	}
	if v := os.Getenv("AGENTMESH_REGISTRY_URL"); v != "" {
		c.Client.RegistryURL = v
	}
	if v := os.Getenv("AGENTMESH_AUTH_TOKEN"); v != "" {
		c.Client.AuthToken = v
	}
	if v := os.Getenv("AGENTMESH_HEALTH_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.Registry.HealthCheckInterval = d
		}
	}
	if v := os.Getenv("AGENTMESH_HEALTH_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.Registry.HealthCheckTimeout = d
		}
	}
	if v := os.Getenv("AGENTMESH_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("AGENTMESH_LOG_FORMAT"); v != "" {
		c.Logging.Format = v
	}
	if v := os.Getenv("AGENTMESH_TELEMETRY_ENABLED"); v != "" {
		c.Telemetry.Enabled = v == "true" || v == "1"
	}
	if v := os.Getenv("AGENTMESH_TELEMETRY_EXPORTER"); v != "" {
		c.Telemetry.Exporter = v
	}
	if v := os.Getenv("AGENTMESH_TELEMETRY_ENDPOINT"); v != "" {
		c.Telemetry.Endpoint = v
	}
}

// Validate checks cross-field constraints
func (c *Config) Validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("%w: port %d out of range", ErrInvalidConfiguration, c.Port)
	}
	if c.Registry.HealthCheckInterval <= 0 {
		return fmt.Errorf("%w: health check interval must be positive", ErrInvalidConfiguration)
	}
	if c.Registry.HealthCheckTimeout <= 0 {
		return fmt.Errorf("%w: health check timeout must be positive", ErrInvalidConfiguration)
	}
	switch c.Telemetry.Exporter {
	case "", "stdout", "otlp":
	default:
		return fmt.Errorf("%w: unknown telemetry exporter %q", ErrInvalidConfiguration, c.Telemetry.Exporter)
	}
	return nil
}

// WithName sets the service name
func WithName(name string) Option {
	return func(c *Config) { c.Name = name }
}

// WithPort sets the HTTP listen port
func WithPort(port int) Option {
	return func(c *Config) { c.Port = port }
}

// WithAddress sets the bind address
func WithAddress(addr string) Option {
	return func(c *Config) { c.Address = addr }
}

// WithRegistryURL sets the registry base URL used by clients
func WithRegistryURL(url string) Option {
	return func(c *Config) { c.Client.RegistryURL = url }
}

// WithAuthToken sets the default credential for capability invocation
func WithAuthToken(token string) Option {
	return func(c *Config) { c.Client.AuthToken = token }
}

// WithHealthCheckInterval sets how often the registry probes agents
func WithHealthCheckInterval(d time.Duration) Option {
	return func(c *Config) { c.Registry.HealthCheckInterval = d }
}

// WithHealthCheckTimeout bounds each individual health probe
func WithHealthCheckTimeout(d time.Duration) Option {
	return func(c *Config) { c.Registry.HealthCheckTimeout = d }
}

// WithLogging overrides the logging configuration
func WithLogging(cfg LoggingConfig) Option {
	return func(c *Config) { c.Logging = cfg }
}

// WithTelemetry overrides the telemetry configuration
func WithTelemetry(cfg TelemetryConfig) Option {
	return func(c *Config) { c.Telemetry = cfg }
}
