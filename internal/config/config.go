// Package config provides application configuration management with
// multi-source priority.
//
// Configuration sources (highest to lowest priority):
//  1. Environment variables (runtime override)
//  2. Config file (./config.yaml)
//  3. Default values (sensible defaults for quick start)
//
// Main configuration categories:
//   - Server: listen address, mode, CORS
//   - Storage: MongoDB or PostgreSQL session store (see storage.go)
//   - Retrieve: the external knowledge retrieval endpoint
//   - Logging: level and format
//
// Security: connection strings may embed credentials and are masked in
// MarshalJSON. Validation uses sentinel errors checked with errors.Is().
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/spf13/viper"
)

// Store driver identifiers used in Config.StoreDriver.
const (
	DriverMongo    = "mongo"
	DriverPostgres = "postgres"
)

// Run modes used in Config.Mode.
const (
	ModeDev  = "dev"
	ModeProd = "prod"
)

var (
	// ErrInvalidMode indicates an unknown run mode.
	ErrInvalidMode = errors.New("invalid mode")

	// ErrInvalidStoreDriver indicates an unsupported session store driver.
	ErrInvalidStoreDriver = errors.New("invalid store driver")

	// ErrInvalidPort indicates the listen port is out of range.
	ErrInvalidPort = errors.New("invalid port")

	// ErrMissingMongoURI indicates the mongo driver is selected without a URI.
	ErrMissingMongoURI = errors.New("missing MongoDB URI")

	// ErrInvalidPostgresHost indicates the PostgreSQL host is invalid.
	ErrInvalidPostgresHost = errors.New("invalid PostgreSQL host")

	// ErrInvalidPostgresPort indicates the PostgreSQL port is out of range.
	ErrInvalidPostgresPort = errors.New("invalid PostgreSQL port")

	// ErrInvalidPostgresDBName indicates the PostgreSQL database name is invalid.
	ErrInvalidPostgresDBName = errors.New("invalid PostgreSQL database name")

	// ErrInvalidPostgresSSLMode indicates the PostgreSQL SSL mode is invalid.
	ErrInvalidPostgresSSLMode = errors.New("invalid PostgreSQL SSL mode")

	// ErrMissingRetrieveURL indicates the retrieval endpoint is unset.
	ErrMissingRetrieveURL = errors.New("missing retrieve URL")

	// ErrInvalidTimeout indicates a timeout setting is not positive.
	ErrInvalidTimeout = errors.New("invalid timeout")
)

// Config stores application configuration.
// SECURITY: Sensitive fields are explicitly masked in MarshalJSON().
// When adding new sensitive fields (passwords, connection strings),
// update MarshalJSON.
type Config struct {
	// Server configuration
	Mode        string   `mapstructure:"mode" json:"mode"` // "dev" (default) or "prod"
	Host        string   `mapstructure:"host" json:"host"`
	Port        int      `mapstructure:"port" json:"port"`
	CORSOrigins []string `mapstructure:"cors_origins" json:"cors_origins"`

	// Session store configuration (see storage.go)
	StoreDriver        string `mapstructure:"store_driver" json:"store_driver"` // "mongo" (default) or "postgres"
	StoreTimeoutSecs   int    `mapstructure:"store_timeout_seconds" json:"store_timeout_seconds"`
	MongoURI           string `mapstructure:"mongo_uri" json:"mongo_uri"` // SENSITIVE: masked in MarshalJSON
	MongoDBName        string `mapstructure:"mongo_db_name" json:"mongo_db_name"`
	PostgresHost       string `mapstructure:"postgres_host" json:"postgres_host"`
	PostgresPort       int    `mapstructure:"postgres_port" json:"postgres_port"`
	PostgresUser       string `mapstructure:"postgres_user" json:"postgres_user"`
	PostgresPassword   string `mapstructure:"postgres_password" json:"postgres_password"` // SENSITIVE: masked in MarshalJSON
	PostgresDBName     string `mapstructure:"postgres_db_name" json:"postgres_db_name"`
	PostgresSSLMode    string `mapstructure:"postgres_ssl_mode" json:"postgres_ssl_mode"`

	// Retrieval service configuration
	RetrieveURL         string `mapstructure:"retrieve_url" json:"retrieve_url"`
	RetrieveClientName  string `mapstructure:"retrieve_client_name" json:"retrieve_client_name"`
	RetrieveTimeoutSecs int    `mapstructure:"retrieve_timeout_seconds" json:"retrieve_timeout_seconds"`

	// Logging configuration
	LogLevel string `mapstructure:"log_level" json:"log_level"` // debug, info, warn, error
	LogJSON  bool   `mapstructure:"log_json" json:"log_json"`
}

// Load loads configuration.
// Priority: Environment variables > Configuration file > Default values
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	setDefaults(v)
	bindEnvVariables(v)

	if err := v.ReadInConfig(); err != nil {
		// A missing config file is fine; defaults and env cover it.
		var configNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &configNotFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}

	// DATABASE_URL overrides the individual postgres_* settings.
	if err := cfg.parseDatabaseURL(); err != nil {
		return nil, fmt.Errorf("parsing DATABASE_URL: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets all default configuration values.
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("mode", ModeDev)
	v.SetDefault("host", "0.0.0.0")
	v.SetDefault("port", 8080)
	v.SetDefault("cors_origins", []string{"http://localhost:3000"})

	// Store defaults
	v.SetDefault("store_driver", DriverMongo)
	v.SetDefault("store_timeout_seconds", 10)
	v.SetDefault("mongo_uri", "mongodb://localhost:27017")
	v.SetDefault("mongo_db_name", "kmschat")
	v.SetDefault("postgres_host", "localhost")
	v.SetDefault("postgres_port", 5432)
	v.SetDefault("postgres_user", "kmschat")
	v.SetDefault("postgres_password", "kmschat_dev_password")
	v.SetDefault("postgres_db_name", "kmschat")
	v.SetDefault("postgres_ssl_mode", "disable")

	// Retrieval defaults
	v.SetDefault("retrieve_url", "https://kmaaivertexai-658439223400.us-central1.run.app/retrieve")
	v.SetDefault("retrieve_client_name", "provana")
	v.SetDefault("retrieve_timeout_seconds", 180)

	// Logging defaults
	v.SetDefault("log_level", "info")
	v.SetDefault("log_json", false)
}

// bindEnvVariables binds environment variables explicitly.
func bindEnvVariables(v *viper.Viper) {
	// Hardcoded strings can't fail to bind; a panic here is a bug.
	mustBind := func(key string, envVars ...string) {
		if err := v.BindEnv(append([]string{key}, envVars...)...); err != nil {
			panic(fmt.Sprintf("BUG: failed to bind %q: %v", key, err))
		}
	}

	mustBind("mode", "KMSCHAT_MODE")
	mustBind("host", "KMSCHAT_HOST")
	mustBind("port", "KMSCHAT_PORT", "PORT")
	mustBind("cors_origins", "KMSCHAT_CORS_ORIGINS")
	mustBind("store_driver", "KMSCHAT_STORE_DRIVER")
	mustBind("mongo_uri", "MONGODB_URI")
	mustBind("mongo_db_name", "KMSCHAT_MONGO_DB")
	mustBind("retrieve_url", "KMSCHAT_RETRIEVE_URL")
	mustBind("retrieve_client_name", "KMSCHAT_RETRIEVE_CLIENT")
	mustBind("log_level", "KMSCHAT_LOG_LEVEL")
	mustBind("log_json", "KMSCHAT_LOG_JSON")
}

// Validate checks the configuration for obvious mistakes. Called by
// Load; exported so tests and callers constructing Config by hand can
// fail fast too.
func (c *Config) Validate() error {
	switch c.Mode {
	case ModeDev, ModeProd:
	default:
		return fmt.Errorf("%w: %q (expected %q or %q)", ErrInvalidMode, c.Mode, ModeDev, ModeProd)
	}

	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("%w: %d", ErrInvalidPort, c.Port)
	}

	if c.StoreTimeoutSecs <= 0 {
		return fmt.Errorf("%w: store_timeout_seconds must be positive", ErrInvalidTimeout)
	}
	if c.RetrieveTimeoutSecs <= 0 {
		return fmt.Errorf("%w: retrieve_timeout_seconds must be positive", ErrInvalidTimeout)
	}

	if c.RetrieveURL == "" {
		return ErrMissingRetrieveURL
	}

	switch c.StoreDriver {
	case DriverMongo:
		if c.MongoURI == "" {
			return ErrMissingMongoURI
		}
	case DriverPostgres:
		if c.PostgresHost == "" {
			return fmt.Errorf("%w: host is empty", ErrInvalidPostgresHost)
		}
		if c.PostgresPort < 1 || c.PostgresPort > 65535 {
			return fmt.Errorf("%w: %d", ErrInvalidPostgresPort, c.PostgresPort)
		}
		if c.PostgresDBName == "" {
			return fmt.Errorf("%w: database name is empty", ErrInvalidPostgresDBName)
		}
		switch c.PostgresSSLMode {
		case "disable", "allow", "prefer", "require", "verify-ca", "verify-full":
		default:
			return fmt.Errorf("%w: %q", ErrInvalidPostgresSSLMode, c.PostgresSSLMode)
		}
	default:
		return fmt.Errorf("%w: %q (expected %q or %q)", ErrInvalidStoreDriver, c.StoreDriver, DriverMongo, DriverPostgres)
	}

	return nil
}

// Addr returns the host:port listen address.
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// IsDev reports whether the server runs in dev mode.
func (c *Config) IsDev() bool {
	return c.Mode == ModeDev
}

// StoreTimeout returns the per-operation store timeout.
func (c *Config) StoreTimeout() time.Duration {
	return time.Duration(c.StoreTimeoutSecs) * time.Second
}

// RetrieveTimeout returns the retrieval round-trip timeout.
func (c *Config) RetrieveTimeout() time.Duration {
	return time.Duration(c.RetrieveTimeoutSecs) * time.Second
}

// maskedValue is the placeholder for masked sensitive data.
const maskedValue = "████████"

// maskSecret masks a secret string for safe logging. Secrets of eight
// characters or fewer are fully masked; longer ones keep the first and
// last two characters for debug utility.
func maskSecret(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 8 {
		return maskedValue
	}
	return s[:2] + "<" + maskedValue + ">" + s[len(s)-2:]
}

// MarshalJSON implements json.Marshaler with explicit sensitive field
// masking.
//
// Sensitive fields masked:
//   - MongoURI (may embed credentials)
//   - PostgresPassword
func (c Config) MarshalJSON() ([]byte, error) {
	type alias Config
	a := alias(c)
	a.MongoURI = maskSecret(a.MongoURI)
	a.PostgresPassword = maskSecret(a.PostgresPassword)
	data, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	return data, nil
}

// String implements Stringer to prevent accidental printing of secrets.
func (c Config) String() string {
	data, err := c.MarshalJSON()
	if err != nil {
		return fmt.Sprintf("Config{error: %v}", err)
	}
	return string(data)
}
