// Package config loads backend configuration from defaults, an optional YAML
// file and environment variables, in that order of precedence.
package config

import (
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultJWTSecret is the development fallback. Validate rejects it when
// Env is "production".
const DefaultJWTSecret = "your_secret_key_please_change_in_production"

// Storage backends.
const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendDynamoDB = "dynamodb"
)

// Config represents the complete backend configuration
type Config struct {
	// Env mirrors GO_ENV: "development" (default) or "production".
	Env      string         `yaml:"env"`
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Auth     AuthConfig     `yaml:"auth"`
	Storage  StorageConfig  `yaml:"storage"`
	Log      LogConfig      `yaml:"log"`
}

// ServerConfig configures the HTTP listener
type ServerConfig struct {
	Port            int           `yaml:"port"`
	AllowedOrigins  []string      `yaml:"allowed_origins"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// DatabaseConfig selects and configures the persistence backend
type DatabaseConfig struct {
	// Backend is one of memory, postgres, dynamodb.
	Backend string `yaml:"backend"`
	// Driver is the database/sql driver for the postgres backend: postgres (lib/pq) or pgx.
	Driver string       `yaml:"driver"`
	URL    string       `yaml:"url"`
	Dynamo DynamoConfig `yaml:"dynamodb"`
}

// DynamoConfig configures the DynamoDB backend
type DynamoConfig struct {
	Region string `yaml:"region"`
	// Endpoint overrides the AWS endpoint, e.g. DynamoDB Local.
	Endpoint    string `yaml:"endpoint"`
	TablePrefix string `yaml:"table_prefix"`
}

// AuthConfig configures token issuing
type AuthConfig struct {
	JWTSecret string        `yaml:"jwt_secret"`
	TokenTTL  time.Duration `yaml:"token_ttl"`
}

// StorageConfig configures the S3 bucket holding profile images. An empty
// bucket disables the image endpoints.
type StorageConfig struct {
	S3Bucket   string        `yaml:"s3_bucket"`
	Region     string        `yaml:"region"`
	PresignTTL time.Duration `yaml:"presign_ttl"`
}

// LogConfig configures the zap logger
type LogConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Env: "development",
		Server: ServerConfig{
			Port: 8080,
			AllowedOrigins: []string{
				"http://localhost:3000", "http://127.0.0.1:3000",
				"http://localhost:5173", "http://127.0.0.1:5173",
				"http://localhost:3001", "http://127.0.0.1:3001",
			},
			ShutdownTimeout: 10 * time.Second,
		},
		Database: DatabaseConfig{
			Backend: BackendPostgres,
			Driver:  "postgres",
			URL:     "user=admin password=password dbname=purposematch sslmode=disable",
			Dynamo: DynamoConfig{
				Region:      "us-east-1",
				TablePrefix: "purposematch_",
			},
		},
		Auth: AuthConfig{
			JWTSecret: DefaultJWTSecret,
			TokenTTL:  24 * time.Hour,
		},
		Storage: StorageConfig{
			Region:     "us-east-1",
			PresignTTL: 15 * time.Minute,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// LoadFromFile loads configuration from a YAML file on top of the defaults
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	return cfg, nil
}

// Load reads the optional file at path and applies the process environment.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		var err error
		if cfg, err = LoadFromFile(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overlays the variables the deployment scripts set.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}

	str("GO_ENV", &c.Env)
	str("DATABASE_URL", &c.Database.URL)
	str("DATABASE_BACKEND", &c.Database.Backend)
	str("DATABASE_DRIVER", &c.Database.Driver)
	str("JWT_SECRET", &c.Auth.JWTSecret)
	str("S3_BUCKET_NAME", &c.Storage.S3Bucket)
	str("DYNAMODB_ENDPOINT", &c.Database.Dynamo.Endpoint)
	str("DYNAMODB_TABLE_PREFIX", &c.Database.Dynamo.TablePrefix)
	str("LOG_LEVEL", &c.Log.Level)
	if v, ok := lookup("AWS_REGION"); ok && v != "" {
		c.Storage.Region = v
		c.Database.Dynamo.Region = v
	}
	if v, ok := lookup("ALLOWED_ORIGINS"); ok && v != "" {
		c.Server.AllowedOrigins = strings.Split(v, ",")
	}
	if v, ok := lookup("PORT"); ok && v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("PORT: %w", err)
		}
		c.Server.Port = port
	}
	return nil
}

// IsProduction reports whether Env is "production".
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535")
	}
	switch c.Database.Backend {
	case BackendMemory:
	case BackendPostgres:
		if c.Database.URL == "" {
			return fmt.Errorf("database.url is required for the postgres backend")
		}
		if !slices.Contains([]string{"postgres", "pgx"}, c.Database.Driver) {
			return fmt.Errorf("database.driver must be postgres or pgx, got %q", c.Database.Driver)
		}
	case BackendDynamoDB:
		if c.Database.Dynamo.Region == "" {
			return fmt.Errorf("database.dynamodb.region is required for the dynamodb backend")
		}
	default:
		return fmt.Errorf("database.backend must be memory, postgres or dynamodb, got %q", c.Database.Backend)
	}
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret is required")
	}
	if c.IsProduction() && c.Auth.JWTSecret == DefaultJWTSecret {
		return fmt.Errorf("auth.jwt_secret must be set in production")
	}
	if c.Auth.TokenTTL <= 0 {
		return fmt.Errorf("auth.token_ttl must be positive")
	}
	if c.Storage.S3Bucket != "" && c.Storage.PresignTTL <= 0 {
		return fmt.Errorf("storage.presign_ttl must be positive")
	}
	return nil
}
