package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/warden-io/warden/pkg/archive"
	"github.com/warden-io/warden/pkg/guard"
	"github.com/warden-io/warden/pkg/ratelimit"
)

// Config holds all application configuration
type Config struct {
	Server        ServerConfig
	Database      DatabaseConfig
	Redis         RedisConfig
	RateLimit     RateLimitConfig
	Seeds         guard.SeedConfig
	Retention     RetentionConfig
	Archive       archive.Config
	Observability ObservabilityConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	// Health/metrics server (separate port for k8s probes)
	HealthPort string
}

// DatabaseConfig holds the relational store settings
type DatabaseConfig struct {
	URL string
}

// RedisConfig holds the rate limiter backend settings
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// RateLimitConfig holds the fixed-window limits
type RateLimitConfig struct {
	Enabled      bool
	PerUserLimit int64
	GlobalLimit  int64
	Window       time.Duration
}

// RetentionConfig holds the audit cleanup settings
type RetentionConfig struct {
	Days           int
	Schedule       string
	ArchiveEnabled bool
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	LogLevel       string
	MetricsEnabled bool

	OTelEnabled        bool
	OTelEndpoint       string
	OTelServiceName    string
	OTelServiceVersion string
	OTelInsecure       bool
}

// seedFile is the YAML shape of the optional role seed file. Handles
// listed there are merged with the WARDEN_*_HANDLES environment lists.
type seedFile struct {
	Owners    []string `yaml:"owners"`
	Admins    []string `yaml:"admins"`
	Operators []string `yaml:"operators"`
	Whitelist struct {
		Enabled bool     `yaml:"enabled"`
		Handles []string `yaml:"handles"`
	} `yaml:"whitelist"`
}

// Load reads configuration from environment variables, merging in the
// seed file named by WARDEN_SEED_FILE when set.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Host:            getEnv("WARDEN_HOST", "0.0.0.0"),
			Port:            getEnv("WARDEN_PORT", "8080"),
			ReadTimeout:     getEnvDuration("WARDEN_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getEnvDuration("WARDEN_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:     getEnvDuration("WARDEN_IDLE_TIMEOUT", 60*time.Second),
			ShutdownTimeout: getEnvDuration("WARDEN_SHUTDOWN_TIMEOUT", 30*time.Second),
			HealthPort:      getEnv("WARDEN_HEALTH_PORT", "9090"),
		},
		Database: DatabaseConfig{
			URL: getEnv("WARDEN_DATABASE_URL", "postgres://localhost/warden?sslmode=disable"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("WARDEN_REDIS_ADDR", ""),
			Password: getEnv("WARDEN_REDIS_PASSWORD", ""),
			DB:       getEnvInt("WARDEN_REDIS_DB", 0),
		},
		RateLimit: RateLimitConfig{
			Enabled:      getEnvBool("WARDEN_RATE_LIMIT_ENABLED", false),
			PerUserLimit: int64(getEnvInt("WARDEN_RATE_LIMIT_PER_USER", 30)),
			GlobalLimit:  int64(getEnvInt("WARDEN_RATE_LIMIT_GLOBAL", 300)),
			Window:       getEnvDuration("WARDEN_RATE_LIMIT_WINDOW", time.Minute),
		},
		Seeds: guard.SeedConfig{
			OwnerHandles:     getEnvList("WARDEN_OWNER_HANDLES"),
			AdminHandles:     getEnvList("WARDEN_ADMIN_HANDLES"),
			OperatorHandles:  getEnvList("WARDEN_OPERATOR_HANDLES"),
			WhitelistEnabled: getEnvBool("WARDEN_WHITELIST_ENABLED", false),
			WhitelistHandles: getEnvList("WARDEN_WHITELIST_HANDLES"),
		},
		Retention: RetentionConfig{
			Days:           getEnvInt("WARDEN_RETENTION_DAYS", 90),
			Schedule:       getEnv("WARDEN_RETENTION_SCHEDULE", "30 3 * * *"),
			ArchiveEnabled: getEnvBool("WARDEN_ARCHIVE_ENABLED", false),
		},
		Archive: archive.Config{
			Backend:        getEnv("WARDEN_ARCHIVE_BACKEND", archive.BackendLocal),
			S3Endpoint:     getEnv("WARDEN_ARCHIVE_S3_ENDPOINT", ""),
			S3Region:       getEnv("WARDEN_ARCHIVE_S3_REGION", "us-east-1"),
			S3Bucket:       getEnv("WARDEN_ARCHIVE_S3_BUCKET", ""),
			S3AccessKey:    getEnv("WARDEN_ARCHIVE_S3_ACCESS_KEY", ""),
			S3SecretKey:    getEnv("WARDEN_ARCHIVE_S3_SECRET_KEY", ""),
			S3UsePathStyle: getEnvBool("WARDEN_ARCHIVE_S3_USE_PATH_STYLE", false),
			LocalDir:       getEnv("WARDEN_ARCHIVE_DIR", "/var/lib/warden/archive"),
		},
		Observability: ObservabilityConfig{
			LogLevel:           getEnv("WARDEN_LOG_LEVEL", "info"),
			MetricsEnabled:     getEnvBool("WARDEN_METRICS_ENABLED", true),
			OTelEnabled:        getEnvBool("WARDEN_OTEL_ENABLED", false),
			OTelEndpoint:       getEnv("WARDEN_OTEL_ENDPOINT", "localhost:4317"),
			OTelServiceName:    getEnv("WARDEN_OTEL_SERVICE_NAME", "warden"),
			OTelServiceVersion: getEnv("WARDEN_OTEL_SERVICE_VERSION", "1.0.0"),
			OTelInsecure:       getEnvBool("WARDEN_OTEL_INSECURE", true),
		},
	}

	if path := getEnv("WARDEN_SEED_FILE", ""); path != "" {
		if err := cfg.mergeSeedFile(path); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// mergeSeedFile folds a YAML seed file into the seed lists. File
// entries are appended after the environment entries; duplicates are
// harmless because the first match wins at resolution time.
func (c *Config) mergeSeedFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read seed file %s: %w", path, err)
	}

	var sf seedFile
	if err := yaml.Unmarshal(data, &sf); err != nil {
		return fmt.Errorf("failed to parse seed file %s: %w", path, err)
	}

	c.Seeds.OwnerHandles = append(c.Seeds.OwnerHandles, sf.Owners...)
	c.Seeds.AdminHandles = append(c.Seeds.AdminHandles, sf.Admins...)
	c.Seeds.OperatorHandles = append(c.Seeds.OperatorHandles, sf.Operators...)
	c.Seeds.WhitelistHandles = append(c.Seeds.WhitelistHandles, sf.Whitelist.Handles...)
	if sf.Whitelist.Enabled {
		c.Seeds.WhitelistEnabled = true
	}
	return nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Server.HealthPort == "" {
		return fmt.Errorf("health port is required")
	}
	if c.Server.Port == c.Server.HealthPort {
		return fmt.Errorf("server port and health port must be different")
	}

	if c.Database.URL == "" {
		return fmt.Errorf("database URL is required")
	}

	if c.RateLimit.Enabled {
		if c.Redis.Addr == "" {
			return fmt.Errorf("redis address is required when rate limiting is enabled")
		}
		if c.RateLimit.Window <= 0 {
			return fmt.Errorf("rate limit window must be positive")
		}
	}

	if c.Retention.Days <= 0 {
		return fmt.Errorf("retention days must be positive")
	}
	if c.Retention.ArchiveEnabled {
		switch c.Archive.Backend {
		case archive.BackendS3:
			if c.Archive.S3Bucket == "" {
				return fmt.Errorf("archive S3 bucket is required when archiving is enabled")
			}
		case archive.BackendLocal:
			if c.Archive.LocalDir == "" {
				return fmt.Errorf("archive directory is required when archiving is enabled")
			}
		default:
			return fmt.Errorf("invalid archive backend: %s (must be s3 or local)", c.Archive.Backend)
		}
	}

	if c.Observability.OTelEnabled {
		if c.Observability.OTelEndpoint == "" {
			return fmt.Errorf("OpenTelemetry endpoint is required when OTel is enabled")
		}
		if c.Observability.OTelServiceName == "" {
			return fmt.Errorf("OpenTelemetry service name is required when OTel is enabled")
		}
	}

	return nil
}

// RateLimiterConfig converts the loaded settings to the limiter's
// config shape.
func (c *Config) RateLimiterConfig() ratelimit.Config {
	return ratelimit.Config{
		PerUserLimit: c.RateLimit.PerUserLimit,
		GlobalLimit:  c.RateLimit.GlobalLimit,
		Window:       c.RateLimit.Window,
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true"
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// getEnvList splits a comma-separated environment value, trimming
// whitespace and dropping empty items.
func getEnvList(key string) []string {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
