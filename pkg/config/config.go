package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	Database  DatabaseConfig
	Server    ServerConfig
	Storage   StorageConfig
	Redis     RedisConfig
	Logging   LoggingConfig
	Telemetry TelemetryConfig
	Seed      SeedConfig
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	URL string
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port               int
	Host               string
	AllowedOrigins     []string
	MaxMultipartMemory int64
	RateLimitPerMinute int
	ShutdownTimeout    time.Duration
}

// StorageConfig holds blob store configuration
type StorageConfig struct {
	UploadDir          string
	PlaceholderMissing bool
	MaxFileSize        int64
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	URL     string
	Enabled bool
	TTL     time.Duration
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level      string
	Format     string // "json" or "text"
	FilePath   string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// TelemetryConfig holds observability configuration
type TelemetryConfig struct {
	Enabled           bool
	JaegerURL         string
	PrometheusEnabled bool
	ServiceName       string
}

// SeedConfig controls sample data insertion on an empty database
type SeedConfig struct {
	Enabled bool
}

const envPrefix = "FILEDEPOT"

// Load loads configuration from .env, environment variables and config file
func Load() (*Config, error) {
	// A missing .env is the normal case outside local development.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("error reading .env file: %w", err)
	}

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.filedepot")
	v.AddConfigPath("/etc/filedepot")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	cfg := &Config{
		Database: DatabaseConfig{
			URL: getString(v, "database_url", "sqlite://data/database.sqlite"),
		},
		Server: ServerConfig{
			Port:               getInt(v, "http_server_port", 3001),
			Host:               getString(v, "http_server_host", "0.0.0.0"),
			AllowedOrigins:     splitList(getString(v, "allowed_origins", "*")),
			MaxMultipartMemory: int64(getInt(v, "max_multipart_memory_mb", 32)) << 20,
			RateLimitPerMinute: getInt(v, "rate_limit_per_minute", 0),
			ShutdownTimeout:    getDuration(v, "shutdown_timeout", 10*time.Second),
		},
		Storage: StorageConfig{
			UploadDir:          getString(v, "upload_dir", "uploads"),
			PlaceholderMissing: getBool(v, "placeholder_missing", true),
			MaxFileSize:        int64(getInt(v, "max_file_size_mb", 100)) << 20,
		},
		Redis: RedisConfig{
			URL:     getString(v, "redis_url", ""),
			Enabled: getString(v, "redis_url", "") != "",
			TTL:     getDuration(v, "redis_ttl", 30*time.Second),
		},
		Logging: LoggingConfig{
			Level:      getString(v, "log_level", "INFO"),
			Format:     getString(v, "log_format", "json"),
			FilePath:   getString(v, "log_file", ""),
			MaxSizeMB:  getInt(v, "log_max_size_mb", 100),
			MaxBackups: getInt(v, "log_max_backups", 3),
			MaxAgeDays: getInt(v, "log_max_age_days", 7),
			Compress:   getBool(v, "log_compress", false),
		},
		Telemetry: TelemetryConfig{
			Enabled:           getBool(v, "telemetry_enabled", false),
			JaegerURL:         getString(v, "jaeger_url", ""),
			PrometheusEnabled: getBool(v, "prometheus_enabled", true),
			ServiceName:       getString(v, "service_name", "filedepot"),
		},
		Seed: SeedConfig{
			Enabled: getBool(v, "seed_sample_data", true),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("database_url", "sqlite://data/database.sqlite")
	v.SetDefault("http_server_port", 3001)
	v.SetDefault("http_server_host", "0.0.0.0")
	v.SetDefault("allowed_origins", "*")
	v.SetDefault("max_multipart_memory_mb", 32)
	v.SetDefault("rate_limit_per_minute", 0)
	v.SetDefault("upload_dir", "uploads")
	v.SetDefault("placeholder_missing", true)
	v.SetDefault("max_file_size_mb", 100)
	v.SetDefault("log_level", "INFO")
	v.SetDefault("log_format", "json")
	v.SetDefault("telemetry_enabled", false)
	v.SetDefault("prometheus_enabled", true)
	v.SetDefault("service_name", "filedepot")
	v.SetDefault("seed_sample_data", true)
}

func getString(v *viper.Viper, key, defaultValue string) string {
	if v.IsSet(key) {
		return v.GetString(key)
	}
	if val := os.Getenv(envPrefix + "_" + toEnvKey(key)); val != "" {
		return val
	}
	return defaultValue
}

func getInt(v *viper.Viper, key string, defaultValue int) int {
	if v.IsSet(key) {
		return v.GetInt(key)
	}
	if val := os.Getenv(envPrefix + "_" + toEnvKey(key)); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultValue
}

func getBool(v *viper.Viper, key string, defaultValue bool) bool {
	if v.IsSet(key) {
		return v.GetBool(key)
	}
	if val := os.Getenv(envPrefix + "_" + toEnvKey(key)); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return defaultValue
}

func getDuration(v *viper.Viper, key string, defaultValue time.Duration) time.Duration {
	if v.IsSet(key) {
		return v.GetDuration(key)
	}
	if val := os.Getenv(envPrefix + "_" + toEnvKey(key)); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultValue
}

// toEnvKey converts snake_case or kebab-case to UPPER_SNAKE_CASE
func toEnvKey(key string) string {
	return strings.ToUpper(strings.ReplaceAll(key, "-", "_"))
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("database_url is required")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("http_server_port must be between 1 and 65535")
	}
	if c.Storage.UploadDir == "" {
		return fmt.Errorf("upload_dir is required")
	}
	if c.Storage.MaxFileSize <= 0 {
		return fmt.Errorf("max_file_size_mb must be positive")
	}
	if c.Server.RateLimitPerMinute < 0 {
		return fmt.Errorf("rate_limit_per_minute must not be negative")
	}
	if c.Redis.Enabled && c.Redis.TTL <= 0 {
		return fmt.Errorf("redis_ttl must be positive when redis is enabled")
	}
	return nil
}
