package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config is the full service configuration.
type Config struct {
	Service   ServiceConfig
	Server    ServerConfig
	Database  DatabaseConfig
	NATS      NATSConfig
	Identity  IdentityConfig
	Redis     RedisConfig
	Auth      AuthConfig
	RateLimit RateLimitConfig
	Engine    EngineConfig
}

type ServiceConfig struct {
	Name        string
	Version     string
	Environment string
	LogLevel    string
}

type ServerConfig struct {
	Port            int
	GRPCPort        int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	RequestTimeout  time.Duration
}

// DatabaseConfig configures the Postgres pool. An empty URL selects the
// in-memory store.
type DatabaseConfig struct {
	URL         string
	MaxConns    int32
	MinConns    int32
	MaxConnTime time.Duration
	MaxIdleTime time.Duration
	HealthCheck time.Duration
}

type NATSConfig struct {
	URL           string
	SubjectPrefix string
}

type IdentityConfig struct {
	URL     string
	Timeout time.Duration
}

type RedisConfig struct {
	URL      string
	CacheTTL time.Duration
}

type AuthConfig struct {
	Secret string
	Issuer string
}

type RateLimitConfig struct {
	RPS            float64
	Burst          int
	TrustedProxies []string
}

type EngineConfig struct {
	MaxRetries int
}

// IsDevelopment reports whether the service runs in a development environment.
func (c *Config) IsDevelopment() bool {
	return strings.EqualFold(c.Service.Environment, "development")
}

// Load reads .env (if present) and the process environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Service: ServiceConfig{
			Name:        getEnv("SERVICE_NAME", "be-plt-approvals"),
			Version:     getEnv("SERVICE_VERSION", "dev"),
			Environment: getEnv("ENVIRONMENT", "development"),
			LogLevel:    getEnv("LOG_LEVEL", "info"),
		},
		Server: ServerConfig{
			Port:            getEnvInt("HTTP_PORT", 8080),
			GRPCPort:        getEnvInt("GRPC_PORT", 9090),
			ReadTimeout:     getEnvDuration("HTTP_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getEnvDuration("HTTP_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:     getEnvDuration("HTTP_IDLE_TIMEOUT", 60*time.Second),
			ShutdownTimeout: getEnvDuration("SHUTDOWN_TIMEOUT", 20*time.Second),
			RequestTimeout:  getEnvDuration("REQUEST_TIMEOUT", 30*time.Second),
		},
		Database: DatabaseConfig{
			URL:         getEnv("DATABASE_URL", ""),
			MaxConns:    int32(getEnvInt("DB_MAX_CONNS", 20)),
			MinConns:    int32(getEnvInt("DB_MIN_CONNS", 2)),
			MaxConnTime: getEnvDuration("DB_MAX_CONN_LIFETIME", time.Hour),
			MaxIdleTime: getEnvDuration("DB_MAX_CONN_IDLE", 30*time.Minute),
			HealthCheck: getEnvDuration("DB_HEALTH_CHECK_PERIOD", time.Minute),
		},
		NATS: NATSConfig{
			URL:           getEnv("NATS_URL", ""),
			SubjectPrefix: getEnv("NATS_SUBJECT_PREFIX", "notifications.approvals"),
		},
		Identity: IdentityConfig{
			URL:     getEnv("IDENTITY_URL", ""),
			Timeout: getEnvDuration("IDENTITY_TIMEOUT", 3*time.Second),
		},
		Redis: RedisConfig{
			URL:      getEnv("REDIS_URL", ""),
			CacheTTL: getEnvDuration("DIRECTORY_CACHE_TTL", time.Minute),
		},
		Auth: AuthConfig{
			Secret: getEnv("AUTH_SECRET", ""),
			Issuer: getEnv("AUTH_ISSUER", "pesio-identity"),
		},
		RateLimit: RateLimitConfig{
			RPS:            getEnvFloat("RATE_LIMIT_RPS", 50),
			Burst:          getEnvInt("RATE_LIMIT_BURST", 100),
			TrustedProxies: getEnvList("RATE_LIMIT_TRUSTED_PROXIES"),
		},
		Engine: EngineConfig{
			MaxRetries: getEnvInt("ENGINE_MAX_RETRIES", 3),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid HTTP_PORT %d", c.Server.Port)
	}
	if c.Server.GRPCPort <= 0 || c.Server.GRPCPort > 65535 {
		return fmt.Errorf("invalid GRPC_PORT %d", c.Server.GRPCPort)
	}
	if c.Server.GRPCPort == c.Server.Port {
		return fmt.Errorf("HTTP_PORT and GRPC_PORT must differ")
	}
	if c.Auth.Secret == "" && !c.IsDevelopment() {
		return fmt.Errorf("AUTH_SECRET is required outside development")
	}
	if c.Engine.MaxRetries < 0 {
		return fmt.Errorf("ENGINE_MAX_RETRIES must not be negative")
	}
	if c.RateLimit.RPS <= 0 || c.RateLimit.Burst <= 0 {
		return fmt.Errorf("RATE_LIMIT_RPS and RATE_LIMIT_BURST must be positive")
	}
	return nil
}

// getEnv gets an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt gets an environment variable as int or returns a default value
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if result, err := strconv.Atoi(value); err == nil {
			return result
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if result, err := strconv.ParseFloat(value, 64); err == nil {
			return result
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if result, err := time.ParseDuration(value); err == nil {
			return result
		}
	}
	return defaultValue
}

// getEnvList splits a comma-separated variable, dropping blanks.
func getEnvList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
