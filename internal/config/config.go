package config

import (
	"flag"
	"os"
	"strconv"
	"time"
)

// Config holds all application configuration
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Cache    CacheConfig
	Ingest   IngestConfig
	Logging  LoggingConfig
	Auth     AuthConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	HTTPAddr string
}

// DatabaseConfig holds PostgreSQL configuration
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
}

// CacheConfig holds cache configuration for the favicon projection
type CacheConfig struct {
	Backend   string // "memory" or "redis"
	TTL       time.Duration
	RedisAddr string
}

// IngestConfig holds feed refresh configuration
type IngestConfig struct {
	// FetchTimeout bounds a single fetch+parse of one feed URL.
	FetchTimeout time.Duration
	// RateLimitDur is the minimum delay between fetches to the same host.
	RateLimitDur time.Duration
	UserAgent    string
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level string
}

// AuthConfig holds admin API authentication configuration. The Fever
// endpoint itself authenticates by api_key only and never uses these.
type AuthConfig struct {
	JWTSecret      string
	JWTIssuer      string
	JWTAudience    string
	AccessTokenTTL time.Duration
}

// Load parses flags and environment variables to build configuration
func Load() *Config {
	httpAddr := flag.String("http", ":8080", "HTTP server address")
	dbHost := flag.String("db-host", "localhost", "PostgreSQL host")
	dbPort := flag.Int("db-port", 5432, "PostgreSQL port")
	dbUser := flag.String("db-user", "postgres", "PostgreSQL user")
	dbPassword := flag.String("db-password", "postgres", "PostgreSQL password")
	dbName := flag.String("db-name", "feverd", "PostgreSQL database name")
	dbSSLMode := flag.String("db-sslmode", "disable", "PostgreSQL SSL mode")
	cacheBackend := flag.String("cache-backend", "memory", "Cache backend: memory or redis")
	cacheTTL := flag.Duration("cache-ttl", 10*time.Minute, "Cache TTL for the favicon projection")
	redisAddr := flag.String("redis-addr", "localhost:6379", "Redis server address")
	fetchTimeout := flag.Duration("fetch-timeout", 30*time.Second, "Timeout for fetching one feed")
	rateLimitDur := flag.Duration("rate-limit", time.Second, "Minimum delay between requests to same host")
	logLevel := flag.String("log-level", "info", "Log level (debug, info, warn, error)")
	flag.Parse()

	applyEnvOverrides(httpAddr, dbHost, dbPort, dbUser, dbPassword, dbName, dbSSLMode,
		cacheBackend, cacheTTL, redisAddr, fetchTimeout, rateLimitDur, logLevel)

	return &Config{
		Server: ServerConfig{
			HTTPAddr: *httpAddr,
		},
		Database: DatabaseConfig{
			Host:     *dbHost,
			Port:     *dbPort,
			User:     *dbUser,
			Password: *dbPassword,
			Database: *dbName,
			SSLMode:  *dbSSLMode,
		},
		Cache: CacheConfig{
			Backend:   *cacheBackend,
			TTL:       *cacheTTL,
			RedisAddr: *redisAddr,
		},
		Ingest: IngestConfig{
			FetchTimeout: *fetchTimeout,
			RateLimitDur: *rateLimitDur,
			UserAgent:    getEnvOrDefault("FETCH_USER_AGENT", "feverd/1.0"),
		},
		Logging: LoggingConfig{
			Level: *logLevel,
		},
		Auth: loadAuthConfig(),
	}
}

func loadAuthConfig() AuthConfig {
	accessTTL := 12 * time.Hour
	if v := os.Getenv("AUTH_ACCESS_TOKEN_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			accessTTL = d
		}
	}

	return AuthConfig{
		JWTSecret:      getEnvOrDefault("AUTH_JWT_SECRET", "change-me-in-production"),
		JWTIssuer:      getEnvOrDefault("AUTH_JWT_ISSUER", "feverd"),
		JWTAudience:    getEnvOrDefault("AUTH_JWT_AUDIENCE", "feverd-admin"),
		AccessTokenTTL: accessTTL,
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func applyEnvOverrides(
	httpAddr *string,
	dbHost *string,
	dbPort *int,
	dbUser *string,
	dbPassword *string,
	dbName *string,
	dbSSLMode *string,
	cacheBackend *string,
	cacheTTL *time.Duration,
	redisAddr *string,
	fetchTimeout *time.Duration,
	rateLimitDur *time.Duration,
	logLevel *string,
) {
	if v := os.Getenv("HTTP_ADDR"); v != "" {
		*httpAddr = v
	}
	if v := os.Getenv("DB_HOST"); v != "" {
		*dbHost = v
	}
	if v := os.Getenv("DB_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			*dbPort = p
		}
	}
	if v := os.Getenv("DB_USER"); v != "" {
		*dbUser = v
	}
	if v := os.Getenv("DB_PASSWORD"); v != "" {
		*dbPassword = v
	}
	if v := os.Getenv("DB_NAME"); v != "" {
		*dbName = v
	}
	if v := os.Getenv("DB_SSLMODE"); v != "" {
		*dbSSLMode = v
	}
	if v := os.Getenv("CACHE_BACKEND"); v != "" {
		*cacheBackend = v
	}
	if v := os.Getenv("CACHE_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*cacheTTL = d
		}
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		*redisAddr = v
	}
	if v := os.Getenv("FETCH_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*fetchTimeout = d
		}
	}
	if v := os.Getenv("RATE_LIMIT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*rateLimitDur = d
		}
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		*logLevel = v
	}
}
