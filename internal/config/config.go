package config

import (
	"errors"
	"fmt"
	"log"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const devBackendSecret = "dev-secret-not-for-production"

// Config holds application configuration
type Config struct {
	Port           string
	BackendURL     string
	DatabaseURL    string // empty: credentials are kept in memory
	RabbitMQURL    string // empty: no broker signals
	AllowedOrigins string
	Environment    string // development, staging, production

	RoutesFile        string
	OpenAPISpec       string
	OpenAPIValidation bool

	ClientIdleTTL time.Duration
	CookieSecure  bool

	LogLevel  string
	LogFormat string

	DevBackendPort   string
	DevBackendSecret string
}

// Load reads configuration from the environment, after a .env file when one
// exists, and validates it.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	env := getEnv("ENVIRONMENT", "development")
	cfg := &Config{
		Port:              getEnv("PORT", "8080"),
		BackendURL:        strings.TrimRight(getEnv("BACKEND_URL", "http://localhost:8000"), "/"),
		DatabaseURL:       getEnv("DATABASE_URL", ""),
		RabbitMQURL:       getEnv("RABBITMQ_URL", ""),
		AllowedOrigins:    getEnv("ALLOWED_ORIGINS", "http://localhost:3000,http://localhost:8080"),
		Environment:       env,
		RoutesFile:        getEnv("ROUTES_FILE", ""),
		OpenAPISpec:       getEnv("OPENAPI_SPEC", "artifacts/openapi.yaml"),
		LogLevel:          getEnv("LOG_LEVEL", "info"),
		LogFormat:         getEnv("LOG_FORMAT", "json"),
		DevBackendPort:    getEnv("DEV_BACKEND_PORT", "8000"),
		DevBackendSecret:  getEnv("DEV_BACKEND_SECRET", ""),
		OpenAPIValidation: !isProduction(env),
	}

	var errs []error
	var err error
	if cfg.OpenAPIValidation, err = getBool("OPENAPI_VALIDATION", cfg.OpenAPIValidation); err != nil {
		errs = append(errs, err)
	}
	if cfg.CookieSecure, err = getBool("COOKIE_SECURE", false); err != nil {
		errs = append(errs, err)
	}
	if cfg.ClientIdleTTL, err = getDuration("CLIENT_IDLE_TTL", 30*time.Minute); err != nil {
		errs = append(errs, err)
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// Validate checks configuration for security and correctness
func (c *Config) Validate() error {
	u, err := url.Parse(c.BackendURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("BACKEND_URL must be an absolute http(s) URL (got %q)", c.BackendURL)
	}
	if c.ClientIdleTTL <= 0 {
		return fmt.Errorf("CLIENT_IDLE_TTL must be positive (got %s)", c.ClientIdleTTL)
	}

	if c.IsProduction() {
		if c.DatabaseURL == "" {
			return errors.New("DATABASE_URL must be set in production")
		}
		if u.Scheme != "https" {
			return errors.New("BACKEND_URL must use https in production")
		}
		if !c.CookieSecure {
			return errors.New("COOKIE_SECURE must be true in production")
		}
		if c.AllowedOrigins != "" {
			log.Println("WARNING: Ensure ALLOWED_ORIGINS uses HTTPS in production")
		}
	} else if c.DevBackendSecret == "" {
		c.DevBackendSecret = devBackendSecret
	}

	return nil
}

// IsProduction returns true if running in production environment
func (c *Config) IsProduction() bool {
	return isProduction(c.Environment)
}

// IsDevelopment returns true if running in development environment
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development" || c.Environment == "dev" || c.Environment == ""
}

func isProduction(env string) bool {
	return env == "production" || env == "prod"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getBool(key string, defaultValue bool) (bool, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return false, fmt.Errorf("%s: invalid boolean %q", key, value)
	}
	return b, nil
}

func getDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q", key, value)
	}
	return d, nil
}
