// Package config provides configuration management for the SLA
// tracker.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Environment represents the deployment environment.
type Environment string

const (
	// EnvDevelopment is the default local development environment.
	EnvDevelopment Environment = "development"
	// EnvStaging is the staging/pre-production environment.
	EnvStaging Environment = "staging"
	// EnvProduction is the production environment.
	EnvProduction Environment = "production"
)

// ServerConfig holds server configuration loaded from environment
// variables.
type ServerConfig struct {
	Environment Environment
	ListenAddr  string
	DatabaseURL string
	RedisURL    string

	// AdminAPIToken guards the rule administration endpoints. Empty
	// disables admin auth, which is only sensible in development.
	AdminAPIToken string

	// WarningFraction is the remaining share of a target below which
	// items become at_risk.
	WarningFraction float64

	// EvaluationInterval is the cadence of scheduled evaluation passes.
	EvaluationInterval time.Duration

	// PageSize caps work items fetched per store round trip during a
	// pass.
	PageSize int

	// RuleSeedFile optionally points at a YAML file of rules loaded at
	// startup for empty orgs.
	RuleSeedFile string

	// NotificationConfigFile points at the YAML notification targets
	// and SMTP configuration.
	NotificationConfigFile string

	RateLimitEnabled bool
	RateLimitPeriod  time.Duration
	RateLimitCount   int64
}

// LoadServerConfig reads server configuration from environment
// variables.
func LoadServerConfig() (ServerConfig, error) {
	env := Environment(os.Getenv("ENV"))
	switch env {
	case EnvDevelopment, EnvStaging, EnvProduction:
		// valid
	default:
		env = EnvDevelopment
	}

	cfg := ServerConfig{
		Environment:            env,
		ListenAddr:             getEnv("LISTEN_ADDR", ":8080"),
		DatabaseURL:            os.Getenv("DATABASE_URL"),
		RedisURL:               os.Getenv("REDIS_URL"),
		AdminAPIToken:          os.Getenv("ADMIN_API_TOKEN"),
		WarningFraction:        getEnvFloat("SLA_WARNING_FRACTION", 0.25),
		EvaluationInterval:     getEnvDuration("SLA_EVALUATION_INTERVAL", time.Minute),
		PageSize:               getEnvInt("SLA_PAGE_SIZE", 200),
		RuleSeedFile:           os.Getenv("SLA_RULE_SEED_FILE"),
		NotificationConfigFile: os.Getenv("NOTIFICATION_CONFIG_FILE"),
		RateLimitEnabled:       getEnvBool("RATE_LIMIT_ENABLED", true),
		RateLimitPeriod:        getEnvDuration("RATE_LIMIT_PERIOD", time.Minute),
		RateLimitCount:         int64(getEnvInt("RATE_LIMIT_COUNT", 300)),
	}

	if cfg.DatabaseURL == "" {
		return cfg, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.WarningFraction <= 0 || cfg.WarningFraction >= 1 {
		return cfg, fmt.Errorf("SLA_WARNING_FRACTION must be between 0 and 1, got %v", cfg.WarningFraction)
	}
	if cfg.EvaluationInterval < time.Second {
		return cfg, fmt.Errorf("SLA_EVALUATION_INTERVAL must be at least 1s, got %s", cfg.EvaluationInterval)
	}
	if cfg.PageSize <= 0 {
		return cfg, fmt.Errorf("SLA_PAGE_SIZE must be positive, got %d", cfg.PageSize)
	}
	if env == EnvProduction && cfg.AdminAPIToken == "" {
		return cfg, fmt.Errorf("ADMIN_API_TOKEN is required in production")
	}

	return cfg, nil
}

// getEnv reads a string from an environment variable, returning the
// default if unset.
func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

// getEnvBool reads a boolean from an environment variable, returning
// the default if unset or invalid.
func getEnvBool(key string, defaultVal bool) bool {
	val := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	switch val {
	case "true", "1", "yes":
		return true
	case "false", "0", "no":
		return false
	default:
		return defaultVal
	}
}

// getEnvInt reads an integer from an environment variable, returning
// the default if unset or invalid.
func getEnvInt(key string, defaultVal int) int {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}
	return n
}

// getEnvFloat reads a float from an environment variable, returning
// the default if unset or invalid.
func getEnvFloat(key string, defaultVal float64) float64 {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	f, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return defaultVal
	}
	return f
}

// getEnvDuration reads a duration from an environment variable,
// returning the default if unset or invalid.
func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return defaultVal
	}
	return d
}
