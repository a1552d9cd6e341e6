// Package config provides configuration for the supervisor.
package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds the supervisor configuration.
type Config struct {
	// Server settings
	HTTPPort int

	// Registry
	RegistryFile string

	// Database
	DatabaseURL string

	// Health reconciliation
	ProbeTimeout  time.Duration
	SweepInterval time.Duration

	// Timeouts
	AgentTimeout time.Duration

	// Logging
	LogLevel string
}

// Load loads configuration from environment variables.
func Load() *Config {
	cfg := &Config{
		HTTPPort:      getEnvInt("HTTP_PORT", 8080),
		RegistryFile:  getEnv("REGISTRY_FILE", "registry.json"),
		DatabaseURL:   getEnv("DATABASE_URL", "file:supervisor.db?cache=shared&mode=rwc"),
		ProbeTimeout:  time.Duration(getEnvInt("PROBE_TIMEOUT_MS", 3000)) * time.Millisecond,
		SweepInterval: time.Duration(getEnvInt("SWEEP_INTERVAL_MS", 30000)) * time.Millisecond,
		AgentTimeout:  time.Duration(getEnvInt("AGENT_TIMEOUT_MS", 300000)) * time.Millisecond,
		LogLevel:      getEnv("LOG_LEVEL", "info"),
	}
	return cfg
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if intVal, err := strconv.Atoi(val); err == nil {
			return intVal
		}
	}
	return defaultVal
}
