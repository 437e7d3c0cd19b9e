// Package config provides environment-based configuration helpers.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/vidforge/vidforge/internal/logger"
)

// Load reads a .env file if one is present. Missing files are not an
// error; production deployments set real environment variables.
func Load() {
	if err := godotenv.Load(); err != nil {
		logger.Debugf("No .env file loaded: %v", err)
	}
}

// GetEnv retrieves the value of an environment variable with a fallback value if not set
func GetEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

// GetEnvInt retrieves an integer environment variable with a fallback value
func GetEnvInt(key string, fallback int) int {
	value, exists := os.LookupEnv(key)
	if !exists {
		return fallback
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		logger.Warnf("Invalid integer for %s: %q, using %d", key, value, fallback)
		return fallback
	}
	return n
}

// GetEnvBool retrieves a boolean environment variable with a fallback value
func GetEnvBool(key string, fallback bool) bool {
	value, exists := os.LookupEnv(key)
	if !exists {
		return fallback
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		logger.Warnf("Invalid boolean for %s: %q, using %v", key, value, fallback)
		return fallback
	}
	return b
}

// GetEnvDuration retrieves a duration environment variable with a fallback value
func GetEnvDuration(key string, fallback time.Duration) time.Duration {
	value, exists := os.LookupEnv(key)
	if !exists {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		logger.Warnf("Invalid duration for %s: %q, using %s", key, value, fallback)
		return fallback
	}
	return d
}
