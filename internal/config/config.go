// Package config loads agent configuration from the environment.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds agent runtime configuration.
type Config struct {
	BackendURL     string
	DataDir        string
	ListenAddr     string
	LogLevel       string
	RequestTimeout time.Duration
	ProbeURL       string
	ProbeInterval  time.Duration
	CacheMaxAge    time.Duration
}

// Load reads environment variables and .env (if present).
func Load() Config {
	_ = godotenv.Load()

	cfg := Config{
		BackendURL:     getEnv("BACKEND_URL", "http://localhost:8080"),
		DataDir:        getEnv("DATA_DIR", "./data"),
		ListenAddr:     getEnv("LISTEN_ADDR", "127.0.0.1:8090"),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		RequestTimeout: getDuration("REQUEST_TIMEOUT", 15*time.Second),
		ProbeInterval:  getDuration("PROBE_INTERVAL", 30*time.Second),
		CacheMaxAge:    getDuration("CACHE_MAX_AGE", 7*24*time.Hour),
	}
	cfg.ProbeURL = getEnv("PROBE_URL", cfg.BackendURL+"/api/health")

	return cfg
}

func getEnv(key, fallback string) string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	return val
}

func getDuration(key string, fallback time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		// Support seconds as integer without suffix.
		if secs, convErr := strconv.Atoi(val); convErr == nil {
			return time.Duration(secs) * time.Second
		}
		return fallback
	}
	return d
}
