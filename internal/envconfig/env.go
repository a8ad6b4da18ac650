// Package envconfig loads process configuration from the environment,
// optionally seeded from a .env file. Grounded on Pocket-Omega's
// internal/config/env.go: search order is an explicit path, then walking up
// from the executable's directory, then the current working directory.
package envconfig

import (
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/devyk/kaflow-go/internal/kflog"
)

// Load searches for a .env file and loads it into the process environment.
// explicitPath, if non-empty, is tried first. A missing .env anywhere is not
// an error — the process may be configured entirely through the real
// environment (e.g. in a container).
func Load(explicitPath string) {
	candidates := make([]string, 0, 4)
	if explicitPath != "" {
		candidates = append(candidates, explicitPath)
	}

	if exe, err := os.Executable(); err == nil {
		dir := filepath.Dir(exe)
		for range 3 {
			candidates = append(candidates, filepath.Join(dir, ".env"))
			parent := filepath.Dir(dir)
			if parent == dir {
				break
			}
			dir = parent
		}
	}

	if cwd, err := os.Getwd(); err == nil {
		candidates = append(candidates, filepath.Join(cwd, ".env"))
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		if err := godotenv.Load(path); err != nil {
			kflog.Warn("envconfig: failed to load %s: %v", path, err)
			continue
		}
		kflog.Info("envconfig: loaded %s", path)
		return
	}
}

// String returns the environment variable's value or fallback if unset/empty.
func String(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// Int returns the environment variable parsed as an int, or fallback if
// unset or unparsable.
func Int(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		kflog.Warn("envconfig: %s=%q is not an int, using default %d", key, v, fallback)
		return fallback
	}
	return n
}

// Float returns the environment variable parsed as a float64, or fallback.
func Float(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		kflog.Warn("envconfig: %s=%q is not a float, using default %v", key, v, fallback)
		return fallback
	}
	return f
}

// Duration returns the environment variable parsed with time.ParseDuration,
// or fallback.
func Duration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		kflog.Warn("envconfig: %s=%q is not a duration, using default %v", key, v, fallback)
		return fallback
	}
	return d
}

// Bool returns the environment variable parsed with strconv.ParseBool, or
// fallback.
func Bool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		kflog.Warn("envconfig: %s=%q is not a bool, using default %v", key, v, fallback)
		return fallback
	}
	return b
}

// ServerConfig bundles the listen/config-directory knobs the HTTP surface
// and Config Registry need at startup.
type ServerConfig struct {
	Host      string
	Port      int
	ConfigDir string
}

// LoadServerConfig reads KAFLOW_HOST/KAFLOW_PORT/KAFLOW_CONFIG_DIR.
func LoadServerConfig() ServerConfig {
	return ServerConfig{
		Host:      String("KAFLOW_HOST", "0.0.0.0"),
		Port:      Int("KAFLOW_PORT", 8080),
		ConfigDir: String("KAFLOW_CONFIG_DIR", "./configs"),
	}
}

// MongoConfig bundles the Mongo checkpoint backend's connection knobs.
type MongoConfig struct {
	URI        string
	Database   string
	Collection string
	Timeout    time.Duration
}

// LoadMongoConfig reads KAFLOW_MONGO_URI/KAFLOW_MONGO_DB/
// KAFLOW_MONGO_COLLECTION/KAFLOW_MONGO_TIMEOUT.
func LoadMongoConfig() MongoConfig {
	return MongoConfig{
		URI:        String("KAFLOW_MONGO_URI", "mongodb://localhost:27017"),
		Database:   String("KAFLOW_MONGO_DB", "kaflow"),
		Collection: String("KAFLOW_MONGO_COLLECTION", "checkpoints"),
		Timeout:    Duration("KAFLOW_MONGO_TIMEOUT", 10*time.Second),
	}
}
