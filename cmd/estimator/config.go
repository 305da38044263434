package main

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

type storageConfig struct {
	profile     string
	storeDSN    string
	fallbackDSN string
	queueDSN    string
}

// storageConfigFromEnv resolves backend DSNs. Explicit DSNs override the
// defaults of ESTIMATOR_BACKEND_PROFILE.
func storageConfigFromEnv() (storageConfig, error) {
	profile := strings.ToLower(strings.TrimSpace(os.Getenv("ESTIMATOR_BACKEND_PROFILE")))
	cfg, err := storageProfileDefaults(profile, envOrDefault("ESTIMATOR_DATA_DIR", ".estimator"))
	if err != nil {
		return storageConfig{}, err
	}
	if dsn := strings.TrimSpace(os.Getenv("ESTIMATOR_STORE_DSN")); dsn != "" {
		cfg.storeDSN = dsn
	}
	if dsn := strings.TrimSpace(os.Getenv("ESTIMATOR_FALLBACK_DSN")); dsn != "" {
		cfg.fallbackDSN = dsn
	}
	if dsn := strings.TrimSpace(os.Getenv("ESTIMATOR_MIRROR_QUEUE_DSN")); dsn != "" {
		cfg.queueDSN = dsn
	}
	return cfg, nil
}

func storageProfileDefaults(profile, dataDir string) (storageConfig, error) {
	switch profile {
	case "", "custom":
		return storageConfig{profile: "custom"}, nil
	case "memory", "inmemory":
		return storageConfig{profile: "memory", storeDSN: "memory://", queueDSN: "memory://"}, nil
	case "durable-local", "local-durable":
		return storageConfig{
			profile:     "durable-local",
			storeDSN:    "file://" + filepath.Join(dataDir, "store"),
			fallbackDSN: "memory://",
			queueDSN:    "file://" + filepath.Join(dataDir, "mirror-queue.json"),
		}, nil
	case "sqlite":
		return storageConfig{
			profile:     "sqlite",
			storeDSN:    "sqlite://" + filepath.Join(dataDir, "estimator.db"),
			fallbackDSN: "memory://",
			queueDSN:    "file://" + filepath.Join(dataDir, "mirror-queue.json"),
		}, nil
	case "production", "prod":
		dsn := strings.TrimSpace(os.Getenv("ESTIMATOR_PRODUCTION_DSN"))
		if dsn == "" {
			dsn = strings.TrimSpace(os.Getenv("ESTIMATOR_POSTGRES_DSN"))
		}
		if dsn == "" {
			return storageConfig{}, fmt.Errorf("ESTIMATOR_PRODUCTION_DSN or ESTIMATOR_POSTGRES_DSN is required when ESTIMATOR_BACKEND_PROFILE=%s", profile)
		}
		return storageConfig{
			profile:     "production",
			storeDSN:    dsn,
			fallbackDSN: "memory://",
			queueDSN:    "file://" + filepath.Join(dataDir, "mirror-queue.json"),
		}, nil
	default:
		return storageConfig{}, fmt.Errorf("unsupported ESTIMATOR_BACKEND_PROFILE: %s", profile)
	}
}

func envOrDefault(name, fallback string) string {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		return fallback
	}
	return value
}

func intEnv(name string, fallback int) int {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		log.Printf("invalid %s=%q, using fallback %d", name, raw, fallback)
		return fallback
	}
	return value
}

func int64Env(name string, fallback int64) int64 {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return fallback
	}
	value, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		log.Printf("invalid %s=%q, using fallback %d", name, raw, fallback)
		return fallback
	}
	return value
}

func durationEnv(name string, fallback time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return fallback
	}
	value, err := time.ParseDuration(raw)
	if err != nil {
		log.Printf("invalid %s=%q, using fallback %s", name, raw, fallback.String())
		return fallback
	}
	return value
}

func boolEnv(name string, fallback bool) bool {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return fallback
	}
	value, err := strconv.ParseBool(raw)
	if err != nil {
		log.Printf("invalid %s=%q, using fallback %t", name, raw, fallback)
		return fallback
	}
	return value
}

func splitList(raw string) []string {
	var out []string
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
