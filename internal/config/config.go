// Package config handles configuration loading for Kestrel.
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/openrisk/kestrel/internal/domain"
)

// Load builds the configuration from defaults, an optional YAML file
// and environment overrides, then validates the result. An empty path
// falls back to KESTREL_CONFIG_PATH, then to configs/config.yaml; a
// missing file is not an error.
func Load(path string) (*domain.Config, error) {
	cfg := domain.DefaultConfig()

	if path == "" {
		path = os.Getenv("KESTREL_CONFIG_PATH")
	}
	if path == "" {
		path = "configs/config.yaml"
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	} else if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides. Secrets
// and deployment-specific endpoints come in this way so the YAML file
// can stay checked in.
func applyEnvOverrides(cfg *domain.Config) {
	if port := os.Getenv("KESTREL_HTTP_PORT"); port != "" {
		if n, err := strconv.Atoi(port); err == nil {
			cfg.Server.Port = n
		}
	}

	if level := os.Getenv("KESTREL_LOG_LEVEL"); level != "" {
		cfg.Logging.Level = level
	}

	if driver := os.Getenv("KESTREL_DB_DRIVER"); driver != "" {
		cfg.Repository.Driver = driver
	}

	if path := os.Getenv("KESTREL_SQLITE_PATH"); path != "" {
		cfg.Repository.SQLitePath = path
	}

	if host := os.Getenv("KESTREL_POSTGRES_HOST"); host != "" {
		cfg.Repository.PostgresHost = host
	}

	if user := os.Getenv("KESTREL_POSTGRES_USER"); user != "" {
		cfg.Repository.PostgresUser = user
	}

	if pass := os.Getenv("KESTREL_POSTGRES_PASSWORD"); pass != "" {
		cfg.Repository.PostgresPassword = pass
	}

	if db := os.Getenv("KESTREL_POSTGRES_DB"); db != "" {
		cfg.Repository.PostgresDB = db
	}

	if addr := os.Getenv("KESTREL_REDIS_ADDR"); addr != "" {
		cfg.Cache.Type = "redis"
		cfg.Cache.RedisAddr = addr
	}

	if pass := os.Getenv("KESTREL_REDIS_PASSWORD"); pass != "" {
		cfg.Cache.RedisPassword = pass
	}

	if url := os.Getenv("KESTREL_PROVIDER_URL"); url != "" {
		cfg.Provider.URL = url
	}

	if threshold := os.Getenv("KESTREL_PROVIDER_THRESHOLD"); threshold != "" {
		if f, err := strconv.ParseFloat(threshold, 64); err == nil {
			cfg.Provider.Threshold = f
		}
	}

	if seed := os.Getenv("KESTREL_SEED_RULES"); seed != "" {
		cfg.Rules.Seed = seed == "true"
	}
}
