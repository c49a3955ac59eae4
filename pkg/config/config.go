package config

import (
	"fmt"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Store: StoreConfig{Path: "./data/db"},
		Blob:  BlobConfig{Dir: "./data/blobs", MaxSize: "10MB"},
		Logging: LoggingConfig{
			Level: "info",
		},
		Reconcile: ReconcileConfig{
			Enabled:         true,
			Cron:            "0 3 * * *",
			WritesPerSecond: 50,
			Burst:           10,
		},
	}
}

// Load reads the YAML file at path (optional), overlays environment
// variables and returns the effective configuration. A .env file in the
// working directory is loaded first when present.
func Load(path string) (Config, error) {
	_ = godotenv.Load()

	cfg := Default()
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	applyEnv(&cfg)

	if _, err := cfg.MaxBlobSize(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// applyEnv overlays DABUBBLE_* environment variables on the config.
func applyEnv(cfg *Config) {
	if v := os.Getenv("DABUBBLE_DB_PATH"); v != "" {
		cfg.Store.Path = v
	}
	if v := os.Getenv("DABUBBLE_BLOB_DIR"); v != "" {
		cfg.Blob.Dir = v
	}
	if v := os.Getenv("DABUBBLE_BLOB_MAX_SIZE"); v != "" {
		cfg.Blob.MaxSize = v
	}
	if v := os.Getenv("DABUBBLE_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("DABUBBLE_RECONCILE_CRON"); v != "" {
		cfg.Reconcile.Cron = v
	}
}

// MaxBlobSize parses Blob.MaxSize into bytes. Empty means unbounded.
func (c Config) MaxBlobSize() (int64, error) {
	if c.Blob.MaxSize == "" {
		return 0, nil
	}
	n, err := humanize.ParseBytes(c.Blob.MaxSize)
	if err != nil {
		return 0, fmt.Errorf("invalid blob max_size %q: %w", c.Blob.MaxSize, err)
	}
	return int64(n), nil
}
