package config

// Config is the main configuration struct.
type Config struct {
	Store     StoreConfig     `yaml:"store"`
	Blob      BlobConfig      `yaml:"blob"`
	Logging   LoggingConfig   `yaml:"logging"`
	Reconcile ReconcileConfig `yaml:"reconcile"`
}

// StoreConfig holds durable-store settings.
type StoreConfig struct {
	Path string `yaml:"path"`
}

// BlobConfig holds blob-store settings. MaxSize accepts human-readable
// values such as "10MB".
type BlobConfig struct {
	Dir     string `yaml:"dir"`
	MaxSize string `yaml:"max_size"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// ReconcileConfig holds configuration for the projection reconciler.
type ReconcileConfig struct {
	Enabled bool   `yaml:"enabled"`
	Cron    string `yaml:"cron"`
	// WritesPerSecond paces reconciliation rewrites against the store.
	WritesPerSecond float64 `yaml:"writes_per_second"`
	Burst           int     `yaml:"burst"`
}
