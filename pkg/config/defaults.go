package config

import (
	"strings"
	"time"
)

// Default values for settings left unset.
const (
	DefaultShutdownTimeout      = 30 * time.Second
	DefaultXattrPrefix          = "user."
	DefaultDataDescriptors      = 1024
	DefaultTraversalDescriptors = 1024
	DefaultDirentBufferSize     = ByteSize(32 << 10)
	DefaultCopyChunkSize        = ByteSize(4 << 20)
	DefaultMaxConcurrentCopies  = 4
	DefaultMetricsPort          = 9090
)

// ApplyDefaults sets default values for any unspecified configuration fields.
//
// Zero values are replaced with defaults and explicit values are preserved.
// Export.Path and IO.CopyBandwidth have no default: the export must be
// chosen explicitly, and zero bandwidth means unlimited.
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyServerDefaults(&cfg.Server)
	applyExportDefaults(&cfg.Export)
	applyCacheDefaults(&cfg.Cache)
	applyIODefaults(&cfg.IO)
	applyMetricsDefaults(&cfg.Metrics)
}

// applyLoggingDefaults sets logging defaults and normalizes values.
func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	// Normalize log level to uppercase for consistent internal representation
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Format == "" {
		cfg.Format = "text"
	}
	cfg.Format = strings.ToLower(cfg.Format)

	if cfg.Output == "" {
		cfg.Output = "stdout"
	}
}

func applyServerDefaults(cfg *ServerConfig) {
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = DefaultShutdownTimeout
	}
}

func applyExportDefaults(cfg *ExportConfig) {
	if cfg.XattrPrefix == "" {
		cfg.XattrPrefix = DefaultXattrPrefix
	}
	if cfg.Path != "" {
		cfg.Path = strings.TrimSpace(cfg.Path)
	}
}

func applyCacheDefaults(cfg *CacheConfig) {
	if cfg.DataDescriptors == 0 {
		cfg.DataDescriptors = DefaultDataDescriptors
	}
	if cfg.TraversalDescriptors == 0 {
		cfg.TraversalDescriptors = DefaultTraversalDescriptors
	}
}

func applyIODefaults(cfg *IOConfig) {
	if cfg.DirentBufferSize == 0 {
		cfg.DirentBufferSize = DefaultDirentBufferSize
	}
	if cfg.CopyChunkSize == 0 {
		cfg.CopyChunkSize = DefaultCopyChunkSize
	}
	if cfg.MaxConcurrentCopies == 0 {
		cfg.MaxConcurrentCopies = DefaultMaxConcurrentCopies
	}
}

func applyMetricsDefaults(cfg *MetricsConfig) {
	// Enabled defaults to false
	if cfg.Port == 0 {
		cfg.Port = DefaultMetricsPort
	}
}

// GetDefaultConfig returns a Config with all default values applied and
// the given export path.
//
// This is useful for generating sample configuration files and for tests.
func GetDefaultConfig(exportPath string) *Config {
	cfg := &Config{
		Export: ExportConfig{Path: exportPath},
	}
	ApplyDefaults(cfg)
	return cfg
}
