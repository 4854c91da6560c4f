package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

// envPrefix namespaces environment overrides: HANDLEFS_EXPORT_PATH sets
// export.path.
const envPrefix = "HANDLEFS"

// Config represents the complete HandleFS configuration.
//
// Configuration sources (in order of precedence):
//  1. CLI flags (highest priority)
//  2. Environment variables (HANDLEFS_*)
//  3. Configuration file (YAML or TOML)
//  4. Default values (lowest priority)
type Config struct {
	// Logging controls log output behavior
	Logging LoggingConfig `mapstructure:"logging"`

	// Server contains process-wide settings
	Server ServerConfig `mapstructure:"server"`

	// Export selects the directory tree to serve
	Export ExportConfig `mapstructure:"export"`

	// Cache bounds the descriptor caches
	Cache CacheConfig `mapstructure:"cache"`

	// IO tunes directory enumeration and range copies
	IO IOConfig `mapstructure:"io"`

	// Metrics controls Prometheus exposition
	Metrics MetricsConfig `mapstructure:"metrics"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level to output
	// Valid values: DEBUG, INFO, WARN, ERROR (case-insensitive, normalized to uppercase)
	Level string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error"`

	// Format specifies the log output format
	// Valid values: text, json
	Format string `mapstructure:"format" validate:"required,oneof=text json"`

	// Output specifies where logs are written
	// Valid values: stdout, stderr, or a file path
	Output string `mapstructure:"output" validate:"required"`
}

// ServerConfig contains process-wide settings.
type ServerConfig struct {
	// ShutdownTimeout is the maximum time to wait for graceful shutdown
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"required,gt=0"`
}

// ExportConfig selects the exported directory.
type ExportConfig struct {
	// Path is the absolute path of the directory to export
	Path string `mapstructure:"path" validate:"required"`

	// XattrPrefix is the extended attribute namespace clients see
	XattrPrefix string `mapstructure:"xattr_prefix" validate:"required,endswith=."`
}

// CacheConfig bounds the two descriptor caches.
type CacheConfig struct {
	// DataDescriptors is the capacity of the read-write descriptor cache
	DataDescriptors int `mapstructure:"data_descriptors" validate:"gt=0"`

	// TraversalDescriptors is the capacity of the directory descriptor cache
	TraversalDescriptors int `mapstructure:"traversal_descriptors" validate:"gt=0"`
}

// IOConfig tunes data movement. Sizes accept humanized values ("64KiB").
type IOConfig struct {
	// DirentBufferSize is the getdents64 batch size
	DirentBufferSize ByteSize `mapstructure:"dirent_buffer_size" validate:"gte=1024,lte=1048576"`

	// CopyChunkSize is the length of each copy_file_range call
	CopyChunkSize ByteSize `mapstructure:"copy_chunk_size" validate:"gt=0"`

	// CopyBandwidth limits range copies in bytes per second, 0 = unlimited
	CopyBandwidth ByteSize `mapstructure:"copy_bandwidth"`

	// MaxConcurrentCopies bounds range copies running at once
	MaxConcurrentCopies int `mapstructure:"max_concurrent_copies" validate:"gt=0"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	// Enabled turns on metrics collection and the HTTP endpoint
	Enabled bool `mapstructure:"enabled"`

	// Port is the HTTP port for /metrics
	Port int `mapstructure:"port" validate:"gte=0,lte=65535"`
}

// ByteSize is a size in bytes that decodes from either a number or a
// humanized string such as "32KiB" or "4MB".
type ByteSize uint64

// String renders the size in IEC units.
func (b ByteSize) String() string {
	return humanize.IBytes(uint64(b))
}

var byteSizeType = reflect.TypeOf(ByteSize(0))

// byteSizeHook decodes humanized strings into ByteSize fields.
func byteSizeHook() mapstructure.DecodeHookFuncType {
	return func(from, to reflect.Type, data any) (any, error) {
		if to != byteSizeType || from.Kind() != reflect.String {
			return data, nil
		}
		n, err := humanize.ParseBytes(strings.TrimSpace(data.(string)))
		if err != nil {
			return nil, fmt.Errorf("invalid byte size %q: %w", data, err)
		}
		return ByteSize(n), nil
	}
}

// decodeHook is applied when unmarshalling viper settings into Config.
func decodeHook() viper.DecoderConfigOption {
	return viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
		byteSizeHook(),
	))
}

// configKeys lists every setting so environment variables resolve even
// when no config file mentions the key.
var configKeys = []string{
	"logging.level",
	"logging.format",
	"logging.output",
	"server.shutdown_timeout",
	"export.path",
	"export.xattr_prefix",
	"cache.data_descriptors",
	"cache.traversal_descriptors",
	"io.dirent_buffer_size",
	"io.copy_chunk_size",
	"io.copy_bandwidth",
	"io.max_concurrent_copies",
	"metrics.enabled",
	"metrics.port",
}

// Load loads configuration from file, environment, and defaults.
//
// Configuration precedence (highest to lowest):
//  1. Environment variables (HANDLEFS_*)
//  2. Configuration file
//  3. Default values
//
// An empty configPath searches the default location. A missing file is not
// an error.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	if err := setupViper(v, configPath); err != nil {
		return nil, err
	}

	if err := readConfigFile(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// setupViper configures environment variables and config file lookup.
func setupViper(v *viper.Viper, configPath string) error {
	// Example: HANDLEFS_LOGGING_LEVEL=DEBUG
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, key := range configKeys {
		if err := v.BindEnv(key); err != nil {
			return fmt.Errorf("failed to bind %s: %w", key, err)
		}
	}

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		// $XDG_CONFIG_HOME/handlefs/config.{yaml,toml}
		v.AddConfigPath(getConfigDir())
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
	return nil
}

// readConfigFile reads the configuration file if it exists.
func readConfigFile(v *viper.Viper) error {
	err := v.ReadInConfig()
	if err == nil {
		return nil
	}

	var notFound viper.ConfigFileNotFoundError
	if errors.As(err, &notFound) || errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return fmt.Errorf("failed to read config file: %w", err)
}

// getConfigDir returns $XDG_CONFIG_HOME/handlefs, ~/.config/handlefs, or
// the current directory if neither can be determined.
func getConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "handlefs")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}

	return filepath.Join(home, ".config", "handlefs")
}

// GetDefaultConfigPath returns the default configuration file path.
func GetDefaultConfigPath() string {
	return filepath.Join(getConfigDir(), "config.yaml")
}
