package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/brettbedarf/remotefs/internal/util"
	"gopkg.in/yaml.v3"
)

// Bytes per MB
const MB = 1024 * 1024

// Log verbosity values as passed on the command line or in config files
const (
	ErrorVerbose = iota + 1
	WarnVerbose
	InfoVerbose
	DebugVerbose
	TraceVerbose
)

// Backend types understood by the adapters registry
const (
	BackendGDrive = "gdrive"
	BackendSFTP   = "sftp"
	BackendS3     = "s3"
)

// Default configuration constants. See [Config] for field descriptions.
const (
	DefaultFsName    = "remotefs"
	DefaultName      = "remotefs"
	DefaultLogLvl    = util.InfoLevel
	DefaultLogFormat = util.ConsoleFormat
	DefaultBackend   = BackendGDrive

	// DefaultCacheTTL is the lifetime in seconds of path and object cache entries
	DefaultCacheTTL = 10.0

	// DefaultCacheMaxEntries caps each identifier cache
	DefaultCacheMaxEntries = 10000

	// DefaultVolumeTotalBytes and DefaultVolumeFreeBytes are the fixed capacity
	// reported for the volume; they are not measured from the backend.
	DefaultVolumeTotalBytes = 1024 * MB
	DefaultVolumeFreeBytes  = 512 * MB

	// Uses 31 bits (2^31 - 1 = 2,147,483,647) to ensure compatibility with libfuse
	// and avoid signed integer overflow.
	DefaultMaxFH = (1 << 31) - 1

	// DefaultAttrTimeout is the attribute cache timeout in seconds
	DefaultAttrTimeout = 1.0

	// DefaultEntryTimeout is the directory entry cache timeout in seconds
	DefaultEntryTimeout = 1.0

	// DefaultDirectIO bypasses the kernel page cache so every read reaches the backend
	DefaultDirectIO = true
)

// Config contains runtime configuration values for a single mount.
type Config struct {
	MountOptions
	LogLvl    util.LogLevel  // Internal log level derived from verbosity (Default info)
	LogFormat util.LogFormat // console or json (Default console)
	Backend   string         // Registered backend type to mount (Default gdrive)

	CacheTTL        float64 // Lifetime of identifier cache entries in seconds (Default 10)
	CacheMaxEntries int     // Maximum entries per identifier cache; 0 disables the cap (Default 10000)
	LocalBufferMax  int64   // Files up to this size are downloaded once on open; 0 disables (Default 0)
	LocalBufferDir  string  // Directory for locally buffered files (Default OS temp dir)

	VolumeTotalBytes int64 // Reported volume capacity (Default 1GiB)
	VolumeFreeBytes  int64 // Reported free space (Default 512MiB)

	MetricsAddr string // Listen address for the prometheus endpoint; empty disables it

	// NOTE: Low-level FUSE config (strongly recommend defaults unless you really know what you're doing):

	MaxFH        int     // Maximum file handle value for FUSE compatibility (Default 2147483647)
	AttrTimeout  float64 // Attribute cache timeout in seconds (Default 1.0)
	EntryTimeout float64 // Directory entry cache timeout in seconds (Default 1.0)
	DirectIO     bool    // Whether to bypass the page cache (Default true)

	Drive DriveConfig
	SFTP  SFTPConfig
	S3    S3Config
}

// CacheTTLDuration returns CacheTTL as a time.Duration.
func (c *Config) CacheTTLDuration() time.Duration {
	return secondsToDuration(c.CacheTTL)
}

// AttrTimeoutDuration returns AttrTimeout as a time.Duration.
func (c *Config) AttrTimeoutDuration() time.Duration {
	return secondsToDuration(c.AttrTimeout)
}

// EntryTimeoutDuration returns EntryTimeout as a time.Duration.
func (c *Config) EntryTimeoutDuration() time.Duration {
	return secondsToDuration(c.EntryTimeout)
}

func secondsToDuration(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

// ConfigOverride uses pointer fields to distinguish between unset and zero values
// when loading partial configuration. See [Config] for field descriptions.
type ConfigOverride struct {
	// LogLvl is the verbosity between 1 (error) and 5 (trace), not a [util.LogLevel]
	LogLvl           *int           `yaml:"log_lvl,omitempty" json:"log_lvl,omitempty"`
	LogFormat        *string        `yaml:"log_format,omitempty" json:"log_format,omitempty"`
	Debug            *bool          `yaml:"debug,omitempty" json:"debug,omitempty"`
	FsName           *string        `yaml:"fs_name,omitempty" json:"fs_name,omitempty"`
	Name             *string        `yaml:"name,omitempty" json:"name,omitempty"`
	Backend          *string        `yaml:"backend,omitempty" json:"backend,omitempty"`
	CacheTTL         *float64       `yaml:"cache_ttl,omitempty" json:"cache_ttl,omitempty"`
	CacheMaxEntries  *int           `yaml:"cache_max_entries,omitempty" json:"cache_max_entries,omitempty"`
	LocalBufferMax   *int64         `yaml:"local_buffer_max,omitempty" json:"local_buffer_max,omitempty"`
	LocalBufferDir   *string        `yaml:"local_buffer_dir,omitempty" json:"local_buffer_dir,omitempty"`
	VolumeTotalBytes *int64         `yaml:"volume_total_bytes,omitempty" json:"volume_total_bytes,omitempty"`
	VolumeFreeBytes  *int64         `yaml:"volume_free_bytes,omitempty" json:"volume_free_bytes,omitempty"`
	MetricsAddr      *string        `yaml:"metrics_addr,omitempty" json:"metrics_addr,omitempty"`
	MaxFH            *int           `yaml:"max_fh,omitempty" json:"max_fh,omitempty"`
	AttrTimeout      *float64       `yaml:"attr_timeout,omitempty" json:"attr_timeout,omitempty"`
	EntryTimeout     *float64       `yaml:"entry_timeout,omitempty" json:"entry_timeout,omitempty"`
	DirectIO         *bool          `yaml:"direct_io,omitempty" json:"direct_io,omitempty"`
	Drive            *DriveOverride `yaml:"gdrive,omitempty" json:"gdrive,omitempty"`
	SFTP             *SFTPOverride  `yaml:"sftp,omitempty" json:"sftp,omitempty"`
	S3               *S3Override    `yaml:"s3,omitempty" json:"s3,omitempty"`
}

// NewDefaultConfig creates a new Config with all default values.
func NewDefaultConfig() *Config {
	return &Config{
		MountOptions: MountOptions{
			FsName: DefaultFsName,
			Name:   DefaultName,
		},
		LogLvl:           DefaultLogLvl,
		LogFormat:        DefaultLogFormat,
		Backend:          DefaultBackend,
		CacheTTL:         DefaultCacheTTL,
		CacheMaxEntries:  DefaultCacheMaxEntries,
		VolumeTotalBytes: DefaultVolumeTotalBytes,
		VolumeFreeBytes:  DefaultVolumeFreeBytes,
		MaxFH:            DefaultMaxFH,
		AttrTimeout:      DefaultAttrTimeout,
		EntryTimeout:     DefaultEntryTimeout,
		DirectIO:         DefaultDirectIO,
		Drive:            newDefaultDriveConfig(),
		SFTP:             newDefaultSFTPConfig(),
		S3:               newDefaultS3Config(),
	}
}

// NewConfig returns the defaults with override applied. A nil override yields the defaults.
func NewConfig(override *ConfigOverride) *Config {
	cfg := NewDefaultConfig()
	if override != nil {
		cfg.Merge(override)
	}
	return cfg
}

// VerboseToLogLevel clamps v to 1..5 and maps it onto a [util.LogLevel].
func VerboseToLogLevel(v int) util.LogLevel {
	v = max(ErrorVerbose, min(v, TraceVerbose))
	lvls := [5]util.LogLevel{util.ErrorLevel, util.WarnLevel, util.InfoLevel, util.DebugLevel, util.TraceLevel}
	return lvls[v-1]
}

// Merge applies non-nil values from override onto this Config.
// This allows partial configuration updates while preserving existing values.
func (c *Config) Merge(override *ConfigOverride) {
	if override.LogLvl != nil {
		c.LogLvl = VerboseToLogLevel(*override.LogLvl)
	}
	if override.LogFormat != nil {
		c.LogFormat = *override.LogFormat
	}
	if override.Debug != nil {
		c.Debug = *override.Debug
	}
	if override.FsName != nil {
		c.FsName = *override.FsName
	}
	if override.Name != nil {
		c.Name = *override.Name
	}
	if override.Backend != nil {
		c.Backend = *override.Backend
	}
	if override.CacheTTL != nil {
		c.CacheTTL = *override.CacheTTL
	}
	if override.CacheMaxEntries != nil {
		c.CacheMaxEntries = *override.CacheMaxEntries
	}
	if override.LocalBufferMax != nil {
		c.LocalBufferMax = *override.LocalBufferMax
	}
	if override.LocalBufferDir != nil {
		c.LocalBufferDir = *override.LocalBufferDir
	}
	if override.VolumeTotalBytes != nil {
		c.VolumeTotalBytes = *override.VolumeTotalBytes
	}
	if override.VolumeFreeBytes != nil {
		c.VolumeFreeBytes = *override.VolumeFreeBytes
	}
	if override.MetricsAddr != nil {
		c.MetricsAddr = *override.MetricsAddr
	}
	if override.MaxFH != nil {
		c.MaxFH = *override.MaxFH
	}
	if override.AttrTimeout != nil {
		c.AttrTimeout = *override.AttrTimeout
	}
	if override.EntryTimeout != nil {
		c.EntryTimeout = *override.EntryTimeout
	}
	if override.DirectIO != nil {
		c.DirectIO = *override.DirectIO
	}
	if override.Drive != nil {
		c.Drive.merge(override.Drive)
	}
	if override.SFTP != nil {
		c.SFTP.merge(override.SFTP)
	}
	if override.S3 != nil {
		c.S3.merge(override.S3)
	}
}

// LoadConfigOverrideFile loads configuration overrides from a file without merging.
// Supports both YAML (.yaml, .yml) and JSON (.json) formats.
func LoadConfigOverrideFile(path string) (*ConfigOverride, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var override ConfigOverride

	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &override); err != nil {
			return nil, fmt.Errorf("failed to unmarshal config file: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, &override); err != nil {
			return nil, fmt.Errorf("failed to unmarshal config file: %w", err)
		}
	default:
		return nil, fmt.Errorf("unknown config file extension: %s", path)
	}

	return &override, nil
}

// NewConfigFromFile creates a new Config by merging file overrides with defaults.
// This is a convenience function that combines NewDefaultConfig, LoadConfigOverrideFile, and Merge.
func NewConfigFromFile(path string) (*Config, error) {
	cfg := NewDefaultConfig()
	override, err := LoadConfigOverrideFile(path)
	if err != nil {
		return nil, err
	}
	cfg.Merge(override)
	return cfg, nil
}
