package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/brettbedarf/remotefs/internal/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

// TestNewConfig_WithNilOverride tests that NewConfig creates a config with all default values
// when no override is provided.
func TestNewConfig_WithNilOverride(t *testing.T) {
	t.Parallel()

	cfg := NewConfig(nil)

	require.NotNil(t, cfg)
	assert.Equal(t, createDefaultCfg(), cfg, "must use default values when no config provided")
}

// TestNewConfig_WithAllOverride tests that NewConfig applies every provided override.
func TestNewConfig_WithAllOverride(t *testing.T) {
	t.Parallel()

	override := createOverride()
	override.LogLvl = util.Pointer(TraceVerbose)
	cfg := NewConfig(override)

	expCfg := &Config{
		MountOptions: MountOptions{
			Debug:  true,
			FsName: "test_fs",
			Name:   "test_name",
		},
		LogLvl:           util.TraceLevel,
		LogFormat:        util.JSONFormat,
		Backend:          BackendSFTP,
		CacheTTL:         *override.CacheTTL,
		CacheMaxEntries:  *override.CacheMaxEntries,
		LocalBufferMax:   *override.LocalBufferMax,
		LocalBufferDir:   *override.LocalBufferDir,
		VolumeTotalBytes: *override.VolumeTotalBytes,
		VolumeFreeBytes:  *override.VolumeFreeBytes,
		MetricsAddr:      *override.MetricsAddr,
		MaxFH:            *override.MaxFH,
		AttrTimeout:      *override.AttrTimeout,
		EntryTimeout:     *override.EntryTimeout,
		DirectIO:         *override.DirectIO,
		Drive: DriveConfig{
			BaseURL:           "http://127.0.0.1:9/drive/v2",
			TokenFile:         "/tmp/token.json",
			RequestsPerSecond: DefaultDriveRequestsPerSecond,
			Burst:             DefaultDriveBurst,
			Timeout:           DefaultDriveTimeout,
		},
		SFTP: SFTPConfig{
			Addr:    "sftp.example.com:22",
			User:    "alice",
			Root:    "/home/alice",
			Timeout: DefaultSFTPTimeout,
		},
		S3: S3Config{
			Bucket:       "bucket",
			Region:       "eu-west-1",
			UsePathStyle: true,
		},
	}
	require.NotNil(t, cfg)
	assert.Equal(t, expCfg, cfg, "must override all provided fields")
}

func TestConfig_Merge_LogLvlConversion(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name          string
		verboseValue  int
		expectedLevel util.LogLevel
	}{
		{"verbose_1_error", 1, util.ErrorLevel},
		{"verbose_2_warn", 2, util.WarnLevel},
		{"verbose_3_info", 3, util.InfoLevel},
		{"verbose_4_debug", 4, util.DebugLevel},
		{"verbose_5_trace", 5, util.TraceLevel},
		{"verbose_0_clamped_to_1", 0, util.ErrorLevel},
		{"verbose_100_clamped_to_5", 100, util.TraceLevel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			override := &ConfigOverride{
				LogLvl: &tt.verboseValue,
			}

			cfg := NewConfig(override)

			assert.Equal(t, tt.expectedLevel, cfg.LogLvl,
				"CLI verbose %d should map to util.LogLevel %v", tt.verboseValue, tt.expectedLevel)
		})
	}
}

func TestConfig_Merge_NilOverrideVals(t *testing.T) {
	t.Parallel()

	cfg := NewConfig(&ConfigOverride{})

	require.NotNil(t, cfg)
	assert.Equal(t, createDefaultCfg(), cfg, "must use default values for nil override fields")
}

func TestConfig_Merge_PartialOverride(t *testing.T) {
	t.Parallel()

	override := &ConfigOverride{
		FsName:   util.Pointer("test_fs"),
		CacheTTL: util.Pointer(DefaultCacheTTL + 1),
		Drive:    &DriveOverride{AccessToken: util.Pointer("tok")},
	}
	cfg := NewConfig(override)

	expCfg := createDefaultCfg()
	expCfg.FsName = "test_fs"
	expCfg.CacheTTL = DefaultCacheTTL + 1
	expCfg.Drive.AccessToken = "tok"

	require.NotNil(t, cfg)
	assert.Equal(t, expCfg, cfg, "must override all provided fields and leave rest default")
}

func TestConfig_Durations(t *testing.T) {
	t.Parallel()

	cfg := NewDefaultConfig()
	cfg.AttrTimeout = 0.5

	assert.Equal(t, 10*time.Second, cfg.CacheTTLDuration())
	assert.Equal(t, 500*time.Millisecond, cfg.AttrTimeoutDuration())
	assert.Equal(t, time.Second, cfg.EntryTimeoutDuration())
}

func TestLoadConfigOverrideFile_Valid(t *testing.T) {
	t.Parallel()

	type tc struct {
		ext   string
		build func() (*ConfigOverride, []byte)
	}

	cases := []tc{
		{
			ext: ".yaml",
			build: func() (*ConfigOverride, []byte) {
				o := createOverride()
				b, err := yaml.Marshal(o)
				require.NoError(t, err)
				return o, b
			},
		},
		{
			ext: ".yml",
			build: func() (*ConfigOverride, []byte) {
				o := createOverride()
				b, err := yaml.Marshal(o)
				require.NoError(t, err)
				return o, b
			},
		},
		{
			ext: ".json",
			build: func() (*ConfigOverride, []byte) {
				o := createOverride()
				b, err := json.Marshal(o)
				require.NoError(t, err)
				return o, b
			},
		},
	}

	for _, c := range cases {
		name := "valid" + c.ext
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			override, data := c.build()
			dir := t.TempDir()
			path := filepath.Join(dir, "override"+c.ext)
			require.NoError(t, os.WriteFile(path, data, 0o600))

			loaded, err := LoadConfigOverrideFile(path)

			require.NoError(t, err)
			require.NotNil(t, loaded)
			assert.Equal(t, *override, *loaded)
		})
	}
}

func TestLoadConfigOverrideFile_HandWrittenYAML(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "remotefs.yaml")
	data := []byte(`
backend: s3
cache_ttl: 2.5
s3:
  bucket: media
  prefix: team/
`)
	require.NoError(t, os.WriteFile(path, data, 0o600))

	cfg, err := NewConfigFromFile(path)

	require.NoError(t, err)
	assert.Equal(t, BackendS3, cfg.Backend)
	assert.Equal(t, 2500*time.Millisecond, cfg.CacheTTLDuration())
	assert.Equal(t, "media", cfg.S3.Bucket)
	assert.Equal(t, "team/", cfg.S3.Prefix)
	assert.Equal(t, DefaultS3Region, cfg.S3.Region, "unset section fields keep defaults")
}

// TestLoadConfigOverrideFile_NonExistentFile tests error handling
// when trying to load a file that doesn't exist.
func TestLoadConfigOverrideFile_NonExistentFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "does_not_exist.yaml")

	_, err := LoadConfigOverrideFile(path)
	require.Error(t, err)
	assert.True(t, os.IsNotExist(err), "expected not exist error, got %v", err)
}

// TestLoadConfigOverrideFile_UnsupportedExtension tests error handling
// for file extensions that aren't supported (.txt, .xml, etc).
func TestLoadConfigOverrideFile_UnsupportedExtension(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "override.txt")
	require.NoError(t, os.WriteFile(path, []byte("cache_ttl: 1"), 0o600))

	_, err := LoadConfigOverrideFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown config file extension")
}

func TestLoadConfigOverrideFile_Malformed(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "override.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	_, err := LoadConfigOverrideFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to unmarshal config file")
}

// TestNewConfigFromFile_FileError tests that file loading errors
// are properly propagated by the convenience function.
func TestNewConfigFromFile_FileError(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "missing.json")

	_, err := NewConfigFromFile(path)
	require.Error(t, err)
}

func createDefaultCfg() *Config {
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
		Drive: DriveConfig{
			BaseURL:           DefaultDriveBaseURL,
			RequestsPerSecond: DefaultDriveRequestsPerSecond,
			Burst:             DefaultDriveBurst,
			Timeout:           DefaultDriveTimeout,
		},
		SFTP: SFTPConfig{
			Root:    DefaultSFTPRoot,
			Timeout: DefaultSFTPTimeout,
		},
		S3: S3Config{
			Region: DefaultS3Region,
		},
	}
}

// createOverride makes a ConfigOverride with all non-default values
func createOverride() *ConfigOverride {
	testLogVerbose := TraceVerbose
	if DefaultLogLvl == util.TraceLevel {
		testLogVerbose = DebugVerbose
	}
	return &ConfigOverride{
		LogLvl:           util.Pointer(testLogVerbose),
		LogFormat:        util.Pointer(util.JSONFormat),
		Debug:            util.Pointer(true),
		FsName:           util.Pointer("test_fs"),
		Name:             util.Pointer("test_name"),
		Backend:          util.Pointer(BackendSFTP),
		CacheTTL:         util.Pointer(DefaultCacheTTL + 1),
		CacheMaxEntries:  util.Pointer(DefaultCacheMaxEntries + 1),
		LocalBufferMax:   util.Pointer(int64(8 * MB)),
		LocalBufferDir:   util.Pointer("/var/tmp/remotefs"),
		VolumeTotalBytes: util.Pointer(int64(DefaultVolumeTotalBytes * 2)),
		VolumeFreeBytes:  util.Pointer(int64(DefaultVolumeFreeBytes / 2)),
		MetricsAddr:      util.Pointer(":9100"),
		MaxFH:            util.Pointer(1),
		AttrTimeout:      util.Pointer(float64(DefaultAttrTimeout + 1)),
		EntryTimeout:     util.Pointer(float64(DefaultEntryTimeout + 1)),
		DirectIO:         util.Pointer(!DefaultDirectIO),
		Drive: &DriveOverride{
			BaseURL:   util.Pointer("http://127.0.0.1:9/drive/v2"),
			TokenFile: util.Pointer("/tmp/token.json"),
		},
		SFTP: &SFTPOverride{
			Addr: util.Pointer("sftp.example.com:22"),
			User: util.Pointer("alice"),
			Root: util.Pointer("/home/alice"),
		},
		S3: &S3Override{
			Bucket:       util.Pointer("bucket"),
			Region:       util.Pointer("eu-west-1"),
			UsePathStyle: util.Pointer(true),
		},
	}
}
