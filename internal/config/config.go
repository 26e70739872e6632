// Package config loads agent configuration from defaults, an optional config
// file, environment variables, and finally the local store's settings table.
// Later layers override earlier ones; the store is authoritative once the
// agent has heartbeated, since the control plane pushes settings into it.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/spf13/viper"

	"github.com/vesselhq/vessel-agent/internal/constants"
)

// Config holds all runtime options for a single agent run. It is loaded once
// at startup and passed explicitly into constructors; there is no process-wide
// mutable configuration state.
type Config struct {
	// APIBaseURL is the control-plane origin, e.g. "https://api.vessel.example".
	APIBaseURL string

	// StorePath is the path to the local SQLite database file.
	StorePath string

	// ChunkSize is the multipart chunk size in bytes. Changing it while an
	// upload is in flight is forbidden; it is read once per run.
	ChunkSize int64

	// LargeFileThreshold is the size at or above which the multipart path is
	// mandatory.
	LargeFileThreshold int64

	// ConnectionTimeout bounds a full HTTP exchange (connect, handshake,
	// write, read).
	ConnectionTimeout time.Duration

	// HeartbeatInterval is the control-plane liveness cadence.
	HeartbeatInterval time.Duration

	// StatInterval is the aggregated status push cadence.
	StatInterval time.Duration

	// VerifyTLS controls peer certificate chain verification. TLS still
	// negotiates when false.
	VerifyTLS bool

	// HTTPLogging raises HTTP wire logs from debug to info level.
	HTTPLogging bool

	// Workers is the number of concurrent upload workers. Parts within one
	// file are always serialized; workers parallelize across files.
	Workers int
}

// Load builds a Config from defaults, an optional config file and VESSEL_*
// environment variables. cfgFile may be empty, in which case the default
// search path is used and a missing file is not an error.
func Load(cfgFile string) (*Config, error) {
	v := viper.New()

	v.SetDefault("api_base_url", "")
	v.SetDefault("store_path", defaultStorePath())
	v.SetDefault("chunk_size", int64(constants.DefaultChunkSize))
	v.SetDefault("large_file_threshold", int64(constants.DefaultLargeFileThreshold))
	v.SetDefault("connection_timeout", 30)
	v.SetDefault("heartbeat_interval", 60)
	v.SetDefault("stat_interval", 300)
	v.SetDefault("verify_tls", true)
	v.SetDefault("http_logging", false)
	v.SetDefault("workers", 4)

	v.SetEnvPrefix("VESSEL")
	v.AutomaticEnv()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", cfgFile, err)
		}
	} else {
		v.SetConfigName("agent")
		v.SetConfigType("yaml")
		v.AddConfigPath(defaultConfigDir())
		if err := v.ReadInConfig(); err != nil {
			// A missing default config file is fine; anything else is not.
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("failed to read config: %w", err)
			}
		}
	}

	cfg := &Config{
		APIBaseURL:         v.GetString("api_base_url"),
		StorePath:          v.GetString("store_path"),
		ChunkSize:          v.GetInt64("chunk_size"),
		LargeFileThreshold: v.GetInt64("large_file_threshold"),
		ConnectionTimeout:  time.Duration(v.GetInt("connection_timeout")) * time.Second,
		HeartbeatInterval:  time.Duration(v.GetInt("heartbeat_interval")) * time.Second,
		StatInterval:       time.Duration(v.GetInt("stat_interval")) * time.Second,
		VerifyTLS:          v.GetBool("verify_tls"),
		HTTPLogging:        v.GetBool("http_logging"),
		Workers:            v.GetInt("workers"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks option ranges. A violation here maps to exit code 2.
func (c *Config) Validate() error {
	if c.ChunkSize <= 0 {
		return fmt.Errorf("chunk_size must be positive, got %d", c.ChunkSize)
	}
	if c.LargeFileThreshold <= 0 {
		return fmt.Errorf("large_file_threshold must be positive, got %d", c.LargeFileThreshold)
	}
	if c.ConnectionTimeout <= 0 {
		return fmt.Errorf("connection_timeout must be positive, got %s", c.ConnectionTimeout)
	}
	if c.HeartbeatInterval <= 0 {
		return fmt.Errorf("heartbeat_interval must be positive, got %s", c.HeartbeatInterval)
	}
	if c.StatInterval <= 0 {
		return fmt.Errorf("stat_interval must be positive, got %s", c.StatInterval)
	}
	if c.Workers <= 0 {
		return fmt.Errorf("workers must be positive, got %d", c.Workers)
	}
	if c.StorePath == "" {
		return fmt.Errorf("store_path is required")
	}
	return nil
}

// SettingsSource is the subset of the local store the config overlay needs.
type SettingsSource interface {
	GetSetting(name string) (string, bool, error)
}

// ApplyStoreSettings overlays settings pushed by the control plane on top of
// the file/env configuration. Unknown or malformed values are skipped; the
// store wins only where it holds a parseable value.
func (c *Config) ApplyStoreSettings(src SettingsSource) error {
	if v, ok, err := src.GetSetting(constants.SettingChunkSize); err != nil {
		return err
	} else if ok {
		if n, perr := strconv.ParseInt(v, 10, 64); perr == nil && n > 0 {
			c.ChunkSize = n
		}
	}
	if v, ok, err := src.GetSetting(constants.SettingLargeFileThreshold); err != nil {
		return err
	} else if ok {
		if n, perr := strconv.ParseInt(v, 10, 64); perr == nil && n > 0 {
			c.LargeFileThreshold = n
		}
	}
	if v, ok, err := src.GetSetting(constants.SettingConnectionTimeout); err != nil {
		return err
	} else if ok {
		if n, perr := strconv.Atoi(v); perr == nil && n > 0 {
			c.ConnectionTimeout = time.Duration(n) * time.Second
		}
	}
	if v, ok, err := src.GetSetting(constants.SettingHeartbeatInterval); err != nil {
		return err
	} else if ok {
		if n, perr := strconv.Atoi(v); perr == nil && n > 0 {
			c.HeartbeatInterval = time.Duration(n) * time.Second
		}
	}
	if v, ok, err := src.GetSetting(constants.SettingStatInterval); err != nil {
		return err
	} else if ok {
		if n, perr := strconv.Atoi(v); perr == nil && n > 0 {
			c.StatInterval = time.Duration(n) * time.Second
		}
	}
	if v, ok, err := src.GetSetting(constants.SettingVerifyTLS); err != nil {
		return err
	} else if ok {
		if b, perr := strconv.ParseBool(v); perr == nil {
			c.VerifyTLS = b
		}
	}
	if v, ok, err := src.GetSetting(constants.SettingHTTPLogging); err != nil {
		return err
	} else if ok {
		if b, perr := strconv.ParseBool(v); perr == nil {
			c.HTTPLogging = b
		}
	}
	return nil
}

func defaultConfigDir() string {
	if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
		return filepath.Join(dir, "vessel-agent")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "vessel-agent")
}

func defaultStorePath() string {
	return filepath.Join(defaultConfigDir(), "agent.db")
}
