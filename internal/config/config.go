package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/berrythewa/clipsync/internal/storage"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
	yamlv3 "gopkg.in/yaml.v3"
)

// EnvPrefix marks environment overrides. Sections are separated by a double
// underscore: CLIPSYNC_STORAGE__ENGINE sets storage.engine.
const EnvPrefix = "CLIPSYNC_"

// Config holds all application configuration
type Config struct {
	DeviceID   string `koanf:"device_id" yaml:"device_id" json:"device_id"`
	DeviceName string `koanf:"device_name" yaml:"device_name" json:"device_name"`

	Log      LogConfig      `koanf:"log" yaml:"log" json:"log"`
	Storage  StorageConfig  `koanf:"storage" yaml:"storage" json:"storage"`
	Postgres PostgresConfig `koanf:"postgres" yaml:"postgres" json:"postgres"`
	History  HistoryConfig  `koanf:"history" yaml:"history" json:"history"`
	Watcher  WatcherConfig  `koanf:"watcher" yaml:"watcher" json:"watcher"`
	Sync     SyncConfig     `koanf:"sync" yaml:"sync" json:"sync"`
	IPC      IPCConfig      `koanf:"ipc" yaml:"ipc" json:"ipc"`
	Metrics  MetricsConfig  `koanf:"metrics" yaml:"metrics" json:"metrics"`

	// local bbolt file for the sync cursor and machine-only settings
	StatePath string `koanf:"state_path" yaml:"state_path" json:"state_path"`
	PIDFile   string `koanf:"pid_file" yaml:"pid_file" json:"pid_file"`
}

// LogConfig holds logging-related configuration
type LogConfig struct {
	Level  string `koanf:"level" yaml:"level" json:"level"`
	Format string `koanf:"format" yaml:"format" json:"format"` // "json" or "console"
	File   string `koanf:"file" yaml:"file" json:"file"`
}

// StorageConfig selects and tunes the history database
type StorageConfig struct {
	Engine      string `koanf:"engine" yaml:"engine" json:"engine"`
	SQLitePath  string `koanf:"sqlite_path" yaml:"sqlite_path" json:"sqlite_path"`
	OpTimeout   int64  `koanf:"op_timeout_ms" yaml:"op_timeout_ms" json:"op_timeout_ms"`
	MaxAttempts int    `koanf:"max_attempts" yaml:"max_attempts" json:"max_attempts"`
	BaseDelay   int64  `koanf:"base_delay_ms" yaml:"base_delay_ms" json:"base_delay_ms"`
	FTS         bool   `koanf:"fts" yaml:"fts" json:"fts"`
}

// PostgresConfig holds the networked engine connection settings
type PostgresConfig struct {
	Host           string `koanf:"host" yaml:"host" json:"host"`
	Port           int    `koanf:"port" yaml:"port" json:"port"`
	User           string `koanf:"user" yaml:"user" json:"user"`
	Password       string `koanf:"password" yaml:"password" json:"-"`
	Database       string `koanf:"database" yaml:"database" json:"database"`
	SSLMode        string `koanf:"sslmode" yaml:"sslmode" json:"sslmode"`
	ConnectTimeout int64  `koanf:"connect_timeout_ms" yaml:"connect_timeout_ms" json:"connect_timeout_ms"`
	LockTimeout    int64  `koanf:"lock_timeout_ms" yaml:"lock_timeout_ms" json:"lock_timeout_ms"`
}

// HistoryConfig controls retention and listing
type HistoryConfig struct {
	MaxItems int `koanf:"max_items" yaml:"max_items" json:"max_items"`
	PageSize int `koanf:"page_size" yaml:"page_size" json:"page_size"`
}

// WatcherConfig controls clipboard polling
type WatcherConfig struct {
	Enabled       bool  `koanf:"enabled" yaml:"enabled" json:"enabled"`
	PollInterval  int64 `koanf:"poll_interval_ms" yaml:"poll_interval_ms" json:"poll_interval_ms"`
	ThumbnailSize int   `koanf:"thumbnail_size" yaml:"thumbnail_size" json:"thumbnail_size"`
}

// SyncConfig controls the cross-device poller
type SyncConfig struct {
	Enabled      bool  `koanf:"enabled" yaml:"enabled" json:"enabled"`
	PollInterval int64 `koanf:"poll_interval_ms" yaml:"poll_interval_ms" json:"poll_interval_ms"`
}

// IPCConfig holds the control socket settings
type IPCConfig struct {
	SocketPath string `koanf:"socket_path" yaml:"socket_path" json:"socket_path"`
}

// MetricsConfig holds the Prometheus endpoint settings. An empty address
// disables the endpoint.
type MetricsConfig struct {
	ListenAddr string `koanf:"listen_addr" yaml:"listen_addr" json:"listen_addr"`
}

// DefaultConfig returns a new Config with default values
func DefaultConfig() *Config {
	dataDir, err := getDefaultDataDir()
	if err != nil {
		dataDir = filepath.Join(os.TempDir(), "clipsync")
	}
	runDir := getRuntimeDir()

	return &Config{
		DeviceID:   generateDeviceID(),
		DeviceName: getDeviceName(),
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
		Storage: StorageConfig{
			Engine:      string(storage.EngineSQLite),
			SQLitePath:  filepath.Join(dataDir, "clipboard.db"),
			OpTimeout:   60000,
			MaxAttempts: 5,
			BaseDelay:   100,
			FTS:         true,
		},
		Postgres: PostgresConfig{
			Port:           5432,
			Database:       "clipsync",
			SSLMode:        "disable",
			ConnectTimeout: 10000,
			LockTimeout:    30000,
		},
		History: HistoryConfig{
			MaxItems: 10000,
			PageSize: 10,
		},
		Watcher: WatcherConfig{
			Enabled:       true,
			PollInterval:  500,
			ThumbnailSize: 100,
		},
		Sync: SyncConfig{
			Enabled:      true,
			PollInterval: 1000,
		},
		IPC: IPCConfig{
			SocketPath: filepath.Join(runDir, "clipsync.sock"),
		},
		StatePath: filepath.Join(dataDir, "state.db"),
		PIDFile:   filepath.Join(runDir, "clipsync.pid"),
	}
}

// Load reads the configuration file, creating it with defaults if it does
// not exist, and applies CLIPSYNC_ environment overrides on top.
func Load(configPath string) (*Config, error) {
	if configPath == "" {
		var err error
		configPath, err = getConfigPath()
		if err != nil {
			return nil, fmt.Errorf("failed to resolve config path: %w", err)
		}
	}

	cfg := DefaultConfig()
	k := koanf.New(".")

	data, err := os.ReadFile(configPath)
	switch {
	case errors.Is(err, os.ErrNotExist):
		if err := cfg.Save(configPath); err != nil {
			return nil, fmt.Errorf("failed to create default config: %w", err)
		}
	case err != nil:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	default:
		if err := k.Load(rawbytes.Provider(data), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", configPath, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	// keys absent from file and env keep their defaults
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", configPath, err)
	}
	return cfg, nil
}

// envKey maps CLIPSYNC_STORAGE__SQLITE_PATH to storage.sqlite_path
func envKey(s string) string {
	key := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	return strings.ReplaceAll(key, "__", ".")
}

// Save saves the configuration to the specified file
func (c *Config) Save(configPath string) error {
	if err := os.MkdirAll(filepath.Dir(configPath), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yamlv3.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	// may hold the postgres password
	if err := os.WriteFile(configPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Validate checks values that would otherwise fail deep inside a component
func (c *Config) Validate() error {
	var errs []error

	if c.DeviceID == "" {
		errs = append(errs, errors.New("device_id is required"))
	}

	switch storage.Engine(c.Storage.Engine) {
	case storage.EngineSQLite:
		if c.Storage.SQLitePath == "" {
			errs = append(errs, errors.New("storage.sqlite_path is required for the sqlite engine"))
		}
	case storage.EnginePostgres:
		if c.Postgres.Host == "" || c.Postgres.User == "" {
			errs = append(errs, errors.New("postgres.host and postgres.user are required for the postgres engine"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown storage.engine %q", c.Storage.Engine))
	}

	positive := map[string]int64{
		"storage.op_timeout_ms":    c.Storage.OpTimeout,
		"storage.max_attempts":     int64(c.Storage.MaxAttempts),
		"storage.base_delay_ms":    c.Storage.BaseDelay,
		"history.max_items":        int64(c.History.MaxItems),
		"history.page_size":        int64(c.History.PageSize),
		"watcher.poll_interval_ms": c.Watcher.PollInterval,
		"sync.poll_interval_ms":    c.Sync.PollInterval,
	}
	for _, name := range sortedKeys(positive) {
		if positive[name] <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %d", name, positive[name]))
		}
	}

	switch c.Log.Format {
	case "", "console", "json":
	default:
		errs = append(errs, fmt.Errorf("unknown log.format %q", c.Log.Format))
	}

	return errors.Join(errs...)
}

// StorageOptions converts the file settings into backend options
func (c *Config) StorageOptions() storage.StorageConfig {
	return storage.StorageConfig{
		Engine:     storage.Engine(c.Storage.Engine),
		SQLitePath: c.Storage.SQLitePath,
		DisableFTS: !c.Storage.FTS,
		Postgres: storage.PostgresConfig{
			Host:           c.Postgres.Host,
			Port:           c.Postgres.Port,
			User:           c.Postgres.User,
			Password:       c.Postgres.Password,
			Database:       c.Postgres.Database,
			SSLMode:        c.Postgres.SSLMode,
			ConnectTimeout: millis(c.Postgres.ConnectTimeout),
			LockTimeout:    millis(c.Postgres.LockTimeout),
		},
		Retry: storage.RetryPolicy{
			MaxAttempts: c.Storage.MaxAttempts,
			BaseDelay:   millis(c.Storage.BaseDelay),
		},
	}
}

// OpTimeout bounds a single repository operation
func (c *Config) OpTimeout() time.Duration {
	return millis(c.Storage.OpTimeout)
}

// WatcherInterval is the clipboard poll period
func (c *Config) WatcherInterval() time.Duration {
	return millis(c.Watcher.PollInterval)
}

// SyncInterval is the sync poll period
func (c *Config) SyncInterval() time.Duration {
	return millis(c.Sync.PollInterval)
}

func millis(ms int64) time.Duration {
	return time.Duration(ms) * time.Millisecond
}
