package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/berrythewa/clipsync/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func stubPaths(t *testing.T) string {
	t.Helper()
	tempDir := t.TempDir()

	origConfigPath := getConfigPath
	origDataDir := getDefaultDataDir
	origRuntimeDir := getRuntimeDir
	origDeviceID := generateDeviceID
	origDeviceName := getDeviceName
	t.Cleanup(func() {
		getConfigPath = origConfigPath
		getDefaultDataDir = origDataDir
		getRuntimeDir = origRuntimeDir
		generateDeviceID = origDeviceID
		getDeviceName = origDeviceName
	})

	getConfigPath = func() (string, error) { return filepath.Join(tempDir, "config.yaml"), nil }
	getDefaultDataDir = func() (string, error) { return filepath.Join(tempDir, "data"), nil }
	getRuntimeDir = func() string { return filepath.Join(tempDir, "run") }
	generateDeviceID = func() string { return "mock-device-id" }
	getDeviceName = func() string { return "mock-host" }
	return tempDir
}

func TestLoadCreatesDefaults(t *testing.T) {
	tempDir := stubPaths(t)

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "mock-device-id", cfg.DeviceID)
	assert.Equal(t, "mock-host", cfg.DeviceName)
	assert.Equal(t, "sqlite", cfg.Storage.Engine)
	assert.Equal(t, filepath.Join(tempDir, "data", "clipboard.db"), cfg.Storage.SQLitePath)
	assert.Equal(t, filepath.Join(tempDir, "data", "state.db"), cfg.StatePath)
	assert.Equal(t, filepath.Join(tempDir, "run", "clipsync.sock"), cfg.IPC.SocketPath)
	assert.Equal(t, 10000, cfg.History.MaxItems)
	assert.Equal(t, 500*time.Millisecond, cfg.WatcherInterval())
	assert.Equal(t, time.Second, cfg.SyncInterval())
	assert.Equal(t, time.Minute, cfg.OpTimeout())

	info, err := os.Stat(filepath.Join(tempDir, "config.yaml"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	// second load reads the saved file and keeps the generated identity
	generateDeviceID = func() string { return "other-id" }
	again, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "mock-device-id", again.DeviceID)
}

func TestLoadMergesFileOverDefaults(t *testing.T) {
	tempDir := stubPaths(t)
	path := filepath.Join(tempDir, "custom.yaml")

	content := `
device_id: laptop-1
storage:
  engine: postgres
postgres:
  host: db.local
  user: clips
history:
  page_size: 25
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "laptop-1", cfg.DeviceID)
	assert.Equal(t, "postgres", cfg.Storage.Engine)
	assert.Equal(t, "db.local", cfg.Postgres.Host)
	assert.Equal(t, 5432, cfg.Postgres.Port, "unset keys keep defaults")
	assert.Equal(t, 25, cfg.History.PageSize)
	assert.Equal(t, 10000, cfg.History.MaxItems)
	assert.True(t, cfg.Storage.FTS)
}

func TestLoadEnvOverrides(t *testing.T) {
	stubPaths(t)
	t.Setenv("CLIPSYNC_DEVICE_NAME", "from-env")
	t.Setenv("CLIPSYNC_STORAGE__MAX_ATTEMPTS", "9")
	t.Setenv("CLIPSYNC_STORAGE__FTS", "false")
	t.Setenv("CLIPSYNC_SYNC__POLL_INTERVAL_MS", "250")
	t.Setenv("CLIPSYNC_METRICS__LISTEN_ADDR", "127.0.0.1:9300")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "from-env", cfg.DeviceName)
	assert.Equal(t, 9, cfg.Storage.MaxAttempts)
	assert.False(t, cfg.Storage.FTS)
	assert.Equal(t, 250*time.Millisecond, cfg.SyncInterval())
	assert.Equal(t, "127.0.0.1:9300", cfg.Metrics.ListenAddr)
}

func TestEnvKey(t *testing.T) {
	assert.Equal(t, "storage.sqlite_path", envKey("CLIPSYNC_STORAGE__SQLITE_PATH"))
	assert.Equal(t, "device_id", envKey("CLIPSYNC_DEVICE_ID"))
	assert.Equal(t, "postgres.connect_timeout_ms", envKey("CLIPSYNC_POSTGRES__CONNECT_TIMEOUT_MS"))
}

func TestLoadRejectsInvalid(t *testing.T) {
	tempDir := stubPaths(t)

	cases := map[string]string{
		"unknown engine":   "storage:\n  engine: mysql\n",
		"postgres no host": "storage:\n  engine: postgres\n",
		"zero page size":   "history:\n  page_size: 0\n",
		"negative poll":    "watcher:\n  poll_interval_ms: -1\n",
		"bad log format":   "log:\n  format: xml\n",
		"malformed yaml":   "storage: [",
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(tempDir, name+".yaml")
			require.NoError(t, os.WriteFile(path, []byte(content), 0600))
			_, err := Load(path)
			assert.Error(t, err)
		})
	}
}

func TestSaveRoundTrip(t *testing.T) {
	tempDir := stubPaths(t)
	path := filepath.Join(tempDir, "nested", "dir", "config.yaml")

	cfg := DefaultConfig()
	cfg.DeviceName = "desk"
	cfg.Postgres.Password = "secret"
	require.NoError(t, cfg.Save(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var raw map[string]any
	require.NoError(t, yaml.Unmarshal(data, &raw))
	assert.Equal(t, "desk", raw["device_name"])

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestStorageOptions(t *testing.T) {
	stubPaths(t)
	cfg := DefaultConfig()
	cfg.Storage.FTS = false
	cfg.Postgres.ConnectTimeout = 2500

	opts := cfg.StorageOptions()
	assert.Equal(t, storage.EngineSQLite, opts.Engine)
	assert.True(t, opts.DisableFTS)
	assert.Equal(t, 5, opts.Retry.MaxAttempts)
	assert.Equal(t, 100*time.Millisecond, opts.Retry.BaseDelay)
	assert.Equal(t, 2500*time.Millisecond, opts.Postgres.ConnectTimeout)
	assert.Equal(t, "clipsync", opts.Postgres.Database)
}
