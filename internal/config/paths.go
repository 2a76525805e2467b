package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/berrythewa/clipsync/pkg/utils"
)

// overridable for tests and per-OS files
var (
	getConfigPath     = defaultConfigPath
	getDefaultDataDir = defaultDataDir
	getRuntimeDir     = defaultRuntimeDir
	generateDeviceID  = utils.NewDeviceID
	getDeviceName     = utils.DefaultDeviceName
)

// DefaultConfigPath returns where Load looks when no path is given
func DefaultConfigPath() (string, error) {
	return getConfigPath()
}

// defaultConfigPath honours CLIPSYNC_CONFIG, then the user config dir
// ($XDG_CONFIG_HOME on Linux)
func defaultConfigPath() (string, error) {
	if path := os.Getenv("CLIPSYNC_CONFIG"); path != "" {
		return path, nil
	}
	configDir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, "clipsync", "config.yaml"), nil
}

func defaultDataDir() (string, error) {
	if path := os.Getenv("CLIPSYNC_DATA_DIR"); path != "" {
		return path, nil
	}
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "clipsync"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".local", "share", "clipsync"), nil
}

func defaultRuntimeDir() string {
	if xdg := os.Getenv("XDG_RUNTIME_DIR"); xdg != "" {
		return filepath.Join(xdg, "clipsync")
	}
	return filepath.Join(os.TempDir(), fmt.Sprintf("clipsync-%d", os.Getuid()))
}

func sortedKeys(m map[string]int64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
