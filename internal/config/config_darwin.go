//go:build darwin

package config

import (
	"os"
	"path/filepath"
)

func init() {
	getDefaultDataDir = darwinGetDefaultDataDir
}

func darwinGetDefaultDataDir() (string, error) {
	if path := os.Getenv("CLIPSYNC_DATA_DIR"); path != "" {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, "Library", "Application Support", "clipsync"), nil
}
