package utils

import (
	"os"

	"github.com/google/uuid"
)

// NewDeviceID returns a fresh per-installation identifier
func NewDeviceID() string {
	return uuid.New().String()
}

// DefaultDeviceName uses the hostname, falling back to a fixed label
func DefaultDeviceName() string {
	name, err := os.Hostname()
	if err != nil || name == "" {
		return "unknown-device"
	}
	return name
}
