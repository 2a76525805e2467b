// Package platform provides the OS clipboard behind a small interface.
// Text goes through atotto/clipboard on every OS; Linux adds PNG images
// through xclip (X11) or wl-clipboard (Wayland).
package platform

import (
	"fmt"

	"github.com/berrythewa/clipsync/internal/types"
	"go.uber.org/zap"
)

// Clipboard reads and writes the system clipboard
type Clipboard interface {
	// Read returns the current clipboard content, preferring an image over
	// text when both are offered. Nil means the clipboard is empty.
	Read() (*types.ClipboardContent, error)

	// Write replaces the clipboard content
	Write(*types.ClipboardContent) error
}

// ClipboardFactory creates a clipboard with a logger
type ClipboardFactory func(*zap.Logger) Clipboard

var clipboardFactory ClipboardFactory = func(*zap.Logger) Clipboard {
	return NewAtottoClipboard()
}

// RegisterClipboardFactory lets OS-specific files install their implementation
func RegisterClipboardFactory(factory ClipboardFactory) {
	clipboardFactory = factory
}

// NewClipboard returns the clipboard implementation for the current platform
func NewClipboard(logger *zap.Logger) Clipboard {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := clipboardFactory(logger.With(zap.String("component", "clipboard")))
	logger.Debug("Platform clipboard created", zap.String("type", fmt.Sprintf("%T", c)))
	return c
}
