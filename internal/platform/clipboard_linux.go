//go:build linux

package platform

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/berrythewa/clipsync/internal/types"
	"go.uber.org/zap"
)

const (
	mimePNG        = "image/png"
	commandTimeout = 2 * time.Second
	waitDelay      = 500 * time.Millisecond
)

func init() {
	RegisterClipboardFactory(func(logger *zap.Logger) Clipboard {
		return NewLinuxClipboard(logger)
	})
}

// commandRunner executes an external clipboard tool, feeding stdin when non-nil
type commandRunner func(ctx context.Context, stdin []byte, name string, args ...string) ([]byte, error)

func execCommand(ctx context.Context, stdin []byte, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.WaitDelay = waitDelay
	if stdin != nil {
		// xclip -i and wl-copy fork a child that owns the selection until
		// another client takes it; stdout stays unattached so Run returns
		// once the parent exits.
		cmd.Stdin = bytes.NewReader(stdin)
		return nil, cmd.Run()
	}
	return cmd.Output()
}

// imageTool is the command line for one display server
type imageTool struct {
	name      string
	listTypes []string
	readPNG   []string
	writePNG  []string
}

var (
	xclipTool = imageTool{
		name:      "xclip",
		listTypes: []string{"-selection", "clipboard", "-t", "TARGETS", "-o"},
		readPNG:   []string{"-selection", "clipboard", "-t", mimePNG, "-o"},
		writePNG:  []string{"-selection", "clipboard", "-t", mimePNG, "-i"},
	}
	wlTool = imageTool{
		name:      "wl-paste",
		listTypes: []string{"--list-types"},
		readPNG:   []string{"--no-newline", "--type", mimePNG},
		writePNG:  []string{"--type", mimePNG},
	}
)

// LinuxClipboard reads PNG images through xclip or wl-clipboard and
// delegates text to atotto/clipboard
type LinuxClipboard struct {
	text   *AtottoClipboard
	tool   *imageTool
	run    commandRunner
	logger *zap.Logger
}

// NewLinuxClipboard picks the image tool for the running display server.
// Without one the clipboard is text-only.
func NewLinuxClipboard(logger *zap.Logger) *LinuxClipboard {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &LinuxClipboard{
		text:   NewAtottoClipboard(),
		run:    execCommand,
		logger: logger,
	}

	switch {
	case os.Getenv("WAYLAND_DISPLAY") != "" && hasCommand("wl-paste") && hasCommand("wl-copy"):
		c.tool = &wlTool
	case hasCommand("xclip"):
		c.tool = &xclipTool
	default:
		logger.Warn("No xclip or wl-clipboard found, image capture disabled")
	}
	return c
}

func hasCommand(name string) bool {
	_, err := exec.LookPath(name)
	return err == nil
}

func (c *LinuxClipboard) Read() (*types.ClipboardContent, error) {
	if c.tool != nil {
		img, err := c.readImage()
		if err != nil {
			c.logger.Debug("Image read failed, falling back to text", zap.Error(err))
		} else if img != nil {
			return img, nil
		}
	}
	return c.text.Read()
}

func (c *LinuxClipboard) readImage() (*types.ClipboardContent, error) {
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	targets, err := c.run(ctx, nil, c.tool.name, c.tool.listTypes...)
	if err != nil {
		// both tools exit non-zero on an empty clipboard
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to list clipboard targets: %w", err)
	}
	if !hasTarget(targets, mimePNG) {
		return nil, nil
	}

	data, err := c.run(ctx, nil, c.tool.name, c.tool.readPNG...)
	if err != nil {
		return nil, fmt.Errorf("failed to read clipboard image: %w", err)
	}
	if len(data) == 0 {
		return nil, nil
	}
	return &types.ClipboardContent{Type: types.TypeImage, Data: data}, nil
}

func (c *LinuxClipboard) Write(content *types.ClipboardContent) error {
	if content == nil {
		return fmt.Errorf("nothing to write")
	}
	if content.Type != types.TypeImage {
		return c.text.Write(content)
	}
	if c.tool == nil {
		return fmt.Errorf("image clipboard is not available on this display")
	}

	name := c.tool.name
	if name == "wl-paste" {
		name = "wl-copy"
	}

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()
	if _, err := c.run(ctx, content.Data, name, c.tool.writePNG...); err != nil {
		return fmt.Errorf("failed to write clipboard image: %w", err)
	}
	return nil
}

func hasTarget(list []byte, target string) bool {
	for _, line := range strings.Split(string(list), "\n") {
		if strings.TrimSpace(line) == target {
			return true
		}
	}
	return false
}
