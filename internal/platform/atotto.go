package platform

import (
	"fmt"

	atottoClip "github.com/atotto/clipboard"
	"github.com/berrythewa/clipsync/internal/types"
)

// AtottoClipboard is the text-only implementation backed by atotto/clipboard
type AtottoClipboard struct {
	readAll  func() (string, error)
	writeAll func(string) error
}

// NewAtottoClipboard returns a new Atotto-based clipboard implementation
func NewAtottoClipboard() *AtottoClipboard {
	return &AtottoClipboard{
		readAll:  atottoClip.ReadAll,
		writeAll: atottoClip.WriteAll,
	}
}

func (c *AtottoClipboard) Read() (*types.ClipboardContent, error) {
	text, err := c.readAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read clipboard: %w", err)
	}
	if text == "" {
		return nil, nil
	}
	return &types.ClipboardContent{Type: types.TypeText, Data: []byte(text)}, nil
}

func (c *AtottoClipboard) Write(content *types.ClipboardContent) error {
	if content == nil || content.Type != types.TypeText {
		return fmt.Errorf("only text content is supported for writing")
	}
	if err := c.writeAll(string(content.Data)); err != nil {
		return fmt.Errorf("failed to write clipboard: %w", err)
	}
	return nil
}
