package types

import (
	"bytes"
	"strings"
)

// ClipboardContent is what the OS clipboard currently holds
type ClipboardContent struct {
	Type ContentType `json:"type"`
	Data []byte      `json:"data"`
}

// Text returns the payload as a string for text content
func (c *ClipboardContent) Text() string {
	if c == nil || c.Type != TypeText {
		return ""
	}
	return string(c.Data)
}

// Empty reports whether there is nothing worth capturing.
// Whitespace-only text counts as empty.
func (c *ClipboardContent) Empty() bool {
	if c == nil || len(c.Data) == 0 {
		return true
	}
	if c.Type == TypeText {
		return strings.TrimSpace(string(c.Data)) == ""
	}
	return false
}

// Equal compares two ClipboardContent instances for equality
func (c1 *ClipboardContent) Equal(c2 *ClipboardContent) bool {
	if c1 == nil || c2 == nil {
		return c1 == c2
	}
	return c1.Type == c2.Type && bytes.Equal(c1.Data, c2.Data)
}
