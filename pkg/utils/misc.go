package utils

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"unicode/utf8"
)

// HashLength is the number of hex characters kept from the SHA-256 digest
const HashLength = 32

// PreviewLength is the maximum number of runes in a text preview
const PreviewLength = 100

// ContentHash returns the dedup fingerprint of a clipboard payload
func ContentHash(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])[:HashLength]
}

// HashText fingerprints text content by its UTF-8 bytes
func HashText(text string) string {
	return ContentHash([]byte(text))
}

// TextPreview builds the single-line summary stored alongside text items
func TextPreview(text string) string {
	preview := strings.ReplaceAll(text, "\r\n", " ")
	preview = strings.ReplaceAll(preview, "\n", " ")
	preview = strings.ReplaceAll(preview, "\r", " ")
	preview = strings.TrimSpace(preview)

	if utf8.RuneCountInString(preview) <= PreviewLength {
		return preview
	}
	runes := []rune(preview)
	return strings.TrimSpace(string(runes[:PreviewLength])) + "..."
}

// ImagePreview is the label stored for image items
func ImagePreview(width, height int) string {
	return fmt.Sprintf("[Image %dx%d]", width, height)
}
