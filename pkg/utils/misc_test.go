package utils

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestContentHash(t *testing.T) {
	t.Run("matches truncated sha256", func(t *testing.T) {
		sum := sha256.Sum256([]byte("hello"))
		assert.Equal(t, hex.EncodeToString(sum[:])[:32], ContentHash([]byte("hello")))
	})

	t.Run("stable", func(t *testing.T) {
		assert.Equal(t, ContentHash([]byte("abc")), ContentHash([]byte("abc")))
		assert.Equal(t, HashText("abc"), ContentHash([]byte("abc")))
	})

	t.Run("fixed length", func(t *testing.T) {
		for _, in := range [][]byte{nil, {}, []byte("x"), make([]byte, 1<<20)} {
			assert.Len(t, ContentHash(in), HashLength)
		}
	})

	t.Run("distinct payloads", func(t *testing.T) {
		seen := make(map[string]string)
		for _, s := range []string{"", "a", "b", "hello", "hello ", "Hello", "héllo"} {
			h := HashText(s)
			prev, dup := seen[h]
			assert.False(t, dup, "%q collides with %q", s, prev)
			seen[h] = s
		}
	})
}

func TestTextPreview(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"short", "hello", "hello"},
		{"newlines", "a\nb\r\nc\rd", "a b c d"},
		{"trimmed", "  padded \n", "padded"},
		{"exactly limit", strings.Repeat("x", 100), strings.Repeat("x", 100)},
		{"truncated", strings.Repeat("y", 150), strings.Repeat("y", 100) + "..."},
		{"runes not bytes", strings.Repeat("é", 101), strings.Repeat("é", 100) + "..."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, TextPreview(tt.in))
		})
	}
}

func TestImagePreview(t *testing.T) {
	assert.Equal(t, "[Image 640x480]", ImagePreview(640, 480))
}
