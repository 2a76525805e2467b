package platform

import (
	"errors"
	"testing"

	"github.com/berrythewa/clipsync/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAtottoClipboard(t *testing.T) {
	var written string
	c := &AtottoClipboard{
		readAll:  func() (string, error) { return "hello", nil },
		writeAll: func(s string) error { written = s; return nil },
	}

	got, err := c.Read()
	require.NoError(t, err)
	assert.Equal(t, &types.ClipboardContent{Type: types.TypeText, Data: []byte("hello")}, got)

	require.NoError(t, c.Write(&types.ClipboardContent{Type: types.TypeText, Data: []byte("bye")}))
	assert.Equal(t, "bye", written)

	assert.Error(t, c.Write(&types.ClipboardContent{Type: types.TypeImage, Data: []byte{1}}))
}

func TestAtottoClipboardEmptyAndErrors(t *testing.T) {
	c := &AtottoClipboard{readAll: func() (string, error) { return "", nil }}
	got, err := c.Read()
	require.NoError(t, err)
	assert.Nil(t, got)

	c.readAll = func() (string, error) { return "", errors.New("no xsel") }
	_, err = c.Read()
	assert.ErrorContains(t, err, "no xsel")
}
