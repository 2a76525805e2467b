package clipboard

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"

	"github.com/berrythewa/clipsync/internal/types"
	"github.com/berrythewa/clipsync/pkg/utils"
	"github.com/disintegration/imaging"
)

// DefaultThumbnailSize bounds both thumbnail dimensions
const DefaultThumbnailSize = 100

// ImageDimensions reads width and height from the encoded image header
func ImageDimensions(data []byte) (int, int, error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return 0, 0, fmt.Errorf("failed to decode image header: %w", err)
	}
	return cfg.Width, cfg.Height, nil
}

// Thumbnail scales data down to fit within size x size, keeping the aspect
// ratio, and encodes the result as PNG. Smaller images are kept at their size.
func Thumbnail(data []byte, size int) ([]byte, error) {
	if size <= 0 {
		size = DefaultThumbnailSize
	}
	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}

	b := img.Bounds()
	if b.Dx() > size || b.Dy() > size {
		img = imaging.Fit(img, size, size, imaging.Lanczos)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("failed to encode thumbnail: %w", err)
	}
	return buf.Bytes(), nil
}

// itemBuilder turns clipboard content into a history row
type itemBuilder struct {
	deviceID      string
	deviceName    string
	thumbnailSize int
	now           func() int64
}

// build returns the new item and a non-fatal thumbnail error, if any
func (b *itemBuilder) build(content *types.ClipboardContent, hash string) (*types.ClipboardItem, error) {
	item := &types.ClipboardItem{
		ContentType: content.Type,
		ContentHash: hash,
		DeviceID:    b.deviceID,
		DeviceName:  b.deviceName,
		CreatedAt:   b.now(),
	}

	if content.Type == types.TypeText {
		item.TextContent = string(content.Data)
		item.Preview = utils.TextPreview(item.TextContent)
		return item, nil
	}

	item.ImageData = content.Data
	w, h, err := ImageDimensions(content.Data)
	if err != nil {
		item.Preview = "[Image]"
		return item, err
	}
	item.Preview = utils.ImagePreview(w, h)

	thumb, err := Thumbnail(content.Data, b.thumbnailSize)
	if err != nil {
		return item, err
	}
	item.ImageThumbnail = thumb
	return item, nil
}
