package format

import (
	"fmt"

	"github.com/berrythewa/clipsync/internal/types"
)

// FormatImage describes an image item. Listing queries omit the image bytes,
// so the size is only shown when they were loaded.
func FormatImage(item *types.ClipboardItem, opts Options) string {
	desc := item.Preview
	if desc == "" {
		desc = "[Image]"
	}
	if n := len(item.ImageData); n > 0 {
		desc = fmt.Sprintf("%s - %s", desc, FormatSize(int64(n)))
	}
	if len(item.ImageThumbnail) > 0 && opts.ShowMetadata {
		desc += DimIf(fmt.Sprintf(" (thumbnail %s)", FormatSize(int64(len(item.ImageThumbnail)))), opts.UseColors)
	}
	return desc
}

// FormatImagePreview creates a short preview of an image item
func FormatImagePreview(item *types.ClipboardItem, maxLen int) string {
	if item.Preview == "" {
		return "[Image]"
	}
	return TruncateText(item.Preview, maxLen)
}
