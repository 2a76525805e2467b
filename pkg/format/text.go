package format

import (
	"strings"

	"github.com/berrythewa/clipsync/internal/types"
)

// FormatText formats the full text of an item within the line and width limits
func FormatText(item *types.ClipboardItem, opts Options) string {
	if item == nil || item.TextContent == "" {
		return ""
	}
	text := item.TextContent

	if opts.MaxLines > 0 {
		text = TruncateLines(text, opts.MaxLines)
	}
	if opts.MaxWidth > 0 {
		lines := strings.Split(text, "\n")
		for i, line := range lines {
			lines[i] = TruncateText(line, opts.MaxWidth)
		}
		text = strings.Join(lines, "\n")
	}
	return text
}

// FormatTextPreview creates a one-line preview of a text item
func FormatTextPreview(item *types.ClipboardItem, maxLen int) string {
	if item == nil {
		return ""
	}
	preview := item.Preview
	if preview == "" {
		preview = strings.Join(strings.Fields(item.TextContent), " ")
	}
	return TruncateText(preview, maxLen)
}
