package format

import (
	"fmt"
	"strings"

	"github.com/berrythewa/clipsync/internal/types"
)

// Formatter renders history items for the terminal
type Formatter struct {
	options Options
}

// New creates a new formatter with the given options
func New(opts Options) *Formatter {
	return &Formatter{
		options: opts,
	}
}

// NewDefault creates a new formatter with default options
func NewDefault() *Formatter {
	return New(DefaultOptions())
}

// FormatItem formats a single history item
func (f *Formatter) FormatItem(item *types.ClipboardItem) string {
	if item == nil {
		return ColorizeIf("No content", Gray, f.options.UseColors)
	}

	header := f.formatHeader(item)

	if f.options.Compact {
		preview := f.formatPreview(item, 60)
		return header + " " + DimIf(preview, f.options.UseColors)
	}

	parts := []string{header}
	if f.options.ShowMetadata {
		parts = append(parts, f.formatMetadata(item))
	}
	if body := f.formatBody(item); body != "" {
		parts = append(parts, CreateBox("Content", body, f.options))
	}
	return strings.Join(parts, "\n")
}

// FormatPage formats one page of history with its position
func (f *Formatter) FormatPage(page *types.Page) string {
	if page == nil || len(page.Items) == 0 {
		return ColorizeIf("No clipboard history", Gray, f.options.UseColors)
	}

	parts := []string{f.formatListHeader(page), ""}
	for i, item := range page.Items {
		if f.options.Compact {
			parts = append(parts, f.FormatItem(item))
			continue
		}
		parts = append(parts, f.FormatItem(item))
		if i < len(page.Items)-1 {
			parts = append(parts, CreateSeparator(f.options))
		}
	}
	return strings.Join(parts, "\n")
}

// FormatStats formats repository statistics
func (f *Formatter) FormatStats(stats *types.HistoryStats) string {
	return FormatStats(stats, f.options)
}

// formatHeader renders "#id icon type ★"
func (f *Formatter) formatHeader(item *types.ClipboardItem) string {
	var parts []string

	parts = append(parts, BoldIf(fmt.Sprintf("#%d", item.ID), f.options.UseColors))

	if f.options.UseIcons {
		if icon, ok := ContentIcons[item.ContentType]; ok {
			parts = append(parts, icon)
		}
	}

	typeStr := string(item.ContentType)
	if color, ok := ContentColors[item.ContentType]; ok {
		typeStr = ColorizeIf(typeStr, color, f.options.UseColors)
	}
	parts = append(parts, typeStr)

	if item.IsStarred {
		parts = append(parts, ColorizeIf("★", Yellow, f.options.UseColors))
	}
	return strings.Join(parts, " ")
}

func (f *Formatter) formatMetadata(item *types.ClipboardItem) string {
	parts := []string{
		fmt.Sprintf("Created: %s", FormatRelativeTime(item.CreatedTime())),
	}

	device := item.DeviceName
	if device == "" {
		device = item.DeviceID
	}
	if device != "" {
		parts = append(parts, fmt.Sprintf("Device: %s", device))
	}

	if item.ContentType == types.TypeText {
		parts = append(parts, fmt.Sprintf("Size: %s", FormatSize(int64(len(item.TextContent)))))
	}
	if item.ContentHash != "" {
		parts = append(parts, fmt.Sprintf("Hash: %s", TruncateText(item.ContentHash, 12)))
	}

	return DimIf(strings.Join(parts, " • "), f.options.UseColors)
}

func (f *Formatter) formatBody(item *types.ClipboardItem) string {
	switch item.ContentType {
	case types.TypeImage:
		return FormatImage(item, f.options)
	default:
		if item.TextContent == "" {
			return FormatTextPreview(item, f.options.MaxWidth)
		}
		return FormatText(item, f.options)
	}
}

func (f *Formatter) formatPreview(item *types.ClipboardItem, maxLen int) string {
	if item.ContentType == types.TypeImage {
		return FormatImagePreview(item, maxLen)
	}
	preview := FormatTextPreview(item, maxLen)
	if preview == "" {
		return "(empty)"
	}
	return preview
}

func (f *Formatter) formatListHeader(page *types.Page) string {
	title := fmt.Sprintf("📋 Clipboard History (page %d of %d, %d entries)",
		page.Page, max(page.TotalPages(), 1), page.Total)
	return ColorizeIf(title, BrightBlue, f.options.UseColors)
}

// FormatItem formats a single item with given options
func FormatItem(item *types.ClipboardItem, opts Options) string {
	return New(opts).FormatItem(item)
}

// FormatPage formats a page of items with given options
func FormatPage(page *types.Page, opts Options) string {
	return New(opts).FormatPage(page)
}
