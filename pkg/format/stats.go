package format

import (
	"fmt"
	"sort"
	"strings"

	"github.com/berrythewa/clipsync/internal/types"
)

// FormatStats formats history statistics for display
func FormatStats(stats *types.HistoryStats, opts Options) string {
	if stats == nil {
		return ColorizeIf("No statistics", Gray, opts.UseColors)
	}

	parts := []string{
		ColorizeIf("📊 Clipboard Statistics", BrightBlue, opts.UseColors),
		"",
		formatStatLine("Total entries", fmt.Sprintf("%d", stats.Total), opts),
		formatStatLine("Starred", fmt.Sprintf("%d", stats.Starred), opts),
		"",
		formatSubHeader("Entries by type", opts),
		formatTypeLine(types.TypeText, stats.Text, opts),
		formatTypeLine(types.TypeImage, stats.Images, opts),
	}

	if len(stats.Devices) > 0 {
		parts = append(parts, "", formatSubHeader("Entries by device", opts))
		names := make([]string, 0, len(stats.Devices))
		for name := range stats.Devices {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			parts = append(parts, fmt.Sprintf("  %s: %d", name, stats.Devices[name]))
		}
	}

	return strings.Join(parts, "\n")
}

// FormatDevices lists known devices with their item counts
func FormatDevices(devices []types.DeviceInfo, currentID string, opts Options) string {
	if len(devices) == 0 {
		return ColorizeIf("No devices", Gray, opts.UseColors)
	}

	parts := []string{ColorizeIf("💻 Devices", BrightBlue, opts.UseColors), ""}
	for _, d := range devices {
		name := d.Name
		if name == "" {
			name = "(unnamed)"
		}
		line := fmt.Sprintf("  %s %s", BoldIf(name, opts.UseColors), DimIf(d.ID, opts.UseColors))
		if d.ID == currentID {
			line += ColorizeIf(" (this device)", Green, opts.UseColors)
		}
		line += fmt.Sprintf(" • %d items", d.Items)
		if !d.LastSeen.IsZero() {
			line += " • seen " + FormatRelativeTime(d.LastSeen)
		}
		parts = append(parts, line)
	}
	return strings.Join(parts, "\n")
}

func formatTypeLine(t types.ContentType, count int, opts Options) string {
	icon := ""
	if opts.UseIcons {
		if i, ok := ContentIcons[t]; ok {
			icon = i + " "
		}
	}
	label := string(t)
	if color, ok := ContentColors[t]; ok {
		label = ColorizeIf(label, color, opts.UseColors)
	}
	return fmt.Sprintf("  %s%s: %d", icon, label, count)
}

// formatStatLine formats a statistics line with label and value
func formatStatLine(label, value string, opts Options) string {
	if opts.UseColors {
		return fmt.Sprintf("  %s%s:%s %s", BrightCyan, label, Reset, value)
	}
	return fmt.Sprintf("  %s: %s", label, value)
}

// formatSubHeader formats a section subheader
func formatSubHeader(title string, opts Options) string {
	return ColorizeIf(title, BrightBlue, opts.UseColors)
}
