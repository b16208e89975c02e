package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/fpang/mystic-studio/internal/imagedata"
)

// FormatDurationShort formats a duration in a short format (M:SS or H:MM:SS).
func FormatDurationShort(d time.Duration) string {
	totalSeconds := int(d.Seconds())
	hours := totalSeconds / 3600
	minutes := (totalSeconds % 3600) / 60
	seconds := totalSeconds % 60

	if hours > 0 {
		return fmt.Sprintf("%d:%02d:%02d", hours, minutes, seconds)
	}
	return fmt.Sprintf("%d:%02d", minutes, seconds)
}

// FormatBytes formats a byte count as B, KB or MB.
func FormatBytes(n int) string {
	switch {
	case n >= 1<<20:
		return fmt.Sprintf("%.1f MB", float64(n)/(1<<20))
	case n >= 1<<10:
		return fmt.Sprintf("%.1f KB", float64(n)/(1<<10))
	default:
		return fmt.Sprintf("%d B", n)
	}
}

// ImageSummary describes an inspected image on one line. A nil info yields
// "unknown image".
func ImageSummary(info *imagedata.Info, size int) string {
	if info == nil {
		return "unknown image (" + FormatBytes(size) + ")"
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%s %dx%d, %s", strings.ToUpper(info.Format), info.Width, info.Height, FormatBytes(size))
	if info.Camera != "" {
		sb.WriteString(", " + info.Camera)
	}
	if info.TakenAt != nil {
		sb.WriteString(", taken " + info.TakenAt.Format("2006-01-02 15:04"))
	}
	if info.NeedsOutpaint() {
		sb.WriteString(color.YellowString(" (will be outpainted)"))
	}
	return sb.String()
}
