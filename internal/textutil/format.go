package textutil

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
)

// FormatBytes renders n with binary units, e.g. "1.5 MiB".
func FormatBytes(n int64) string {
	if n < 0 {
		n = 0
	}
	return humanize.IBytes(uint64(n))
}

// FormatProgress renders downloaded/total with a percentage.
func FormatProgress(downloaded, total int64, ratio float64) string {
	if total <= 0 {
		return fmt.Sprintf("%s (%.0f%%)", FormatBytes(downloaded), ratio*100)
	}
	return fmt.Sprintf("%s / %s (%.0f%%)", FormatBytes(downloaded), FormatBytes(total), ratio*100)
}

// FormatETA renders a remaining time such as "2m05s". Nil yields "-".
func FormatETA(eta *time.Duration) string {
	if eta == nil || *eta < 0 {
		return "-"
	}
	return FormatDuration(*eta)
}

// FormatDuration renders d compactly at second resolution.
func FormatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	h := int(d / time.Hour)
	m := int(d % time.Hour / time.Minute)
	s := int(d % time.Minute / time.Second)
	switch {
	case h > 0:
		return fmt.Sprintf("%dh%02dm%02ds", h, m, s)
	case m > 0:
		return fmt.Sprintf("%dm%02ds", m, s)
	default:
		return fmt.Sprintf("%ds", s)
	}
}

// FormatSince renders t relative to now ("3 minutes ago").
func FormatSince(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return humanize.Time(t)
}
