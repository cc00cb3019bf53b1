// Package uiutil formats values for display on portal pages.
package uiutil

import (
	"strconv"
	"strings"
	"time"
)

const (
	FriendlyDateTimeLayout = "Jan 2, 2006 3:04 PM"
	FriendlyDateLayout     = "Jan 2, 2006"
)

// FriendlyRelativeTime returns a human-friendly description of how long ago t occurred.
// Times in the future are treated as "just now".
func FriendlyRelativeTime(t, now time.Time) string {
	diff := now.Sub(t)
	switch {
	case diff < time.Minute:
		return "just now"
	case diff < time.Hour:
		return plural(int(diff.Minutes()), "minute") + " ago"
	case diff < 24*time.Hour:
		return plural(int(diff.Hours()), "hour") + " ago"
	case diff < 7*24*time.Hour:
		return plural(int(diff.Hours()/24), "day") + " ago"
	default:
		return FormatFriendlyDate(t)
	}
}

func plural(n int, unit string) string {
	if n == 1 {
		return "1 " + unit
	}
	return strconv.Itoa(n) + " " + unit + "s"
}

// FormatFriendlyDateTime returns a consistent local timestamp; empty for the zero time.
func FormatFriendlyDateTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Local().Format(FriendlyDateTimeLayout)
}

// FormatFriendlyDate is FormatFriendlyDateTime without the clock.
func FormatFriendlyDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Local().Format(FriendlyDateLayout)
}

// FormatMoney renders an amount in dollars with thousands separators, e.g. "$1,250.00".
func FormatMoney(amount float64) string {
	neg := amount < 0
	if neg {
		amount = -amount
	}
	s := strconv.FormatFloat(amount, 'f', 2, 64)
	whole, frac, _ := strings.Cut(s, ".")

	var b strings.Builder
	if neg {
		b.WriteByte('-')
	}
	b.WriteByte('$')
	prefix := len(whole) % 3
	if prefix == 0 {
		prefix = 3
	}
	b.WriteString(whole[:prefix])
	for i := prefix; i < len(whole); i += 3 {
		b.WriteByte(',')
		b.WriteString(whole[i : i+3])
	}
	b.WriteByte('.')
	b.WriteString(frac)
	return b.String()
}

// TruncateWithEllipsis shortens text to the provided rune limit and appends an ellipsis when truncated.
func TruncateWithEllipsis(text string, limit int) string {
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	if limit <= 1 {
		return "…"
	}
	return strings.TrimSpace(string(runes[:limit-1])) + "…"
}
