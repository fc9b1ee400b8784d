package cli

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// FormatCurrency formats an amount as dollars with thousands separators.
func FormatCurrency(amount float64) string {
	negative := amount < 0
	if negative {
		amount = -amount
	}

	str := fmt.Sprintf("%.2f", amount)
	parts := strings.Split(str, ".")

	result := "$" + groupThousands(parts[0]) + "." + parts[1]
	if negative && str != "0.00" {
		result = "-" + result
	}
	return result
}

// groupThousands inserts a comma every three digits from the right.
func groupThousands(s string) string {
	n := len(s)
	if n <= 3 {
		return s
	}

	var b strings.Builder
	lead := n % 3
	if lead > 0 {
		b.WriteString(s[:lead])
	}
	for i := lead; i < n; i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(s[i : i+3])
	}
	return b.String()
}

// FormatCompact formats large amounts with a K or M suffix.
func FormatCompact(amount float64) string {
	abs := math.Abs(amount)
	sign := ""
	if amount < 0 {
		sign = "-"
	}

	switch {
	case abs >= 1e6:
		return fmt.Sprintf("%s$%.2fM", sign, abs/1e6)
	case abs >= 1e4:
		return fmt.Sprintf("%s$%.1fK", sign, abs/1e3)
	}
	return FormatCurrency(amount)
}

// FormatPrice formats a fill price.
func FormatPrice(price float64) string {
	if price != 0 && math.Abs(price) < 10 {
		return fmt.Sprintf("%.4f", price)
	}
	return fmt.Sprintf("%.2f", price)
}

// FormatQty formats a quantity, dropping the fraction for whole numbers.
func FormatQty(qty float64) string {
	if qty == math.Trunc(qty) {
		return fmt.Sprintf("%.0f", qty)
	}
	return fmt.Sprintf("%g", qty)
}

// FormatPercent formats a percentage with an explicit sign.
func FormatPercent(pct float64) string {
	if pct > 0 {
		return fmt.Sprintf("+%.2f%%", pct)
	}
	return fmt.Sprintf("%.2f%%", pct)
}

// FormatMinutes formats a holding time given in minutes.
func FormatMinutes(minutes float64) string {
	return FormatDuration(time.Duration(minutes * float64(time.Minute)))
}

// FormatDuration formats a duration in human-readable form.
func FormatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	} else if d < time.Hour {
		return fmt.Sprintf("%dm %ds", int(d.Minutes()), int(d.Seconds())%60)
	} else if d < 24*time.Hour {
		return fmt.Sprintf("%dh %dm", int(d.Hours()), int(d.Minutes())%60)
	}
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	return fmt.Sprintf("%dd %dh", days, hours)
}

// FormatWinRate formats a 0-100 win rate.
func FormatWinRate(rate float64) string {
	return fmt.Sprintf("%.1f%%", rate)
}

// FormatDate formats a date-time string as the day it falls on, or returns
// it unchanged if it does not parse.
func FormatDate(s string, loc *time.Location) string {
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04", "2006-01-02"} {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t.In(loc).Format("02-Jan-2006")
		}
	}
	return s
}

// TruncateString truncates a string to max length with ellipsis.
func TruncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}

// PadRight pads a string to the right.
func PadRight(s string, length int) string {
	if len(s) >= length {
		return s
	}
	return s + strings.Repeat(" ", length-len(s))
}

// PadLeft pads a string to the left.
func PadLeft(s string, length int) string {
	if len(s) >= length {
		return s
	}
	return strings.Repeat(" ", length-len(s)) + s
}
