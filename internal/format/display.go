package format

import (
	"fmt"
	"math"
	"strings"
	"time"
)

const placeholder = "—"

// FormatAddress shortens a hex address to the usual head…tail form.
func FormatAddress(hex string) string {
	return FormatAddressParts(hex, 6, 4)
}

// FormatAddressParts shortens hex to head…tail; inputs no longer than
// head+tail are returned unchanged.
func FormatAddressParts(hex string, head, tail int) string {
	if head < 0 || tail < 0 || len(hex) <= head+tail {
		return hex
	}
	return hex[:head] + "…" + hex[len(hex)-tail:]
}

// FormatPercent renders x as a percentage with the given fractional digits.
func FormatPercent(x float64, digits int) string {
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return placeholder
	}
	if digits < 0 {
		digits = 2
	}
	return trimZeros(fmt.Sprintf("%.*f", digits, x)) + "%"
}

// FormatUSD renders a dollar value with two fractional digits and
// thousands separators.
func FormatUSD(x float64) string {
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return placeholder
	}
	sign := ""
	if x < 0 {
		sign = "-"
		x = -x
	}
	text := fmt.Sprintf("%.2f", x)
	dot := strings.Index(text, ".")
	intPart, fracPart := text[:dot], text[dot:]

	var groups []string
	for len(intPart) > 3 {
		groups = append([]string{intPart[len(intPart)-3:]}, groups...)
		intPart = intPart[:len(intPart)-3]
	}
	groups = append([]string{intPart}, groups...)

	return sign + "$" + strings.Join(groups, ",") + fracPart
}

// TimeAgo renders a millisecond epoch as a coarse relative time.
func TimeAgo(msEpoch int64) string {
	if msEpoch <= 0 {
		return placeholder
	}
	d := time.Since(time.UnixMilli(msEpoch))
	switch {
	case d < 0:
		return "just now"
	case d < time.Minute:
		return fmt.Sprintf("%ds ago", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	}
}
