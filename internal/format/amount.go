package format

import (
	"fmt"
	"math/big"
	"strings"
)

// FormatAmount renders a fixed-point integer scaled by decimals as a decimal
// string with at most displayDigits fractional digits, trailing zeros
// trimmed. Nonzero values below 0.01 are rendered in compact exponent
// notation so dust balances stay readable.
func FormatAmount(raw *big.Int, decimals uint8, displayDigits int) string {
	if raw == nil {
		return "0"
	}
	if raw.Sign() == 0 {
		return "0"
	}
	if displayDigits < 0 {
		displayDigits = 0
	}

	sign := ""
	abs := new(big.Int).Abs(raw)
	if raw.Sign() < 0 {
		sign = "-"
	}

	denom := pow10(int(decimals))
	rat := new(big.Rat).SetFrac(abs, denom)

	hundredth := big.NewRat(1, 100)
	if rat.Cmp(hundredth) < 0 {
		return sign + exponentForm(rat)
	}

	text := rat.FloatString(displayDigits)
	return sign + trimZeros(text)
}

// exponentForm renders a positive rational below 0.01 as "m.mme-n".
func exponentForm(rat *big.Rat) string {
	f, _ := new(big.Float).SetRat(rat).Float64()
	text := fmt.Sprintf("%.2e", f)
	// tidy "1.23e-05" into "1.23e-5"
	if i := strings.Index(text, "e-0"); i >= 0 && len(text) > i+3 {
		text = text[:i+2] + text[i+3:]
	}
	return text
}

func trimZeros(s string) string {
	if !strings.Contains(s, ".") {
		return s
	}
	s = strings.TrimRight(s, "0")
	return strings.TrimSuffix(s, ".")
}

func pow10(n int) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(n)), nil)
}

// SanitizeAmount reduces free-form input to a plain numeric string: digits
// and a single decimal point, no leading zeros, no trailing fractional
// zeros. "00012.34500" becomes "12.345".
func SanitizeAmount(s string) string {
	var b strings.Builder
	seenDot := false
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '.' && !seenDot:
			seenDot = true
			b.WriteRune(r)
		}
	}
	out := b.String()
	if out == "" {
		return ""
	}

	intPart := out
	fracPart := ""
	if i := strings.Index(out, "."); i >= 0 {
		intPart, fracPart = out[:i], out[i+1:]
	}

	intPart = strings.TrimLeft(intPart, "0")
	if intPart == "" {
		intPart = "0"
	}
	fracPart = strings.TrimRight(fracPart, "0")

	if fracPart == "" {
		return intPart
	}
	return intPart + "." + fracPart
}

// ParseAmount converts a decimal string to the fixed-point integer scaled by
// decimals. Fractional digits beyond the token's precision are rounded half
// down, so the wire amount equals round_half_down(input * 10^decimals).
func ParseAmount(s string, decimals uint8) (*big.Int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("amount is empty")
	}

	intPart := s
	fracPart := ""
	if i := strings.Index(s, "."); i >= 0 {
		intPart, fracPart = s[:i], s[i+1:]
		if strings.Contains(fracPart, ".") {
			return nil, fmt.Errorf("invalid amount %q", s)
		}
	}
	if intPart == "" {
		intPart = "0"
	}
	if !isDigits(intPart) || (fracPart != "" && !isDigits(fracPart)) {
		return nil, fmt.Errorf("invalid amount %q", s)
	}

	whole, ok := new(big.Int).SetString(intPart, 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount %q", s)
	}
	scaled := new(big.Int).Mul(whole, pow10(int(decimals)))

	if fracPart == "" {
		return scaled, nil
	}

	keep := fracPart
	rest := ""
	if len(fracPart) > int(decimals) {
		keep, rest = fracPart[:decimals], fracPart[decimals:]
	}

	if keep != "" {
		fracScaled, ok := new(big.Int).SetString(keep, 10)
		if !ok {
			return nil, fmt.Errorf("invalid amount %q", s)
		}
		fracScaled.Mul(fracScaled, pow10(int(decimals)-len(keep)))
		scaled.Add(scaled, fracScaled)
	}

	// Round half down: bump only when the dropped tail is strictly above
	// one half of the last kept unit.
	if rest != "" && tailAboveHalf(rest) {
		scaled.Add(scaled, big.NewInt(1))
	}

	return scaled, nil
}

func tailAboveHalf(rest string) bool {
	if rest[0] > '5' {
		return true
	}
	if rest[0] < '5' {
		return false
	}
	for i := 1; i < len(rest); i++ {
		if rest[i] != '0' {
			return true
		}
	}
	return false
}

// FractionalDigits reports how many fractional digits a decimal string
// carries, ignoring trailing zeros.
func FractionalDigits(s string) int {
	i := strings.Index(s, ".")
	if i < 0 {
		return 0
	}
	frac := strings.TrimRight(s[i+1:], "0")
	return len(frac)
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
