package util

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

func SafeAtoi(s string) int {
	i, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0
	}
	return i
}

var nonPriceRegex = regexp.MustCompile(`[^\d.,]`)

// ParsePriceMinor converts a displayed price such as "1.299,95 €", "£1,299.95"
// or "49" into minor currency units. A separator followed by exactly one or
// two digits at the end is treated as the decimal separator; every other
// separator is a thousands separator.
func ParsePriceMinor(s string) (int64, error) {
	cleaned := nonPriceRegex.ReplaceAllString(s, "")
	if cleaned == "" {
		return 0, fmt.Errorf("no digits in price %q", s)
	}

	whole, frac := cleaned, ""
	if i := strings.LastIndexAny(cleaned, ".,"); i >= 0 {
		tail := cleaned[i+1:]
		if len(tail) == 1 || len(tail) == 2 {
			whole, frac = cleaned[:i], tail
		}
	}
	whole = strings.NewReplacer(".", "", ",", "").Replace(whole)
	if whole == "" {
		whole = "0"
	}
	for len(frac) < 2 {
		frac += "0"
	}

	units, err := strconv.ParseInt(whole, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid price %q: %w", s, err)
	}
	cents, err := strconv.ParseInt(frac, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid price %q: %w", s, err)
	}
	return units*100 + cents, nil
}

// MajorToMinor converts a decimal amount into minor units, rounding to the nearest unit.
func MajorToMinor(amount float64) int64 {
	return int64(math.Round(amount * 100))
}

// FormatMinor renders minor units as a decimal amount, e.g. 129995 -> "1299.95".
func FormatMinor(minor int64) string {
	sign := ""
	if minor < 0 {
		sign = "-"
		minor = -minor
	}
	return fmt.Sprintf("%s%d.%02d", sign, minor/100, minor%100)
}
