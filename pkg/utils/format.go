// Package utils provides shared utility functions.
package utils

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// abbreviatedRe matches quote values like "5.2K", "1.5L" or "2.3CR".
var abbreviatedRe = regexp.MustCompile(`^([+-]?\d*\.?\d+)\s*(K|L|CR)?$`)

// ParseAbbreviated converts a venue-abbreviated quantity ("5.2K", "1.5L",
// "2.3CR" or a plain number) to an exact integer. K is thousand, L is
// lakh (1e5), CR is crore (1e7). Unparseable input yields zero.
func ParseAbbreviated(value string) int64 {
	s := strings.ToUpper(strings.TrimSpace(value))
	if s == "" {
		return 0
	}

	m := abbreviatedRe.FindStringSubmatch(s)
	if m == nil {
		return 0
	}

	n, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0
	}

	switch m[2] {
	case "K":
		return int64(n * 1_000)
	case "L":
		return int64(n * 100_000)
	case "CR":
		return int64(n * 10_000_000)
	default:
		return int64(n)
	}
}

// FormatIndianCurrency formats a number in Indian currency format.
func FormatIndianCurrency(amount float64) string {
	negative := amount < 0
	if negative {
		amount = -amount
	}

	str := fmt.Sprintf("%.2f", amount)
	parts := strings.Split(str, ".")

	result := "₹" + formatIndianNumber(parts[0]) + "." + parts[1]
	if negative {
		result = "-" + result
	}
	return result
}

// formatIndianNumber groups an integer string in the Indian numbering
// system: last three digits, then groups of two.
func formatIndianNumber(s string) string {
	n := len(s)
	if n <= 3 {
		return s
	}

	result := s[n-3:]
	s = s[:n-3]

	for len(s) > 0 {
		if len(s) >= 2 {
			result = s[len(s)-2:] + "," + result
			s = s[:len(s)-2]
		} else {
			result = s + "," + result
			s = ""
		}
	}

	return result
}

// FormatQuantity formats a quantity with Indian-style grouping.
func FormatQuantity(qty int64) string {
	if qty < 0 {
		return "-" + formatIndianNumber(fmt.Sprintf("%d", -qty))
	}
	return formatIndianNumber(fmt.Sprintf("%d", qty))
}

// FormatLakhs formats a number in lakhs.
func FormatLakhs(amount float64) string {
	return fmt.Sprintf("%.2f L", amount/100_000)
}

// FormatCrores formats a number in crores.
func FormatCrores(amount float64) string {
	return fmt.Sprintf("%.2f Cr", amount/10_000_000)
}

// FormatCompact formats a number in compact form (L/Cr) based on magnitude.
func FormatCompact(amount float64) string {
	abs := amount
	if abs < 0 {
		abs = -abs
	}

	switch {
	case abs >= 10_000_000:
		return FormatCrores(amount)
	case abs >= 100_000:
		return FormatLakhs(amount)
	default:
		return fmt.Sprintf("%.2f", amount)
	}
}

// FormatPercent formats a percentage with sign.
func FormatPercent(value float64) string {
	sign := ""
	if value > 0 {
		sign = "+"
	}
	return fmt.Sprintf("%s%.2f%%", sign, value)
}
