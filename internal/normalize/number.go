// Package normalize provides pure normalization primitives for numbers and
// dates found in tariff documents. All functions are side-effect free and
// never fail: bad input yields (0, false) or the input unchanged.
package normalize

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	// numJunkPattern strips everything that is not part of a number or range.
	numJunkPattern = regexp.MustCompile(`[^\d.,\- ]`)

	// rangePattern matches simple numeric ranges like "20-25" or "20 - 25".
	rangePattern = regexp.MustCompile(`^(\d+(?:[.,]\d+)?)\s*-\s*(\d+(?:[.,]\d+)?)$`)

	// thousandsCommaPattern matches a comma used as a thousands separator,
	// i.e. followed by exactly three digits.
	thousandsCommaPattern = regexp.MustCompile(`,(\d{3})(?:\b|$)`)
)

// ParseNumber parses a numeric string as found in tariff text.
//
// Handles thousands separators (space or comma before a three-digit group),
// comma decimals ("1 234,56" -> 1234.56) and simple ranges resolved to their
// arithmetic mean ("20-25" -> 22.5). Returns false when no number can be
// extracted.
func ParseNumber(s string) (float64, bool) {
	s = strings.TrimSpace(numJunkPattern.ReplaceAllString(s, ""))
	if s == "" {
		return 0, false
	}

	if m := rangePattern.FindStringSubmatch(s); m != nil {
		lo, okLo := parsePlain(m[1])
		hi, okHi := parsePlain(m[2])
		if okLo && okHi {
			return (lo + hi) / 2, true
		}
		return 0, false
	}

	return parsePlain(s)
}

// parsePlain parses a single number after range handling.
func parsePlain(s string) (float64, bool) {
	// Spaces inside a number are thousands separators ("78 600").
	s = strings.ReplaceAll(strings.TrimSpace(s), " ", "")
	if s == "" {
		return 0, false
	}

	// A comma before a three-digit group is a thousands separator ("9,500");
	// any remaining comma is a decimal comma ("234,56").
	s = thousandsCommaPattern.ReplaceAllString(s, "$1")
	s = strings.ReplaceAll(s, ",", ".")

	// Collapse multi-dot artifacts ("1.234.56" from mixed separators): keep
	// the last dot as the decimal point.
	if strings.Count(s, ".") > 1 {
		last := strings.LastIndex(s, ".")
		s = strings.ReplaceAll(s[:last], ".", "") + s[last:]
	}

	v, err := strconv.ParseFloat(strings.Trim(s, "-"), 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// ParseInt parses an integer token, tolerating surrounding junk.
func ParseInt(s string) (int, bool) {
	v, ok := ParseNumber(s)
	if !ok {
		return 0, false
	}
	return int(v), true
}
