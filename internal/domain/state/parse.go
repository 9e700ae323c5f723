package state

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	decadeRe  = regexp.MustCompile(`^(\d+)s$`)
	rangeRe   = regexp.MustCompile(`^(\d+(?:\.\d+)?)\s*(?:-|to)\s*(\d+(?:\.\d+)?)`)
	leadNumRe = regexp.MustCompile(`^-?\d*\.?\d+`)
)

// ParseNumber reads a clinician-entered numeric value. Unit suffixes are
// ignored, a range ("15-20", "15 to 20") yields its midpoint and a decade
// ("90s") yields the middle of the decade. Text with no leading number has
// no value.
func ParseNumber(raw string) (float64, bool) {
	s := strings.ToLower(strings.TrimSpace(raw))
	s = strings.TrimLeft(s, "<>~≈ ")
	if s == "" {
		return 0, false
	}
	if m := decadeRe.FindStringSubmatch(s); m != nil {
		n, err := strconv.ParseFloat(m[1], 64)
		if err != nil {
			return 0, false
		}
		return n + 5, true
	}
	if m := rangeRe.FindStringSubmatch(s); m != nil {
		lo, err1 := strconv.ParseFloat(m[1], 64)
		hi, err2 := strconv.ParseFloat(m[2], 64)
		if err1 == nil && err2 == nil {
			return (lo + hi) / 2, true
		}
	}
	m := leadNumRe.FindString(s)
	if m == "" {
		return 0, false
	}
	n, err := strconv.ParseFloat(m, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// FormatNumber renders a number the shortest way that round-trips, so 38.5
// stays "38.5" and 120 stays "120".
func FormatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
