package rules

import (
	"regexp"
	"strings"

	"github.com/alert/alert/internal/domain/state"
)

var keepCaseRe = regexp.MustCompile(`^(?:[0-9]|[A-Z]{2}|[A-Z][0-9])`)

// sentenceCase lowercases a phrase and capitalises its first letter, unless it
// starts with a digit or an abbreviation.
func sentenceCase(s string) string {
	if s == "" || keepCaseRe.MatchString(s) {
		return s
	}
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// joinParts joins phrases with commas; every phrase after the first is
// lowercased.
func joinParts(parts []string) string {
	if len(parts) == 0 {
		return ""
	}
	out := make([]string, len(parts))
	out[0] = parts[0]
	for i, p := range parts[1:] {
		out[i+1] = strings.ToLower(p)
	}
	return strings.Join(out, ", ")
}

func withNote(text, note string) string {
	if n := strings.TrimSpace(note); n != "" {
		return text + " (" + n + ")"
	}
	return text
}

func fmtNum(v float64) string {
	return state.FormatNumber(v)
}
