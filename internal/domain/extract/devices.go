package extract

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/alert/alert/internal/domain/state"
)

var devicesBlockRe = regexp.MustCompile(`(?is)DEVICES:(.*?)(?:IDENTIFIED|GOC:|PICS:|\z)`)

// devicePrefixes is the order in which line prefixes are tried. Multi-word
// types come first so "Other CVAD" is not read as a generic device.
var devicePrefixes = []string{
	"Other CVAD", "Other Device", "Arterial Line", "Enteral Tube", "Pacing Wire",
	"Vascath", "CVC", "PICC", "PIVC", "IDC", "Drain", "Wound",
}

var (
	dateRe       = regexp.MustCompile(`(\d{1,2})[/-](\d{1,2})[/-](\d{2,4})`)
	insertedRe   = regexp.MustCompile(`(?i),?\s*(?:inserted|ins\.?)\s+\d{1,2}[/-]\d{1,2}[/-]\d{2,4}`)
	bareDateRe   = regexp.MustCompile(`,?\s*\d{1,2}[/-]\d{1,2}[/-]\d{2,4}`)
	dwellDaysRe  = regexp.MustCompile(`(?i)dwell\s*(\d+)\s*days?`)
	shortDwellRe = regexp.MustCompile(`(?i)(\d+)\s*d\b(?:\s*,\s*[a-z ]+?)?\s*dwell`)
	dwellTailRe  = regexp.MustCompile(`(?i),?\s*(?:dwell\s*\d+\s*days?|\d+\s*d\b(?:\s*,\s*[a-z ]+?)?\s*dwell)`)
)

func devices(text string, now time.Time) []state.DeviceEntry {
	m := devicesBlockRe.FindStringSubmatch(text)
	if m == nil {
		return nil
	}
	var out []state.DeviceEntry
	for _, line := range dashLines(m[1]) {
		if strings.Contains(strings.ToLower(line), "nil") {
			continue
		}
		out = append(out, parseDevice(line, now))
	}
	return out
}

// parseDevice reads one device line such as
// "PICC L arm inserted 10/10/2026, 5d dwell".
func parseDevice(line string, now time.Time) state.DeviceEntry {
	d := state.DeviceEntry{Type: "Other Device"}
	rest := line
	for _, p := range devicePrefixes {
		if strings.HasPrefix(line, p) {
			d.Type = p
			rest = line[len(p):]
			break
		}
	}

	if m := dateRe.FindStringSubmatch(rest); m != nil {
		if iso, ok := isoDate(m[1], m[2], m[3]); ok {
			d.InsertionDate = iso
		}
	}
	if d.InsertionDate == "" {
		if days, ok := dwellDays(rest); ok {
			today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
			d.InsertionDate = today.AddDate(0, 0, -days).Format("2006-01-02")
		}
	}

	rest = insertedRe.ReplaceAllString(rest, "")
	rest = bareDateRe.ReplaceAllString(rest, "")
	rest = dwellTailRe.ReplaceAllString(rest, "")
	rest = strings.TrimSpace(rest)
	rest = strings.TrimSpace(strings.TrimPrefix(stripParens(rest), "-"))
	d.Details = strings.TrimSpace(strings.TrimSuffix(rest, ","))
	return d
}

func dwellDays(s string) (int, bool) {
	for _, re := range []*regexp.Regexp{dwellDaysRe, shortDwellRe} {
		if m := re.FindStringSubmatch(s); m != nil {
			n, err := strconv.Atoi(m[1])
			return n, err == nil
		}
	}
	return 0, false
}
