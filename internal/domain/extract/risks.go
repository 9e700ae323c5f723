package extract

import (
	"regexp"
	"strings"
)

var risksBlockRe = regexp.MustCompile(`(?is)(?:IDENTIFIED ICU READMISSION RISK FACTORS|IDENTIFIED RISK FACTORS):(.*?)(?:PLAN:|\z)`)

// riskKeywords classify a previous risk line into categories. A line may
// fall into several.
var riskKeywords = []struct {
	Category string
	Words    []string
}{
	{"resp", []string{"oxygen", "wean", "tachypnea", "respiratory"}},
	{"neuro", []string{"neuro", "gcs", "delirium"}},
	{"renal", []string{"renal", "aki", "creatinine"}},
	{"infective", []string{"infection", "sepsis", "wcc"}},
	{"electrolyte", []string{"electrolyte", "potassium"}},
	{"after_hours", []string{"after-hours"}},
	{"vasoactive", []string{"vaso", "pressor"}},
	{"immobility", []string{"immobility"}},
}

// riskToggles are phrases that switch on a field wherever they appear.
var riskToggles = []struct{ Phrase, Field string }{
	{"infection markers downtrending", "infection_downtrend"},
	{"known ckd and cr around baseline", "renal_chronic"},
	{"discharged after-hours", "after_hours"},
	{"hospital acquired complication", "hac"},
	{"immobility", "immobility"},
}

// detailToggles switch on detail fields once their parent concern is named.
var detailToggles = []struct {
	Trigger string
	Gate    string
	Details []struct{ Phrase, Field string }
}{
	{"vasoactive", "pressors", []struct{ Phrase, Field string }{
		{"noradrenaline", "pressor_recent_norad"},
		{"metaraminol", "pressor_recent_met"},
		{"gtn", "pressor_recent_gtn"},
		{"dobutamine", "pressor_recent_dob"},
		{"midodrine", "pressor_recent_mid"},
		{"other", "pressor_recent_other"},
	}},
	{"renal concern", "renal", []struct{ Phrase, Field string }{
		{"oliguria", "renal_oliguria"},
		{"anuria", "renal_anuria"},
		{"fluid overload", "renal_fluid"},
		{"dialysis", "renal_dialysis"},
	}},
	{"respiratory concern", "resp_concern", []struct{ Phrase, Field string }{
		{"tachypnea", "resp_tachypnea"},
		{"rapid o2 wean", "resp_rapid_wean"},
		{"intubated", "intubated"},
	}},
}

var otherPressorRe = regexp.MustCompile(`(?i)Other \((.*?)\)`)

func risks(r *Result, text string) {
	m := risksBlockRe.FindStringSubmatch(text)
	if m == nil {
		return
	}
	lines := dashLines(m[1])
	if len(lines) == 0 || strings.Contains(strings.ToLower(lines[0]), "none identified") {
		return
	}
	seen := map[string]bool{}
	for _, line := range lines {
		r.PreviousRisks = append(r.PreviousRisks, line)
		lower := strings.ToLower(line)
		for _, k := range riskKeywords {
			if !seen[k.Category] && containsAny(lower, k.Words) {
				seen[k.Category] = true
			}
		}
		automate(r, line, lower)
	}
	for _, k := range riskKeywords {
		if seen[k.Category] {
			r.RiskCategories = append(r.RiskCategories, k.Category)
		}
	}
}

// automate turns previously identified risks back into toggles so the new
// review starts from where the last one left off.
func automate(r *Result, line, lower string) {
	for _, t := range riskToggles {
		if strings.Contains(lower, t.Phrase) {
			r.set(t.Field, true)
		}
	}
	for _, d := range detailToggles {
		if !strings.Contains(lower, d.Trigger) {
			continue
		}
		r.set(d.Gate, true)
		for _, x := range d.Details {
			if strings.Contains(lower, x.Phrase) {
				r.set(x.Field, true)
			}
		}
	}
	if strings.Contains(lower, "vasoactive") {
		if m := otherPressorRe.FindStringSubmatch(line); m != nil {
			r.set("pressor_recent_other_note", m[1])
		}
	}
}

func containsAny(s string, words []string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}
