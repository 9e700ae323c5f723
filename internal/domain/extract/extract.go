// Package extract pulls structured values out of a free-text clinical note.
//
// Extraction is pure: every pattern runs independently, a pattern that does
// not match leaves its field absent, and nothing here touches a live review.
// Merge applies a Result to a ClinicalState.
package extract

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/alert/alert/internal/domain/state"
)

// Assignment is one extracted field value. Value is a string or a bool.
type Assignment struct {
	Field string      `json:"field"`
	Value interface{} `json:"value"`
}

// Result is everything recognised in one note.
type Result struct {
	Fields         []Assignment         `json:"fields"`
	Devices        []state.DeviceEntry  `json:"devices,omitempty"`
	PreviousBloods state.PreviousBloods `json:"previous_bloods,omitempty"`
	PreviousRisks  []string             `json:"previous_risks,omitempty"`
	RiskCategories []string             `json:"risk_categories,omitempty"`
	// PreviousCategory is 1, 2 or 3, or 0 when the note states none.
	PreviousCategory int `json:"previous_category,omitempty"`
	// HoursSinceStepdown is meaningful only when HasElapsed is set.
	HoursSinceStepdown float64 `json:"hours_since_stepdown,omitempty"`
	HasElapsed         bool    `json:"has_elapsed"`
}

func (r *Result) set(field string, v interface{}) {
	if s, ok := v.(string); ok {
		s = strings.TrimSpace(s)
		if s == "" {
			return
		}
		v = s
	}
	for i, a := range r.Fields {
		if a.Field == field {
			r.Fields[i].Value = v
			return
		}
	}
	r.Fields = append(r.Fields, Assignment{Field: field, Value: v})
}

// Value returns the extracted value for a field.
func (r Result) Value(field string) (interface{}, bool) {
	for _, a := range r.Fields {
		if a.Field == field {
			return a.Value, true
		}
	}
	return nil, false
}

// Empty reports whether nothing at all was recognised.
func (r Result) Empty() bool {
	return len(r.Fields) == 0 && len(r.Devices) == 0 && len(r.PreviousBloods) == 0 &&
		len(r.PreviousRisks) == 0 && r.PreviousCategory == 0
}

// Extract scans a note. It never fails; unrecognised text is ignored.
func Extract(text string, now time.Time) Result {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	r := Result{PreviousBloods: state.PreviousBloods{}}

	demographics(&r, text)
	carryForward(&r, text)
	assessment(&r, text)
	bloods(&r, text)
	risks(&r, text)
	r.Devices = devices(text, now)
	history(&r, text, now)
	return r
}

// Merge writes a Result into s as system-derived values and appends its
// devices. Values absent from the Result never overwrite
// what the clinician already has. It returns the names of changed fields.
// Values the state rejects are skipped and reported together in the error.
func Merge(s *state.ClinicalState, r Result) ([]string, error) {
	var changed []string
	var errs []error
	for _, a := range r.Fields {
		names, err := s.Set(a.Field, a.Value, true)
		if err != nil {
			errs = append(errs, fmt.Errorf("merge %s: %w", a.Field, err))
			continue
		}
		changed = append(changed, names...)
	}
	for _, cat := range r.RiskCategories {
		changed = append(changed, s.SetBool("prev_risk_"+cat, true, true)...)
	}
	s.Devices = append(s.Devices, r.Devices...)
	return changed, errors.Join(errs...)
}

// QuickReview reports whether the note qualifies for the quick review
// workflow: previously CAT 2, at least 24 hours since stepdown and at least
// one previous risk category.
func QuickReview(r Result) bool {
	return r.PreviousCategory == 2 && r.HasElapsed && r.HoursSinceStepdown >= 24 && len(r.RiskCategories) > 0
}

// -- Demographics --

var (
	nameRe     = regexp.MustCompile(`(?i)Patient:\s*([A-Za-z ]+?)\s*\|`)
	urnRe      = regexp.MustCompile(`(?i)URN:[^\d\n]*(\d+)`)
	ageRe      = regexp.MustCompile(`(?i)\bAge:\s*(\d+)`)
	weightRe   = regexp.MustCompile(`(?i)\bWeight:\s*(\d+)`)
	locationRe = regexp.MustCompile(`(?i)Location:\s*([A-Z0-9]+)\s+(\d+)`)
	losRe      = regexp.MustCompile(`(?i)ICU LOS:\s*(\d+)`)
	reasonRe   = regexp.MustCompile(`(?i)Reason for ICU Admission:[ \t]*([^\n]*)`)
	stepdownRe = regexp.MustCompile(`(?i)(?:Discharge|Stepdown) Date:\s*(\d{1,2})[/-](\d{1,2})[/-](\d{2,4})`)
)

func demographics(r *Result, text string) {
	if m := nameRe.FindStringSubmatch(text); m != nil {
		r.set("pt_name", m[1])
	}
	if m := urnRe.FindStringSubmatch(text); m != nil {
		urn := m[1]
		if len(urn) > 3 {
			urn = urn[len(urn)-3:]
		}
		r.set("pt_mrn", urn)
	}
	if m := ageRe.FindStringSubmatch(text); m != nil {
		r.set("pt_age", m[1])
	}
	if m := weightRe.FindStringSubmatch(text); m != nil {
		r.set("pt_weight", m[1])
	}
	if m := locationRe.FindStringSubmatch(text); m != nil {
		ward := strings.ToUpper(m[1])
		if state.IsKnownWard(ward) {
			r.set("pt_ward", ward)
		} else {
			r.set("pt_ward", "Other")
			r.set("pt_ward_other", m[1])
		}
		r.set("pt_bed", m[2])
	}
	if m := losRe.FindStringSubmatch(text); m != nil {
		r.set("icu_los", m[1])
	}
	if m := reasonRe.FindStringSubmatch(text); m != nil {
		r.set("pt_admission_reason", m[1])
	}
	if iso, ok := stepdownDate(text); ok {
		r.set("stepdown_date", iso)
	}
}

// stepdownDate returns the discharge or stepdown date as YYYY-MM-DD.
func stepdownDate(text string) (string, bool) {
	m := stepdownRe.FindStringSubmatch(text)
	if m == nil {
		return "", false
	}
	return isoDate(m[1], m[2], m[3])
}

func isoDate(day, month, year string) (string, bool) {
	if len(year) == 2 {
		year = "20" + year
	}
	if len(year) != 4 {
		return "", false
	}
	iso := year + "-" + pad2(month) + "-" + pad2(day)
	if _, err := time.Parse("2006-01-02", iso); err != nil {
		return "", false
	}
	return iso, true
}

func pad2(s string) string {
	if len(s) == 1 {
		return "0" + s
	}
	return s
}

// -- Carry-forward context --

var (
	gocRe       = regexp.MustCompile(`(?im)GOC:[ \t]*([^\n]*)$`)
	allergiesRe = regexp.MustCompile(`(?i)Allergies:[ \t]*([^\n]*)`)
	picsRe      = regexp.MustCompile(`(?im)PICS Assessment:[ \t]*([^\n]*)$`)
	pmhRe       = regexp.MustCompile(`(?is)(?:PMH|Significant Past Medical History):(.*?)(?:A-E ASSESSMENT|PICS|GOC)`)
	mobilityRe  = regexp.MustCompile(`(?i)Mobility:[ \t]*([^\n]*)`)
	dietRe      = regexp.MustCompile(`(?i)Diet:[ \t]*([^\n]*)`)
	bowelsRe    = regexp.MustCompile(`(?i)Bowels:[ \t]*([^\n]*)`)
)

func stripParens(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "(")
	return strings.TrimSuffix(s, ")")
}

func carryForward(r *Result, text string) {
	if m := gocRe.FindStringSubmatch(text); m != nil {
		r.set("goc_note", stripParens(m[1]))
	}
	if m := allergiesRe.FindStringSubmatch(text); m != nil {
		r.set("allergies_note", m[1])
	}
	if m := picsRe.FindStringSubmatch(text); m != nil {
		r.set("pics_note", stripParens(m[1]))
	}
	if m := pmhRe.FindStringSubmatch(text); m != nil {
		r.set("pmh_note", strings.Join(dashLines(m[1]), "\n"))
	}
	if m := mobilityRe.FindStringSubmatch(text); m != nil {
		r.set("ae_mobility", m[1])
	}
	if m := dietRe.FindStringSubmatch(text); m != nil {
		r.set("ae_diet", m[1])
	}
	if m := bowelsRe.FindStringSubmatch(text); m != nil {
		r.set("ae_bowels", m[1])
	}
}

// dashLines returns the bullet lines of a block with the leading dash removed.
func dashLines(block string) []string {
	var out []string
	for _, l := range strings.Split(block, "\n") {
		l = strings.TrimSpace(l)
		if !strings.HasPrefix(l, "-") {
			continue
		}
		if l = strings.TrimSpace(l[1:]); l != "" {
			out = append(out, l)
		}
	}
	return out
}

// -- Previous A-E assessment --

var (
	aeBlockRe = regexp.MustCompile(`(?is)A-E ASSESSMENT(.*?)(?:Bloods:|DEVICES:)`)
	addsRe    = regexp.MustCompile(`(?i)\bADDS\s*:?\s*(\d+)`)
	airwayRe  = regexp.MustCompile(`(?im)^[ \t]*A[: \t][ \t]*(.*?)[ \t]*(?:\bB[: \t]|$)`)
	rrRe      = regexp.MustCompile(`(?i)\bRR\s*(\d+(?:\s*to\s*\d+|\s*-\s*\d+)?)`)
	spo2Re    = regexp.MustCompile(`(?i)SpO2\s*(?:above\s*|>)?\s*(\d+%?)`)
	spo2AltRe = regexp.MustCompile(`(?i)(\d+%?)\s*SpO2`)
	o2DevRe   = regexp.MustCompile(`(?i)\b(RA|(?:\d+L\s*)?NP|HFNP|NIV|Trache)\b`)
	hrRe      = regexp.MustCompile(`(?i)\bHR\s*(\d+s?)`)
	nibpRe    = regexp.MustCompile(`(?i)NIBP\s*(\d+/\d+)`)
	tempRe    = regexp.MustCompile(`(?i)\bE:\s*(?:Temp\s*)?(Afebrile|\d+(?:\.\d+)?)`)
	consciRe  = regexp.MustCompile(`(?im)^[ \t]*D[: \t][ \t]*(.*?)[ \t]*(?:\bE[: \t]|$)`)
)

func assessment(r *Result, text string) {
	ae := text
	if m := aeBlockRe.FindStringSubmatch(text); m != nil {
		ae = m[1]
	}
	first := func(field string, res ...*regexp.Regexp) {
		for _, re := range res {
			if m := re.FindStringSubmatch(ae); m != nil {
				r.set(field, m[1])
				return
			}
		}
	}
	first("prev_adds", addsRe)
	first("prev_airway", airwayRe)
	first("prev_rr", rrRe)
	first("prev_spo2", spo2Re, spo2AltRe)
	first("prev_o2_dev", o2DevRe)
	first("prev_hr", hrRe)
	first("prev_bp", nibpRe)
	first("prev_temp", tempRe)
	first("prev_alert", consciRe)
}

// -- Previous bloods --

var bloodsBlockRe = regexp.MustCompile(`(?is)Bloods:\s*(.*?)(?:DEVICES:|IDENTIFIED ICU READMISSION|IDENTIFIED RISK FACTORS|\z)`)

// bloodPatterns match each lab by its report label. Labels are word-bounded
// so Cr never matches inside CRP.
var bloodPatterns = []struct {
	Key string
	Re  *regexp.Regexp
}{
	{"hb", labRe(`Hb`)},
	{"wcc", labRe(`WCC`)},
	{"crp", labRe(`CRP`)},
	{"cr_review", labRe(`Cr`)},
	{"lac_review", labRe(`Lac(?:tate)?`)},
	{"k", labRe(`K\+?`)},
	{"na", labRe(`Na`)},
	{"mg", labRe(`Mg`)},
	{"phos", labRe(`PO4`)},
	{"plts", labRe(`Plts`)},
	{"alb", labRe(`Alb`)},
	{"neut", labRe(`Neut`)},
	{"lymph", labRe(`Lymph`)},
	{"bili", labRe(`Bili`)},
	{"alt", labRe(`ALT`)},
	{"inr", labRe(`INR`)},
	{"aptt", labRe(`APTT`)},
}

func labRe(label string) *regexp.Regexp {
	return regexp.MustCompile(`(?i)\b` + label + `\s*:?\s*(\d+(?:\.\d+)?)`)
}

func bloods(r *Result, text string) {
	m := bloodsBlockRe.FindStringSubmatch(text)
	if m == nil {
		return
	}
	block := m[1]
	for _, p := range bloodPatterns {
		if bm := p.Re.FindStringSubmatch(block); bm != nil {
			r.set("prev_bl_"+p.Key, bm[1])
			r.PreviousBloods[p.Key] = bm[1]
		}
	}
}

// -- Category and elapsed time --

var (
	categoryRe = regexp.MustCompile(`(?i)Category\s*-\s*CAT\s*([123])`)
	elapsedRe  = regexp.MustCompile(`(?i)Time since stepdown:\s*(\d+(?:\.\d+)?)\s*(hours?|days?)`)
)

func history(r *Result, text string, now time.Time) {
	if m := categoryRe.FindStringSubmatch(text); m != nil {
		r.PreviousCategory = int(m[1][0] - '0')
	}
	if m := elapsedRe.FindStringSubmatch(text); m != nil {
		n, _ := state.ParseNumber(m[1])
		if strings.HasPrefix(strings.ToLower(m[2]), "day") {
			n *= 24
		}
		r.HoursSinceStepdown, r.HasElapsed = n, true
		return
	}
	if iso, ok := stepdownDate(text); ok {
		if d, err := time.ParseInLocation("2006-01-02", iso, now.Location()); err == nil {
			r.HoursSinceStepdown, r.HasElapsed = now.Sub(d).Hours(), true
		}
	}
}
