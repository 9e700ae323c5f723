package review

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/alert/alert/internal/domain/rules"
	"github.com/alert/alert/internal/domain/state"
)

var (
	neuroKeywords = []string{"confus", "drows", "agitat", "delirium", "somnolent"}
	gcsRe         = regexp.MustCompile(`(?i)gcs\s*(\d+)`)
)

// automate applies the derived writes that follow a clinician edit. Only the
// clinician-changed names are passed in; derived writes never trigger further
// automation. It returns the names it changed.
func automate(s *state.ClinicalState, changed []string) []string {
	var out []string
	for _, name := range changed {
		out = append(out, automateField(s, name)...)
	}
	return out
}

func automateField(s *state.ClinicalState, name string) []string {
	switch {
	case name == "b_rr":
		if rr, ok := s.Num("b_rr"); ok && rr > 20 && !s.Flag("resp_tachypnea") {
			return s.SetBool("resp_tachypnea", true, true)
		}
	case name == "e_temp":
		if t, ok := s.Num("e_temp"); ok && t > 38.0 && !s.Flag("infection") {
			return s.SetBool("infection", true, true)
		}
	case name == "d_alert":
		if neuroConcern(s.Text("d_alert")) && !s.Flag("neuro_gate") {
			return s.SetBool("neuro_gate", true, true)
		}
	case name == "e_fluid":
		return fluidToggles(s)
	case name == "renal_oedema" || name == "renal_dehydrated":
		return fluidText(s)
	case name == "resp_dyspnea":
		if !s.Flag("resp_dyspnea") && s.Has("dyspnea_concern") {
			return s.Unset("dyspnea_concern")
		}
	case strings.HasPrefix(name, "comorb_") && name != "comorb_other_note":
		if s.Flag(name) && !s.Has("comorbs_gate") {
			return s.SetBool("comorbs_gate", true, true)
		}
	case name == "chk_discharge_alert":
		if s.Flag(name) && s.Flag("chk_continue_alert") {
			return s.SetBool("chk_continue_alert", false, true)
		}
	case name == "chk_continue_alert":
		if s.Flag(name) && s.Flag("chk_discharge_alert") {
			return s.SetBool("chk_discharge_alert", false, true)
		}
	}
	return nil
}

// neuroConcern spots confusion words or a GCS below 15 in free text.
func neuroConcern(text string) bool {
	lower := strings.ToLower(text)
	for _, k := range neuroKeywords {
		if strings.Contains(lower, k) {
			return true
		}
	}
	if m := gcsRe.FindStringSubmatch(lower); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil && n < 15 {
			return true
		}
	}
	return false
}

// fluidToggles keeps the oedema and dehydrated toggles in step with the fluid
// status text.
func fluidToggles(s *state.ClinicalState) []string {
	lower := strings.ToLower(s.Text("e_fluid"))
	var out []string
	for _, t := range []struct{ word, field string }{
		{"oedema", "renal_oedema"},
		{"dehydrated", "renal_dehydrated"},
	} {
		want := strings.Contains(lower, t.word)
		if want != s.Flag(t.field) {
			out = append(out, s.SetBool(t.field, want, true)...)
		}
	}
	return out
}

// fluidText rewrites the fluid status from the oedema and dehydrated toggles.
func fluidText(s *state.ClinicalState) []string {
	oedema, dehydrated := s.Flag("renal_oedema"), s.Flag("renal_dehydrated")
	text := "Euvolaemic"
	switch {
	case oedema && dehydrated:
		text = "Oedema + Dehydrated"
	case oedema:
		text = "Oedema"
	case dehydrated:
		text = "Dehydrated"
	}
	if s.Text("e_fluid") == text {
		return nil
	}
	return s.SetText("e_fluid", text, true)
}

// autoWorseningCreatinine switches on the worsening creatinine chip when the
// current creatinine rose enough over the previous review's.
func autoWorseningCreatinine(s *state.ClinicalState, prev state.PreviousBloods) []string {
	if !s.Applies("renal_worsening_cr") || s.Flag("renal_worsening_cr") {
		return nil
	}
	raw, ok := prev.Get("cr_review")
	if !ok {
		return nil
	}
	p, ok := state.ParseNumber(raw)
	if !ok {
		return nil
	}
	curr, ok := s.NumOr("bl_cr_review", "cr_review")
	if !ok || !rules.WorseningCreatinine(p, curr) {
		return nil
	}
	return s.SetBool("renal_worsening_cr", true, true)
}
