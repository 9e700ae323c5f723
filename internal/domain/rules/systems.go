package rules

import (
	"strings"

	"github.com/alert/alert/internal/domain/state"
)

func dischargeContextRule(c *Context, out *collector) {
	s := c.State
	if s.Flag("after_hours") {
		out.add(Amber, "Discharged after-hours", s.Text("after_hours_note"), "after_hours")
	}
	if s.Flag("hac") {
		out.add(Amber, "Hospital acquired complication", s.Text("hac_note"), "hac")
	}
}

func neurologicalRule(c *Context, out *collector) {
	s := c.State
	if !s.Flag("neuro_gate") {
		return
	}
	txt := "Neurological concern"
	var details []string
	if alert := s.Text("d_alert"); strings.Contains(strings.ToLower(alert), "gcs") {
		details = append(details, alert)
	}
	if t := s.Text("neuro_type"); t != "" {
		details = append(details, strings.ToLower(t))
	}
	if len(details) > 0 {
		txt += " with " + joinParts(details)
	}
	sev := Amber
	if s.Text("neuro_concern") == "severe" {
		sev = Red
	}
	out.add(sev, sentenceCase(txt), s.Text("neuro_type_note"), "neuro_gate", "d_alert")
}

func electrolyteRule(c *Context, out *collector) {
	s := c.State
	k, hasK := c.num("bl_k")
	if !s.Flag("electrolyte_gate") && !(hasK && (k < 3.0 || k > 6.0)) {
		return
	}
	isRed := false
	var parts []string
	if hasK {
		if k > 6.0 {
			parts = append(parts, "hyperkalemia K+ "+fmtNum(k))
			isRed = true
		} else if k < 3.0 {
			parts = append(parts, "hypokalaemia K+ "+fmtNum(k))
			isRed = true
		}
	}
	if na, ok := c.num("bl_na"); ok && (na < 125 || na > 155) {
		parts = append(parts, "severe Na derangement "+fmtNum(na))
		isRed = true
	}
	switch s.GatedText("electrolyte_concern") {
	case "severe":
		if len(parts) == 0 {
			parts = append(parts, "severe derangement")
		}
		isRed = true
	case "mild":
		if len(parts) == 0 {
			parts = append(parts, "mild/moderate derangement")
		}
	}
	msg := "Electrolyte concern"
	if len(parts) > 0 {
		msg += " with " + joinParts(parts)
	}
	sev := Amber
	if isRed {
		sev = Red
	}
	out.add(sev, msg, s.GatedText("electrolyte_concern_note"), "electrolyte_gate", "bl_k", "bl_na")
}

func immobilityRule(c *Context, out *collector) {
	s := c.State
	if !s.Flag("immobility") {
		return
	}
	if los, _ := s.Num("icu_los"); los >= 4 {
		out.add(Red, "Immobility concern - prolonged ICU stay", s.Text("immobility_note"), "immobility", "icu_los")
		return
	}
	out.add(Amber, "Immobility concern", s.Text("immobility_note"), "immobility")
}

func painRule(c *Context, out *collector) {
	if pain, ok := c.State.Num("d_pain"); ok && pain >= 7 {
		out.add(Amber, "Pain not well controlled with score of "+fmtNum(pain)+" out of 10", "", "d_pain")
	}
}

func wellbeingRule(c *Context, out *collector) {
	s := c.State
	if s.IsFalse("nutrition_adequate") {
		out.add(Amber, "Inadequate nutrition", s.Text("nutrition_context_note"), "nutrition_adequate")
	}
	if s.Flag("neuro_psych") {
		out.add(Amber, "Psychological concern", s.Text("neuro_psych_note"), "neuro_psych")
	}
	if s.Flag("pics") {
		out.add(Amber, "Post ICU Syndrome positive", s.Text("pics_note"), "pics")
	}
}

// ActiveComorbidities returns the selected comorbidity toggles in display
// order.
func ActiveComorbidities(s *state.ClinicalState) []struct{ Field, Label string } {
	var out []struct{ Field, Label string }
	for _, cm := range state.ComorbidityLabels {
		if s.Flag(cm.Field) {
			out = append(out, struct{ Field, Label string }{cm.Field, cm.Label})
		}
	}
	return out
}

func comorbiditiesRule(c *Context, out *collector) {
	s := c.State
	active := ActiveComorbidities(s)
	fields := make([]string, len(active))
	labels := make([]string, len(active))
	for i, a := range active {
		fields[i] = a.Field
		labels[i] = strings.ToLower(a.Label)
	}
	switch {
	case len(active) >= 3:
		out.add(Red, sentenceCase("Multiple comorbidities (three or more)"), s.Text("comorb_other_note"), fields...)
	case len(active) > 0:
		out.add(Amber, sentenceCase("Comorbidities including "+joinParts(labels)), s.Text("comorb_other_note"), fields...)
	}
}

func overrideRule(c *Context, out *collector) {
	s := c.State
	note := s.Text("override_note")
	switch s.Text("override") {
	case "red":
		if note == "" {
			note = "Clinician override: CAT 1"
		}
		out.add(Red, note, "", "override")
	case "amber":
		if note == "" {
			note = "Clinician override: CAT 2"
		}
		out.add(Amber, note, "", "override")
	}
}

func ageRule(c *Context, out *collector) {
	if age, ok := c.State.Num("pt_age"); ok && age >= 75 {
		out.add(Amber, "Age "+fmtNum(age)+" (frailty risk)", "", "pt_age")
	}
}
