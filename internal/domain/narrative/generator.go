// Package narrative renders a review into the handover report text.
package narrative

import (
	"fmt"
	"strings"
	"time"

	"github.com/alert/alert/internal/domain/rules"
	"github.com/alert/alert/internal/domain/state"
)

// Input is everything the report reads.
type Input struct {
	State  *state.ClinicalState
	Result rules.Result
	Prev   state.PreviousBloods
	Now    time.Time
}

// bloodLabels is the report order of the bloods line.
var bloodLabels = []struct{ Key, Label string }{
	{"lac_review", "Lac"}, {"hb", "Hb"}, {"wcc", "WCC"}, {"cr_review", "Cr"}, {"egfr", "eGFR"},
	{"k", "K"}, {"na", "Na"}, {"mg", "Mg"}, {"phos", "PO4"}, {"plts", "Plts"}, {"alb", "Alb"},
	{"neut", "Neut"}, {"lymph", "Lymph"}, {"bili", "Bili"}, {"alt", "ALT"}, {"inr", "INR"}, {"aptt", "APTT"},
}

type report struct {
	lines []string
}

func (r *report) push(s string) { r.lines = append(r.lines, s) }

func (r *report) addLine(s string) {
	if s != "" {
		r.lines = append(r.lines, s)
	}
}

// section appends body under header followed by a blank line. Empty bodies
// render nothing.
func (r *report) section(header string, body *report) {
	if len(body.lines) == 0 {
		return
	}
	if header != "" {
		r.push(header)
	}
	r.lines = append(r.lines, body.lines...)
	r.push("")
}

func isoToDMY(iso string) string {
	parts := strings.Split(iso, "-")
	if len(parts) != 3 {
		return iso
	}
	return parts[2] + "/" + parts[1] + "/" + parts[0]
}

// Generate renders the full report. It is a pure function of its input.
func Generate(in Input) string {
	s := in.State
	pre := rules.IsPre(s)
	r := &report{}

	role := s.Text("clinician_role")
	if role == "" {
		role = "ALERT CNS"
	}
	if pre {
		r.push(role + " Pre-Stepdown Review")
	} else {
		r.push(role + " post ICU review")
	}

	r.push(fmt.Sprintf("Patient: %s | URN: ...%s | Location: %s %s",
		orDash(s.Text("pt_name")), s.Text("pt_mrn"), orDash(wardName(s)), s.Text("pt_bed")))
	var demo []string
	if v := s.Text("pt_age"); v != "" {
		demo = append(demo, "Age: "+v)
	}
	if v := s.Text("pt_weight"); v != "" {
		demo = append(demo, "Weight: "+v+"kg")
	}
	if len(demo) > 0 {
		r.push(strings.Join(demo, ", "))
	}

	reviewTime := s.Text("review_time")
	if reviewTime == "" {
		reviewTime = in.Now.Format("15:04")
	}
	r.push("Time of review: " + reviewTime)

	if pre {
		r.push(fmt.Sprintf("Stepdown Date: Today (%d/%d/%d)", in.Now.Day(), int(in.Now.Month()), in.Now.Year()))
	} else if d := s.Text("stepdown_date"); d != "" {
		r.push("ICU Discharge Date: " + isoToDMY(d))
	}
	r.push("")

	if wt := in.Result.WardTime.Text; wt != "" && !pre {
		r.push("Time since stepdown: " + wt)
	}
	if v := s.Text("icu_los"); v != "" {
		r.push("ICU LOS: " + v + " days")
	}
	r.push("Reason for ICU Admission: " + orDash(s.Text("pt_admission_reason")))
	if pre && s.Text("icu_summary") != "" {
		r.push("")
		r.push("ICU Course Summary: " + s.Text("icu_summary"))
	}
	r.push("")

	categorySection(r, s, in.Result, pre)
	historySection(r, s)
	assessmentSection(r, s)
	contextSection(r, s, in.Now)
	bloodsSection(r, s, in.Prev)
	devicesSection(r, s, in.Now)

	notes := &report{}
	if v := s.Text("neuro_psych_note"); v != "" {
		notes.push("Psychological: " + v)
	}
	if v := s.Text("context_other_note"); v != "" {
		notes.push("Other: " + v)
	}
	r.section("", notes)

	r.push("IDENTIFIED ICU READMISSION RISK FACTORS:")
	risks := in.Result.RiskLines()
	for _, line := range risks {
		r.push("- " + line)
	}
	if len(risks) == 0 {
		r.push("- None identified")
	}
	r.push("")

	r.push("PLAN:")
	for _, line := range rules.PlanLines(s, in.Result.Category) {
		r.push("- " + line)
	}
	return strings.Join(r.lines, "\n")
}

func orDash(s string) string {
	if s == "" {
		return "--"
	}
	return s
}

func wardName(s *state.ClinicalState) string {
	if s.Text("pt_ward") == "Other" && s.Text("pt_ward_other") != "" {
		return s.Text("pt_ward_other")
	}
	return s.Text("pt_ward")
}

func categorySection(r *report, s *state.ClinicalState, res rules.Result, pre bool) {
	if s.IsFalse("stepdown_suitable") {
		r.push("ALERT Nursing Review Category - Not suitable for stepdown")
		r.push("")
		r.push("Assessed as not presently suitable for ward stepdown.")
		reason := s.Text("unsuitable_note")
		if reason == "" {
			reason = "Clinical concerns (see notes)"
		}
		r.push("Reason: " + reason)
		r.push("Plan: ICU Senior Review requested. Please contact ALERT for re-review when appropriate.")
		r.push("")
		r.push("--- FULL ASSESSMENT BELOW ---")
		r.push("")
		return
	}
	r.push("ALERT Nursing Review Category - " + res.Category.Label())
	if s.Flag("stepdown_suitable") && pre {
		r.push("Patient is suitable for ward stepdown.")
	}
	r.push("")
}

func historySection(r *report, s *state.ClinicalState) {
	active := rules.ActiveComorbidities(s)
	pmh := strings.TrimSpace(s.Text("pmh_note"))
	if len(active) > 0 || pmh != "" {
		r.push("PMH:")
		for _, c := range active {
			r.push("-" + c.Label)
		}
		for _, p := range strings.Split(pmh, "\n") {
			if p = strings.TrimSpace(p); p != "" {
				r.push("-" + strings.TrimPrefix(p, "-"))
			}
		}
		r.push("")
	}
	if v := s.Text("allergies_note"); v != "" {
		r.push("Allergies: " + v)
		r.push("")
	}
	if v := s.Text("goc_note"); v != "" {
		r.push("GOC: " + v)
		r.push("")
	}
}

func assessmentSection(r *report, s *state.ClinicalState) {
	body := &report{}
	if s.Flag("chk_use_mods") {
		line := "MODS: " + s.Text("mods_score")
		if d := s.Text("mods_details"); d != "" {
			line += " (" + d + ")"
		}
		body.addLine(line)
	} else if v := s.Text("adds"); v != "" {
		body.addLine("ADDS: " + v)
	}
	if v := s.Text("airway_a"); v != "" {
		body.addLine("A: " + v)
	}

	var b []string
	if v := s.Text("b_rr"); v != "" {
		b = append(b, "RR "+v)
	}
	if v := s.Text("b_spo2"); v != "" {
		b = append(b, "SpO2 "+v)
	}
	if v := s.Text("b_device"); v != "" {
		b = append(b, v)
	}
	if v := s.Text("b_wob"); v != "" {
		b = append(b, "WOB: "+v)
	}
	if len(b) > 0 {
		body.addLine("B: " + strings.Join(b, ", "))
	}

	var c []string
	if v := s.Text("c_hr"); v != "" {
		hr := "HR " + v
		if rhythm := s.Text("c_hr_rhythm"); rhythm != "" {
			hr += " (" + rhythm + ")"
		}
		c = append(c, hr)
	}
	if v := s.Text("c_nibp"); v != "" {
		c = append(c, "NIBP "+v)
	}
	if v := s.Text("c_cr"); v != "" {
		c = append(c, "CR "+v)
	}
	if v := s.Text("c_perf"); v != "" {
		c = append(c, "Perf "+v)
	}
	if len(c) > 0 {
		body.addLine("C: " + strings.Join(c, ", "))
	}

	var d []string
	if v := s.Text("d_alert"); v != "" {
		d = append(d, v)
	}
	if v := s.Text("d_pain"); v != "" {
		if strings.EqualFold(v, "no pain") {
			d = append(d, "No pain")
		} else {
			d = append(d, "Pain: "+v)
		}
	}
	if len(d) > 0 {
		body.addLine("D: " + strings.Join(d, ", "))
	}

	var e []string
	if v := s.Text("e_temp"); v != "" {
		e = append(e, "Temp "+v)
	}
	if v := s.Text("e_uop"); v != "" {
		e = append(e, "UOP "+v)
	}
	if v := s.Text("e_bsl"); v != "" {
		e = append(e, "BSL "+v)
	}
	if len(e) > 0 {
		body.addLine("E: " + strings.Join(e, ", "))
	}
	r.section("A-E ASSESSMENT:", body)
}

func contextSection(r *report, s *state.ClinicalState, now time.Time) {
	body := &report{}
	if v := s.Text("ae_mobility"); v != "" {
		body.addLine("Mobility: " + v)
	}
	if v := s.Text("ae_diet"); v != "" {
		body.addLine("Diet: " + v)
	}
	if s.IsFalse("nutrition_adequate") {
		body.addLine("Nutrition: Inadequate" + dashNote(s.Text("nutrition_context_note")))
	} else if s.Flag("nutrition_adequate") {
		body.addLine("Nutrition: Adequate")
	}
	if s.Flag("sleep_quality") {
		body.addLine("Sleep: Poor" + dashNote(s.Text("sleep_quality_note")))
	}
	if s.Flag("pics") {
		body.addLine("Post ICU Syndrome: Positive" + dashNote(s.Text("pics_note")))
	}
	if b := bowelText(s, now); b != "" {
		body.addLine("Bowels: " + b)
	}
	if v := s.Text("anticoag_note"); v != "" {
		body.addLine("Anticoagulation: " + v)
	}
	if v := s.Text("vte_prophylaxis_note"); v != "" {
		body.addLine("VTE Prophylaxis: " + v)
	}
	r.section("", body)
}

func dashNote(note string) string {
	if note == "" {
		return ""
	}
	return " - " + note
}

func bowelText(s *state.ClinicalState, now time.Time) string {
	mode := s.Text("bowel_mode")
	var b string
	switch mode {
	case "bo":
		b = "BO"
	case "bno":
		b = "BNO"
	}
	if s.Flag("chk_unknown_blo_date") && mode == "bno" {
		b += ", unknown when BLO"
	} else if raw := s.Text("bowel_date"); raw != "" {
		if bd, err := time.ParseInLocation("2006-01-02", raw, now.Location()); err == nil {
			today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
			days := int(today.Sub(bd).Hours() / 24)
			b += fmt.Sprintf(" last opened %d/%d", bd.Day(), int(bd.Month()))
			switch {
			case days == 0:
				b += " (today)"
			case days == 1:
				b += " (yesterday)"
			case days > 1:
				b += fmt.Sprintf(" (%d days ago)", days)
			}
		}
	}
	if s.Flag("chk_aperients") && mode == "bno" {
		b += ", aperients charted"
	}
	if v := s.Text("ae_bowels"); v != "" {
		b += " - " + v
	}
	return b
}

func bloodsSection(r *report, s *state.ClinicalState, prev state.PreviousBloods) {
	body := &report{}
	var parts []string
	for _, bl := range bloodLabels {
		cur := s.Text("bl_" + bl.Key)
		if cur == "" {
			continue
		}
		part := bl.Label + " " + cur
		if p, ok := prev.Get(bl.Key); ok && p != cur {
			part += " (" + p + ")"
		}
		parts = append(parts, part)
	}
	if len(parts) > 0 {
		body.addLine("Bloods: " + strings.Join(parts, ", "))
	}
	if v := s.Text("infusions_note"); v != "" {
		body.addLine("Infusions: " + v)
	}
	if s.Flag("new_bloods_ordered") {
		body.addLine("New bloods ordered for next round")
	}
	if v := s.Text("elec_replace_note"); v != "" {
		body.addLine("Electrolyte Plan: " + v)
	}
	r.section("", body)
}

func devicesSection(r *report, s *state.ClinicalState, now time.Time) {
	body := &report{}
	for _, t := range state.DeviceTypes {
		for _, d := range s.Devices {
			if d.Type == t {
				body.push(d.ReportLine(now))
			}
		}
	}
	r.section("LINES, DRAINS & DEVICES:", body)
}
