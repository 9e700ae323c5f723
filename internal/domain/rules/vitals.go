package rules

import (
	"strings"
	"time"

	"github.com/alert/alert/internal/domain/state"
)

// -- Vasoactive support --

func pressorList(s *state.ClinicalState, list []struct{ Field, Label string }, otherNote string) []string {
	var out []string
	for _, p := range list {
		if !s.Flag(p.Field) {
			continue
		}
		label := p.Label
		if label == "Other" {
			label = "Other (" + s.Text(otherNote) + ")"
		}
		out = append(out, label)
	}
	return out
}

func vasoactiveRule(c *Context, out *collector) {
	s := c.State
	current := pressorList(s, state.CurrentPressors, "pressor_current_other_note")
	recent := pressorList(s, state.RecentPressors, "pressor_recent_other_note")
	if len(current) == 0 && len(recent) == 0 {
		return
	}
	var details []string
	if len(current) > 0 {
		details = append(details, "Current vasoactive support - "+joinParts(current))
	}
	if len(recent) > 0 {
		part := "Recent vasoactive support included " + joinParts(recent)
		if t := s.Text("pressor_ceased_time"); t != "" {
			part += " which was ceased at approximately " + t
		}
		details = append(details, part)
	}
	out.add(Amber, strings.Join(details, ". "), s.Text("pressors_note"), "pressors")
}

// CeasedHoursAgo is the whole hours since a vasoactive infusion was ceased at
// clock time hhmm. A clock time later than now refers to the previous day.
func CeasedHoursAgo(hhmm string, now time.Time) (int, bool) {
	t, err := time.Parse("15:04", strings.TrimSpace(hhmm))
	if err != nil {
		return 0, false
	}
	ceased := time.Date(now.Year(), now.Month(), now.Day(), t.Hour(), t.Minute(), 0, 0, now.Location())
	if ceased.After(now) {
		ceased = ceased.AddDate(0, 0, -1)
	}
	return int(now.Sub(ceased).Hours()), true
}

// -- Observations --

func addsRule(c *Context, out *collector) {
	adds, ok := c.State.Num("adds")
	if !ok {
		return
	}
	switch {
	case adds >= 6:
		out.add(Red, "Severe physiological instability ADDS "+fmtNum(adds), "", "adds")
	case adds >= 4:
		out.add(Red, "Physiological instability ADDS "+fmtNum(adds), "", "adds")
	case adds == 3 && c.Ward.Recent(c.Pre):
		out.add(Amber, "Observation required ADDS 3", "", "adds")
	}
}

func heartRateRule(c *Context, out *collector) {
	hr, ok := c.num("c_hr")
	if !ok {
		return
	}
	switch {
	case hr > 130:
		out.add(Red, "Significant tachycardia HR "+fmtNum(hr), "", "c_hr")
	case hr > 110:
		out.add(Amber, "Tachycardia HR "+fmtNum(hr), "", "c_hr")
	case hr < 40:
		out.add(Red, "Severe bradycardia HR "+fmtNum(hr), "", "c_hr")
	case hr < 50:
		out.add(Amber, "Bradycardia HR "+fmtNum(hr), "", "c_hr")
	}
}

// SystolicBP reads the systolic half of a "sys/dia" entry.
func SystolicBP(nibp string) (float64, bool) {
	if nibp == "" {
		return 0, false
	}
	sys, _, _ := strings.Cut(nibp, "/")
	return state.ParseNumber(sys)
}

func bloodPressureRule(c *Context, out *collector) {
	sbp, ok := SystolicBP(c.State.Text("c_nibp"))
	if ok && sbp < 90 {
		out.add(Red, "Hypotension SBP "+fmtNum(sbp), "", "c_nibp")
	}
}

func respiratoryRateRule(c *Context, out *collector) {
	rr, ok := c.num("b_rr")
	if !ok {
		return
	}
	switch {
	case rr > 25:
		out.add(Red, "Tachypnea RR "+fmtNum(rr), "", "b_rr")
	case rr > 20:
		out.add(Amber, "Mild tachypnea RR "+fmtNum(rr), "", "b_rr")
	case rr < 8:
		out.add(Red, "Bradypnea RR "+fmtNum(rr), "", "b_rr")
	}
}

func oxygenSaturationRule(c *Context, out *collector) {
	spo2, ok := state.ParseNumber(strings.ReplaceAll(c.State.Text("b_spo2"), "%", ""))
	if ok && spo2 != 0 && spo2 < 88 {
		out.add(Red, "Hypoxia SpO2 "+fmtNum(spo2)+"%", "", "b_spo2")
	}
}

func temperatureRule(c *Context, out *collector) {
	temp, ok := c.num("e_temp")
	if !ok {
		return
	}
	switch {
	case temp > 38.5:
		out.add(Red, "Pyrexia Temp "+fmtNum(temp), "", "e_temp")
	case temp < 35.5:
		out.add(Red, "Hypothermia Temp "+fmtNum(temp), "", "e_temp")
	}
}
