package rules

import "github.com/alert/alert/internal/domain/state"

type respPart struct {
	text string
	red  bool
}

func respiratoryParts(s *state.ClinicalState) []respPart {
	var parts []respPart
	switch s.Text("ox_mod") {
	case "NP":
		if flow, ok := s.Num("np_flow"); ok {
			if flow >= 3 {
				parts = append(parts, respPart{"high flow NP " + fmtNum(flow) + "L", true})
			} else if flow >= 2 {
				parts = append(parts, respPart{"NP " + fmtNum(flow) + "L", false})
			}
		}
	case "HFNP", "NIV":
		mode := s.Text("ox_mod")
		fio2Field := "hfnp_fio2"
		if mode == "NIV" {
			fio2Field = "niv_fio2"
		}
		if fio2, ok := s.Num(fio2Field); ok && fio2 >= 60 {
			parts = append(parts, respPart{mode + " - high FiO2 " + fmtNum(fio2) + "%", true})
		} else {
			parts = append(parts, respPart{mode + " requirement", true})
		}
	case "Trache":
		if s.Text("trache_status") == "New" {
			parts = append(parts, respPart{"new or unstable tracheostomy", true})
		} else {
			parts = append(parts, respPart{"tracheostomy", false})
		}
	}

	if s.Flag("resp_dyspnea") {
		switch d := s.Text("dyspnea_concern"); d {
		case "severe", "moderate":
			parts = append(parts, respPart{d + " dyspnea", true})
		case "mild":
			parts = append(parts, respPart{"mild dyspnea", false})
		default:
			parts = append(parts, respPart{"dyspnea", false})
		}
	}
	if s.Flag("resp_tachypnea") {
		parts = append(parts, respPart{"tachypnea >20bpm", true})
	}
	if s.Flag("resp_rapid_wean") {
		parts = append(parts, respPart{"rapid O2 wean <12hrs", true})
	}
	if s.Flag("resp_poor_cough") {
		parts = append(parts, respPart{"poor cough effort", false})
	}
	if s.Flag("resp_poor_swallow") {
		parts = append(parts, respPart{"poor swallow", false})
	}
	if s.Flag("hist_o2") {
		parts = append(parts, respPart{"recent high O2/NIV requirement <12hrs", true})
	}
	if s.Flag("intubated") {
		if s.Text("intubated_reason") == "concern" {
			parts = append(parts, respPart{"intubated <24hrs ago", true})
		} else {
			parts = append(parts, respPart{"intubated <24hrs ago (elective)", false})
		}
	}
	return parts
}

func respiratoryRule(c *Context, out *collector) {
	s := c.State
	if !s.Flag("resp_concern") {
		return
	}
	parts := respiratoryParts(s)
	note := s.Text("dyspnea_concern_note")
	if len(parts) == 0 {
		out.add(Amber, "Respiratory concern - details required", note, "resp_concern")
		return
	}
	if note != "" {
		parts[len(parts)-1].text += ". Note: " + note
	}
	texts := make([]string, len(parts))
	sev := Amber
	for i, p := range parts {
		texts[i] = p.text
		if p.red {
			sev = Red
		}
	}
	out.add(sev, "Respiratory concern - "+joinParts(texts), "", "resp_concern")
}
