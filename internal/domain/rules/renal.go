package rules

import "github.com/alert/alert/internal/domain/state"

func renalRule(c *Context, out *collector) {
	s := c.State
	cr, hasCr := c.creatinine()
	if !s.Flag("renal") && !(hasCr && cr > 150) {
		return
	}

	var fluid, renal []string
	if s.GatedFlag("renal_fluid") {
		fluid = append(fluid, "fluid overload")
	}
	if s.GatedFlag("renal_oedema") {
		fluid = append(fluid, "oedema")
	}
	if s.GatedFlag("renal_dehydrated") {
		fluid = append(fluid, "dehydrated")
	}

	if s.GatedFlag("renal_oliguria") {
		renal = append(renal, "oliguria <0.5ml/kg/hr")
	}
	if s.GatedFlag("renal_anuria") {
		renal = append(renal, "anuria")
	}
	if s.GatedFlag("renal_dysfunction") {
		renal = append(renal, "AKI")
	}
	if hasCr && cr > 150 {
		renal = append(renal, "Cr "+fmtNum(cr))
	}
	acuteDialysis := false
	if s.Flag("renal_dialysis") {
		if s.GatedText("dialysis_type") == "new" {
			acuteDialysis = true
			renal = append(renal, "acute dialysis")
		} else {
			renal = append(renal, "chronic dialysis")
		}
	}

	hasFluid, hasRenal := len(fluid) > 0, len(renal) > 0
	label := "Renal concern"
	switch {
	case hasFluid && hasRenal:
		label = "Renal and fluid concern"
	case hasFluid:
		label = "Fluid concern"
	}
	if all := append(append([]string{}, renal...), fluid...); len(all) > 0 {
		label += " with " + joinParts(all)
	}

	forceAmber := acuteDialysis
	for _, f := range []string{"renal_oliguria", "renal_anuria", "renal_dysfunction", "renal_fluid", "renal_oedema", "renal_dehydrated"} {
		if s.GatedFlag(f) {
			forceAmber = true
		}
	}
	if s.Flag("renal_chronic") && !forceAmber {
		out.suppress(label + " (mitigated: known CKD and Cr around baseline)")
		return
	}

	critical := s.GatedFlag("renal_anuria") || cr > 200 || (hasFluid && hasRenal && s.GatedFlag("renal_dysfunction"))
	sev := Amber
	if critical {
		sev = Red
	}
	out.add(sev, label, s.Text("renal_note"), "renal")
}

// WorseningCreatinine reports whether creatinine rose by more than 30% or by
// more than 30 since the previous review.
func WorseningCreatinine(prev, curr float64) bool {
	if prev <= 0 || curr <= prev {
		return false
	}
	return (curr-prev)/prev*100 > 30 || curr-prev > 30
}

func previousCreatinine(c *Context) (float64, bool) {
	raw, ok := c.Prev.Get("cr_review")
	if !ok {
		return 0, false
	}
	return state.ParseNumber(raw)
}

func worseningCreatinineRule(c *Context, out *collector) {
	if !c.State.GatedFlag("renal_worsening_cr") {
		return
	}
	prev, ok := previousCreatinine(c)
	if !ok {
		return
	}
	curr, ok := c.creatinine()
	if !ok || !WorseningCreatinine(prev, curr) {
		return
	}
	out.add(Amber, "Worsening Cr "+fmtNum(prev)+"→"+fmtNum(curr), "", "bl_cr_review")
}
