package rules

import "strconv"

// NLR is the neutrophil to lymphocyte ratio, when both counts are known.
func NLR(c *Context) (float64, bool) {
	neut, ok1 := c.State.NumOr("bl_neut", "neut")
	lymph, ok2 := c.State.NumOr("bl_lymph", "lymph")
	if !ok1 || !ok2 || neut <= 0 || lymph <= 0 {
		return 0, false
	}
	return neut / lymph, true
}

func infectionRule(c *Context, out *collector) {
	s := c.State
	wcc, hasWCC := s.NumOr("bl_wcc", "wcc")
	crp, _ := s.NumOr("crp", "bl_crp")
	temp, _ := c.num("e_temp")
	nlr, _ := NLR(c)

	auto := (hasWCC && (wcc > 15 || wcc < 2)) || temp > 38 || crp > 100 || nlr > 10
	if !auto && !s.Flag("infection") {
		return
	}

	isRed := crp > 100 || temp > 38.5 || nlr > 10

	var markers []string
	if hasWCC && (wcc < 3 || wcc > 11) {
		markers = append(markers, "WCC "+fmtNum(wcc))
	}
	if crp > 50 {
		markers = append(markers, "CRP "+fmtNum(crp))
	}
	if temp > 37.8 {
		markers = append(markers, "Temp "+fmtNum(temp))
	}
	if nlr > 10 {
		markers = append(markers, "NLR "+strconv.FormatFloat(nlr, 'f', 1, 64))
	}

	if s.Flag("infection_downtrend") {
		out.suppress("Infection risk (however, infection markers downtrending, ADDS low and the patient is on appropriate antibiotics)")
		return
	}

	msg := "Infection risk"
	sev := Amber
	if isRed {
		msg = "Severe infection risk"
		sev = Red
	}
	if len(markers) > 0 {
		msg += " with " + joinParts(markers)
	}
	out.add(sev, msg, s.Text("infection_note"), "infection")
}
