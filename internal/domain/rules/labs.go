package rules

func laboratoryRule(c *Context, out *collector) {
	s := c.State

	if hb, ok := s.NumOr("hb", "bl_hb"); ok {
		if hb <= 70 {
			out.add(Red, "Hb "+fmtNum(hb), "", "bl_hb")
		} else if hb <= 90 && s.Flag("hb_dropping") {
			out.add(Amber, "Hb "+fmtNum(hb)+" and dropping", "", "bl_hb", "hb_dropping")
		}
	}
	if alb, ok := c.num("bl_alb"); ok && alb < 20 {
		out.add(Amber, "Severe hypoalbuminemia Alb "+fmtNum(alb), "", "bl_alb")
	}
	if plts, ok := c.num("bl_plts"); ok && plts < 100 {
		out.add(Amber, "Thrombocytopenia Plts "+fmtNum(plts), "", "bl_plts")
	}
	if inr, ok := c.num("bl_inr"); ok {
		if inr > 3.5 {
			out.add(Red, "High INR "+fmtNum(inr), "", "bl_inr")
		} else if inr > 2.5 {
			out.add(Amber, "Elevated INR "+fmtNum(inr), "", "bl_inr")
		}
	}
	if egfr, ok := c.num("bl_egfr"); ok && egfr < 30 {
		out.add(Amber, "Low eGFR "+fmtNum(egfr)+" indicating renal concern", "", "bl_egfr")
	}
	if bsl, ok := c.num("e_bsl"); ok {
		switch {
		case bsl < 4.0:
			out.add(Red, "Hypoglycemia BSL "+fmtNum(bsl), "", "e_bsl")
		case bsl > 20:
			out.add(Red, "Hyperglycemia BSL "+fmtNum(bsl), "", "e_bsl")
		case bsl >= 15:
			out.add(Amber, "Hyperglycemia BSL "+fmtNum(bsl), "", "e_bsl")
		}
	}
}

func lactateRule(c *Context, out *collector) {
	lact, ok := c.State.NumOr("lactate", "bl_lac_review")
	if !ok {
		return
	}
	switch {
	case lact > 4.0:
		out.add(Red, "Lactate "+fmtNum(lact), "", "lactate")
	case lact >= 2.0:
		out.add(Amber, "Lactate "+fmtNum(lact), "", "lactate")
	}
}
