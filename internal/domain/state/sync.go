package state

// syncPairs are fields shown in two places of the review that must always hold
// the same value. Writing either side writes the other before Set returns.
var syncPairs = [][2]string{
	{"adds", "atoe_adds"},
	{"lactate", "bl_lac_review"},
	{"hb", "bl_hb"},
	{"wcc", "bl_wcc"},
	{"crp", "bl_crp"},
	{"neut", "bl_neut"},
	{"lymph", "bl_lymph"},
	{"renal_chronic", "renal_chronic_bloods"},
	{"infection_downtrend", "infection_downtrend_bloods"},
	{"renal_dialysis", "comorb_dialysis"},
	{"chk_medical_rounding", "chk_medical_rounding_pre"},
	{"calc_hr", "c_hr"},
	{"calc_rr", "b_rr"},
	{"calc_temp", "e_temp"},
}

var partners = func() map[string]string {
	m := make(map[string]string, len(syncPairs)*2)
	for _, p := range syncPairs {
		m[p[0]] = p[1]
		m[p[1]] = p[0]
	}
	return m
}()

// Partner returns the field mirrored with name, if any.
func Partner(name string) (string, bool) {
	p, ok := partners[name]
	return p, ok
}

// Pairs returns a copy of the declared mirror pairs.
func Pairs() [][2]string {
	return append([][2]string(nil), syncPairs...)
}
