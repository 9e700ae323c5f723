package state

import "strings"

// Kind is the declared type of a field.
type Kind int

const (
	KindText Kind = iota
	KindNumber
	KindBool
	KindEnum
)

func (k Kind) String() string {
	switch k {
	case KindNumber:
		return "number"
	case KindBool:
		return "bool"
	case KindEnum:
		return "enum"
	default:
		return "text"
	}
}

// FieldDef describes one named field of a review.
type FieldDef struct {
	Name    string
	Kind    Kind
	Options []string
	// Gate names the boolean field that must be true for this field to apply.
	Gate string
}

// LabKeys are the blood result keys in display order of the entry form.
var LabKeys = []string{
	"wcc", "crp", "neut", "lymph", "hb", "plts", "k", "na", "cr_review",
	"egfr", "mg", "alb", "lac_review", "phos", "bili", "alt", "inr", "aptt",
}

// ComorbidityLabels maps comorbidity toggles to their report label, in
// display order.
var ComorbidityLabels = []struct {
	Field string
	Label string
}{
	{"comorb_copd", "COPD"},
	{"comorb_asthma", "Asthma"},
	{"comorb_hf", "Active Heart Failure"},
	{"comorb_esrd", "ESRD"},
	{"comorb_dialysis", "Dialysis"},
	{"comorb_diabetes", "Diabetes"},
	{"comorb_cirrhosis", "Cirrhosis"},
	{"comorb_malignancy", "Active malignancy"},
	{"comorb_immuno", "Immunosuppression"},
	{"comorb_other", "Other"},
}

// RecentPressors and CurrentPressors map vasoactive toggles to display names.
var (
	RecentPressors = []struct{ Field, Label string }{
		{"pressor_recent_norad", "Noradrenaline"},
		{"pressor_recent_met", "Metaraminol"},
		{"pressor_recent_gtn", "GTN"},
		{"pressor_recent_dob", "Dobutamine"},
		{"pressor_recent_mid", "Midodrine"},
		{"pressor_recent_other", "Other"},
	}
	CurrentPressors = []struct{ Field, Label string }{
		{"pressor_current_mid", "Midodrine"},
		{"pressor_current_other", "Other"},
	}
)

var registry = map[string]FieldDef{}

func def(kind Kind, gate string, names ...string) {
	for _, n := range names {
		registry[n] = FieldDef{Name: n, Kind: kind, Gate: gate}
	}
}

func enum(name, gate string, options ...string) {
	registry[name] = FieldDef{Name: name, Kind: KindEnum, Options: options, Gate: gate}
}

func init() {
	// review meta
	enum("review_type", "", "pre", "post")
	enum("clinician_role", "", "ALERT CNS", "ALERT CN")
	enum("stepdown_time", "", "Morning", "Afternoon", "Evening", "Night")
	def(KindText, "", "review_time", "stepdown_date", "icu_summary")

	// demographics and context
	def(KindText, "", "pt_name", "pt_mrn", "pt_ward", "pt_ward_other", "pt_bed", "pt_admission_reason")
	def(KindNumber, "", "pt_age", "pt_weight", "icu_los")
	def(KindText, "", "goc_note", "allergies_note", "pics_note", "pmh_note", "context_other_note")

	// A-E
	def(KindNumber, "", "adds", "atoe_adds", "mods_score", "b_rr", "b_spo2", "c_hr", "d_pain", "e_temp", "e_bsl")
	def(KindBool, "", "chk_use_mods", "chk_aperients", "chk_unknown_blo_date")
	def(KindText, "", "mods_details", "airway_a", "b_device", "b_wob", "c_hr_rhythm", "c_nibp", "c_cr", "c_perf",
		"d_alert", "e_fluid", "e_uop", "ae_mobility", "ae_diet", "ae_bowels", "bowel_date",
		"anticoag_note", "vte_prophylaxis_note")
	enum("bowel_mode", "", "bo", "bno")

	// bloods
	for _, k := range LabKeys {
		def(KindNumber, "", "bl_"+k)
		def(KindText, "", "prev_bl_"+k)
	}
	def(KindNumber, "", "lactate", "hb", "wcc", "crp", "neut", "lymph")
	def(KindBool, "", "hb_dropping", "new_bloods_ordered")
	enum("lactate_trend", "", "rising", "stable", "falling")
	def(KindText, "", "infusions_note", "elec_replace_note")

	// respiratory
	def(KindBool, "", "resp_concern")
	enum("ox_mod", "resp_concern", "RA", "NP", "HFNP", "NIV", "Trache")
	def(KindNumber, "resp_concern", "np_flow", "hfnp_fio2", "hfnp_flow", "niv_fio2", "niv_peep", "niv_ps")
	enum("trache_status", "resp_concern", "New", "Established")
	def(KindText, "resp_concern", "trache_details_note", "dyspnea_concern_note")
	def(KindBool, "resp_concern", "resp_dyspnea", "resp_tachypnea", "resp_rapid_wean", "resp_poor_cough",
		"resp_poor_swallow", "hist_o2", "intubated")
	enum("dyspnea_concern", "resp_dyspnea", "mild", "moderate", "severe")
	enum("intubated_reason", "intubated", "elective", "concern")

	// renal and fluid
	def(KindBool, "", "renal")
	def(KindBool, "renal", "renal_oliguria", "renal_anuria", "renal_fluid", "renal_oedema", "renal_dysfunction",
		"renal_dehydrated", "renal_worsening_cr")
	def(KindBool, "", "renal_dialysis", "renal_chronic", "renal_chronic_bloods")
	enum("dialysis_type", "renal_dialysis", "new", "chronic")
	def(KindText, "", "renal_note", "fluid_restriction_amount")

	// infection
	def(KindBool, "", "infection", "infection_downtrend", "infection_downtrend_bloods")
	def(KindText, "", "infection_note")

	// neuro
	def(KindBool, "", "neuro_gate")
	enum("neuro_concern", "neuro_gate", "mild", "severe")
	def(KindText, "neuro_gate", "neuro_type", "neuro_type_note")

	// electrolytes
	def(KindBool, "", "electrolyte_gate")
	enum("electrolyte_concern", "electrolyte_gate", "mild", "severe")
	def(KindText, "electrolyte_gate", "electrolyte_concern_note")

	// vasoactive
	def(KindBool, "", "pressors")
	for _, p := range RecentPressors {
		def(KindBool, "", p.Field)
	}
	for _, p := range CurrentPressors {
		def(KindBool, "", p.Field)
	}
	def(KindText, "", "pressor_ceased_time", "pressors_note", "pressor_recent_other_note", "pressor_current_other_note")

	// other risk context
	def(KindBool, "", "after_hours", "hac", "immobility", "comorbs_gate", "neuro_psych", "pics", "sleep_quality", "pain_control")
	def(KindBool, "", "nutrition_adequate")
	def(KindText, "", "after_hours_note", "hac_note", "immobility_note", "comorb_other_note", "neuro_psych_note",
		"sleep_quality_note", "nutrition_context_note", "pain_context_note")
	for _, c := range ComorbidityLabels {
		if _, ok := registry[c.Field]; !ok {
			def(KindBool, "", c.Field)
		}
	}

	// plan
	def(KindBool, "", "stepdown_suitable", "chk_discharge_alert", "chk_continue_alert", "chk_medical_rounding",
		"chk_medical_rounding_pre")
	def(KindText, "", "unsuitable_note", "override_note")
	enum("override", "", "none", "amber", "red")

	// ADDS calculator inputs
	def(KindNumber, "", "calc_rr", "calc_spo2", "calc_o2_val", "calc_sbp", "calc_dbp", "calc_hr", "calc_temp")
	enum("calc_o2_mode", "", "std", "hf")
	enum("calc_avpu", "", "A", "V", "P", "U")

	// previous values written by import
	def(KindText, "", "prev_adds", "prev_airway", "prev_rr", "prev_spo2", "prev_o2_dev", "prev_hr", "prev_bp",
		"prev_temp", "prev_alert")
	for _, c := range RiskCategories {
		def(KindBool, "", "prev_risk_"+c)
	}
}

// RiskCategories are the risk-factor categories recognised in a previous
// review's risk list.
var RiskCategories = []string{
	"resp", "neuro", "renal", "infective", "electrolyte", "after_hours", "vasoactive", "immobility",
}

// Lookup returns the definition of a named field.
func Lookup(name string) (FieldDef, bool) {
	d, ok := registry[name]
	return d, ok
}

// Fields returns every registered field name.
func Fields() []string {
	out := make([]string, 0, len(registry))
	for n := range registry {
		out = append(out, n)
	}
	return out
}

func (d FieldDef) option(v string) (string, bool) {
	for _, o := range d.Options {
		if strings.EqualFold(o, v) {
			return o, true
		}
	}
	return "", false
}
