package rules

import (
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/alert/alert/internal/domain/state"
)

var testNow = time.Date(2026, 10, 15, 14, 0, 0, 0, time.UTC)

func newState(fields map[string]interface{}) *state.ClinicalState {
	s := state.New()
	for k, v := range fields {
		if _, err := s.Set(k, v, false); err != nil {
			panic(err)
		}
	}
	return s
}

func texts(fs []Finding) []string {
	out := make([]string, len(fs))
	for i, f := range fs {
		out[i] = f.Text
	}
	return out
}

func TestEvaluate_EmptyIsGreen(t *testing.T) {
	r := Evaluate(state.New(), nil, testNow)
	if r.Category != Green {
		t.Errorf("expected green, got %s", r.Category)
	}
	if len(r.Red)+len(r.Amber)+len(r.Suppressed) != 0 {
		t.Errorf("expected no findings, got %+v", r)
	}
}

func TestEvaluate_Idempotent(t *testing.T) {
	s := newState(map[string]interface{}{
		"c_hr": "135", "b_rr": "22", "pt_age": "80", "renal": true, "renal_oliguria": true,
		"comorb_copd": true, "bl_k": "2.8",
	})
	a := Evaluate(s, nil, testNow)
	b := Evaluate(s, nil, testNow)
	if !reflect.DeepEqual(a, b) {
		t.Errorf("expected identical results:\n%+v\n%+v", a, b)
	}
}

func TestHeartRateBoundary(t *testing.T) {
	r := Evaluate(newState(map[string]interface{}{"c_hr": "130"}), nil, testNow)
	if len(r.Red) != 0 || len(r.Amber) != 1 || r.Amber[0].Text != "Tachycardia HR 130" {
		t.Errorf("HR 130: expected amber only, got red=%v amber=%v", texts(r.Red), texts(r.Amber))
	}
	r = Evaluate(newState(map[string]interface{}{"c_hr": "131"}), nil, testNow)
	if len(r.Red) != 1 || r.Red[0].Text != "Significant tachycardia HR 131" {
		t.Errorf("HR 131: expected red, got %v", texts(r.Red))
	}
}

func TestTemperatureBoundary(t *testing.T) {
	r := Evaluate(newState(map[string]interface{}{"e_temp": "38.5"}), nil, testNow)
	for _, f := range append(r.Red, r.Amber...) {
		if f.Text == "Pyrexia Temp 38.5" {
			t.Error("38.5 must not raise pyrexia")
		}
	}
	r = Evaluate(newState(map[string]interface{}{"e_temp": "38.51"}), nil, testNow)
	found := false
	for _, f := range r.Red {
		if f.Text == "Pyrexia Temp 38.51" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected red pyrexia, got %v", texts(r.Red))
	}
}

func TestRenalMitigation(t *testing.T) {
	s := newState(map[string]interface{}{"renal": true, "renal_chronic": true, "bl_cr_review": "180"})
	r := Evaluate(s, nil, testNow)
	if r.Category != Green {
		t.Errorf("mitigated renal must not affect category, got %s", r.Category)
	}
	want := []string{"Renal concern with Cr 180 (mitigated: known CKD and Cr around baseline)"}
	if !reflect.DeepEqual(r.Suppressed, want) {
		t.Errorf("expected %v, got %v", want, r.Suppressed)
	}

	s.SetBool("renal_oliguria", true, false)
	r = Evaluate(s, nil, testNow)
	if len(r.Suppressed) != 0 || r.Category != CategoryAmber {
		t.Errorf("force-amber flag must defeat mitigation, got %+v", r)
	}
}

func TestRenal_RedWhenCritical(t *testing.T) {
	s := newState(map[string]interface{}{
		"renal": true, "renal_fluid": true, "renal_dysfunction": true,
	})
	r := Evaluate(s, nil, testNow)
	want := "Renal and fluid concern with AKI, fluid overload"
	if len(r.Red) != 1 || r.Red[0].Text != want {
		t.Errorf("expected red %q, got red=%v amber=%v", want, texts(r.Red), texts(r.Amber))
	}
}

func TestCategoryMonotonicity(t *testing.T) {
	s := newState(map[string]interface{}{"pt_age": "80"})
	if Evaluate(s, nil, testNow).Category != CategoryAmber {
		t.Fatal("expected amber from age")
	}
	s.SetText("c_hr", "150", false)
	if Evaluate(s, nil, testNow).Category != CategoryRed {
		t.Error("adding a red finding must yield red")
	}
	s.Clear()
	if Evaluate(s, nil, testNow).Category != Green {
		t.Error("removing all findings must yield green")
	}
	s.SetBool("hac", true, false)
	if Evaluate(s, nil, testNow).Category != CategoryAmber {
		t.Error("adding amber to green must yield amber")
	}
}

func TestEngine_FaultIsolation(t *testing.T) {
	rules := []Rule{
		{"boom", func(*Context, *collector) { panic("bad rule") }},
		{"age", ageRule},
	}
	e := NewEngine(zerolog.Nop()).WithRules(rules)
	r := e.Evaluate(newState(map[string]interface{}{"pt_age": "90"}), nil, testNow)
	if len(r.Faults) != 1 || r.Faults[0].Rule != "boom" {
		t.Errorf("expected one fault from boom, got %+v", r.Faults)
	}
	if len(r.Amber) != 1 || r.Amber[0].Text != "Age 90 (frailty risk)" {
		t.Errorf("remaining rules must still run, got %v", texts(r.Amber))
	}
}

func TestEngine_PartialBlockDiscardedOnFault(t *testing.T) {
	rules := []Rule{
		{"half", func(c *Context, out *collector) {
			out.add(Red, "should not appear", "")
			panic("after add")
		}},
	}
	r := NewEngine(zerolog.Nop()).WithRules(rules).Evaluate(state.New(), nil, testNow)
	if len(r.Red) != 0 || r.Category != Green {
		t.Errorf("faulted block must contribute nothing, got %+v", r)
	}
}

func TestRespiratoryConcern(t *testing.T) {
	s := newState(map[string]interface{}{
		"resp_concern": true, "ox_mod": "NP", "np_flow": "2",
		"resp_poor_cough": true, "dyspnea_concern_note": "on exertion",
	})
	r := Evaluate(s, nil, testNow)
	want := "Respiratory concern - NP 2L, poor cough effort. note: on exertion"
	if len(r.Amber) != 1 || r.Amber[0].Text != want {
		t.Errorf("expected %q, got %v", want, texts(r.Amber))
	}

	s.SetBool("resp_tachypnea", true, false)
	r = Evaluate(s, nil, testNow)
	if len(r.Red) != 1 {
		t.Errorf("tachypnea part must make the finding red, got %v", texts(r.Red))
	}

	empty := newState(map[string]interface{}{"resp_concern": true})
	r = Evaluate(empty, nil, testNow)
	if len(r.Amber) != 1 || r.Amber[0].Text != "Respiratory concern - details required" {
		t.Errorf("expected details required, got %v", texts(r.Amber))
	}
}

func TestRespiratory_HFNP(t *testing.T) {
	s := newState(map[string]interface{}{"resp_concern": true, "ox_mod": "HFNP", "hfnp_fio2": "60"})
	r := Evaluate(s, nil, testNow)
	if len(r.Red) != 1 || r.Red[0].Text != "Respiratory concern - HFNP - high FiO2 60%" {
		t.Errorf("unexpected %v", texts(r.Red))
	}
}

func TestInfection(t *testing.T) {
	s := newState(map[string]interface{}{"bl_wcc": "16", "bl_crp": "60"})
	r := Evaluate(s, nil, testNow)
	want := "Infection risk with WCC 16, crp 60"
	if len(r.Amber) != 1 || r.Amber[0].Text != want {
		t.Errorf("expected %q, got %v", want, texts(r.Amber))
	}

	s.SetText("bl_neut", "12", false)
	s.SetText("bl_lymph", "1", false)
	r = Evaluate(s, nil, testNow)
	if len(r.Red) != 1 || r.Red[0].Text != "Severe infection risk with WCC 16, crp 60, nlr 12.0" {
		t.Errorf("unexpected %v", texts(r.Red))
	}

	s.SetBool("infection_downtrend", true, false)
	r = Evaluate(s, nil, testNow)
	if len(r.Red) != 0 || len(r.Suppressed) != 1 {
		t.Errorf("downtrend must suppress infection, got %+v", r)
	}
}

func TestElectrolyte(t *testing.T) {
	r := Evaluate(newState(map[string]interface{}{"bl_k": "6.2"}), nil, testNow)
	if len(r.Red) != 1 || r.Red[0].Text != "Electrolyte concern with hyperkalemia K+ 6.2" {
		t.Errorf("unexpected %v", texts(r.Red))
	}
	r = Evaluate(newState(map[string]interface{}{"electrolyte_gate": true, "electrolyte_concern": "mild"}), nil, testNow)
	if len(r.Amber) != 1 || r.Amber[0].Text != "Electrolyte concern with mild/moderate derangement" {
		t.Errorf("unexpected %v", texts(r.Amber))
	}
}

func TestNeurological(t *testing.T) {
	s := newState(map[string]interface{}{
		"neuro_gate": true, "d_alert": "GCS 13", "neuro_type": "Delirium", "neuro_concern": "severe",
	})
	r := Evaluate(s, nil, testNow)
	if len(r.Red) != 1 || r.Red[0].Text != "Neurological concern with gcs 13, delirium" {
		t.Errorf("unexpected %v", texts(r.Red))
	}
}

func TestComorbidities(t *testing.T) {
	s := newState(map[string]interface{}{"comorb_copd": true, "comorb_diabetes": true})
	r := Evaluate(s, nil, testNow)
	if len(r.Amber) != 1 || r.Amber[0].Text != "Comorbidities including copd, diabetes" {
		t.Errorf("unexpected %v", texts(r.Amber))
	}
	s.SetBool("comorb_esrd", true, false)
	r = Evaluate(s, nil, testNow)
	if len(r.Red) != 1 || r.Red[0].Text != "Multiple comorbidities (three or more)" {
		t.Errorf("unexpected %v", texts(r.Red))
	}
}

func TestVasoactive(t *testing.T) {
	s := newState(map[string]interface{}{
		"pressor_recent_norad": true, "pressor_recent_met": true, "pressor_ceased_time": "08:30",
	})
	r := Evaluate(s, nil, testNow)
	want := "Recent vasoactive support included Noradrenaline, metaraminol which was ceased at approximately 08:30"
	if len(r.Amber) != 1 || r.Amber[0].Text != want {
		t.Errorf("expected %q, got %v", want, texts(r.Amber))
	}
	if h, ok := CeasedHoursAgo("08:30", testNow); !ok || h != 5 {
		t.Errorf("expected 5 hours ago, got %d", h)
	}
	if h, _ := CeasedHoursAgo("20:00", testNow); h != 18 {
		t.Errorf("later clock time refers to yesterday, expected 18, got %d", h)
	}
}

func TestWorseningCreatinine(t *testing.T) {
	s := newState(map[string]interface{}{"renal": true, "renal_worsening_cr": true, "bl_cr_review": "140"})
	prev := state.PreviousBloods{"cr_review": "100"}
	r := Evaluate(s, prev, testNow)
	found := false
	for _, f := range r.Amber {
		if f.Text == "Worsening Cr 100→140" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected worsening Cr finding, got %v", texts(r.Amber))
	}
	if WorseningCreatinine(100, 120) {
		t.Error("20% rise should not count as worsening")
	}
	if !WorseningCreatinine(200, 231) {
		t.Error("absolute rise over 30 should count as worsening")
	}
}

func TestAddsRecentWindow(t *testing.T) {
	s := newState(map[string]interface{}{"adds": "3", "stepdown_date": "2026-10-15", "stepdown_time": "Morning"})
	r := Evaluate(s, nil, testNow)
	if len(r.Amber) != 1 || r.Amber[0].Text != "Observation required ADDS 3" {
		t.Errorf("expected observation finding inside 24h, got %v", texts(r.Amber))
	}
	s.SetText("stepdown_date", "2026-10-10", false)
	r = Evaluate(s, nil, testNow)
	if len(r.Amber) != 0 {
		t.Errorf("expected no finding after 24h, got %v", texts(r.Amber))
	}
}

func TestOverrideAndDedupe(t *testing.T) {
	s := newState(map[string]interface{}{"override": "red", "override_note": "Hb 60"})
	s.SetText("bl_hb", "60", false)
	r := Evaluate(s, nil, testNow)
	if !reflect.DeepEqual(texts(r.Red), []string{"Hb 60"}) {
		t.Errorf("expected deduplicated red list, got %v", texts(r.Red))
	}
}

func TestWardTime(t *testing.T) {
	tests := []struct {
		date, band string
		want       string
	}{
		{"2026-10-15", "Morning", "5 hours"},
		{"2026-10-14", "Afternoon", "1 days"},
		{"2026-10-13", "", "2 days"},
		{"2026-10-10", "Night", "5 days"},
		{"2026-10-16", "", "(Planned Stepdown)"},
	}
	for _, tt := range tests {
		s := newState(map[string]interface{}{"stepdown_date": tt.date})
		if tt.band != "" {
			s.SetText("stepdown_time", tt.band, false)
		}
		if got := ComputeWardTime(s, testNow).Text; got != tt.want {
			t.Errorf("%s %s: expected %q, got %q", tt.date, tt.band, tt.want, got)
		}
	}
	pre := newState(map[string]interface{}{"review_type": "pre"})
	if ComputeWardTime(pre, testNow).Text != "(Pre-Stepdown)" {
		t.Error("pre-stepdown review has fixed ward time text")
	}
}

func TestPlanLines(t *testing.T) {
	s := newState(map[string]interface{}{"chk_medical_rounding": true})
	got := PlanLines(s, CategoryRed)
	want := []string{
		"At least daily ALERT review for up to 72h post-ICU stepdown.",
		"Patient added to ALERT medical rounding list for further review.",
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
	s.SetBool("stepdown_suitable", false, false)
	if PlanLines(s, CategoryRed)[0] != "ICU Senior Review requested due to unsuitability for ward stepdown." {
		t.Error("unsuitable plan must take precedence")
	}
	pre := newState(map[string]interface{}{"review_type": "pre"})
	if PlanLines(pre, Green)[0] != "At least single ALERT nursing follow up on ward." {
		t.Error("unexpected green pre-stepdown plan")
	}
}

func TestDischargePrompt(t *testing.T) {
	s := newState(map[string]interface{}{"stepdown_date": "2026-10-14"})
	r := Evaluate(s, nil, testNow)
	if p := EvaluateDischargePrompt(s, r, false); !p.Visible {
		t.Error("green post review shows the prompt immediately")
	}
	if p := EvaluateDischargePrompt(s, r, true); p.Visible {
		t.Error("dismissed prompt must stay hidden")
	}
	s.SetText("pt_age", "80", false)
	r = Evaluate(s, nil, testNow)
	if p := EvaluateDischargePrompt(s, r, false); p.Visible {
		t.Error("amber prompt waits for 48h")
	}
	s.SetText("stepdown_date", "2026-10-12", false)
	r = Evaluate(s, nil, testNow)
	if p := EvaluateDischargePrompt(s, r, false); !p.Visible {
		t.Error("amber prompt shows after 48h")
	}
}

func TestSentenceCase(t *testing.T) {
	tests := map[string]string{
		"neurological concern": "Neurological concern",
		"ADDS 5":               "ADDS 5",
		"3 comorbidities":      "3 comorbidities",
		"K2 thing":             "K2 thing",
		"Comorbidities INCL":   "Comorbidities incl",
	}
	for in, want := range tests {
		if got := sentenceCase(in); got != want {
			t.Errorf("sentenceCase(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestWorseningCreatinine_RenalClosed(t *testing.T) {
	s := newState(map[string]interface{}{"renal": false, "renal_worsening_cr": true, "bl_cr_review": "120"})
	r := Evaluate(s, state.PreviousBloods{"cr_review": "80"}, testNow)
	for _, f := range append(r.Amber, r.Red...) {
		if strings.HasPrefix(f.Text, "Worsening Cr") {
			t.Errorf("stale worsening chip should be ignored, got %q", f.Text)
		}
	}
}

func TestRenal_ClosedGateIgnoresStaleChips(t *testing.T) {
	s := newState(map[string]interface{}{
		"renal": false, "renal_oliguria": true, "renal_chronic": true, "bl_cr_review": "160",
	})
	r := Evaluate(s, nil, testNow)
	want := []string{"Renal concern with Cr 160 (mitigated: known CKD and Cr around baseline)"}
	if !reflect.DeepEqual(r.Suppressed, want) {
		t.Errorf("expected %v, got %v", want, r.Suppressed)
	}
	if len(r.Amber) != 0 || len(r.Red) != 0 {
		t.Errorf("expected no flags, got amber %v red %v", texts(r.Amber), texts(r.Red))
	}
}

func TestElectrolyte_GateClosed(t *testing.T) {
	r := Evaluate(newState(map[string]interface{}{"electrolyte_gate": false, "electrolyte_concern": "severe"}), nil, testNow)
	if len(r.Amber) != 0 || len(r.Red) != 0 {
		t.Errorf("expected no flags, got amber %v red %v", texts(r.Amber), texts(r.Red))
	}
}
