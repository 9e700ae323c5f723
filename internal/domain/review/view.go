package review

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/alert/alert/internal/domain/rules"
	"github.com/alert/alert/internal/domain/state"
)

var requiredFields = []struct{ Field, Label string }{
	{"pt_name", "Patient Name"},
	{"pt_mrn", "URN"},
	{"pt_ward", "Ward"},
}

// view assembles the client view. The caller holds sess.mu.
func (s *Service) view(sess *session) *View {
	now := s.now()
	st := sess.state
	res := sess.result

	v := &View{
		ID:              sess.id,
		Fields:          st.Values(),
		Devices:         deviceViews(st, now),
		Red:             nonNilFindings(res.Red),
		Amber:           nonNilFindings(res.Amber),
		Suppressed:      nonNilStrings(res.Suppressed),
		Category:        res.Category,
		CategoryLabel:   res.Category.Label(),
		WardTime:        res.WardTime,
		Faults:          res.Faults,
		Report:          sess.report.Text,
		ReportMode:      sess.report.Mode,
		Plan:            rules.PlanLines(st, res.Category),
		DischargePrompt: sess.prompt,
		AbnormalBloods:  abnormalBloods(st),
		PreviousBloods:  sess.prev,
		PreviousRisks:   sess.previousRisks,
		QuickReview:     sess.quickReview,
		Pending:         sess.pending,
		UpdatedAt:       sess.updatedAt,
	}
	for _, name := range st.Names() {
		if val, _ := st.Get(name); val.Derived {
			v.Derived = append(v.Derived, name)
		}
	}
	for _, r := range requiredFields {
		if !st.Has(r.Field) {
			v.Missing = append(v.Missing, r.Label)
		}
	}
	if len(v.Missing) > 0 {
		v.Nudge = "Missing: " + strings.Join(v.Missing, ", ")
	}
	if nlr, ok := rules.NLR(&rules.Context{State: st}); ok {
		nlr = math.Round(nlr*10) / 10
		v.NLR = &nlr
	}
	if w, ok := st.Num("pt_weight"); ok && w > 0 {
		target := math.Round(w*0.5*10) / 10
		v.UOPTarget = &target
	}
	if h, ok := rules.CeasedHoursAgo(st.Text("pressor_ceased_time"), now); ok {
		v.PressorCeased = fmt.Sprintf("~%d hrs ago", h)
	}
	return v
}

func deviceViews(st *state.ClinicalState, now time.Time) []DeviceView {
	out := make([]DeviceView, 0, len(st.Devices))
	for i, d := range st.Devices {
		dv := DeviceView{DeviceEntry: d, Index: i, Dwell: d.Dwell(now).String()}
		if days, ok := d.DwellDays(now); ok {
			dv.DwellDays = &days
		}
		out = append(out, dv)
	}
	return out
}

// abnormalBloods flags current results outside their reference range.
func abnormalBloods(st *state.ClinicalState) []BloodFlag {
	var out []BloodFlag
	for _, key := range state.LabKeys {
		n, ok := st.Num("bl_" + key)
		if !ok {
			continue
		}
		r, ok := normalRanges[key]
		if !ok {
			continue
		}
		if n < r[0] || n > r[1] {
			out = append(out, BloodFlag{Key: key, Value: n, Low: r[0], High: r[1]})
		}
	}
	return out
}

func nonNilFindings(in []rules.Finding) []rules.Finding {
	if in == nil {
		return []rules.Finding{}
	}
	return in
}

func nonNilStrings(in []string) []string {
	if in == nil {
		return []string{}
	}
	return in
}
