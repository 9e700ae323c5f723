package rules

import (
	"fmt"
	"math"

	"github.com/alert/alert/internal/domain/state"
)

// PlanLines are the follow-up statements for the report, without the leading
// dash.
func PlanLines(s *state.ClinicalState, cat Category) []string {
	var lines []string
	switch {
	case s.IsFalse("stepdown_suitable"):
		lines = append(lines,
			"ICU Senior Review requested due to unsuitability for ward stepdown.",
			"Please re-contact ALERT for re-review when appropriate.")
	case s.Flag("chk_discharge_alert"):
		lines = append(lines, "Discharge from ALERT nursing post-ICU list. Please re-contact ALERT if further support required.")
	case s.Flag("chk_continue_alert"):
		lines = append(lines, "Continue ALERT post ICU reviews.")
	case cat == CategoryRed:
		lines = append(lines, "At least daily ALERT review for up to 72h post-ICU stepdown.")
	case cat == CategoryAmber:
		lines = append(lines, "At least daily ALERT review for up to 48h post-ICU stepdown.")
	case IsPre(s):
		lines = append(lines, "At least single ALERT nursing follow up on ward.")
	default:
		lines = append(lines, "Continue ALERT post ICU reviews.")
	}
	if s.Flag("chk_medical_rounding") {
		lines = append(lines, "Patient added to ALERT medical rounding list for further review.")
	}
	return lines
}

// DischargePrompt asks whether a post-stepdown patient can leave the ALERT
// list.
type DischargePrompt struct {
	Visible bool   `json:"visible"`
	Message string `json:"message,omitempty"`
}

// EvaluateDischargePrompt shows the prompt on a post-stepdown review that has
// not been discharged or dismissed, once enough time has passed for the
// category: immediately for green, 48h for amber, 72h for red.
func EvaluateDischargePrompt(s *state.ClinicalState, r Result, dismissed bool) DischargePrompt {
	if IsPre(s) || s.Flag("chk_discharge_alert") || dismissed {
		return DischargePrompt{}
	}
	hours := r.WardTime.Hours
	show := false
	switch r.Category {
	case Green:
		show = true
	case CategoryAmber:
		show = hours >= 48
	case CategoryRed:
		show = hours >= 72
	}
	if !show {
		return DischargePrompt{}
	}
	colour := map[Category]string{Green: "Green", CategoryAmber: "Amber", CategoryRed: "Red"}[r.Category]
	return DischargePrompt{
		Visible: true,
		Message: fmt.Sprintf("%s %s patient. %d hours on ward. Can patient be discharged?",
			r.Category.Label(), colour, int(math.Round(hours))),
	}
}
